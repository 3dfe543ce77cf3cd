// Package setup turns a config into the collaborators a session needs.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/johndosdos/conecta/internal/auth"
	"github.com/johndosdos/conecta/internal/broker"
	"github.com/johndosdos/conecta/internal/chat"
	"github.com/johndosdos/conecta/internal/config"
	"github.com/johndosdos/conecta/internal/database"
	"github.com/johndosdos/conecta/internal/metrics"
	ratelimiter "github.com/johndosdos/conecta/internal/rate_limiter"
	"github.com/johndosdos/conecta/internal/store"
)

// Backends holds the shared store and broker dialer. Close releases them.
type Backends struct {
	Store  store.Store
	Dialer broker.Dialer

	pool    *pgxpool.Pool
	limiter *ratelimiter.SenderRateLimiter
	deps    chat.Deps
}

// Open connects the durable store, migrating Postgres when a database URL is
// set, and prepares the broker dialer. The broker is dialed per session.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*Backends, error) {
	b := &Backends{}

	if cfg.Database.URL == "" {
		log.InfoContext(ctx, "no database configured; using in-memory store")
		b.Store = store.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("could not connect to the postgresql database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("could not reach the postgresql database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		st, err := store.NewPostgresStore(pool, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		b.pool = pool
		b.Store = st
	}

	b.Dialer = NewDialer(cfg.Broker)

	deps := chat.Deps{
		Store:          b.Store,
		Dialer:         b.Dialer,
		BrokerAddress:  cfg.Broker.URL,
		Logger:         log,
		Metrics:        m,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		PublishTimeout: cfg.Broker.PublishTimeout,
	}
	if cfg.Send.Sanitize {
		deps.Sanitizer = NewMarkupStripper()
	}
	if cfg.Send.RatePerMinute > 0 {
		b.limiter = ratelimiter.NewSenderRateLimiter(cfg.Send.RatePerMinute, time.Minute, ratelimiter.CleanupOpts{})
		deps.Limiter = b.limiter
	}
	b.deps = deps

	return b, nil
}

// NewDialer returns the dialer for the configured broker kind, or nil when
// live delivery is turned off.
func NewDialer(cfg config.BrokerConfig) broker.Dialer {
	switch cfg.Kind {
	case config.BrokerNATS:
		opts := broker.NATSCredentials(cfg.NATSCred, cfg.NATSUser, cfg.NATSPassword)
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
		return broker.NATSDialer{Options: opts}
	case config.BrokerMQTT:
		return broker.MQTTDialer{Timeout: cfg.PublishTimeout}
	default:
		return nil
	}
}

// Identity picks the identity provider: a JWT when a token is configured,
// the static development identity otherwise.
func Identity(cfg config.IdentityConfig, log *slog.Logger) auth.Provider {
	if cfg.Token != "" {
		return auth.JWTProvider{Token: cfg.Token, Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Log: log}
	}
	return auth.Static(cfg.Static)
}

// Deps returns session dependencies for identity sharing these backends.
func (b *Backends) Deps(identity auth.Provider) chat.Deps {
	d := b.deps
	d.Identity = identity
	return d
}

func (b *Backends) Close() {
	if b.limiter != nil {
		b.limiter.Cancel()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
