package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/johndosdos/conecta/internal/database"
	"github.com/johndosdos/conecta/internal/model"
)

// PostgresStore keeps every log in the chat_documents table. Subscribers
// hold one dedicated connection that LISTENs for the insert trigger and
// reload the whole log on each notification for their path.
//
// PostgresStore does not own the pool; the caller closes it.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    *database.Queries
	log  *slog.Logger
}

// NewPostgresStore returns a store over pool. The schema must already be
// migrated (see database.Migrate).
func NewPostgresStore(pool *pgxpool.Pool, log *slog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("store: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{
		pool: pool,
		q:    database.New(pool),
		log:  log,
	}, nil
}

func (s *PostgresStore) Append(ctx context.Context, path string, m model.Message) (string, error) {
	if path == "" {
		return "", errors.New("store: missing path")
	}
	body, err := m.Encode()
	if err != nil {
		return "", err
	}

	doc, err := s.q.AppendDocument(ctx, database.AppendDocumentParams{
		ChannelPath: path,
		DocKey:      ulid.Make().String(),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store document to database: %w", err)
	}
	return doc.DocKey, nil
}

// List returns the log at path in insertion order.
func (s *PostgresStore) List(ctx context.Context, path string) ([]Document, error) {
	return list(ctx, s.q, path)
}

func list(ctx context.Context, q *database.Queries, path string) ([]Document, error) {
	rows, err := q.ListDocuments(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents from database: %w", err)
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, Document{Key: r.DocKey, Data: r.Body})
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, path string, onSnapshot func([]Document), onError func(error)) (Subscription, error) {
	if path == "" {
		return nil, errors.New("store: missing path")
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{database.NotifyChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on [%s]: %w", database.NotifyChannel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &pgSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		// A listening connection never goes back to the pool.
		defer func() {
			raw := conn.Hijack()
			if err := raw.Close(context.Background()); err != nil {
				s.log.Debug("failed to close listener connection", "error", err)
			}
		}()

		q := database.New(conn)
		fail := func(err error) {
			if subCtx.Err() != nil {
				return
			}
			s.log.Error("durable subscription stopped", "path", path, "error", err)
			if onError != nil {
				onError(err)
			}
		}

		docs, err := list(subCtx, q, path)
		if err != nil {
			fail(err)
			return
		}
		onSnapshot(docs)

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				fail(fmt.Errorf("failed waiting for notification: %w", err))
				return
			}
			if n.Payload != path {
				continue
			}

			docs, err := list(subCtx, q, path)
			if err != nil {
				fail(err)
				return
			}
			onSnapshot(docs)
		}
	}()

	return sub, nil
}

type pgSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pgSubscription) Cancel() error {
	p.once.Do(p.cancel)
	<-p.done
	return nil
}
