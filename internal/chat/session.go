package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johndosdos/conecta/internal/auth"
	"github.com/johndosdos/conecta/internal/broker"
	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/model"
	"github.com/johndosdos/conecta/internal/store"
)

// AdvisoryDurableOnly is sent once when the session runs without live
// delivery.
const AdvisoryDurableOnly = "live delivery unavailable; messages will appear once saved"

// Deps are the collaborators of a session. Store and Identity are required.
// A nil Dialer runs the session durable-only.
type Deps struct {
	Identity      auth.Provider
	Store         store.Store
	Dialer        broker.Dialer
	BrokerAddress string

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Sanitizer      sanitizer
	Limiter        Limiter
	Clock          func() time.Time
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Session is one open conversation. It owns the view and both
// subscriptions, and releases all of them on Close.
type Session struct {
	self string
	ch   channel.Resolved
	log  *slog.Logger

	view       *View
	dispatcher *Dispatcher
	relay      *LiveRelay
	history    store.Subscription
	stopView   context.CancelFunc

	errs       chan error
	advisories chan string
	adviseOnce sync.Once

	// Send holds gate for reading while it runs; Close takes it to set
	// closing, so no send is in flight once teardown starts.
	gate    sync.RWMutex
	closing bool

	closeOnce sync.Once
	closeErr  error
}

// Start opens the conversation with target for the current identity.
// Identity and target errors, and a failure to subscribe to the durable
// log, end the start. Broker failures only degrade the session.
func Start(ctx context.Context, deps Deps, target string) (*Session, error) {
	if deps.Store == nil {
		return nil, errors.New("chat: nil store")
	}
	if deps.Identity == nil {
		return nil, errors.New("chat: nil identity provider")
	}

	self, ok := deps.Identity.CurrentIdentity()
	if !ok {
		self = ""
	}
	ch, err := channel.Resolve(self, target)
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("channel", ch.Key.String())

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	runCtx, stopView := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		self:       self,
		ch:         ch,
		log:        log,
		stopView:   stopView,
		errs:       make(chan error, 1),
		advisories: make(chan string, 1),
	}

	s.view = NewView(ch.Key, log, deps.Metrics)
	go s.view.Run(runCtx)

	s.relay = NewLiveRelay(deps.Dialer, ch.Topic, s.view,
		WithRelayLogger(log),
		WithRelayMetrics(deps.Metrics),
		WithRelayClock(clock),
		OnConnectionLost(func(error) { s.advise(AdvisoryDurableOnly) }),
	)

	opts := []DispatcherOption{
		WithDispatchLogger(log),
		WithDispatchMetrics(deps.Metrics),
		WithClock(clock),
		OnAccepted(func(m model.Message) {
			if err := s.view.AppendLocal(context.Background(), m); err != nil {
				log.Debug("local echo dropped", "error", err)
			}
		}),
	}
	if deps.Sanitizer != nil {
		opts = append(opts, WithSanitizer(deps.Sanitizer))
	}
	if deps.Limiter != nil {
		opts = append(opts, WithLimiter(deps.Limiter))
	}
	if deps.PublishTimeout > 0 {
		opts = append(opts, WithPublishTimeout(deps.PublishTimeout))
	}
	s.dispatcher = NewDispatcher(deps.Store, s.relay, opts...)

	hs := NewHistorySync(deps.Store, log, deps.Metrics)
	s.history, err = hs.Subscribe(runCtx, ch.Path, func(entries []model.Entry) {
		if err := s.view.Replace(context.Background(), entries); err != nil {
			log.Debug("snapshot dropped", "error", err)
		}
	}, s.reportError)
	if err != nil {
		stopView()
		<-s.view.Done()
		return nil, fmt.Errorf("failed to subscribe to [%s]: %w", ch.Path, err)
	}

	if deps.Dialer == nil {
		s.advise(AdvisoryDurableOnly)
		return s, nil
	}

	connectTimeout := deps.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	out := s.relay.Connect(cctx, deps.BrokerAddress, NewClientID())
	if !out.Connected || !out.Subscribed {
		s.advise(AdvisoryDurableOnly)
	}

	log.InfoContext(ctx, "session started",
		"self", self,
		"path", ch.Path,
		"topic", ch.Topic,
		"live", out.Connected && out.Subscribed)

	return s, nil
}

func (s *Session) reportError(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Session) advise(msg string) {
	s.adviseOnce.Do(func() {
		s.advisories <- msg
	})
}

// Self is the identity the session sends as.
func (s *Session) Self() string { return s.self }

// Channel is the conversation the session is bound to.
func (s *Session) Channel() channel.Resolved { return s.ch }

// Errors receives the durable subscription failure, if one happens.
func (s *Session) Errors() <-chan error { return s.errs }

// Advisories receives at most one notice that the session fell back to
// durable-only delivery.
func (s *Session) Advisories() <-chan string { return s.advisories }

// Live reports whether the broker connection is up.
func (s *Session) Live() bool { return s.relay.IsConnected() }

// Send records text as a message from Self.
func (s *Session) Send(ctx context.Context, text string) (SendResult, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closing {
		return SendResult{Outcome: Skipped}, ErrSessionClosed
	}
	return s.dispatcher.Send(ctx, s.ch, s.self, text)
}

// Entries returns the current view.
func (s *Session) Entries(ctx context.Context) ([]model.Entry, error) {
	return s.view.Entries(ctx)
}

// Watch streams the view after every change until stop is called or the
// session closes.
func (s *Session) Watch(ctx context.Context) (<-chan []model.Entry, func(), error) {
	return s.view.Watch(ctx)
}

// Close cancels the durable subscription, unsubscribes from the topic and
// disconnects from the broker. Every release is attempted even when an
// earlier one fails. Sends already running finish first; later ones return
// ErrSessionClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.gate.Lock()
		s.closing = true
		s.gate.Unlock()

		var errs []error

		if err := s.history.Cancel(); err != nil {
			errs = append(errs, fmt.Errorf("cancel durable subscription: %w", err))
		}

		s.dispatcher.Wait()

		if err := s.relay.UnsubscribeAndDisconnect(); err != nil {
			errs = append(errs, fmt.Errorf("release broker: %w", err))
		}

		s.stopView()
		<-s.view.Done()

		s.closeErr = errors.Join(errs...)
		s.log.Info("session closed", "error", s.closeErr)
	})
	return s.closeErr
}
