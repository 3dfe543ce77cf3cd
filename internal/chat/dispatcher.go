package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/model"
	"github.com/johndosdos/conecta/internal/store"
)

// Publisher is the broker side of a send.
type Publisher interface {
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte) error
}

type sanitizer interface {
	Sanitize(s string) string
}

// Limiter decides whether sender may send now.
type Limiter interface {
	Allow(sender string) bool
}

// Outcome is what a Send did.
type Outcome int

const (
	// Skipped means no channel was contacted.
	Skipped Outcome = iota
	// Sent means the durable append succeeded.
	Sent
)

func (o Outcome) String() string {
	if o == Sent {
		return "sent"
	}
	return "skipped"
}

// SendResult describes a completed Send.
type SendResult struct {
	Outcome Outcome
	Record  model.Message
	Key     string
}

// Dispatcher turns one composed text into a durable record plus a
// best-effort broker publish. Only the durable append decides the result.
type Dispatcher struct {
	store   store.Store
	pub     Publisher
	log     *slog.Logger
	metrics *metrics.Metrics

	sanitizer      sanitizer
	limiter        Limiter
	now            func() time.Time
	publishTimeout time.Duration
	onAccepted     func(model.Message)

	inflight sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatchLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSanitizer cleans text before it is recorded. Text that cleans to
// nothing is skipped like an empty send.
func WithSanitizer(s sanitizer) DispatcherOption {
	return func(d *Dispatcher) { d.sanitizer = s }
}

func WithLimiter(l Limiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func WithPublishTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.publishTimeout = t }
}

// OnAccepted is called with the record once it is built, before either
// channel is contacted.
func OnAccepted(fn func(model.Message)) DispatcherOption {
	return func(d *Dispatcher) { d.onAccepted = fn }
}

// NewDispatcher returns a Dispatcher writing to st and publishing via pub.
// pub may be nil for durable-only operation.
func NewDispatcher(st store.Store, pub Publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:          st,
		pub:            pub,
		now:            time.Now,
		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Send records text from senderID in ch. The broker publish runs
// concurrently and is never awaited; its failure is only logged.
func (d *Dispatcher) Send(ctx context.Context, ch channel.Resolved, senderID, text string) (SendResult, error) {
	if text == "" {
		return SendResult{Outcome: Skipped}, nil
	}
	if d.sanitizer != nil {
		text = d.sanitizer.Sanitize(text)
		if text == "" {
			d.log.DebugContext(ctx, "send skipped: text empty after sanitizing", "channel", ch.Key.String())
			return SendResult{Outcome: Skipped}, nil
		}
	}
	if senderID == "" {
		return SendResult{Outcome: Skipped}, channel.ErrNoActiveSession
	}
	if d.limiter != nil && !d.limiter.Allow(senderID) {
		d.log.WarnContext(ctx, "rate limit exceeded", "sender", senderID, "channel", ch.Key.String())
		return SendResult{Outcome: Skipped}, ErrRateLimited
	}

	rec := model.NewMessage(senderID, text, d.now())
	if d.onAccepted != nil {
		d.onAccepted(rec)
	}

	d.inflight.Add(1)
	go d.publish(context.WithoutCancel(ctx), ch.Topic, rec)

	key, err := d.store.Append(ctx, ch.Path, rec)
	if err != nil {
		d.metrics.IncPersistFailure()
		d.log.ErrorContext(ctx, "failed to store message",
			"error", err,
			"path", ch.Path,
			"sender", senderID)
		return SendResult{Outcome: Skipped, Record: rec}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	d.metrics.IncSent()
	return SendResult{Outcome: Sent, Record: rec, Key: key}, nil
}

func (d *Dispatcher) publish(ctx context.Context, topic string, rec model.Message) {
	defer d.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncPublishDropped("panic")
			d.log.Error("broker publish panicked", "topic", topic, "panic", r)
		}
	}()

	if d.pub == nil || !d.pub.IsConnected() {
		d.metrics.IncPublishDropped("not_connected")
		d.log.Debug("publish skipped", "topic", topic, "error", ErrTransientUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.pub.Publish(ctx, topic, []byte(rec.Text)); err != nil {
		d.metrics.IncPublishDropped("publish_error")
		d.log.Warn("publish failed",
			"topic", topic,
			"error", fmt.Errorf("%w: %w", ErrTransientUnavailable, err))
		return
	}
	d.metrics.IncPublished()
}

// Wait blocks until every started publish has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
