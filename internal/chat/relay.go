package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/johndosdos/conecta/internal/broker"
	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/model"
)

// NewClientID returns a broker client id unique to one session, so the same
// participant on two devices never takes over the other's broker session.
func NewClientID() string {
	return "conecta-" + uuid.NewString()
}

// ConnectionOutcome reports how Connect went. Err is set when the relay is
// not fully up; it is informational only.
type ConnectionOutcome struct {
	Connected  bool
	Subscribed bool
	ClientID   string
	Err        error
}

// LiveRelay is the broker receive path of a session. It also serves as the
// Dispatcher's Publisher so sends share the session's connection.
type LiveRelay struct {
	dialer  broker.Dialer
	topic   string
	view    *View
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	onLost  func(error)

	mu        sync.Mutex
	conn      broker.Conn
	sub       broker.Subscription
	connected atomic.Bool
}

// RelayOption configures a LiveRelay.
type RelayOption func(*LiveRelay)

func WithRelayLogger(log *slog.Logger) RelayOption {
	return func(r *LiveRelay) { r.log = log }
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *LiveRelay) { r.metrics = m }
}

func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *LiveRelay) { r.now = now }
}

// OnConnectionLost is called when an established connection drops.
func OnConnectionLost(fn func(error)) RelayOption {
	return func(r *LiveRelay) { r.onLost = fn }
}

// NewLiveRelay returns a relay that will subscribe to topic and append
// deliveries to view.
func NewLiveRelay(dialer broker.Dialer, topic string, view *View, opts ...RelayOption) *LiveRelay {
	r := &LiveRelay{
		dialer: dialer,
		topic:  topic,
		view:   view,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Connect dials address and subscribes to the relay topic at the lowest
// delivery level. Failures leave the relay disconnected; they do not retry.
func (r *LiveRelay) Connect(ctx context.Context, address, clientID string) ConnectionOutcome {
	out := ConnectionOutcome{ClientID: clientID}
	if r.dialer == nil {
		out.Err = broker.ErrNotConnected
		return out
	}

	conn, err := r.dialer.Dial(ctx, address, clientID, r.handleLost)
	if err != nil {
		r.log.WarnContext(ctx, "broker connect failed", "address", address, "client_id", clientID, "error", err)
		out.Err = errors.Join(ErrTransientUnavailable, err)
		return out
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.connected.Store(true)
	r.metrics.BrokerConnected(true)
	out.Connected = true
	r.log.InfoContext(ctx, "broker connected", "address", address, "client_id", clientID)

	sub, err := conn.Subscribe(r.topic, broker.AtMostOnce, r.handleMessage)
	if err != nil {
		r.log.WarnContext(ctx, "broker subscribe failed", "topic", r.topic, "error", err)
		out.Err = errors.Join(ErrTransientUnavailable, err)
		return out
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	out.Subscribed = true
	return out
}

func (r *LiveRelay) handleMessage(payload []byte) {
	if len(payload) == 0 || !utf8.Valid(payload) {
		r.metrics.IncMalformed(metrics.Transient)
		r.log.Warn("skipping malformed broker payload", "topic", r.topic, "bytes", len(payload))
		return
	}

	m := model.Message{Text: string(payload), Timestamp: r.now().UnixMilli()}
	appended, err := r.view.AppendLive(context.Background(), m)
	if err != nil {
		return
	}
	if !appended {
		r.metrics.IncEchoSuppressed()
		r.log.Debug("suppressed echo", "topic", r.topic)
		return
	}
	r.metrics.IncLiveAppended()
}

func (r *LiveRelay) handleLost(err error) {
	if !r.connected.Swap(false) {
		return
	}
	r.metrics.BrokerConnected(false)
	r.log.Warn("broker connection lost", "topic", r.topic, "error", err)
	if r.onLost != nil {
		r.onLost(err)
	}
}

// IsConnected reports whether the relay holds a live connection.
func (r *LiveRelay) IsConnected() bool {
	if !r.connected.Load() {
		return false
	}
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

func (r *LiveRelay) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || !r.connected.Load() {
		return broker.ErrNotConnected
	}
	return conn.Publish(ctx, topic, payload)
}

// UnsubscribeAndDisconnect releases the topic subscription and then the
// connection. Both are attempted; an already closed relay is not an error.
func (r *LiveRelay) UnsubscribeAndDisconnect() error {
	r.mu.Lock()
	sub, conn := r.sub, r.conn
	r.sub, r.conn = nil, nil
	r.mu.Unlock()

	live := r.connected.Swap(false)
	if live {
		r.metrics.BrokerConnected(false)
	}

	var errs []error
	if sub != nil && live {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, broker.ErrNotConnected) {
			r.log.Warn("failed to unsubscribe", "topic", r.topic, "error", err)
			errs = append(errs, err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, broker.ErrNotConnected) {
			if live {
				r.log.Warn("failed to disconnect", "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
