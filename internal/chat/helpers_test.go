package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johndosdos/conecta/internal/broker"
	"github.com/johndosdos/conecta/internal/channel"
	"github.com/johndosdos/conecta/internal/model"
	"github.com/johndosdos/conecta/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func startView(t *testing.T) *View {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	v := NewView("alice_bob", quietLogger(), nil)
	go v.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-v.Done()
	})
	return v
}

func mustResolve(t *testing.T, self, target string) channel.Resolved {
	t.Helper()
	ch, err := channel.Resolve(self, target)
	require.NoError(t, err)
	return ch
}

func texts(entries []model.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

type publishCall struct {
	Topic   string
	Payload string
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	err       error
	panics    bool
	calls     []publishCall
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{Topic: topic, Payload: string(payload)})
	if p.panics {
		panic("transport exploded")
	}
	return p.err
}

func (p *fakePublisher) Calls() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall(nil), p.calls...)
}

// countingStore counts appends and can fail subscription teardown.
type countingStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	appends   int
	cancelErr error
	cancelled int
	subErr    error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *countingStore) Append(ctx context.Context, path string, m model.Message) (string, error) {
	s.mu.Lock()
	s.appends++
	s.mu.Unlock()
	return s.MemoryStore.Append(ctx, path, m)
}

func (s *countingStore) Appends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

func (s *countingStore) Subscribe(ctx context.Context, path string, onSnapshot func([]store.Document), onError func(error)) (store.Subscription, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	sub, err := s.MemoryStore.Subscribe(ctx, path, onSnapshot, onError)
	if err != nil {
		return nil, err
	}
	return &countingSub{Subscription: sub, store: s}, nil
}

type countingSub struct {
	store.Subscription
	store *countingStore
}

func (c *countingSub) Cancel() error {
	_ = c.Subscription.Cancel()
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.cancelled++
	return c.store.cancelErr
}

// recordingDialer wraps a Bus and records what the relay asked for.
type recordingDialer struct {
	bus *broker.Bus

	mu        sync.Mutex
	clientIDs []string
	levels    []broker.DeliveryLevel
	closeErr  error
	closed    int
}

func (d *recordingDialer) Dial(ctx context.Context, address, clientID string, onLost func(error)) (broker.Conn, error) {
	d.mu.Lock()
	d.clientIDs = append(d.clientIDs, clientID)
	d.mu.Unlock()

	conn, err := d.bus.Dial(ctx, address, clientID, onLost)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: conn, dialer: d}, nil
}

func (d *recordingDialer) ClientIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clientIDs...)
}

type recordingConn struct {
	broker.Conn
	dialer *recordingDialer
}

func (c *recordingConn) Subscribe(topic string, level broker.DeliveryLevel, onMessage func([]byte)) (broker.Subscription, error) {
	c.dialer.mu.Lock()
	c.dialer.levels = append(c.dialer.levels, level)
	c.dialer.mu.Unlock()
	return c.Conn.Subscribe(topic, level, onMessage)
}

func (c *recordingConn) Close() error {
	err := c.Conn.Close()
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	c.dialer.closed++
	if c.dialer.closeErr != nil {
		return c.dialer.closeErr
	}
	return err
}

var errBoom = errors.New("boom")
