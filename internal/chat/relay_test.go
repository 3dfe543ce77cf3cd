package chat

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/conecta/internal/broker"
	"github.com/johndosdos/conecta/internal/metrics"
	"github.com/johndosdos/conecta/internal/model"
)

func TestRelayConnectSubscribesAtMostOnce(t *testing.T) {
	bus := broker.NewBus()
	dialer := &recordingDialer{bus: bus}
	v := startView(t)

	r := NewLiveRelay(dialer, broker.TopicGlobal, v, WithRelayLogger(quietLogger()))
	out := r.Connect(context.Background(), broker.DefaultBrokerURL, "client-1")
	require.NoError(t, out.Err)
	assert.True(t, out.Connected)
	assert.True(t, out.Subscribed)
	assert.True(t, r.IsConnected())

	assert.Equal(t, []broker.DeliveryLevel{broker.AtMostOnce}, dialer.levels)
	assert.Equal(t, 1, bus.Subscribers(broker.TopicGlobal))
	require.NoError(t, r.UnsubscribeAndDisconnect())
}

func TestRelayAppendsDeliveries(t *testing.T) {
	bus := broker.NewBus()
	v := startView(t)
	ctx := context.Background()

	r := NewLiveRelay(bus, broker.TopicGlobal, v, WithRelayLogger(quietLogger()), WithRelayClock(fixedClock(500)))
	require.True(t, r.Connect(ctx, broker.DefaultBrokerURL, NewClientID()).Subscribed)
	defer r.UnsubscribeAndDisconnect()

	bus.Deliver(broker.TopicGlobal, []byte("hola"))
	bus.Deliver(broker.TopicGlobal, []byte("hola"))     // echo of the last entry
	bus.Deliver(broker.TopicGlobal, []byte{0xff, 0xfe}) // not text
	bus.Deliver(broker.TopicGlobal, nil)
	bus.Deliver(broker.TopicGlobal, []byte("adiós"))

	got, err := v.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hola", "adiós"}, texts(got))
	assert.Equal(t, model.PendingEntry(model.Message{Text: "hola", Timestamp: 500}), got[0])
}

func TestRelaySuppressesOwnEcho(t *testing.T) {
	bus := broker.NewBus()
	v := startView(t)
	ctx := context.Background()

	r := NewLiveRelay(bus, "conectamobile/chat/alice_bob", v, WithRelayLogger(quietLogger()))
	require.True(t, r.Connect(ctx, broker.DefaultBrokerURL, NewClientID()).Subscribed)
	defer r.UnsubscribeAndDisconnect()

	require.NoError(t, v.Replace(ctx, []model.Entry{
		model.DurableEntry("k1", model.Message{SenderID: "alice", Text: "hi", Timestamp: 1}),
	}))

	// The relay publishes, the broker reflects it back on the same topic.
	require.NoError(t, r.Publish(ctx, "conectamobile/chat/alice_bob", []byte("hi")))

	got, err := v.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRelayConnectFailure(t *testing.T) {
	bus := broker.NewBus()
	bus.FailDial(errBoom)
	v := startView(t)

	r := NewLiveRelay(bus, broker.TopicGlobal, v, WithRelayLogger(quietLogger()))
	out := r.Connect(context.Background(), broker.DefaultBrokerURL, NewClientID())
	assert.False(t, out.Connected)
	assert.ErrorIs(t, out.Err, ErrTransientUnavailable)
	assert.ErrorIs(t, out.Err, errBoom)
	assert.False(t, r.IsConnected())
	assert.ErrorIs(t, r.Publish(context.Background(), broker.TopicGlobal, []byte("x")), broker.ErrNotConnected)

	assert.NoError(t, r.UnsubscribeAndDisconnect())
}

func TestRelayNilDialer(t *testing.T) {
	r := NewLiveRelay(nil, broker.TopicGlobal, startView(t), WithRelayLogger(quietLogger()))
	out := r.Connect(context.Background(), broker.DefaultBrokerURL, NewClientID())
	assert.False(t, out.Connected)
	assert.NoError(t, r.UnsubscribeAndDisconnect())
}

func TestRelayConnectionLost(t *testing.T) {
	bus := broker.NewBus()
	v := startView(t)

	lost := 0
	r := NewLiveRelay(bus, broker.TopicGlobal, v,
		WithRelayLogger(quietLogger()),
		OnConnectionLost(func(error) { lost++ }))
	clientID := NewClientID()
	require.True(t, r.Connect(context.Background(), broker.DefaultBrokerURL, clientID).Subscribed)

	bus.Drop(clientID)
	assert.False(t, r.IsConnected())
	assert.Equal(t, 1, lost)

	// Teardown after loss still succeeds.
	assert.NoError(t, r.UnsubscribeAndDisconnect())
	assert.NoError(t, r.UnsubscribeAndDisconnect())
}

func TestRelayTeardownIdempotent(t *testing.T) {
	bus := broker.NewBus()
	r := NewLiveRelay(bus, broker.TopicGlobal, startView(t), WithRelayLogger(quietLogger()))
	require.True(t, r.Connect(context.Background(), broker.DefaultBrokerURL, NewClientID()).Subscribed)

	require.NoError(t, r.UnsubscribeAndDisconnect())
	assert.Zero(t, bus.Subscribers(broker.TopicGlobal))
	assert.False(t, r.IsConnected())

	require.NoError(t, r.UnsubscribeAndDisconnect())
}

func TestRelayTeardownReportsCloseFailure(t *testing.T) {
	dialer := &recordingDialer{bus: broker.NewBus(), closeErr: errBoom}
	r := NewLiveRelay(dialer, broker.TopicGlobal, startView(t), WithRelayLogger(quietLogger()))
	require.True(t, r.Connect(context.Background(), broker.DefaultBrokerURL, NewClientID()).Subscribed)

	err := r.UnsubscribeAndDisconnect()
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, dialer.bus.Subscribers(broker.TopicGlobal), "unsubscribe attempted before close")
}

func TestNewClientIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewClientID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRelayConnectionGaugeSharedBySessions(t *testing.T) {
	bus := broker.NewBus()
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	first := NewLiveRelay(bus, broker.TopicGlobal, startView(t), WithRelayLogger(quietLogger()), WithRelayMetrics(m))
	second := NewLiveRelay(bus, broker.TopicGlobal, startView(t), WithRelayLogger(quietLogger()), WithRelayMetrics(m))
	firstID := NewClientID()
	require.True(t, first.Connect(ctx, broker.DefaultBrokerURL, firstID).Subscribed)
	require.True(t, second.Connect(ctx, broker.DefaultBrokerURL, NewClientID()).Subscribed)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.BrokerConns))

	bus.Drop(firstID)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BrokerConns))

	// Teardown after the loss must not count it twice.
	require.NoError(t, first.UnsubscribeAndDisconnect())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BrokerConns))

	require.NoError(t, second.UnsubscribeAndDisconnect())
	assert.Equal(t, 0.0, promtest.ToFloat64(m.BrokerConns))
}
