package setup

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/conecta/internal/auth"
	"github.com/johndosdos/conecta/internal/broker"
	"github.com/johndosdos/conecta/internal/chat"
	"github.com/johndosdos/conecta/internal/config"
	"github.com/johndosdos/conecta/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDialer(t *testing.T) {
	cfg := config.Default().Broker

	cfg.Kind = config.BrokerMQTT
	assert.IsType(t, broker.MQTTDialer{}, NewDialer(cfg))

	cfg.Kind = config.BrokerNATS
	cfg.NATSUser, cfg.NATSPassword = "u", "p"
	d, ok := NewDialer(cfg).(broker.NATSDialer)
	require.True(t, ok)
	assert.Len(t, d.Options, 2)

	cfg.Kind = config.BrokerNone
	assert.Nil(t, NewDialer(cfg))
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, auth.Static("alice"), Identity(config.IdentityConfig{Static: "alice"}, nil))

	token, err := auth.MakeJWT("bob", "s3cret", "conecta", time.Minute)
	require.NoError(t, err)
	id, ok := Identity(config.IdentityConfig{Token: token, JWTSecret: "s3cret", JWTIssuer: "conecta"}, quietLogger()).CurrentIdentity()
	require.True(t, ok)
	assert.Equal(t, "bob", id)
}

func TestOpenInMemoryDurableOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Kind = config.BrokerNone
	cfg.Send.Sanitize = true

	b, err := Open(context.Background(), cfg, quietLogger(), nil)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.MemoryStore{}, b.Store)
	assert.Nil(t, b.Dialer)

	deps := b.Deps(auth.Static("alice"))
	assert.NotNil(t, deps.Sanitizer)
	assert.NotNil(t, deps.Limiter)

	sess, err := chat.Start(context.Background(), deps, "bob")
	require.NoError(t, err)
	defer sess.Close()

	// Markup is stripped before the record is built.
	res, err := sess.Send(context.Background(), "<b>hi</b>")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Record.Text)
}

func TestSanitizedSendKeepsPlainText(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Kind = config.BrokerNone
	cfg.Send.Sanitize = true

	b, err := Open(context.Background(), cfg, quietLogger(), nil)
	require.NoError(t, err)
	defer b.Close()

	sess, err := chat.Start(context.Background(), b.Deps(auth.Static("alice")), "bob")
	require.NoError(t, err)
	defer sess.Close()

	tests := []struct {
		in   string
		want string
	}{
		{in: "don't", want: "don't"},
		{in: "a < b", want: "a < b"},
		{in: "Tom & Jerry", want: "Tom & Jerry"},
		{in: `say "hi"`, want: `say "hi"`},
		{in: "<script>alert(1)</script>ok", want: "ok"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			res, err := sess.Send(context.Background(), tc.in)
			require.NoError(t, err)
			assert.Equal(t, chat.Sent, res.Outcome)
			assert.Equal(t, tc.want, res.Record.Text)
		})
	}

	st, ok := b.Store.(*store.MemoryStore)
	require.True(t, ok)
	var stored []string
	for _, m := range st.Records("chats/alice_bob") {
		stored = append(stored, m.Text)
	}
	assert.Equal(t, []string{"don't", "a < b", "Tom & Jerry", `say "hi"`, "ok"}, stored)
}

func TestDefaultConfigStoresTextUnchanged(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Kind = config.BrokerNone

	b, err := Open(context.Background(), cfg, quietLogger(), nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.Deps(auth.Static("alice")).Sanitizer)
}
