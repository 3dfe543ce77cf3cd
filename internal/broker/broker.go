// Package broker is the transient channel: a best-effort publish/subscribe
// transport keyed by topic strings.
package broker

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("broker: not connected")

// Dialer opens a broker connection. onLost is called at most once when an
// established connection drops; it is not called for Close.
type Dialer interface {
	Dial(ctx context.Context, address, clientID string, onLost func(error)) (Conn, error)
}

// Conn is one live broker connection.
type Conn interface {
	Subscribe(topic string, level DeliveryLevel, onMessage func(payload []byte)) (Subscription, error)
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Close() error
}

// Subscription is a single topic subscription on a Conn.
type Subscription interface {
	Unsubscribe() error
}
