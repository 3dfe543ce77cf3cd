package broker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSDialer connects through core NATS. Core subjects are fire-and-forget,
// which matches the transient channel; reconnects are disabled so loss
// surfaces to the caller.
type NATSDialer struct {
	Options []nats.Option
}

// NATSCredentials builds the auth options the same way for every entry
// point: a creds file wins over user/password.
func NATSCredentials(cred, user, pass string) []nats.Option {
	var opts []nats.Option
	if cred != "" {
		opts = append(opts, nats.UserCredentials(cred))
	} else if user != "" && pass != "" {
		opts = append(opts, nats.UserInfo(user, pass))
	}
	return opts
}

func (d NATSDialer) Dial(ctx context.Context, address, clientID string, onLost func(error)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &natsConn{}

	opts := []nats.Option{
		nats.Name(clientID),
		nats.NoReconnect(),
		nats.Timeout(5 * time.Second),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	opts = append(opts, d.Options...)
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if c.closing.Load() || onLost == nil {
			return
		}
		if err == nil {
			err = nats.ErrConnectionClosed
		}
		onLost(err)
	}))

	nc, err := nats.Connect(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats [%s]: %w", address, err)
	}
	c.nc = nc

	return c, nil
}

type natsConn struct {
	nc      *nats.Conn
	closing atomic.Bool
}

func (c *natsConn) Subscribe(topic string, level DeliveryLevel, onMessage func([]byte)) (Subscription, error) {
	if level != AtMostOnce {
		return nil, fmt.Errorf("nats core subjects only support at-most-once delivery, got level %d", level)
	}

	sub, err := c.nc.Subscribe(topic, func(msg *nats.Msg) {
		onMessage(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject [%s]: %w", topic, err)
	}
	return sub, nil
}

func (c *natsConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.nc.IsConnected() {
		return ErrNotConnected
	}
	if err := c.nc.Publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish to subject [%s]: %w", topic, err)
	}
	return nil
}

func (c *natsConn) IsConnected() bool { return c.nc.IsConnected() }

// Close drains pending publishes before closing the connection.
func (c *natsConn) Close() error {
	c.closing.Store(true)
	if c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("couldn't drain NATS conn: %w", err)
	}
	return nil
}
