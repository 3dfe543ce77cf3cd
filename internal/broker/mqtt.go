package broker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTDialer connects to an MQTT 3.1.1 broker. Auto reconnect is off; the
// caller decides what to do after a connection loss.
type MQTTDialer struct {
	// Timeout bounds subscribe and unsubscribe round trips.
	Timeout time.Duration
	// Quiesce is how long Disconnect waits for in-flight work, in ms.
	Quiesce uint
}

func (d MQTTDialer) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 5 * time.Second
	}
	return d.Timeout
}

func (d MQTTDialer) Dial(ctx context.Context, address, clientID string, onLost func(error)) (Conn, error) {
	c := &mqttConn{timeout: d.timeout(), quiesce: d.Quiesce}
	if c.quiesce == 0 {
		c.quiesce = 250
	}

	opts := mqtt.NewClientOptions().
		AddBroker(address).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(d.timeout()).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if c.closing.Load() || onLost == nil {
				return
			}
			onLost(err)
		})

	c.client = mqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker [%s]: %w", address, err)
	}

	return c, nil
}

type mqttConn struct {
	client  mqtt.Client
	timeout time.Duration
	quiesce uint
	closing atomic.Bool
}

func (c *mqttConn) Subscribe(topic string, level DeliveryLevel, onMessage func([]byte)) (Subscription, error) {
	tok := c.client.Subscribe(topic, byte(level), func(_ mqtt.Client, msg mqtt.Message) {
		onMessage(msg.Payload())
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := waitToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic [%s]: %w", topic, err)
	}

	return &mqttSubscription{conn: c, topic: topic}, nil
}

func (c *mqttConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := waitToken(ctx, c.client.Publish(topic, byte(AtMostOnce), false, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic [%s]: %w", topic, err)
	}
	return nil
}

func (c *mqttConn) IsConnected() bool { return c.client.IsConnectionOpen() }

func (c *mqttConn) Close() error {
	c.closing.Store(true)
	if c.client.IsConnected() {
		c.client.Disconnect(c.quiesce)
	}
	return nil
}

type mqttSubscription struct {
	conn  *mqttConn
	topic string
}

func (s *mqttSubscription) Unsubscribe() error {
	if !s.conn.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.conn.timeout)
	defer cancel()
	if err := waitToken(ctx, s.conn.client.Unsubscribe(s.topic)); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic [%s]: %w", s.topic, err)
	}
	return nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
