package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Published records one successful publish on a Bus.
type Published struct {
	ClientID string
	Topic    string
	Payload  []byte
}

// Bus is an in-process broker. Like a real broker it echoes a publish back
// to the publisher's own subscriptions, and a second connection with the
// same client id takes over the session and drops the first one.
type Bus struct {
	mu         sync.Mutex
	nextID     int
	subs       map[string]map[int]func([]byte)
	conns      map[string]*memConn
	published  []Published
	dialErr    error
	publishErr error
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:  make(map[string]map[int]func([]byte)),
		conns: make(map[string]*memConn),
	}
}

// FailDial makes subsequent dials return err. Pass nil to clear.
func (b *Bus) FailDial(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// FailPublish makes subsequent publishes return err. Pass nil to clear.
func (b *Bus) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Published returns every accepted publish in order.
func (b *Bus) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Published(nil), b.published...)
}

// Deliver injects a message from a client outside this process.
func (b *Bus) Deliver(topic string, payload []byte) {
	b.fanout(topic, payload)
}

// Drop severs the connection held by clientID as if the network failed.
func (b *Bus) Drop(clientID string) {
	b.mu.Lock()
	c := b.conns[clientID]
	b.mu.Unlock()
	if c != nil {
		c.lose(errors.New("broker: connection reset"))
	}
}

// Subscribers reports how many subscriptions exist on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *Bus) Dial(ctx context.Context, _ string, clientID string, onLost func(error)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.dialErr != nil {
		err := b.dialErr
		b.mu.Unlock()
		return nil, err
	}
	prev := b.conns[clientID]
	c := &memConn{bus: b, clientID: clientID, onLost: onLost, subs: make(map[int]string)}
	c.connected.Store(true)
	b.conns[clientID] = c
	b.mu.Unlock()

	if prev != nil {
		prev.lose(errors.New("broker: session taken over by new connection"))
	}

	return c, nil
}

func (b *Bus) fanout(topic string, payload []byte) {
	b.mu.Lock()
	handlers := make([]func([]byte), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(append([]byte(nil), payload...))
	}
}

type memConn struct {
	bus       *Bus
	clientID  string
	onLost    func(error)
	connected atomic.Bool

	mu   sync.Mutex
	subs map[int]string
}

func (c *memConn) Subscribe(topic string, _ DeliveryLevel, onMessage func([]byte)) (Subscription, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	b := c.bus
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func([]byte))
	}
	b.subs[topic][id] = onMessage
	b.mu.Unlock()

	c.mu.Lock()
	c.subs[id] = topic
	c.mu.Unlock()

	return &memSubscription{conn: c, id: id, topic: topic}, nil
}

func (c *memConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}

	b := c.bus
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, Published{
		ClientID: c.clientID,
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
	})
	b.mu.Unlock()

	b.fanout(topic, payload)
	return nil
}

func (c *memConn) IsConnected() bool { return c.connected.Load() }

func (c *memConn) Close() error {
	if !c.connected.Swap(false) {
		return ErrNotConnected
	}
	c.release()
	return nil
}

func (c *memConn) lose(err error) {
	if !c.connected.Swap(false) {
		return
	}
	c.release()
	if c.onLost != nil {
		c.onLost(err)
	}
}

func (c *memConn) release() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[int]string)
	c.mu.Unlock()

	b := c.bus
	b.mu.Lock()
	for id, topic := range subs {
		delete(b.subs[topic], id)
	}
	if b.conns[c.clientID] == c {
		delete(b.conns, c.clientID)
	}
	b.mu.Unlock()
}

type memSubscription struct {
	conn  *memConn
	id    int
	topic string
}

func (s *memSubscription) Unsubscribe() error {
	s.conn.mu.Lock()
	_, ok := s.conn.subs[s.id]
	delete(s.conn.subs, s.id)
	s.conn.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	b := s.conn.bus
	b.mu.Lock()
	delete(b.subs[s.topic], s.id)
	b.mu.Unlock()
	return nil
}
