package signal

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// LocalBus is an in-process Bus. Handlers run synchronously on the
// publisher's goroutine, in subscription order, which preserves the
// per-publisher in-order guarantee of the transport contract.
type LocalBus struct {
	mu     sync.Mutex
	topics map[string][]*localSub
	closed bool
	onDrop func()
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		topics: make(map[string][]*localSub),
	}
}

type localSub struct {
	bus   *LocalBus
	topic string
	fn    func(data []byte)
	once  sync.Once
}

func (s *localSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

func (b *LocalBus) remove(s *localSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[s.topic]
	for i, cur := range subs {
		if cur == s {
			b.topics[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[s.topic]) == 0 {
		delete(b.topics, s.topic)
	}
}

// Publish delivers payload to every current subscriber of the topic.
func (b *LocalBus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal publish payload")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus closed")
	}
	subs := make([]*localSub, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(data)
	}
	return nil
}

func (b *LocalBus) Subscribe(topic string, fn func(data []byte)) Subscription {
	s := &localSub{bus: b, topic: topic, fn: fn}
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], s)
	b.mu.Unlock()
	return s
}

func (b *LocalBus) SetDisconnectHandler(fn func()) {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
}

// Close drops all subscriptions. The disconnect handler is not invoked.
func (b *LocalBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.topics = make(map[string][]*localSub)
	b.mu.Unlock()
}

// Drop simulates a transport loss: closes the bus and fires the disconnect
// handler, the way RemoteBus does when its websocket read loop fails.
func (b *LocalBus) Drop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.topics = make(map[string][]*localSub)
	fn := b.onDrop
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}
