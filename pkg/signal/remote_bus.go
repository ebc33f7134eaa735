package signal

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"chatshare/pkg/log"
)

// RemoteBus implements Bus over a websocket connection to the broker.
type RemoteBus struct {
	conn   *websocket.Conn
	connMu sync.Mutex // serializes writes

	mu     sync.Mutex
	topics map[string][]*remoteSub
	onDrop func()
	closed bool

	done chan struct{}
}

// Dial connects to a broker at the given websocket URL.
func Dial(url string) (*RemoteBus, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial signal server %s", url)
	}
	return NewRemoteBus(conn), nil
}

// NewRemoteBus wraps an established websocket connection.
func NewRemoteBus(conn *websocket.Conn) *RemoteBus {
	rb := &RemoteBus{
		conn:   conn,
		topics: make(map[string][]*remoteSub),
		done:   make(chan struct{}),
	}
	go rb.readLoop()
	return rb
}

type remoteSub struct {
	bus   *RemoteBus
	topic string
	fn    func(data []byte)
	once  sync.Once
}

func (s *remoteSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.removeSub(s)
	})
}

func (rb *RemoteBus) readLoop() {
	defer func() {
		rb.mu.Lock()
		fn := rb.onDrop
		dropped := !rb.closed
		rb.closed = true
		rb.mu.Unlock()
		if dropped && fn != nil {
			fn()
		}
	}()

	for {
		_, data, err := rb.conn.ReadMessage()
		if err != nil {
			select {
			case <-rb.done:
			default:
				log.Warnf("signal bus read: %v", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warnf("signal bus: invalid frame: %v", err)
			continue
		}
		if f.Op != OpMessage {
			continue
		}

		rb.mu.Lock()
		subs := make([]*remoteSub, len(rb.topics[f.Topic]))
		copy(subs, rb.topics[f.Topic])
		rb.mu.Unlock()

		for _, s := range subs {
			s.fn(f.Data)
		}
	}
}

func (rb *RemoteBus) writeFrame(f Frame) error {
	rb.mu.Lock()
	closed := rb.closed
	rb.mu.Unlock()
	if closed {
		return errors.New("bus closed")
	}

	rb.connMu.Lock()
	defer rb.connMu.Unlock()
	return rb.conn.WriteJSON(f)
}

// Publish sends a payload to a topic through the broker.
func (rb *RemoteBus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal publish payload")
	}
	return rb.writeFrame(Frame{Op: OpPublish, Topic: topic, Data: data})
}

// Subscribe registers a local handler and tells the broker to start
// forwarding the topic. Multiple local handlers share one broker
// subscription; the broker side is released when the last one unsubscribes.
func (rb *RemoteBus) Subscribe(topic string, fn func(data []byte)) Subscription {
	s := &remoteSub{bus: rb, topic: topic, fn: fn}

	rb.mu.Lock()
	first := len(rb.topics[topic]) == 0
	rb.topics[topic] = append(rb.topics[topic], s)
	rb.mu.Unlock()

	if first {
		if err := rb.writeFrame(Frame{Op: OpSubscribe, Topic: topic}); err != nil {
			log.Warnf("signal bus subscribe %s: %v", topic, err)
		}
	}
	return s
}

func (rb *RemoteBus) removeSub(s *remoteSub) {
	rb.mu.Lock()
	subs := rb.topics[s.topic]
	for i, cur := range subs {
		if cur == s {
			rb.topics[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	last := len(rb.topics[s.topic]) == 0
	if last {
		delete(rb.topics, s.topic)
	}
	closed := rb.closed
	rb.mu.Unlock()

	if last && !closed {
		if err := rb.writeFrame(Frame{Op: OpUnsubscribe, Topic: s.topic}); err != nil {
			log.Debugf("signal bus unsubscribe %s: %v", s.topic, err)
		}
	}
}

func (rb *RemoteBus) SetDisconnectHandler(fn func()) {
	rb.mu.Lock()
	rb.onDrop = fn
	rb.mu.Unlock()
}

// Close shuts the bus down without firing the disconnect handler.
func (rb *RemoteBus) Close() {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return
	}
	rb.closed = true
	rb.mu.Unlock()

	close(rb.done)
	_ = rb.conn.Close()
}
