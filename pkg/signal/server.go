package signal

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"chatshare/pkg/log"
)

// Server is the topic pub/sub broker. Clients subscribe to topics and
// publish JSON payloads; the server fans each publish out to every current
// subscriber of that topic, including the publisher itself.
type Server struct {
	topics   map[string]map[*client]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// client represents one connected websocket client.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	mu     sync.Mutex
	topics map[string]bool
}

// NewServer creates a broker with permissive origin checking.
func NewServer() *Server {
	return &Server{
		topics: make(map[string]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades an HTTP request and serves the client until it
// disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
		topics: make(map[string]bool),
	}

	go c.writePump()
	go c.readPump()
}

// subscribe adds the client to a topic's subscriber set.
func (s *Server) subscribe(c *client, topic string) {
	s.mu.Lock()
	subs, ok := s.topics[topic]
	if !ok {
		subs = make(map[*client]bool)
		s.topics[topic] = subs
	}
	subs[c] = true
	s.mu.Unlock()

	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
}

// unsubscribe removes the client from a topic, deleting the topic when its
// last subscriber leaves.
func (s *Server) unsubscribe(c *client, topic string) {
	s.mu.Lock()
	if subs, ok := s.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(s.topics, topic)
		}
	}
	s.mu.Unlock()

	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// publish fans a payload out to all subscribers of the topic. Slow clients
// with a full send buffer are skipped rather than blocking the broker.
func (s *Server) publish(topic string, data json.RawMessage) {
	out, err := json.Marshal(Frame{Op: OpMessage, Topic: topic, Data: data})
	if err != nil {
		log.Errorf("broker: marshal message frame: %v", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.topics[topic] {
		select {
		case sub.send <- out:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// removeClient detaches a client from every topic it subscribed to.
func (s *Server) removeClient(c *client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	c.mu.Unlock()

	for _, t := range topics {
		s.unsubscribe(c, t)
	}
}

// SubscriberCount returns the number of subscribers of a topic.
func (s *Server) SubscriberCount(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics[topic])
}

// readPump reads frames from the websocket.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		close(c.send)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket read: %v", err)
			}
			break
		}

		var f Frame
		if err := json.Unmarshal(message, &f); err != nil {
			log.Warnf("broker: invalid frame: %v", err)
			continue
		}
		c.handleFrame(f)
	}
}

// writePump sends queued frames to the websocket.
func (c *client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Warnf("websocket write: %v", err)
			return
		}
	}
}

func (c *client) handleFrame(f Frame) {
	if f.Topic == "" {
		return
	}
	switch f.Op {
	case OpSubscribe:
		c.server.subscribe(c, f.Topic)
	case OpUnsubscribe:
		c.server.unsubscribe(c, f.Topic)
	case OpPublish:
		c.server.publish(f.Topic, f.Data)
	default:
		log.Warnf("broker: unknown op: %s", f.Op)
	}
}

// ListenAndServe starts the broker HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)

	log.Infof("signal server starting on %s", addr)
	return http.ListenAndServe(addr, mux)
}
