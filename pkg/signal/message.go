package signal

import "encoding/json"

// Topic name helpers. Every chat room carries two topic families:
// share-events (start/stop announcements) and signal (WebRTC negotiation).
func ShareEventsTopic(roomID string) string { return "screenshare/" + roomID }
func SignalTopic(roomID string) string     { return "signal/" + roomID }

// Share event actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Signal message types
const (
	TypeOffer               = "offer"
	TypeAnswer              = "answer"
	TypeRequestActiveShares = "request_active_shares"
)

// ShareEvent announces that a participant started or stopped sharing in a room.
type ShareEvent struct {
	Action   string `json:"action"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
}

// Signal carries one step of a WebRTC negotiation between two participants.
// Payload is the opaque description bundle produced by the peer connection.
type Signal struct {
	Type       string          `json:"type"`
	FromUserID string          `json:"fromUserId"`
	Payload    json.RawMessage `json:"signal,omitempty"`
}

// Frame is the broker wire envelope. Clients subscribe, unsubscribe and
// publish; the server fans publishes out to subscribers as "message" frames.
type Frame struct {
	Op    string          `json:"op"` // subscribe, unsubscribe, publish, message
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame ops
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpMessage     = "message"
)
