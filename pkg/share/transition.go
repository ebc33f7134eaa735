package share

import (
	"sync"
	"time"

	"chatshare/pkg/log"
	"chatshare/pkg/signal"
)

// CoordinatorConfig carries the per-participant collaborators shared by every
// room view the coordinator creates.
type CoordinatorConfig struct {
	SelfID      string
	DisplayName string

	Bus     signal.Bus
	Peers   PeerFactory
	Capture CaptureFunc

	MaxViewers int
	MuteGrace  time.Duration
}

// Coordinator owns the participant's single outbound share and hands out one
// Manager per viewed room. Room navigation tears the old view down and builds
// a new one, while the outbound share and its capture keep running: session
// visibility is room-scoped but the share's lifetime is global.
type Coordinator struct {
	cfg      CoordinatorConfig
	outbound *Outbound

	mu      sync.Mutex
	current *Manager
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		outbound: NewOutbound(),
	}
	cfg.Bus.SetDisconnectHandler(c.handleTransportLost)
	return c
}

// SwitchRoom leaves the current room view and enters the given room: the old
// manager's inbound sessions go away with it, a new manager is built around
// the same outbound state, the local share is re-seeded if it targets the new
// room, and active sharers are asked to renegotiate.
func (c *Coordinator) SwitchRoom(room Room) *Manager {
	c.mu.Lock()
	prev := c.current
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	m := NewManager(Config{
		Room:        room,
		SelfID:      c.cfg.SelfID,
		DisplayName: c.cfg.DisplayName,
		Bus:         c.cfg.Bus,
		Peers:       c.cfg.Peers,
		Capture:     c.cfg.Capture,
		Outbound:    c.outbound,
		MaxViewers:  c.cfg.MaxViewers,
		MuteGrace:   c.cfg.MuteGrace,
	})

	c.mu.Lock()
	c.current = m
	c.mu.Unlock()

	m.SeedSelfSession()
	m.RequestActiveShares()
	log.Infof("share: entered room %s", room.ID)
	return m
}

// Current returns the manager for the viewed room, or nil before the first
// SwitchRoom.
func (c *Coordinator) Current() *Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Outbound exposes the participant's global share state.
func (c *Coordinator) Outbound() *Outbound {
	return c.outbound
}

// Close ends the session: the outbound share is stopped with a proper
// announcement and the current room view is torn down.
func (c *Coordinator) Close() {
	c.mu.Lock()
	m := c.current
	c.current = nil
	c.mu.Unlock()

	if m != nil {
		m.StopShare()
		m.Close()
		return
	}
	c.drainOutbound()
}

// handleTransportLost forces the outbound share down after the signaling
// connection dropped. The peer connections cannot be renegotiated and no stop
// announcement can be delivered, so resources are released locally.
func (c *Coordinator) handleTransportLost() {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()

	if m != nil {
		m.HandleTransportDisconnect()
		return
	}
	c.drainOutbound()
}

// drainOutbound releases outbound resources without a manager, for the
// window between room views.
func (c *Coordinator) drainOutbound() {
	roomID, media, conns := c.outbound.clear()
	if roomID == "" {
		return
	}
	for _, h := range conns {
		h.Close()
	}
	stopTracks(media)
	log.Infof("share: stopped sharing to room %s", roomID)
}
