package share

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"chatshare/pkg/log"
	"chatshare/pkg/signal"
)

const (
	// DefaultMaxViewers caps the sharer's fan-out. Each viewer costs an
	// independent peer connection and an extra encoded copy of the stream,
	// and there is no backpressure beyond this cap.
	DefaultMaxViewers = 8

	// DefaultMuteGrace is how long a muted capture track may stay silent
	// before it is checked for having ended.
	DefaultMuteGrace = time.Second
)

// inboundState tracks one remote sharer's negotiation progress.
type inboundState int

const (
	stateAwaitingOffer inboundState = iota
	stateAnswerSent
	stateStreaming
	stateClosed
)

type inbound struct {
	state inboundState
	peer  *peerHandle
}

// Config wires a room-view manager to its collaborators.
type Config struct {
	Room        Room
	SelfID      string
	DisplayName string

	Bus     signal.Bus
	Peers   PeerFactory
	Capture CaptureFunc

	// Outbound is the process-global share state, shared between the
	// managers of all room views.
	Outbound *Outbound

	MaxViewers int
	MuteGrace  time.Duration
}

// Manager drives screen sharing for one room view: at most one outbound
// share (this participant as sharer, global across rooms) and any number of
// inbound shares up to the viewer cap. All state transitions happen on
// delivery of a bus message or a connection event.
type Manager struct {
	cfg   Config
	store *Store

	mu      sync.Mutex
	inbound map[string]*inbound
	subs    []signal.Subscription
	closed  bool
}

// NewManager creates a manager for a room view and subscribes it to the
// room's share-events and signal topics.
func NewManager(cfg Config) *Manager {
	if cfg.MaxViewers <= 0 {
		cfg.MaxViewers = DefaultMaxViewers
	}
	if cfg.MuteGrace <= 0 {
		cfg.MuteGrace = DefaultMuteGrace
	}

	m := &Manager{
		cfg:     cfg,
		store:   NewStore(),
		inbound: make(map[string]*inbound),
	}
	m.subs = append(m.subs,
		cfg.Bus.Subscribe(signal.ShareEventsTopic(cfg.Room.ID), m.onShareEvent),
		cfg.Bus.Subscribe(signal.SignalTopic(cfg.Room.ID), m.onSignal),
	)
	return m
}

// RoomID returns the id of the viewed room.
func (m *Manager) RoomID() string { return m.cfg.Room.ID }

// Store returns the view's session store. Read freely; mutations go through
// the manager.
func (m *Manager) Store() *Store { return m.store }

// Sharing reports whether the local participant is sharing anywhere.
func (m *Manager) Sharing() bool { return m.cfg.Outbound.Active() }

// HasActiveShares reports whether anything is worth rendering: a session
// with a live stream, or the local user's own share. Computed on read, never
// stored.
func (m *Manager) HasActiveShares() bool {
	return m.store.HasMedia() || m.cfg.Outbound.Active()
}

// StartShare begins sharing the local screen to this room.
//
// Starting while already sharing to this room is a no-op. Starting while
// sharing to a different room fails with AlreadySharingError before any
// capture is requested: the capture resource is exclusive and globally
// singular. A capture refusal surfaces as ErrPermissionDenied with no state
// change.
func (m *Manager) StartShare() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrViewClosed
	}
	m.mu.Unlock()

	out := m.cfg.Outbound
	already, err := out.reserve(m.cfg.Room.ID)
	if err != nil {
		return err
	}
	if already {
		m.SeedSelfSession()
		return nil
	}

	media, err := m.cfg.Capture()
	if err != nil {
		out.clear()
		return errors.Wrap(err, "acquire screen capture")
	}
	out.activate(media)
	m.watchCapture(media)

	pc, err := m.cfg.Peers(PeerConfig{Role: RoleOfferer, LocalMedia: media})
	if err != nil {
		m.stopOutbound(false)
		return errors.WithMessagef(ErrNegotiationFailed, "create offerer connection: %v", err)
	}
	h := newPeerHandle(pc)
	out.setHub(h)

	pc.OnLocalDescription(func(offer []byte) {
		m.publishSignal(signal.TypeOffer, offer)
	})
	pc.OnClose(func() {
		out.dropConn(h)
	})
	pc.OnError(func(err error) {
		log.Warnf("share: broadcast connection error: %v", err)
		out.dropConn(h)
		h.Close()
	})

	m.store.Upsert(m.cfg.SelfID, func(s *Session) {
		s.DisplayName = m.cfg.DisplayName
		s.Media = media
	})

	m.publishEvent(m.cfg.Room.ID, signal.ActionStart)
	log.Infof("share: started sharing to room %s", m.cfg.Room.ID)
	return nil
}

// StopShare ends the outbound share wherever it targets: all per-viewer
// connections are destroyed, the capture is released and a stop announcement
// goes out on the shared-to room's topic. Stopping when not sharing is a
// safe no-op, so racing stop paths may all call it.
func (m *Manager) StopShare() {
	m.stopOutbound(true)
}

// HandleTransportDisconnect forces the outbound share down after the
// signaling transport was lost. No stop announcement is attempted since it
// could not be delivered.
func (m *Manager) HandleTransportDisconnect() {
	if !m.cfg.Outbound.Active() {
		return
	}
	log.Warnf("share: %v while sharing, forcing stop", ErrTransportDisconnected)
	m.stopOutbound(false)
}

func (m *Manager) stopOutbound(announce bool) {
	roomID, media, conns := m.cfg.Outbound.clear()
	if roomID == "" {
		return
	}

	for _, h := range conns {
		h.Close()
	}
	stopTracks(media)
	m.store.Remove(m.cfg.SelfID)

	if announce {
		m.publishEvent(roomID, signal.ActionStop)
	}
	log.Infof("share: stopped sharing to room %s", roomID)
}

// RequestActiveShares asks sharers already active in this room to
// renegotiate, so a participant who subscribed after the start announcement
// went out can still connect.
func (m *Manager) RequestActiveShares() {
	m.publishSignal(signal.TypeRequestActiveShares, nil)
}

// SeedSelfSession re-inserts the local share into this view's store when the
// viewed room is the one being shared to. The retained capture handle is
// reused as is; capture is not re-acquired and nothing is renegotiated.
func (m *Manager) SeedSelfSession() {
	out := m.cfg.Outbound
	if !out.Active() || out.RoomID() != m.cfg.Room.ID {
		return
	}
	media := out.Media()
	m.store.Upsert(m.cfg.SelfID, func(s *Session) {
		s.DisplayName = m.cfg.DisplayName
		s.Media = media
	})
}

// Close leaves the room view: subscriptions are released and inbound
// sessions are torn down, since their sharers stop sending negotiation
// traffic to an unsubscribed participant. The outbound share is global and
// keeps running in the background.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.subs
	m.subs = nil
	owners := make([]string, 0, len(m.inbound))
	for id := range m.inbound {
		owners = append(owners, id)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	for _, id := range owners {
		m.removeInbound(id, "room view closed")
	}
}

// watchCapture routes unexpected capture termination into the stop path:
// the track ending (native stop-sharing control), or muting without
// resuming within the grace window.
func (m *Manager) watchCapture(media MediaStream) {
	for _, t := range media.Tracks() {
		if t.Kind() != "video" {
			continue
		}
		t := t
		t.OnEnded(func() {
			log.Info("share: capture track ended")
			m.StopShare()
		})
		t.OnMute(func() {
			time.AfterFunc(m.cfg.MuteGrace, func() {
				if t.Ended() {
					log.Info("share: capture track ended after mute")
					m.StopShare()
				}
			})
		})
	}
}

func (m *Manager) publishEvent(roomID, action string) {
	err := m.cfg.Bus.Publish(signal.ShareEventsTopic(roomID), signal.ShareEvent{
		Action:   action,
		UserID:   m.cfg.SelfID,
		Username: m.cfg.DisplayName,
		RoomID:   roomID,
	})
	if err != nil {
		log.Debugf("share: publish %s event: %v", action, err)
	}
}

func (m *Manager) publishSignal(typ string, payload []byte) {
	err := m.cfg.Bus.Publish(signal.SignalTopic(m.cfg.Room.ID), signal.Signal{
		Type:       typ,
		FromUserID: m.cfg.SelfID,
		Payload:    payload,
	})
	if err != nil {
		log.Debugf("share: publish %s signal: %v", typ, err)
	}
}

// onShareEvent is the dispatch entry point for the room's share-events topic.
func (m *Manager) onShareEvent(data []byte) {
	var ev signal.ShareEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warnf("share: invalid share event: %v", err)
		return
	}
	if ev.UserID == "" || ev.UserID == m.cfg.SelfID {
		return
	}

	switch ev.Action {
	case signal.ActionStart:
		m.handleRemoteStart(ev)
	case signal.ActionStop:
		m.removeInbound(ev.UserID, "stop announcement")
	default:
		log.Debugf("share: unknown share event action %q", ev.Action)
	}
}

// onSignal is the dispatch entry point for the room's signal topic.
func (m *Manager) onSignal(data []byte) {
	var sig signal.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		log.Warnf("share: invalid signal: %v", err)
		return
	}
	if sig.FromUserID == "" || sig.FromUserID == m.cfg.SelfID {
		return
	}

	switch sig.Type {
	case signal.TypeOffer:
		m.handleOffer(sig.FromUserID, sig.Payload)
	case signal.TypeAnswer:
		m.handleAnswer(sig.FromUserID, sig.Payload)
	case signal.TypeRequestActiveShares:
		m.handleShareRequest(sig.FromUserID)
	default:
		log.Debugf("share: unknown signal type %q", sig.Type)
	}
}

// handleRemoteStart records a placeholder session for a sharer whose stream
// has not arrived yet.
func (m *Manager) handleRemoteStart(ev signal.ShareEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if in, ok := m.inbound[ev.UserID]; !ok || in.state == stateClosed {
		m.inbound[ev.UserID] = &inbound{state: stateAwaitingOffer}
	}
	m.mu.Unlock()

	name := resolveDisplayName(ev.Username, m.cfg.Room, ev.UserID)
	m.store.Upsert(ev.UserID, func(s *Session) {
		if s.DisplayName == "" {
			s.DisplayName = name
		}
	})
	log.Infof("share: %s started sharing in room %s", ev.UserID, m.cfg.Room.ID)
}

// handleOffer answers a sharer's offer with a fresh answerer connection.
// A second offer while a live connection to that owner exists is ignored:
// one connection per owner.
func (m *Manager) handleOffer(from string, payload []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if in, ok := m.inbound[from]; ok && in.peer != nil && in.state != stateClosed {
		m.mu.Unlock()
		log.Infof("share: %v (%s), ignoring", ErrDuplicateOffer, from)
		return
	}
	m.mu.Unlock()

	pc, err := m.cfg.Peers(PeerConfig{Role: RoleAnswerer})
	if err != nil {
		log.Errorf("share: create answerer for %s: %v", from, err)
		return
	}
	h := newPeerHandle(pc)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		h.Close()
		return
	}
	if existing, ok := m.inbound[from]; ok && existing.peer != nil && existing.state != stateClosed {
		m.mu.Unlock()
		h.Close()
		return
	}
	in := &inbound{state: stateAnswerSent, peer: h}
	m.inbound[from] = in
	m.mu.Unlock()

	pc.OnLocalDescription(func(answer []byte) {
		m.publishSignal(signal.TypeAnswer, answer)
	})
	pc.OnRemoteStream(func(ms MediaStream) {
		// First stream wins; screen share is single-stream.
		m.mu.Lock()
		if in.state != stateAnswerSent {
			m.mu.Unlock()
			return
		}
		in.state = stateStreaming
		m.mu.Unlock()

		m.store.Upsert(from, func(s *Session) {
			if s.DisplayName == "" {
				s.DisplayName = resolveDisplayName("", m.cfg.Room, from)
			}
			s.Media = ms
			s.Peer = pc
		})
		log.Infof("share: receiving stream from %s", from)
	})
	pc.OnClose(func() {
		m.removeInbound(from, "connection closed")
	})
	pc.OnError(func(err error) {
		log.Warnf("share: %v (%s): %v", ErrNegotiationFailed, from, err)
		m.removeInbound(from, "connection error")
	})

	if err := pc.AcceptRemote(payload); err != nil {
		log.Warnf("share: apply offer from %s: %v", from, err)
		m.removeInbound(from, "bad offer")
		return
	}

	// An offer may arrive before (or instead of) the start announcement;
	// make sure the session exists either way.
	m.store.Upsert(from, func(s *Session) {
		if s.DisplayName == "" {
			s.DisplayName = resolveDisplayName("", m.cfg.Room, from)
		}
		s.Peer = pc
	})
}

// handleAnswer feeds a viewer's answer into the connection negotiated with
// that viewer, correlated by sender id. The first answer to the broadcast
// offer binds the unbound hub connection.
func (m *Manager) handleAnswer(from string, payload []byte) {
	out := m.cfg.Outbound
	if !out.Active() || out.RoomID() != m.cfg.Room.ID {
		return
	}

	h := out.viewer(from)
	if h == nil {
		h = out.bindHub(from)
	}
	if h == nil {
		log.Debugf("share: answer from %s without a pending offer, ignoring", from)
		return
	}

	if err := h.AcceptRemote(payload); err != nil {
		log.Warnf("share: %v applying answer from %s: %v", ErrNegotiationFailed, from, err)
		out.removeViewer(from, h)
		h.Close()
	}
}

// handleShareRequest serves a late joiner: if this participant is sharing to
// the room, a fresh offerer connection is negotiated for the requester.
func (m *Manager) handleShareRequest(from string) {
	out := m.cfg.Outbound
	if !out.Active() || out.RoomID() != m.cfg.Room.ID {
		return
	}
	if out.viewer(from) != nil {
		return
	}
	if out.viewerCount() >= m.cfg.MaxViewers {
		log.Warnf("share: %v (max %d), not answering %s", ErrTooManyViewers, m.cfg.MaxViewers, from)
		return
	}

	pc, err := m.cfg.Peers(PeerConfig{Role: RoleOfferer, LocalMedia: out.Media()})
	if err != nil {
		log.Errorf("share: create offerer for %s: %v", from, err)
		return
	}
	h := newPeerHandle(pc)
	out.addViewer(from, h)

	pc.OnLocalDescription(func(offer []byte) {
		m.publishSignal(signal.TypeOffer, offer)
	})
	pc.OnClose(func() {
		out.removeViewer(from, h)
	})
	pc.OnError(func(err error) {
		log.Warnf("share: viewer connection error (%s): %v", from, err)
		out.removeViewer(from, h)
		h.Close()
	})
	log.Infof("share: negotiating with late joiner %s", from)
}

// removeInbound tears one remote session down. Multiple failure paths race
// here (stop announcement, connection close, view close); all of them are
// safe no-ops after the first.
func (m *Manager) removeInbound(ownerID, reason string) {
	m.mu.Lock()
	in, ok := m.inbound[ownerID]
	if ok {
		in.state = stateClosed
		delete(m.inbound, ownerID)
	}
	m.mu.Unlock()

	if ok && in.peer != nil {
		in.peer.Close()
	}
	if s := m.store.Remove(ownerID); s != nil {
		log.Debugf("share: removed session for %s (%s)", ownerID, reason)
	}
}
