package share

import "sync"

// Outbound is the local participant's own active-share record. There is one
// instance per participant, owned by the coordinator and injected into every
// room-view manager: the capture resource is exclusive, so at most one
// outbound share may exist across all rooms.
//
// The sharer is the hub of a star topology: each viewer negotiates an
// independent offerer connection. The initial broadcast connection starts
// unbound and is bound to the first viewer that answers.
type Outbound struct {
	mu      sync.Mutex
	roomID  string
	media   MediaStream
	hub     *peerHandle
	viewers map[string]*peerHandle
}

func NewOutbound() *Outbound {
	return &Outbound{
		viewers: make(map[string]*peerHandle),
	}
}

// Active reports whether an outbound share exists.
func (o *Outbound) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roomID != ""
}

// RoomID returns the room currently shared to, or "" when idle.
func (o *Outbound) RoomID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roomID
}

// Media returns the local capture handle, or nil when idle.
func (o *Outbound) Media() MediaStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.media
}

// reserve claims the share slot for a room before capture is requested.
// Returns already=true when the slot is held for the same room (a no-op
// start), and an AlreadySharingError when it is held for another room.
func (o *Outbound) reserve(roomID string) (already bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.roomID {
	case "":
		o.roomID = roomID
		return false, nil
	case roomID:
		return true, nil
	default:
		return false, &AlreadySharingError{RoomID: o.roomID}
	}
}

// activate records the acquired capture handle.
func (o *Outbound) activate(media MediaStream) {
	o.mu.Lock()
	o.media = media
	o.mu.Unlock()
}

// clear resets the outbound state and hands every held resource to the
// caller for teardown. Clearing an idle state returns nothing, which makes
// racing stop paths safe.
func (o *Outbound) clear() (roomID string, media MediaStream, conns []*peerHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()

	roomID = o.roomID
	media = o.media
	if o.hub != nil {
		conns = append(conns, o.hub)
	}
	for _, h := range o.viewers {
		conns = append(conns, h)
	}

	o.roomID = ""
	o.media = nil
	o.hub = nil
	o.viewers = make(map[string]*peerHandle)
	return roomID, media, conns
}

func (o *Outbound) setHub(h *peerHandle) {
	o.mu.Lock()
	o.hub = h
	o.mu.Unlock()
}

// bindHub assigns the unbound broadcast connection to the first answering
// viewer. Returns nil when the hub is already bound or gone.
func (o *Outbound) bindHub(viewerID string) *peerHandle {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.hub == nil {
		return nil
	}
	h := o.hub
	o.hub = nil
	o.viewers[viewerID] = h
	return h
}

// viewer returns the connection negotiated with a viewer, or nil.
func (o *Outbound) viewer(viewerID string) *peerHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewers[viewerID]
}

// addViewer records a fresh per-viewer connection.
func (o *Outbound) addViewer(viewerID string, h *peerHandle) {
	o.mu.Lock()
	o.viewers[viewerID] = h
	o.mu.Unlock()
}

// removeViewer drops the viewer's connection, but only if it is still the
// one given; a replacement negotiated in the meantime is left alone.
func (o *Outbound) removeViewer(viewerID string, h *peerHandle) {
	o.mu.Lock()
	if o.viewers[viewerID] == h {
		delete(o.viewers, viewerID)
	}
	o.mu.Unlock()
}

// dropConn forgets a connection wherever it is held, hub or viewer slot.
// Used by close callbacks, where the slot may have changed since setup.
func (o *Outbound) dropConn(h *peerHandle) {
	o.mu.Lock()
	if o.hub == h {
		o.hub = nil
	}
	for id, v := range o.viewers {
		if v == h {
			delete(o.viewers, id)
			break
		}
	}
	o.mu.Unlock()
}

// viewerCount returns the number of connected or connecting viewers.
func (o *Outbound) viewerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.viewers)
	if o.hub != nil {
		n++
	}
	return n
}
