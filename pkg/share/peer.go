package share

import "sync"

// Role is the negotiation role of a peer connection.
type Role int

const (
	// RoleOfferer initiates negotiation and sends the local media.
	RoleOfferer Role = iota
	// RoleAnswerer responds to a received offer.
	RoleAnswerer
)

func (r Role) String() string {
	if r == RoleOfferer {
		return "offerer"
	}
	return "answerer"
}

// PeerConfig configures a new peer connection.
type PeerConfig struct {
	Role       Role
	LocalMedia MediaStream // required for offerers, nil for answerers
}

// PeerConnection is the consumed media-connection primitive.
//
// It emits exactly one local-description payload: an offerer after
// construction, an answerer after AcceptRemote of the offer. Remote-stream
// events may fire zero or more times; the first is authoritative for screen
// share. Close and error events are terminal. Destroy is safe to call any
// number of times.
type PeerConnection interface {
	OnLocalDescription(fn func(payload []byte))
	OnRemoteStream(fn func(ms MediaStream))
	OnClose(fn func())
	OnError(fn func(err error))

	// AcceptRemote injects the remote description bundle.
	AcceptRemote(payload []byte) error

	// Destroy releases all connection resources.
	Destroy()
}

// PeerFactory creates peer connections. Injected so the session manager can
// be exercised without a live WebRTC stack.
type PeerFactory func(cfg PeerConfig) (PeerConnection, error)

// peerHandle wraps a connection so teardown is provably idempotent even when
// several failure paths race to clean up the same owner. The underlying
// Destroy runs at most once.
type peerHandle struct {
	PeerConnection
	destroyOnce sync.Once
}

func newPeerHandle(pc PeerConnection) *peerHandle {
	return &peerHandle{PeerConnection: pc}
}

// Close destroys the underlying connection exactly once.
func (h *peerHandle) Close() {
	if h == nil {
		return
	}
	h.destroyOnce.Do(func() {
		h.PeerConnection.Destroy()
	})
}
