package share

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrPermissionDenied indicates the user refused capture access.
	ErrPermissionDenied = errors.New("screen capture permission denied")

	// ErrNegotiationFailed indicates a peer connection failed before streaming.
	ErrNegotiationFailed = errors.New("peer negotiation failed")

	// ErrTransportDisconnected indicates the signaling transport was lost.
	ErrTransportDisconnected = errors.New("signaling transport disconnected")

	// ErrDuplicateOffer indicates an offer for an owner that already has a
	// live connection. Ignored and logged, never surfaced to the user.
	ErrDuplicateOffer = errors.New("duplicate offer for owner")

	// ErrTooManyViewers indicates the sharer's fan-out cap was reached.
	ErrTooManyViewers = errors.New("viewer limit reached")

	// ErrViewClosed indicates an operation on a closed room view.
	ErrViewClosed = errors.New("room view closed")
)

// AlreadySharingError is returned when a share is started while another room
// is already being shared to. The existing share is left untouched.
type AlreadySharingError struct {
	RoomID string
}

func (e *AlreadySharingError) Error() string {
	return fmt.Sprintf("already sharing to room %s", e.RoomID)
}
