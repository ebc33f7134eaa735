package share

// MediaTrack is one independently stoppable track of a media stream.
type MediaTrack interface {
	// Kind returns "video" or "audio".
	Kind() string
	// Stop releases the track. Safe to call more than once.
	Stop()
	// Ended reports whether the track has stopped producing data.
	Ended() bool
	// OnEnded sets a callback fired when the track ends, e.g. when the user
	// hits the native stop-sharing control.
	OnEnded(fn func())
	// OnMute sets a callback fired when the track mutes without ending.
	OnMute(fn func())
}

// MediaStream is a handle to a set of live tracks. Local streams come from
// capture; remote ones from a peer connection's remote-stream event.
type MediaStream interface {
	ID() string
	Tracks() []MediaTrack
}

// CaptureFunc acquires the local screen capture. A refusal by the user maps
// to ErrPermissionDenied, which is recoverable.
type CaptureFunc func() (MediaStream, error)

// stopTracks releases every track of a stream. Nil-safe.
func stopTracks(ms MediaStream) {
	if ms == nil {
		return
	}
	for _, t := range ms.Tracks() {
		t.Stop()
	}
}
