package rtc

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pkg/errors"

	"chatshare/pkg/log"
	"chatshare/pkg/share"
)

// CaptureOptions configures the synthetic capture source.
type CaptureOptions struct {
	// FPS is the frame rate of the generated video track.
	FPS int
	// WithAudio adds a silent audio track alongside the video.
	WithAudio bool
}

// NewSyntheticCapture returns a capture source that produces a generated
// sample stream instead of grabbing the OS screen. It exercises the full
// negotiation and track plumbing; real frame content is delegated to the
// media pipeline and out of scope here.
func NewSyntheticCapture(opts CaptureOptions) share.CaptureFunc {
	if opts.FPS <= 0 {
		opts.FPS = 15
	}
	return func() (share.MediaStream, error) {
		streamID := "share-" + uuid.NewString()

		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video0", streamID,
		)
		if err != nil {
			return nil, errors.Wrap(err, "create video track")
		}
		tracks := []share.MediaTrack{newSampleTrack(video, opts.FPS)}

		if opts.WithAudio {
			audio, err := webrtc.NewTrackLocalStaticSample(
				webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
				"audio0", streamID,
			)
			if err != nil {
				return nil, errors.Wrap(err, "create audio track")
			}
			tracks = append(tracks, newSampleTrack(audio, 50))
		}

		return &SampleStream{id: streamID, tracks: tracks}, nil
	}
}

// SampleStream is a local media stream backed by generated samples.
type SampleStream struct {
	id     string
	tracks []share.MediaTrack
}

func (s *SampleStream) ID() string { return s.id }

func (s *SampleStream) Tracks() []share.MediaTrack {
	return append([]share.MediaTrack(nil), s.tracks...)
}

// sampleTrack feeds a pion sample track from a generator loop and implements
// the stoppable-track contract over it.
type sampleTrack struct {
	track *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	ended   bool
	onEnded func()
	onMute  func()

	stop     chan struct{}
	stopOnce sync.Once
}

func newSampleTrack(track *webrtc.TrackLocalStaticSample, fps int) *sampleTrack {
	t := &sampleTrack{
		track: track,
		stop:  make(chan struct{}),
	}
	go t.generate(fps)
	return t
}

func (t *sampleTrack) Kind() string { return t.track.Kind().String() }

// RTPTrack exposes the underlying track for attachment to a connection.
func (t *sampleTrack) RTPTrack() webrtc.TrackLocal { return t.track }

// Stop halts the generator and marks the track ended. Idempotent.
func (t *sampleTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *sampleTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *sampleTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	fire := t.ended
	t.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

// OnMute registers the mute callback. The generator never pauses on its own,
// so it fires only if a future source supports suspension.
func (t *sampleTrack) OnMute(fn func()) {
	t.mu.Lock()
	t.onMute = fn
	t.mu.Unlock()
}

func (t *sampleTrack) generate(fps int) {
	frameDuration := time.Second / time.Duration(fps)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	// Payload content is a placeholder pattern; only timing and plumbing
	// matter for this source.
	frame := make([]byte, 1024)
	var seq byte

	for {
		select {
		case <-t.stop:
			t.markEnded()
			return
		case <-ticker.C:
			seq++
			for i := range frame {
				frame[i] = seq
			}
			err := t.track.WriteSample(media.Sample{
				Data:     frame,
				Duration: frameDuration,
			})
			if err != nil {
				log.Debugf("rtc: write sample on %s track: %v", t.Kind(), err)
			}
		}
	}
}

func (t *sampleTrack) markEnded() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fn := t.onEnded
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}
