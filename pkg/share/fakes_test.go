package share

import (
	"encoding/json"
	"sync"

	"chatshare/pkg/signal"
)

// fakeTrack is a controllable media track for driving capture callbacks.
type fakeTrack struct {
	kind string

	mu      sync.Mutex
	ended   bool
	stopped bool
	onEnded func()
	onMute  func()
}

func newFakeTrack(kind string) *fakeTrack {
	return &fakeTrack{kind: kind}
}

func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.ended = true
	t.mu.Unlock()
}

func (t *fakeTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *fakeTrack) OnMute(fn func()) {
	t.mu.Lock()
	t.onMute = fn
	t.mu.Unlock()
}

func (t *fakeTrack) wasStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// endTrack simulates the source terminating the track (native stop control).
func (t *fakeTrack) endTrack() {
	t.mu.Lock()
	t.ended = true
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// muteTrack simulates the track muting without ending.
func (t *fakeTrack) muteTrack() {
	t.mu.Lock()
	fn := t.onMute
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeStream struct {
	id     string
	tracks []MediaTrack
}

func newFakeStream(id string, tracks ...MediaTrack) *fakeStream {
	return &fakeStream{id: id, tracks: tracks}
}

func (s *fakeStream) ID() string           { return s.id }
func (s *fakeStream) Tracks() []MediaTrack { return s.tracks }

// fakePeer is a scriptable peer connection. Tests trigger its events
// explicitly; it never acts on its own.
type fakePeer struct {
	role Role

	mu          sync.Mutex
	onLocalDesc func([]byte)
	onRemote    func(MediaStream)
	onClose     func()
	onError     func(error)
	accepted    [][]byte
	acceptErr   error
	destroyed   int
}

func (p *fakePeer) OnLocalDescription(fn func(payload []byte)) {
	p.mu.Lock()
	p.onLocalDesc = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnRemoteStream(fn func(ms MediaStream)) {
	p.mu.Lock()
	p.onRemote = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnClose(fn func()) {
	p.mu.Lock()
	p.onClose = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnError(fn func(err error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

func (p *fakePeer) AcceptRemote(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acceptErr != nil {
		return p.acceptErr
	}
	p.accepted = append(p.accepted, payload)
	return nil
}

func (p *fakePeer) Destroy() {
	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()
}

func (p *fakePeer) destroyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *fakePeer) acceptedPayloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.accepted...)
}

func (p *fakePeer) emitLocalDescription(payload []byte) {
	p.mu.Lock()
	fn := p.onLocalDesc
	p.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

func (p *fakePeer) emitRemoteStream(ms MediaStream) {
	p.mu.Lock()
	fn := p.onRemote
	p.mu.Unlock()
	if fn != nil {
		fn(ms)
	}
}

func (p *fakePeer) emitClose() {
	p.mu.Lock()
	fn := p.onClose
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePeer) emitError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// fakeFactory creates fakePeers and remembers them in creation order.
type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (f *fakeFactory) create(cfg PeerConfig) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{role: cfg.Role}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) created() []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePeer(nil), f.peers...)
}

func (f *fakeFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

// fakeCapture counts acquisitions and can be scripted to refuse.
type fakeCapture struct {
	mu      sync.Mutex
	calls   int
	err     error
	streams []*fakeStream
}

func (c *fakeCapture) capture() (MediaStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.calls++
	track := newFakeTrack("video")
	s := newFakeStream("local", track)
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCapture) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCapture) lastStream() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

func (c *fakeCapture) lastTrack() *fakeTrack {
	s := c.lastStream()
	if s == nil {
		return nil
	}
	return s.tracks[0].(*fakeTrack)
}

// eventRecorder subscribes to a room's topics and records everything that
// goes over them.
type eventRecorder struct {
	mu      sync.Mutex
	events  []signal.ShareEvent
	signals []signal.Signal
}

func newEventRecorder(bus signal.Bus, roomID string) *eventRecorder {
	r := &eventRecorder{}
	bus.Subscribe(signal.ShareEventsTopic(roomID), func(data []byte) {
		var ev signal.ShareEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	})
	bus.Subscribe(signal.SignalTopic(roomID), func(data []byte) {
		var sig signal.Signal
		if err := json.Unmarshal(data, &sig); err == nil {
			r.mu.Lock()
			r.signals = append(r.signals, sig)
			r.mu.Unlock()
		}
	})
	return r
}

func (r *eventRecorder) shareEvents() []signal.ShareEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal.ShareEvent(nil), r.events...)
}

func (r *eventRecorder) signalsOfType(typ string) []signal.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []signal.Signal
	for _, s := range r.signals {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func (r *eventRecorder) eventsOfAction(action string) []signal.ShareEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []signal.ShareEvent
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
