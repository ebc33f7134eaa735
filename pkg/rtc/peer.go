package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"

	"chatshare/pkg/log"
	"chatshare/pkg/share"
)

// ICE servers for NAT traversal
var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// Config holds peer connection settings shared by all connections the
// factory creates.
type Config struct {
	// ICEServers overrides the default STUN servers when non-empty.
	ICEServers []string
}

func (c Config) webrtcConfiguration() webrtc.Configuration {
	if len(c.ICEServers) == 0 {
		return webrtc.Configuration{ICEServers: defaultICEServers}
	}
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, u := range c.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// LocalTrack is a media track that can be attached to an outgoing peer
// connection. The synthetic capture source produces these.
type LocalTrack interface {
	share.MediaTrack
	RTPTrack() webrtc.TrackLocal
}

// NewFactory returns a peer factory backed by pion/webrtc.
//
// Negotiation is non-trickle: each side waits for ICE gathering to complete
// and ships a single description payload with candidates inlined, so the
// signaling layer only ever relays one offer and one answer per connection.
func NewFactory(cfg Config) share.PeerFactory {
	conf := cfg.webrtcConfiguration()
	return func(pcfg share.PeerConfig) (share.PeerConnection, error) {
		return newPeer(conf, pcfg)
	}
}

// Peer implements the peer-connection contract on pion/webrtc v3.
type Peer struct {
	pc   *webrtc.PeerConnection
	role share.Role

	mu          sync.Mutex
	onLocalDesc func([]byte)
	localDesc   []byte
	descFired   bool
	onRemote    func(share.MediaStream)
	onClose     func()
	onError     func(error)
	streams     map[string]*remoteStream
	closeFired  bool

	destroyOnce sync.Once
}

func newPeer(conf webrtc.Configuration, pcfg share.PeerConfig) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(conf)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}

	p := &Peer{
		pc:      pc,
		role:    pcfg.Role,
		streams: make(map[string]*remoteStream),
	}

	if pcfg.Role == share.RoleOfferer {
		if pcfg.LocalMedia == nil {
			pc.Close()
			return nil, errors.New("offerer requires local media")
		}
		for _, t := range pcfg.LocalMedia.Tracks() {
			lt, ok := t.(LocalTrack)
			if !ok {
				pc.Close()
				return nil, errors.Errorf("track kind %s is not attachable", t.Kind())
			}
			if _, err := pc.AddTrack(lt.RTPTrack()); err != nil {
				pc.Close()
				return nil, errors.Wrap(err, "add local track")
			}
		}
	} else {
		// Answerers receive only; declare the transceivers so the answer
		// accepts the offered media.
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			pc.Close()
			return nil, errors.Wrap(err, "add video transceiver")
		}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			pc.Close()
			return nil, errors.Wrap(err, "add audio transceiver")
		}
	}

	pc.OnTrack(p.handleRemoteTrack)
	pc.OnConnectionStateChange(p.handleConnectionState)

	if pcfg.Role == share.RoleOfferer {
		go p.negotiateOffer()
	}
	return p, nil
}

// OnLocalDescription registers the description callback. If negotiation
// already produced the payload it is delivered immediately, so registration
// order never loses the description.
func (p *Peer) OnLocalDescription(fn func(payload []byte)) {
	p.mu.Lock()
	p.onLocalDesc = fn
	var pending []byte
	if !p.descFired && p.localDesc != nil {
		p.descFired = true
		pending = p.localDesc
	}
	p.mu.Unlock()

	if pending != nil && fn != nil {
		fn(pending)
	}
}

func (p *Peer) OnRemoteStream(fn func(ms share.MediaStream)) {
	p.mu.Lock()
	p.onRemote = fn
	p.mu.Unlock()
}

func (p *Peer) OnClose(fn func()) {
	p.mu.Lock()
	p.onClose = fn
	p.mu.Unlock()
}

func (p *Peer) OnError(fn func(err error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// AcceptRemote injects the remote description. For an offerer that is the
// answer; for an answerer it is the offer, and accepting it triggers answer
// generation.
func (p *Peer) AcceptRemote(payload []byte) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return errors.Wrap(err, "parse remote description")
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return errors.Wrap(err, "apply remote description")
	}
	if p.role == share.RoleAnswerer {
		go p.negotiateAnswer()
	}
	return nil
}

// Destroy releases the connection. Safe to call any number of times; the
// underlying close runs once.
func (p *Peer) Destroy() {
	p.destroyOnce.Do(func() {
		p.mu.Lock()
		streams := p.streams
		p.streams = make(map[string]*remoteStream)
		p.mu.Unlock()

		for _, s := range streams {
			s.stopAll()
		}
		if err := p.pc.Close(); err != nil {
			log.Debugf("rtc: close %s connection: %v", p.role, err)
		}
	})
}

func (p *Peer) negotiateOffer() {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		p.fireError(errors.Wrap(err, "create offer"))
		return
	}
	p.settleLocalDescription(offer)
}

func (p *Peer) negotiateAnswer() {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.fireError(errors.Wrap(err, "create answer"))
		return
	}
	p.settleLocalDescription(answer)
}

// settleLocalDescription applies the description, waits for ICE gathering to
// finish and delivers the candidate-complete payload.
func (p *Peer) settleLocalDescription(desc webrtc.SessionDescription) {
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		p.fireError(errors.Wrap(err, "set local description"))
		return
	}
	<-gathered

	local := p.pc.LocalDescription()
	if local == nil {
		p.fireError(errors.New("no local description after gathering"))
		return
	}
	payload, err := json.Marshal(local)
	if err != nil {
		p.fireError(errors.Wrap(err, "encode local description"))
		return
	}

	p.mu.Lock()
	p.localDesc = payload
	fn := p.onLocalDesc
	var fire bool
	if fn != nil && !p.descFired {
		p.descFired = true
		fire = true
	}
	p.mu.Unlock()

	if fire {
		fn(payload)
	}
}

func (p *Peer) handleRemoteTrack(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	p.mu.Lock()
	stream, ok := p.streams[t.StreamID()]
	if !ok {
		stream = newRemoteStream(t.StreamID())
		p.streams[t.StreamID()] = stream
	}
	rt := stream.addTrack(t)
	fn := p.onRemote
	p.mu.Unlock()

	go rt.drain()

	if !ok && fn != nil {
		fn(stream)
	}
}

func (p *Peer) handleConnectionState(state webrtc.PeerConnectionState) {
	log.Debugf("rtc: %s connection state %s", p.role, state)
	switch state {
	case webrtc.PeerConnectionStateFailed:
		p.fireError(fmt.Errorf("connection %s", state))
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		p.fireClose()
	}
}

func (p *Peer) fireError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()

	if fn != nil {
		fn(err)
	} else {
		log.Warnf("rtc: %s connection: %v", p.role, err)
	}
}

func (p *Peer) fireClose() {
	p.mu.Lock()
	if p.closeFired {
		p.mu.Unlock()
		return
	}
	p.closeFired = true
	fn := p.onClose
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// remoteStream groups the remote tracks that share a pion stream id.
type remoteStream struct {
	id string

	mu     sync.Mutex
	tracks []share.MediaTrack
}

func newRemoteStream(id string) *remoteStream {
	return &remoteStream{id: id}
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Tracks() []share.MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]share.MediaTrack(nil), s.tracks...)
}

func (s *remoteStream) addTrack(t *webrtc.TrackRemote) *remoteTrack {
	rt := &remoteTrack{
		remote: t,
		stop:   make(chan struct{}),
	}
	s.mu.Lock()
	s.tracks = append(s.tracks, rt)
	s.mu.Unlock()
	return rt
}

func (s *remoteStream) stopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// remoteTrack adapts a pion TrackRemote to the consumed track contract. The
// drain loop keeps the receiver's RTP flowing; rendering is out of scope.
type remoteTrack struct {
	remote *webrtc.TrackRemote

	mu       sync.Mutex
	ended    bool
	onEnded  func()
	onMute   func()
	stop     chan struct{}
	stopOnce sync.Once
}

func (t *remoteTrack) Kind() string { return t.remote.Kind().String() }

func (t *remoteTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *remoteTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *remoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	fire := t.ended
	t.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

// OnMute registers the mute callback. Pion surfaces no mute event for remote
// tracks, so it never fires here; the callback matters for local capture
// tracks.
func (t *remoteTrack) OnMute(fn func()) {
	t.mu.Lock()
	t.onMute = fn
	t.mu.Unlock()
}

func (t *remoteTrack) drain() {
	for {
		select {
		case <-t.stop:
			t.markEnded()
			return
		default:
		}
		if _, _, err := t.remote.ReadRTP(); err != nil {
			t.markEnded()
			return
		}
	}
}

func (t *remoteTrack) markEnded() {
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
