package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/pion/webrtc/v4"
)

func testSDP(name string) string {
	return "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=" + name + "\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n"
}

func offerDesc(name string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP(name)}
}

func answerDesc(name string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP(name)}
}

// syncRun runs negotiation work inline.
func syncRun(work func(ctx context.Context) error, then func(error)) {
	then(work(context.Background()))
}

type fakeStream struct {
	id string

	mu      sync.Mutex
	enabled map[core.TrackKind]bool
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Enabled(kind core.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	on, ok := s.enabled[kind]
	return !ok || on
}

type fakeRemote struct{ id string }

func (r fakeRemote) ID() string { return r.id }

type fakePC struct {
	mu          sync.Mutex
	offers      []bool
	answers     int
	remote      []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	keyframes   int
	closed      bool
	autoConnect bool
	failOffer   error

	onICE    func(webrtc.ICECandidateInit)
	onState  func(webrtc.PeerConnectionState)
	onRemote func(core.RemoteStream)
}

func (p *fakePC) CreateAndSetOffer(_ context.Context, iceRestart bool) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOffer != nil {
		return webrtc.SessionDescription{}, p.failOffer
	}
	p.offers = append(p.offers, iceRestart)
	return offerDesc(fmt.Sprintf("local-offer-%d", len(p.offers))), nil
}

func (p *fakePC) CreateAndSetAnswer(context.Context) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	p.answers++
	n := p.answers
	auto := p.autoConnect
	p.mu.Unlock()
	if auto {
		p.connect()
	}
	return answerDesc(fmt.Sprintf("local-answer-%d", n)), nil
}

func (p *fakePC) SetRemoteDescription(_ context.Context, desc webrtc.SessionDescription) error {
	p.mu.Lock()
	p.remote = append(p.remote, desc)
	auto := p.autoConnect && desc.Type == webrtc.SDPTypeAnswer
	p.mu.Unlock()
	if auto {
		p.connect()
	}
	return nil
}

func (p *fakePC) connect() {
	p.fireState(webrtc.PeerConnectionStateConnected)
	p.mu.Lock()
	cb := p.onRemote
	p.mu.Unlock()
	if cb != nil {
		cb(fakeRemote{id: "remote"})
	}
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) RequestKeyframe() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyframes++
	return nil
}

func (p *fakePC) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = f
}

func (p *fakePC) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *fakePC) OnRemoteStream(f func(core.RemoteStream)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRemote = f
}

func (p *fakePC) fireState(st webrtc.PeerConnectionState) {
	p.mu.Lock()
	cb := p.onState
	p.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (p *fakePC) fireCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	cb := p.onICE
	p.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePC) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePC) offerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.offers)
}

func (p *fakePC) restartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, restart := range p.offers {
		if restart {
			n++
		}
	}
	return n
}

func (p *fakePC) answerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answers
}

func (p *fakePC) remoteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remote)
}

func (p *fakePC) appliedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *fakePC) keyframeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keyframes
}

var errDenied = errors.New("permission denied")
var errNotConnected = errors.New("signaling not connected")

type trackCall struct {
	kind    core.TrackKind
	enabled bool
}

type fakeMedia struct {
	mu         sync.Mutex
	acquired   int
	released   int
	pcs        []*fakePC
	tracks     []trackCall
	failAcq    error
	gate       chan struct{}
	manualConn bool
}

func (m *fakeMedia) AcquireLocalStream(ctx context.Context) (core.LocalStream, error) {
	m.mu.Lock()
	gate := m.gate
	fail := m.failAcq
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired++
	return &fakeStream{id: fmt.Sprintf("local-%d", m.acquired), enabled: map[core.TrackKind]bool{}}, nil
}

func (m *fakeMedia) ReleaseLocalStream(core.LocalStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
}

func (m *fakeMedia) NewPeerConnection(context.Context, core.LocalStream) (core.PeerConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc := &fakePC{autoConnect: !m.manualConn}
	m.pcs = append(m.pcs, pc)
	return pc, nil
}

func (m *fakeMedia) SetTrackEnabled(local core.LocalStream, kind core.TrackKind, enabled bool) error {
	if s, ok := local.(*fakeStream); ok {
		s.mu.Lock()
		s.enabled[kind] = enabled
		s.mu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, trackCall{kind: kind, enabled: enabled})
	return nil
}

func (m *fakeMedia) pcCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pcs)
}

func (m *fakeMedia) pc(i int) *fakePC {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.pcs) {
		return nil
	}
	return m.pcs[i]
}

func (m *fakeMedia) counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}

func (m *fakeMedia) trackCalls() []trackCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trackCall(nil), m.tracks...)
}

type fakeTransport struct {
	id string
	in chan protocol.Message

	mu   sync.Mutex
	sent []protocol.Message
	down bool
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id, in: make(chan protocol.Message, 64)}
}

func (t *fakeTransport) LocalID() string { return t.id }

func (t *fakeTransport) Send(m protocol.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.down {
		return errNotConnected
	}
	t.sent = append(t.sent, m)
	return nil
}

// setDown makes Send fail as if the socket were gone.
func (t *fakeTransport) setDown(down bool) {
	t.mu.Lock()
	t.down = down
	t.mu.Unlock()
}

func (t *fakeTransport) Subscribe() (<-chan protocol.Message, func()) {
	return t.in, func() {}
}

func (t *fakeTransport) deliver(m protocol.Message) {
	select {
	case t.in <- m:
	case <-time.After(time.Second):
		panic("inbound channel full")
	}
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func sentOf[T protocol.Message](t *fakeTransport) []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []T
	for _, m := range t.sent {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
