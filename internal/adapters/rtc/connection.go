package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Duet/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RemoteStream groups the partner's tracks; each track has its own relay so
// sinks can be attached per kind.
type RemoteStream struct {
	id string

	mu     sync.Mutex
	relays map[core.TrackKind]*Relay
}

func (r *RemoteStream) ID() string { return r.id }

// Relay returns the relay for kind, or nil until that track arrived.
func (r *RemoteStream) Relay(kind core.TrackKind) *Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relays[kind]
}

// Connection is the pion-backed core.PeerConnection.
type Connection struct {
	pc     *webrtc.PeerConnection
	id     string
	local  *Stream
	sinks  SinkFactory
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu         sync.Mutex
	senders    []*webrtc.RTPSender
	remote     *RemoteStream
	videoSSRC  uint32
	onICE      func(webrtc.ICECandidateInit)
	onState    func(webrtc.PeerConnectionState)
	onRemote   func(core.RemoteStream)
	remoteSent bool
}

func newConnection(pc *webrtc.PeerConnection, id string, local *Stream, sinks SinkFactory) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		pc:     pc,
		id:     id,
		local:  local,
		sinks:  sinks,
		ctx:    ctx,
		cancel: cancel,
	}
	c.start()
	return c
}

func (c *Connection) logger() *zerolog.Logger {
	l := log.With().Str("module", "webrtc").Str("conn", c.id).Logger()
	return &l
}

func (c *Connection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger().Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger().Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		cb := c.onState
		c.mu.Unlock()
		if cb != nil {
			cb(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		cb := c.onICE
		c.mu.Unlock()
		if cb != nil {
			cb(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger().Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.addRemoteTrack(track)
	})
}

func (c *Connection) addRemoteTrack(track *webrtc.TrackRemote) {
	kind := core.TrackAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = core.TrackVideo
	}

	relayCtx, cancel := context.WithCancel(c.ctx)
	relay := NewRelay(track, cancel)
	if c.sinks != nil {
		for name, sink := range c.sinks(c.id, kind, track.Codec().MimeType, track.ID()) {
			relay.Attach(name, sink)
		}
	}

	c.mu.Lock()
	if c.remote == nil {
		c.remote = &RemoteStream{id: track.StreamID(), relays: make(map[core.TrackKind]*Relay)}
	}
	if old := c.remote.relays[kind]; old != nil {
		old.Stop()
	}
	c.remote.relays[kind] = relay
	if kind == core.TrackVideo {
		c.videoSSRC = uint32(track.SSRC())
	}
	fire := !c.remoteSent
	c.remoteSent = true
	remote := c.remote
	cb := c.onRemote
	c.mu.Unlock()

	logger := c.logger().With().Str("kind", kind.String()).Logger()
	go relay.loop(relayCtx, &logger)

	if fire && cb != nil {
		cb(remote)
	}
}

func (c *Connection) CreateAndSetOffer(ctx context.Context, iceRestart bool) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAndSetAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// RequestKeyframe sends a PLI for the remote video track.
func (c *Connection) RequestKeyframe() error {
	c.mu.Lock()
	ssrc := c.videoSSRC
	c.mu.Unlock()
	if ssrc == 0 {
		return errors.New("rtc: no remote video track")
	}
	return c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Connection) OnRemoteStream(fn func(core.RemoteStream)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemote = fn
}

func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

// Close stops relays, detaches local senders and closes the peer connection.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	senders := c.senders
	c.senders = nil
	c.onICE, c.onState, c.onRemote = nil, nil, nil
	c.mu.Unlock()
	if c.local != nil {
		c.local.detach(senders)
	}

	err := c.pc.Close()
	if err != nil {
		c.logger().Error().Err(err).Msg("close error")
	} else {
		c.logger().Info().Msg("closed")
	}
	return err
}

func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}
