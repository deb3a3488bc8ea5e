package rtc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers             []string
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	ICEKeepalive           time.Duration
	// RecordDir enables recording of remote media when set.
	RecordDir string
}

// Engine is the pion-backed core.MediaEngine: one webrtc.API shared by every
// connection, plus the platform capturer.
type Engine struct {
	api      *webrtc.API
	config   webrtc.Configuration
	capturer *capturer
	sinks    SinkFactory
	seq      atomic.Uint64
}

func NewEngine(cfg Config) (*Engine, error) {
	capt, err := newCapturer()
	if err != nil {
		return nil, fmt.Errorf("capturer: %w", err)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := capt.populate(mediaEngine); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create PLI factory: %w", err)
	}
	interceptorRegistry.Add(pli)

	se := webrtc.SettingEngine{}
	if cfg.ICEDisconnectedTimeout > 0 && cfg.ICEFailedTimeout > 0 {
		se.SetICETimeouts(cfg.ICEDisconnectedTimeout, cfg.ICEFailedTimeout, cfg.ICEKeepalive)
	}

	e := &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(interceptorRegistry),
			webrtc.WithSettingEngine(se),
		),
		config:   webrtc.Configuration{ICEServers: iceServers(cfg.ICEServers)},
		capturer: capt,
	}
	if cfg.RecordDir != "" {
		e.sinks = Recorder(cfg.RecordDir)
	}
	return e, nil
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

func (e *Engine) AcquireLocalStream(ctx context.Context) (core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tracks, release, err := e.capturer.capture()
	if err != nil {
		return nil, err
	}
	s := newStream(tracks, release)
	log.Info().Str("module", "rtc").Str("stream", s.ID()).Int("tracks", len(tracks)).Msg("local stream ready")
	return s, nil
}

func (e *Engine) ReleaseLocalStream(ls core.LocalStream) {
	s, ok := ls.(*Stream)
	if !ok {
		return
	}
	s.close()
	log.Info().Str("module", "rtc").Str("stream", s.ID()).Msg("local stream released")
}

func (e *Engine) SetTrackEnabled(ls core.LocalStream, kind core.TrackKind, enabled bool) error {
	s, ok := ls.(*Stream)
	if !ok {
		return ErrForeignStream
	}
	return s.setEnabled(kind, enabled)
}

// NewPeerConnection attaches local's tracks and makes sure both an audio and
// a video transceiver exist even when capture produced only one kind.
func (e *Engine) NewPeerConnection(ctx context.Context, ls core.LocalStream) (core.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var local *Stream
	if ls != nil {
		s, ok := ls.(*Stream)
		if !ok {
			return nil, ErrForeignStream
		}
		local = s
	}

	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("pc-%d", e.seq.Add(1))
	conn := newConnection(pc, id, local, e.sinks)

	if local != nil {
		senders, err := local.attach(pc)
		conn.senders = senders
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("attach local tracks: %w", err)
		}
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if local != nil && local.Has(trackKind(kind)) {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	log.Info().Str("module", "rtc").Str("conn", id).Msg("peer connection created")
	return conn, nil
}

func trackKind(k webrtc.RTPCodecType) core.TrackKind {
	if k == webrtc.RTPCodecTypeVideo {
		return core.TrackVideo
	}
	return core.TrackAudio
}
