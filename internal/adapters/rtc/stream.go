package rtc

import (
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/Duet/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrForeignStream = errors.New("rtc: stream not created by this engine")

// Stream is the local capture. Disabling a kind swaps the sender's track for
// nil so nothing is sent while the capture device stays open.
type Stream struct {
	id      string
	release func()

	mu      sync.Mutex
	tracks  map[core.TrackKind]webrtc.TrackLocal
	enabled map[core.TrackKind]bool
	senders map[core.TrackKind][]*webrtc.RTPSender
}

func newStream(tracks map[core.TrackKind]webrtc.TrackLocal, release func()) *Stream {
	return &Stream{
		id:      uuid.NewString(),
		release: release,
		tracks:  tracks,
		enabled: map[core.TrackKind]bool{core.TrackAudio: true, core.TrackVideo: true},
		senders: make(map[core.TrackKind][]*webrtc.RTPSender),
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Enabled(kind core.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[kind]
}

// Has reports whether the capture produced a track of kind.
func (s *Stream) Has(kind core.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[kind]
	return ok
}

func (s *Stream) setEnabled(kind core.TrackKind, enabled bool) error {
	s.mu.Lock()
	s.enabled[kind] = enabled
	track := s.tracks[kind]
	senders := slices.Clone(s.senders[kind])
	s.mu.Unlock()

	if !enabled {
		track = nil
	}
	var errs []error
	for _, sender := range senders {
		if err := sender.ReplaceTrack(track); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// attach adds the stream's tracks to pc, honoring the enabled flags.
func (s *Stream) attach(pc *webrtc.PeerConnection) ([]*webrtc.RTPSender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []*webrtc.RTPSender
	for _, kind := range []core.TrackKind{core.TrackAudio, core.TrackVideo} {
		track, ok := s.tracks[kind]
		if !ok {
			continue
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			return added, err
		}
		if !s.enabled[kind] {
			if err := sender.ReplaceTrack(nil); err != nil {
				log.Debug().Str("module", "rtc").Err(err).Msg("detach disabled track")
			}
		}
		s.senders[kind] = append(s.senders[kind], sender)
		added = append(added, sender)
		go drainRTCP(sender)
	}
	return added, nil
}

// detach forgets senders that belonged to a closed connection.
func (s *Stream) detach(gone []*webrtc.RTPSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, list := range s.senders {
		s.senders[kind] = slices.DeleteFunc(list, func(sender *webrtc.RTPSender) bool {
			return slices.Contains(gone, sender)
		})
	}
}

func (s *Stream) close() {
	if s.release != nil {
		s.release()
	}
}

// drainRTCP reads RTCP for a sender so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// syntheticTracks are placeholder VP8/Opus tracks for hosts without a capture
// driver. Nothing is written to them; they only give the SDP its send side.
func syntheticTracks() (map[core.TrackKind]webrtc.TrackLocal, error) {
	streamID := "duet-" + uuid.NewString()
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	return map[core.TrackKind]webrtc.TrackLocal{core.TrackVideo: video, core.TrackAudio: audio}, nil
}
