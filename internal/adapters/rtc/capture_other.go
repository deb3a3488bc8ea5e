//go:build !(linux && cgo && capture)

package rtc

import (
	"github.com/dkeye/Duet/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// capturer for builds without the capture tag hands out placeholder tracks.
// The call still negotiates and receives the partner's media.
type capturer struct{}

func newCapturer() (*capturer, error) {
	return &capturer{}, nil
}

func (c *capturer) populate(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (c *capturer) capture() (map[core.TrackKind]webrtc.TrackLocal, func(), error) {
	tracks, err := syntheticTracks()
	if err != nil {
		return nil, nil, err
	}
	log.Warn().Str("module", "rtc").Msg("built without capture support, sending placeholder tracks")
	return tracks, nil, nil
}
