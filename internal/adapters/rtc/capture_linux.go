//go:build linux && cgo && capture

package rtc

import (
	"errors"
	"fmt"

	"github.com/dkeye/Duet/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoCapture = errors.New("rtc: no camera or microphone could be opened")

// capturer opens V4L2 cameras and malgo microphones through mediadevices and
// encodes VP8 + Opus.
type capturer struct {
	selector *mediadevices.CodecSelector
}

func newCapturer() (*capturer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &capturer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (c *capturer) populate(m *webrtc.MediaEngine) error {
	c.selector.Populate(m)
	return nil
}

// capture tries video+audio, then each kind alone, so a busy microphone does
// not cost the camera and vice versa.
func (c *capturer) capture() (map[core.TrackKind]webrtc.TrackLocal, func(), error) {
	devices := mediadevices.EnumerateDevices()
	for _, d := range devices {
		log.Debug().Str("module", "capture").Str("kind", fmt.Sprint(d.Kind)).Str("label", d.Label).Msg("media device")
	}

	type attempt struct {
		video, audio bool
		label        string
	}
	var errs []error
	for _, a := range []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		constraints := mediadevices.MediaStreamConstraints{Codec: c.selector}
		if a.video {
			constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
				// MJPEG nodes on some cameras produce frames the VP8 encoder rejects
				mc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				mc.Width = prop.IntRanged{Max: 640}
				mc.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn().Str("module", "capture").Str("attempt", a.label).Err(err).Msg("GetUserMedia failed")
			errs = append(errs, fmt.Errorf("%s: %w", a.label, err))
			continue
		}

		tracks := make(map[core.TrackKind]webrtc.TrackLocal)
		all := stream.GetTracks()
		for _, track := range all {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Warn().Str("module", "capture").Err(err).Msg("local track ended")
				}
			})
			tracks[trackKind(track.Kind())] = track
		}
		log.Info().Str("module", "capture").Str("attempt", a.label).Int("tracks", len(all)).Msg("local media captured")
		release := func() {
			for _, t := range all {
				_ = t.Close()
			}
		}
		return tracks, release, nil
	}
	return nil, nil, fmt.Errorf("%w: %w", ErrNoCapture, errors.Join(errs...))
}
