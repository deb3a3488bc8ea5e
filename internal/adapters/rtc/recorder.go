package rtc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/Duet/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// SinkFactory returns the sinks to attach to a freshly received remote track,
// keyed by outlet name.
type SinkFactory func(connID string, kind core.TrackKind, mimeType, trackID string) map[string]Sink

// Recorder writes VP8 video to .ivf and Opus audio to .ogg files under dir.
// Other codecs are not recorded.
func Recorder(dir string) SinkFactory {
	return func(connID string, kind core.TrackKind, mimeType, trackID string) map[string]Sink {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error().Str("module", "recorder").Err(err).Msg("record dir")
			return nil
		}
		base := filepath.Join(dir, fmt.Sprintf("%s-%s-%s", connID, kind, safeName(trackID)))

		var (
			sink Sink
			err  error
		)
		switch {
		case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
			sink, err = ivfwriter.New(base + ".ivf")
		case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
			sink, err = oggwriter.New(base+".ogg", 48000, 2)
		default:
			log.Info().Str("module", "recorder").Str("mime", mimeType).Msg("codec not recorded")
			return nil
		}
		if err != nil {
			log.Error().Str("module", "recorder").Str("file", base).Err(err).Msg("open recording")
			return nil
		}
		log.Info().Str("module", "recorder").Str("file", base).Str("mime", mimeType).Msg("recording")
		return map[string]Sink{"record": sink}
	}
}

func safeName(s string) string {
	if s == "" {
		return "track"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
