package session

import (
	"errors"

	"github.com/rs/zerolog"
)

// Error taxonomy. Handlers wrap one of these with %w; absorb decides what is
// surfaced through the error event.
var (
	// ErrTransientSignaling covers dropped, duplicate and out-of-order messages.
	ErrTransientSignaling = errors.New("transient signaling")
	// ErrMediaAcquisition means the capture device was denied or unavailable.
	ErrMediaAcquisition = errors.New("media acquisition")
	// ErrNegotiation covers malformed SDP and unexpected signaling state.
	ErrNegotiation = errors.New("negotiation")
	// ErrConnectivity is an ICE failure that the restart budget did not fix.
	ErrConnectivity = errors.New("connectivity")
	// ErrProtocolViolation is a message that contradicts what we agreed on.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrInvalidCommand is a command issued in a state that cannot take it.
	ErrInvalidCommand = errors.New("invalid command")
)

var (
	errOfferRefused = errors.New("offer refused")
	errGlare        = errors.New("glare")
	errDuplicate    = errors.New("duplicate")
	errStale        = errors.New("stale")
	errBusy         = errors.New("operation in flight")
)

// surfaced reports whether err must reach collaborators.
func surfaced(err error) bool {
	return errors.Is(err, ErrMediaAcquisition) ||
		errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrInvalidCommand)
}

func levelFor(err error) zerolog.Level {
	switch {
	case errors.Is(err, ErrTransientSignaling):
		return zerolog.DebugLevel
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrInvalidCommand):
		return zerolog.WarnLevel
	case errors.Is(err, ErrMediaAcquisition), errors.Is(err, ErrConnectivity):
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
