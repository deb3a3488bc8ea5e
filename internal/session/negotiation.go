package session

import (
	"context"
	"fmt"

	"github.com/dkeye/Duet/internal/core"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type signalingState int

const (
	sigStable signalingState = iota
	sigHaveLocalOffer
	sigHaveRemoteOffer
)

func (s signalingState) String() string {
	switch s {
	case sigHaveLocalOffer:
		return "have-local-offer"
	case sigHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return "stable"
	}
}

// runner executes work off the session loop and calls then back on it,
// unless the link that scheduled the work has been torn down meanwhile.
type runner func(work func(ctx context.Context) error, then func(error))

// NegotiationEngine drives offer/answer and ICE candidates for one peer
// connection. It lives exactly as long as the connection it wraps and is only
// touched from the session loop.
type NegotiationEngine struct {
	pc      core.PeerConnection
	partner string
	run     runner
	queue   *CandidateQueue
	seen    *dedupeSet

	state     signalingState
	busy      bool
	hasLocal  bool
	hasRemote bool
	answered  bool
}

func newNegotiationEngine(pc core.PeerConnection, partner string, queue *CandidateQueue, seen *dedupeSet, run runner) *NegotiationEngine {
	return &NegotiationEngine{
		pc:      pc,
		partner: partner,
		run:     run,
		queue:   queue,
		seen:    seen,
	}
}

// Ready reports whether both descriptions are applied and nothing is pending.
func (n *NegotiationEngine) Ready() bool {
	return n.hasLocal && n.hasRemote && n.state == sigStable && !n.busy
}

// CreateOffer creates and applies a local offer, then hands it to done.
// A second initial offer for the same connection is refused; iceRestart
// offers are only refused while a remote offer is being answered.
func (n *NegotiationEngine) CreateOffer(iceRestart bool, done func(webrtc.SessionDescription)) error {
	switch {
	case n.busy:
		return fmt.Errorf("%w: create offer: %w", ErrNegotiation, errBusy)
	case n.state == sigHaveRemoteOffer:
		return fmt.Errorf("%w: create offer in %s: %w", ErrNegotiation, n.state, errOfferRefused)
	case !iceRestart && (n.hasLocal || n.state != sigStable):
		return fmt.Errorf("%w: offer already created: %w", ErrNegotiation, errOfferRefused)
	}

	prev := n.state
	n.busy = true
	// set before the offer exists so a crossing remote offer is seen as glare
	n.state = sigHaveLocalOffer

	var desc webrtc.SessionDescription
	n.run(func(ctx context.Context) error {
		d, err := n.pc.CreateAndSetOffer(ctx, iceRestart)
		desc = d
		return err
	}, func(err error) {
		n.busy = false
		if err != nil {
			n.state = prev
			log.Warn().Str("module", "negotiation").Str("partner", n.partner).
				Bool("ice_restart", iceRestart).Err(err).Msg("create offer failed")
			return
		}
		n.hasLocal = true
		done(desc)
	})
	return nil
}

// ApplyOffer applies a remote offer from the partner and answers it.
// renegotiate allows a fresh offer after the first answer, which is how an
// ICE restart arrives on the answering side.
func (n *NegotiationEngine) ApplyOffer(from string, desc webrtc.SessionDescription, renegotiate bool, answered func(webrtc.SessionDescription)) error {
	if from != n.partner {
		return fmt.Errorf("%w: offer from %q, partner is %q: %w", ErrTransientSignaling, from, n.partner, errStale)
	}
	key := offerKey(from, desc.SDP)
	switch {
	case n.seen.Seen(key):
		return fmt.Errorf("%w: offer: %w", ErrTransientSignaling, errDuplicate)
	case n.state == sigHaveLocalOffer:
		return fmt.Errorf("%w: remote offer in %s: %w", ErrNegotiation, n.state, errGlare)
	case n.busy:
		return fmt.Errorf("%w: remote offer: %w", ErrTransientSignaling, errBusy)
	case n.answered && !renegotiate:
		return fmt.Errorf("%w: offer already answered: %w", ErrTransientSignaling, errDuplicate)
	}
	if err := validateDescription(desc, webrtc.SDPTypeOffer); err != nil {
		return err
	}

	n.seen.TryMark(key)
	n.busy = true
	n.run(func(ctx context.Context) error {
		return n.pc.SetRemoteDescription(ctx, desc)
	}, func(err error) {
		n.busy = false
		if err != nil {
			n.seen.Forget(key)
			log.Warn().Str("module", "negotiation").Str("partner", n.partner).Err(err).Msg("apply offer failed")
			return
		}
		n.state = sigHaveRemoteOffer
		n.hasRemote = true
		n.flush()
		if err := n.createAnswer(answered); err != nil {
			log.Warn().Str("module", "negotiation").Str("partner", n.partner).Err(err).Msg("answer not created")
		}
	})
	return nil
}

func (n *NegotiationEngine) createAnswer(done func(webrtc.SessionDescription)) error {
	if n.state != sigHaveRemoteOffer || n.busy {
		return fmt.Errorf("%w: create answer in %s: %w", ErrNegotiation, n.state, errOfferRefused)
	}
	n.busy = true
	var desc webrtc.SessionDescription
	n.run(func(ctx context.Context) error {
		d, err := n.pc.CreateAndSetAnswer(ctx)
		desc = d
		return err
	}, func(err error) {
		n.busy = false
		if err != nil {
			log.Warn().Str("module", "negotiation").Str("partner", n.partner).Err(err).Msg("create answer failed")
			return
		}
		n.state = sigStable
		n.hasLocal = true
		n.answered = true
		done(desc)
	})
	return nil
}

// ApplyAnswer applies the partner's answer to our outstanding offer.
// Answers with no matching offer are stale.
func (n *NegotiationEngine) ApplyAnswer(from string, desc webrtc.SessionDescription, done func()) error {
	if from != n.partner {
		return fmt.Errorf("%w: answer from %q, partner is %q: %w", ErrTransientSignaling, from, n.partner, errStale)
	}
	if n.state != sigHaveLocalOffer || n.busy {
		return fmt.Errorf("%w: answer in %s: %w", ErrTransientSignaling, n.state, errStale)
	}
	if err := validateDescription(desc, webrtc.SDPTypeAnswer); err != nil {
		return err
	}

	n.busy = true
	n.run(func(ctx context.Context) error {
		return n.pc.SetRemoteDescription(ctx, desc)
	}, func(err error) {
		n.busy = false
		if err != nil {
			log.Warn().Str("module", "negotiation").Str("partner", n.partner).Err(err).Msg("apply answer failed")
			return
		}
		n.state = sigStable
		n.hasRemote = true
		n.flush()
		done()
	})
	return nil
}

// AddCandidate applies c now if the remote description is in place and
// queues it otherwise.
func (n *NegotiationEngine) AddCandidate(from string, c webrtc.ICECandidateInit) error {
	if from != n.partner || !n.hasRemote {
		if !n.queue.Push(from, c) {
			return fmt.Errorf("%w: candidate from %q discarded", ErrTransientSignaling, from)
		}
		return nil
	}
	if err := n.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("%w: add candidate: %v", ErrNegotiation, err)
	}
	return nil
}

func (n *NegotiationEngine) flush() {
	for _, c := range n.queue.Drain(n.partner) {
		if err := n.pc.AddICECandidate(c); err != nil {
			log.Debug().Str("module", "negotiation").Str("partner", n.partner).Err(err).Msg("queued candidate rejected")
		}
	}
}

// validateDescription rejects descriptions that do not parse as SDP before
// they reach the peer connection.
func validateDescription(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrNegotiation, desc.Type, want)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty %s", ErrNegotiation, want)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: malformed %s: %v", ErrNegotiation, want, err)
	}
	return nil
}
