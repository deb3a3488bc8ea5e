package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// withLocalStream runs ready once a local stream exists, acquiring one if
// needed. On failure the session falls back to Idle.
func (s *Session) withLocalStream(ready func()) {
	if s.local != nil {
		ready()
		return
	}
	if s.acquiring {
		s.absorb(fmt.Errorf("%w: capture already in progress", ErrInvalidCommand), "acquire")
		return
	}
	s.acquiring = true
	var stream core.LocalStream
	s.async(func(ctx context.Context) error {
		st, err := s.media.AcquireLocalStream(ctx)
		stream = st
		return err
	}, func(err error) {
		s.acquiring = false
		if err != nil {
			s.absorb(fmt.Errorf("%w: %v", ErrMediaAcquisition, err), "acquire")
			s.teardownLink("media unavailable")
			s.setState(StateIdle, "media unavailable")
			return
		}
		s.local = stream
		s.applyTrack(core.TrackAudio, s.micEnabled)
		s.applyTrack(core.TrackVideo, s.camEnabled)
		log.Info().Str("module", "session").Str("stream", stream.ID()).Msg("local stream acquired")
		s.emit(Event{Kind: EventLocalStreamChanged, Local: stream})
		ready()
	}, func() {
		if stream != nil {
			s.media.ReleaseLocalStream(stream)
		}
	})
}

func (s *Session) releaseLocal() {
	s.acquiring = false
	if s.local == nil {
		return
	}
	s.media.ReleaseLocalStream(s.local)
	s.local = nil
	s.emit(Event{Kind: EventLocalStreamChanged})
}

func (s *Session) applyTrack(kind core.TrackKind, enabled bool) {
	if s.local == nil {
		return
	}
	if err := s.media.SetTrackEnabled(s.local, kind, enabled); err != nil {
		log.Warn().Str("module", "session").Str("track", kind.String()).Err(err).Msg("set track enabled failed")
	}
}

// bindPartner makes p the current partner. A different existing partner is
// torn down first so only one link ever exists.
func (s *Session) bindPartner(p domain.Partner, room domain.RoomID, role domain.Role) {
	if !s.partner.IsZero() && s.partner.TransportID != p.TransportID {
		s.teardownLink("replaced")
	}
	s.partner = p
	s.roomID = room
	s.role = role
	s.queue.Revive(string(p.TransportID))
	log.Info().Str("module", "session").Str("partner", string(p.TransportID)).
		Str("role", role.String()).Str("room", string(room)).Uint64("gen", s.gen).Msg("partner bound")
	s.emit(Event{Kind: EventPartnerChanged, Partner: p})
}

// teardownLink closes the connection and forgets the partner. The generation
// moves on so that every callback and result scheduled for the old link is
// dropped when it reaches the loop.
func (s *Session) teardownLink(reason string) {
	if s.recheck != nil {
		s.recheck.Stop()
		s.recheck = nil
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			log.Debug().Str("module", "session").Err(err).Msg("peer connection close")
		}
		s.pc = nil
	}
	s.neg = nil
	s.creatingPC = false
	s.stashed = nil
	s.linkState = webrtc.PeerConnectionStateNew
	s.remoteRestartAt = time.Time{}
	s.policy.Reset()

	prev := s.partner
	if !prev.IsZero() {
		s.queue.Abandon(string(prev.TransportID))
		s.seen.Forget(matchKey(string(prev.TransportID)))
	}
	hadRemote := s.remote != nil
	s.remote = nil
	s.remoteCamEnabled = true
	s.remotePipActive = false
	s.partner = domain.Partner{}
	s.role = domain.RoleUnresolved
	s.roomID = ""
	s.callID = ""
	s.gen++

	if hadRemote {
		s.emit(Event{Kind: EventRemoteStream})
	}
	if !prev.IsZero() {
		log.Info().Str("module", "session").Str("partner", string(prev.TransportID)).Str("reason", reason).
			Uint64("gen", s.gen).Msg("link torn down")
		s.emit(Event{Kind: EventPartnerChanged, Reason: reason})
	}
}

// endCall moves through Ending to Inactive, releasing everything.
func (s *Session) endCall(reason string) {
	s.setState(StateEnding, reason)
	s.match.Cancel()
	s.clearOutgoing()
	s.teardownLink(reason)
	s.releaseLocal()
	s.setState(StateInactive, reason)
}

// linkLost handles the partner going away on its own.
// Random requeues, Direct ends.
func (s *Session) linkLost(reason string) {
	if s.mode == domain.ModeDirect {
		s.endCall(reason)
		return
	}
	s.teardownLink(reason)
	s.setState(StateSearching, reason)
	s.match.Requeue()
}

// openPeerConnection creates the single connection for the bound partner.
func (s *Session) openPeerConnection() {
	if s.pc != nil || s.creatingPC {
		s.absorb(fmt.Errorf("%w: peer connection already exists: %w", ErrTransientSignaling, errDuplicate), "open")
		return
	}
	s.creatingPC = true
	local := s.local
	partner := s.partner.TransportID
	gen := s.gen
	var pc core.PeerConnection
	s.async(func(ctx context.Context) error {
		p, err := s.media.NewPeerConnection(ctx, local)
		pc = p
		return err
	}, func(err error) {
		s.creatingPC = false
		if err != nil {
			s.absorb(fmt.Errorf("%w: create peer connection: %v", ErrNegotiation, err), "open")
			s.linkLost("peer connection failed")
			return
		}
		s.pc = pc
		s.neg = newNegotiationEngine(pc, string(partner), s.queue, s.seen, s.runner())
		s.wire(pc, gen, partner)

		if s.role == domain.RoleCaller {
			s.sendOffer(false)
		}
		if o := s.stashed; o != nil {
			s.stashed = nil
			s.applyRemoteOffer(*o)
		}
	}, func() {
		if pc != nil {
			_ = pc.Close()
		}
	})
}

func (s *Session) wire(pc core.PeerConnection, gen uint64, partner domain.TransportID) {
	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		s.postIfCurrent(gen, partner, func() {
			s.send(protocol.ICECandidate{To: string(partner), Candidate: c, RoomID: string(s.roomID)})
		})
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.postIfCurrent(gen, partner, func() { s.onLinkState(st) })
	})
	pc.OnRemoteStream(func(rs core.RemoteStream) {
		s.postIfCurrent(gen, partner, func() {
			s.remote = rs
			s.emit(Event{Kind: EventRemoteStream, Remote: rs})
		})
	})
}

func (s *Session) sendOffer(iceRestart bool) {
	if s.neg == nil {
		return
	}
	to := s.partner.TransportID
	err := s.neg.CreateOffer(iceRestart, func(desc webrtc.SessionDescription) {
		if s.partner.TransportID != to {
			return
		}
		s.send(protocol.Offer{
			To:         string(to),
			Offer:      desc,
			FromUserID: string(s.opts.LocalUserID),
			RoomID:     string(s.roomID),
		})
	})
	s.absorb(err, "offer")
}

func (s *Session) applyRemoteOffer(o protocol.Offer) {
	if s.roomID == "" && o.RoomID != "" {
		s.roomID = domain.RoomID(o.RoomID)
	}
	renegotiate := s.state == StateConnected
	if renegotiate {
		s.remoteRestartAt = s.clock.Now()
	}
	err := s.neg.ApplyOffer(o.From, o.Offer, renegotiate, func(answer webrtc.SessionDescription) {
		s.send(protocol.Answer{To: o.From, Answer: answer, RoomID: string(s.roomID)})
		s.checkConnected()
	})
	s.absorb(err, "offer")
}

// checkConnected promotes Negotiating to Connected once both descriptions are
// applied and the transport reports connected.
func (s *Session) checkConnected() {
	if s.state != StateNegotiating || s.neg == nil || !s.neg.Ready() {
		return
	}
	if s.linkState != webrtc.PeerConnectionStateConnected {
		return
	}
	s.setState(StateConnected, "media flowing")
}

func (s *Session) onLinkState(st webrtc.PeerConnectionState) {
	s.linkState = st
	log.Debug().Str("module", "session").Str("link", st.String()).Str("state", s.state.String()).Msg("link state")
	switch st {
	case webrtc.PeerConnectionStateConnected:
		s.policy.Reset()
		s.checkConnected()
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		switch s.state {
		case StateNegotiating:
			if st == webrtc.PeerConnectionStateFailed {
				s.absorb(fmt.Errorf("%w: link failed before connecting", ErrNegotiation), "link")
				s.linkLost("negotiation failed")
			}
		case StateConnected:
			s.evaluateReconnect()
		}
	}
}

func (s *Session) evaluateReconnect() {
	d := s.policy.Observe(s.linkState, LinkStatus{
		Connected:    s.state == StateConnected,
		Ending:       s.state == StateEnding || s.state == StateInactive,
		Backgrounded: s.backgrounded,
	})
	log.Debug().Str("module", "session").Str("decision", d.String()).Int("attempts", s.policy.Attempts()).Msg("reconnect")
	switch d {
	case ReconnectRestart:
		s.scheduleRecheck()
		if s.partnerRestarting() {
			log.Debug().Str("module", "session").Str("partner", string(s.partner.TransportID)).Msg("partner restart answered, not offering")
			return
		}
		s.sendOffer(true)
	case ReconnectWait:
		s.scheduleRecheck()
	case ReconnectEscalate:
		s.absorb(fmt.Errorf("%w: ice restart budget spent", ErrConnectivity), "reconnect")
		s.emit(Event{Kind: EventDisconnected, Reason: "connectivity"})
	}
}

// partnerRestarting reports whether the partner sent a restart offer within
// the cooldown. Either side may restart; the second offer would only cross it.
func (s *Session) partnerRestarting() bool {
	return !s.remoteRestartAt.IsZero() && s.clock.Since(s.remoteRestartAt) < s.opts.RestartCooldown
}

// scheduleRecheck looks at the link again when the cooldown ends.
func (s *Session) scheduleRecheck() {
	if s.recheck != nil {
		return
	}
	gen, partner := s.gen, s.partner.TransportID
	s.recheck = s.clock.AfterFunc(s.policy.CooldownRemaining(), func() {
		s.postIfCurrent(gen, partner, func() {
			s.recheck = nil
			if s.state != StateConnected {
				return
			}
			if s.linkState == webrtc.PeerConnectionStateFailed || s.linkState == webrtc.PeerConnectionStateDisconnected {
				s.evaluateReconnect()
			}
		})
	})
}
