package session

import (
	"fmt"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (s *Session) handle(msg protocol.Message) {
	log.Debug().Str("module", "session").Str("event", msg.Event()).Str("state", s.state.String()).Msg("inbound")
	switch m := msg.(type) {
	case protocol.MatchFound:
		s.onMatchFound(m)
	case protocol.Offer:
		s.onOffer(m)
	case protocol.Answer:
		s.onAnswer(m)
	case protocol.ICECandidate:
		s.onCandidate(m)
	case protocol.CallIncoming:
		s.onCallIncoming(m)
	case protocol.CallAccepted:
		s.onCallAccepted(m)
	case protocol.CallDeclined:
		s.onOutgoingRefused("declined", m.CallID)
	case protocol.CallBusy:
		s.onOutgoingRefused("busy", m.CallID)
	case protocol.CallTimeout:
		s.onCallTimeout(m)
	case protocol.CallEnded:
		s.onCallEnded(m)
	case protocol.CallCancelled:
		s.onCallCancelled(m)
	case protocol.CamToggle:
		s.onCamToggle(m)
	case protocol.PiPState:
		s.onPiPState(m)
	case protocol.PeerStopped:
		s.onPartnerGone(m.From, "partner stopped")
	case protocol.PeerLeft:
		s.onPartnerGone(m.PeerID, "partner left")
	case protocol.Hangup:
		s.onPartnerGone(m.From, "hangup")
	case protocol.Disconnected:
		s.onSignalingLost()
	default:
		s.absorb(fmt.Errorf("%w: unexpected inbound %s", ErrProtocolViolation, msg.Event()), "inbound")
	}
}

func (s *Session) drop(what, format string, args ...any) {
	s.absorb(fmt.Errorf("%w: %s", ErrTransientSignaling, fmt.Sprintf(format, args...)), what)
}

func (s *Session) violation(what, format string, args ...any) {
	s.absorb(fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...)), what)
}

// suppressed reports whether a partner declined by the local user is still
// inside its suppression window.
func (s *Session) suppressed(transportID, userID string) bool {
	return s.match.Suppressed(transportID) || s.match.Suppressed(userID)
}

func (s *Session) onMatchFound(m protocol.MatchFound) {
	if m.PartnerID == "" {
		s.violation("match", "match without partner")
		return
	}
	if s.mode != domain.ModeRandom || s.state != StateSearching {
		s.drop("match", "match for %s in %s", m.PartnerID, s.state)
		return
	}
	if s.suppressed(m.PartnerID, m.PartnerUserID) {
		log.Info().Str("module", "session").Str("partner", m.PartnerID).Msg("match with declined partner ignored")
		s.rematch()
		return
	}
	if !s.seen.TryMark(matchKey(m.PartnerID)) {
		s.drop("match", "duplicate match with %s", m.PartnerID)
		s.rematch()
		return
	}
	s.match.Matched()
	partner := domain.Partner{TransportID: domain.TransportID(m.PartnerID), UserID: domain.UserID(m.PartnerUserID)}
	s.bindPartner(partner, domain.RoomID(m.RoomID), ResolveRole(domain.ModeRandom, false, s.localID, m.PartnerID))
	s.setState(StateNegotiating, "matched")
	s.openPeerConnection()
}

// rematch replaces a server-side pairing the session refused.
func (s *Session) rematch() {
	s.match.Matched()
	s.match.Requeue()
}

func (s *Session) onOffer(o protocol.Offer) {
	switch {
	case o.From == "":
		s.violation("offer", "offer without sender")
		return
	case s.state == StateSearching && s.mode == domain.ModeRandom:
		// the partner's offer overtook match_found
		if s.suppressed(o.From, o.FromUserID) || !s.seen.TryMark(matchKey(o.From)) {
			s.drop("offer", "offer from %s not matchable", o.From)
			return
		}
		s.match.Matched()
		partner := domain.Partner{TransportID: domain.TransportID(o.From), UserID: domain.UserID(o.FromUserID)}
		s.bindPartner(partner, domain.RoomID(o.RoomID), ResolveRole(domain.ModeRandom, false, s.localID, o.From))
		s.setState(StateNegotiating, "offered")
		s.stashed = &o
		s.openPeerConnection()
		return
	case s.state == StateSearching && s.outgoing != nil:
		// the invitee's offer overtook call:accepted
		if o.FromUserID != "" && o.FromUserID != string(s.outgoing.To) {
			s.violation("offer", "offer from user %q while inviting %q", o.FromUserID, s.outgoing.To)
			return
		}
		s.stashed = &o
		return
	case !s.state.linked():
		s.drop("offer", "offer in %s", s.state)
		return
	case o.From != string(s.partner.TransportID):
		s.drop("offer", "offer from %s, partner is %s", o.From, s.partner.TransportID)
		return
	case s.neg == nil:
		s.stashed = &o
		return
	}
	s.applyRemoteOffer(o)
}

func (s *Session) onAnswer(a protocol.Answer) {
	if !s.state.linked() || s.neg == nil {
		s.drop("answer", "answer in %s", s.state)
		return
	}
	err := s.neg.ApplyAnswer(a.From, a.Answer, func() {
		s.checkConnected()
	})
	s.absorb(err, "answer")
}

func (s *Session) onCandidate(c protocol.ICECandidate) {
	if c.From == "" {
		s.violation("candidate", "candidate without sender")
		return
	}
	if s.neg != nil {
		s.absorb(s.neg.AddCandidate(c.From, c.Candidate), "candidate")
		return
	}
	if !s.queue.Push(c.From, c.Candidate) {
		s.drop("candidate", "candidate from %s discarded", c.From)
	}
}

func (s *Session) onCallIncoming(m protocol.CallIncoming) {
	if m.From == "" || m.CallID == "" {
		s.violation("incoming", "invite without sender or call id")
		return
	}
	id := domain.CallID(m.CallID)
	if _, dup := s.incoming[id]; dup {
		s.drop("incoming", "duplicate invite %s", id)
		return
	}
	if s.suppressed(m.From, m.FromUserID) {
		log.Info().Str("module", "session").Str("from", m.From).Msg("invite from declined caller ignored")
		return
	}
	if (s.state != StateIdle && s.state != StateInactive) || s.acquiring {
		s.send(protocol.CallBusy{To: m.From, CallID: m.CallID})
		log.Info().Str("module", "session").Str("from", m.From).Str("state", s.state.String()).Msg("invite refused, busy")
		return
	}

	inv := domain.IncomingCallInvite{
		From:       domain.TransportID(m.From),
		FromUserID: domain.UserID(m.FromUserID),
		Nick:       domain.SanitizeNick(m.FromNick),
		CallID:     id,
		ReceivedAt: s.clock.Now(),
	}
	p := &pendingInvite{invite: inv}
	p.timer = s.clock.AfterFunc(s.opts.InviteTimeout, func() {
		s.post(func() {
			if cur, ok := s.incoming[id]; ok && cur == p {
				s.dropInvite(id, "timeout")
			}
		})
	})
	s.incoming[id] = p
	log.Info().Str("module", "session").Str("from", m.From).Str("call", m.CallID).Msg("incoming call")
	s.emit(Event{Kind: EventIncomingCall, Invite: &inv})
}

func (s *Session) onCallAccepted(m protocol.CallAccepted) {
	switch {
	case s.mode != domain.ModeDirect:
		s.drop("accepted", "call accepted outside direct mode")

	case s.state == StateNegotiating && s.role == domain.RoleCaller:
		// we accepted; the server confirms the room
		if m.CallID != string(s.callID) || m.From != string(s.partner.TransportID) {
			s.violation("accepted", "accepted %s from %s, expected %s from %s", m.CallID, m.From, s.callID, s.partner.TransportID)
			return
		}
		if s.local == nil {
			s.violation("accepted", "accepted before our accept was sent")
			return
		}
		if m.RoomID != "" {
			s.roomID = domain.RoomID(m.RoomID)
		}
		s.openPeerConnection()

	case s.state == StateSearching && s.outgoing != nil:
		// our invite was accepted
		out := *s.outgoing
		if m.CallID != string(out.CallID) || m.From == "" {
			s.violation("accepted", "accepted %s, invited %s", m.CallID, out.CallID)
			return
		}
		if m.FromUserID != "" && m.FromUserID != string(out.To) {
			s.violation("accepted", "accepted by %q, invited %q", m.FromUserID, out.To)
			return
		}
		stashed := s.stashed
		s.clearOutgoing()
		partner := domain.Partner{TransportID: domain.TransportID(m.From), UserID: out.To}
		s.bindPartner(partner, domain.RoomID(m.RoomID), ResolveRole(domain.ModeDirect, false, s.localID, m.From))
		s.callID = out.CallID
		if stashed != nil && stashed.From == m.From {
			s.stashed = stashed
		} else {
			s.stashed = nil
		}
		s.setState(StateNegotiating, "accepted")
		s.openPeerConnection()

	default:
		s.drop("accepted", "call accepted in %s", s.state)
	}
}

// onOutgoingRefused ends our ringing invite.
func (s *Session) onOutgoingRefused(reason, callID string) {
	if s.outgoing == nil || s.state != StateSearching {
		s.drop(reason, "no outgoing invite")
		return
	}
	if callID != "" && callID != string(s.outgoing.CallID) {
		s.drop(reason, "%s for %s, ringing %s", reason, callID, s.outgoing.CallID)
		return
	}
	s.endCall(reason)
}

func (s *Session) onCallTimeout(m protocol.CallTimeout) {
	if m.CallID != "" {
		if _, ok := s.incoming[domain.CallID(m.CallID)]; ok {
			s.dropInvite(domain.CallID(m.CallID), "timeout")
			return
		}
	}
	s.onOutgoingRefused("timeout", m.CallID)
}

func (s *Session) onCallEnded(m protocol.CallEnded) {
	id := domain.CallID(m.CallID)
	if _, ok := s.incoming[id]; ok {
		s.dropInvite(id, "ended")
		return
	}
	if s.mode != domain.ModeDirect || !s.state.active() || (id != "" && id != s.callID) {
		s.drop("ended", "call %s is not current", id)
		return
	}
	s.endCall("partner ended")
}

func (s *Session) onCallCancelled(m protocol.CallCancelled) {
	id := domain.CallID(m.CallID)
	p, ok := s.incoming[id]
	if !ok {
		s.drop("cancelled", "no invite %s", id)
		return
	}
	if m.From != "" && m.From != string(p.invite.From) {
		s.violation("cancelled", "invite %s cancelled by %s", id, m.From)
		return
	}
	s.dropInvite(id, "cancelled")
}

func (s *Session) fromPartner(from string) bool {
	if !s.state.linked() {
		return false
	}
	return from == "" || from == string(s.partner.TransportID)
}

func (s *Session) onCamToggle(m protocol.CamToggle) {
	if !s.fromPartner(m.From) {
		s.drop("cam", "cam toggle from %s", m.From)
		return
	}
	s.remoteCamEnabled = m.Enabled
	s.emit(Event{Kind: EventRemoteCamChanged, Enabled: m.Enabled})
	if m.Enabled && s.pc != nil {
		if err := s.pc.RequestKeyframe(); err != nil {
			log.Debug().Str("module", "session").Err(err).Msg("keyframe request failed")
		}
	}
}

func (s *Session) onPiPState(m protocol.PiPState) {
	if !s.fromPartner(m.From) {
		s.drop("pip", "pip state from %s", m.From)
		return
	}
	s.remotePipActive = m.InPiP
	s.emit(Event{Kind: EventRemotePiPChanged, Enabled: m.InPiP})
}

// onPartnerGone handles peer:stopped, peer:left, hangup and disconnected.
// Notices naming someone other than the current partner are stale.
// onSignalingLost handles the socket drop. The server forgets our queue entry
// along with the socket, so a pending search is issued again.
func (s *Session) onSignalingLost() {
	if s.state == StateSearching && s.mode == domain.ModeRandom {
		s.match.Lost()
		s.match.Requeue()
		return
	}
	s.onPartnerGone("", "disconnected")
}

func (s *Session) onPartnerGone(from, reason string) {
	if !s.state.linked() {
		s.drop("gone", "%s in %s", reason, s.state)
		return
	}
	if from != "" && from != string(s.partner.TransportID) {
		s.drop("gone", "%s for %s, partner is %s", reason, from, s.partner.TransportID)
		return
	}
	s.linkLost(reason)
}
