package session

import (
	"fmt"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Commands never block and never fail synchronously: they are queued on the
// loop and problems come back as error events.

// Start enters mode. Random acquires the camera and joins the queue; Direct
// only makes the session reachable for invites.
func (s *Session) Start(mode domain.Mode) { s.post(func() { s.start(mode) }) }

// Stop leaves the queue or the current pairing and returns to Idle.
func (s *Session) Stop() { s.post(s.stop) }

// Next skips the current partner (Random only).
func (s *Session) Next() { s.post(s.next) }

// End finishes the call, telling the partner.
func (s *Session) End() { s.post(func() { s.end(true) }) }

// Abort finishes the call without sending anything.
func (s *Session) Abort() { s.post(func() { s.end(false) }) }

// Invite calls the user with the given id (Direct).
func (s *Session) Invite(user domain.UserID) { s.post(func() { s.invite(user) }) }

// CancelInvite withdraws our outstanding invite.
func (s *Session) CancelInvite() { s.post(s.cancelInvite) }

func (s *Session) AcceptIncoming(id domain.CallID) { s.post(func() { s.acceptIncoming(id) }) }

func (s *Session) DeclineIncoming(id domain.CallID) { s.post(func() { s.declineIncoming(id) }) }

func (s *Session) ToggleMic() { s.post(s.toggleMic) }

func (s *Session) ToggleCam() { s.post(s.toggleCam) }

func (s *Session) EnterPiP() { s.post(func() { s.setPiP(true) }) }

func (s *Session) ExitPiP() { s.post(func() { s.setPiP(false) }) }

// SetBackgrounded tells the session the app lost or regained the foreground.
// ICE restarts are held while backgrounded.
func (s *Session) SetBackgrounded(b bool) { s.post(func() { s.setBackgrounded(b) }) }

func (s *Session) reject(cmd string, format string, args ...any) {
	s.absorb(fmt.Errorf("%w: %s: %s", ErrInvalidCommand, cmd, fmt.Sprintf(format, args...)), cmd)
}

// rearm lets a finished session take a new command.
func (s *Session) rearm() {
	if s.state == StateInactive {
		s.setState(StateIdle, "rearm")
	}
}

func (s *Session) start(mode domain.Mode) {
	s.rearm()
	if s.state != StateIdle || s.acquiring {
		s.reject("start", "busy in %s", s.state)
		return
	}
	s.mode = mode
	if mode == domain.ModeDirect {
		log.Info().Str("module", "session").Msg("reachable for direct calls")
		return
	}
	s.withLocalStream(func() {
		s.setState(StateSearching, "start")
		s.match.Requeue()
	})
}

func (s *Session) stop() {
	if s.mode == domain.ModeDirect {
		s.end(true)
		return
	}
	switch {
	case s.state.active():
		s.send(protocol.Stop{})
	case s.state == StateIdle && !s.acquiring:
		return
	}
	s.match.Cancel()
	if s.state.linked() {
		s.setState(StateEnding, "stop")
	}
	s.teardownLink("stop")
	s.releaseLocal()
	s.setState(StateIdle, "stop")
}

func (s *Session) next() {
	if s.mode != domain.ModeRandom {
		s.reject("next", "only in random mode")
		return
	}
	switch s.state {
	case StateNegotiating, StateConnected:
		s.send(protocol.Skip{To: string(s.partner.TransportID)})
		s.teardownLink("skip")
		s.setState(StateSearching, "skip")
		s.match.Requeue()
	case StateSearching:
		s.match.Requeue()
	default:
		s.reject("next", "nothing to skip in %s", s.state)
	}
}

func (s *Session) end(notify bool) {
	if !s.state.active() && !s.acquiring {
		return
	}
	if notify {
		switch {
		case s.outgoing != nil:
			s.send(protocol.CallCancel{To: string(s.outgoing.To), CallID: string(s.outgoing.CallID)})
		case s.mode == domain.ModeDirect && !s.partner.IsZero():
			s.send(protocol.CallEnd{To: string(s.partner.TransportID), CallID: string(s.callID)})
		case s.mode == domain.ModeRandom:
			s.send(protocol.Stop{})
		}
	}
	s.endCall("ended")
}

func (s *Session) invite(user domain.UserID) {
	if user == "" {
		s.reject("invite", "empty user id")
		return
	}
	s.rearm()
	if s.state != StateIdle || s.acquiring {
		s.reject("invite", "busy in %s", s.state)
		return
	}
	s.mode = domain.ModeDirect
	callID := domain.CallID(uuid.NewString())
	s.withLocalStream(func() {
		s.outgoing = &domain.OutgoingInvite{To: user, CallID: callID, SentAt: s.clock.Now()}
		s.callID = callID
		s.send(protocol.CallInvite{To: string(user), CallID: string(callID)})
		s.setState(StateSearching, "invite")

		gen := s.gen
		s.ringTimer = s.clock.AfterFunc(s.opts.InviteTimeout, func() {
			s.postIfCurrent(gen, "", func() {
				if s.outgoing == nil || s.outgoing.CallID != callID {
					return
				}
				s.send(protocol.CallCancel{To: string(user), CallID: string(callID)})
				s.endCall("no answer")
			})
		})
	})
}

func (s *Session) cancelInvite() {
	if s.outgoing == nil {
		s.reject("cancel", "no outgoing invite")
		return
	}
	s.send(protocol.CallCancel{To: string(s.outgoing.To), CallID: string(s.outgoing.CallID)})
	s.endCall("cancelled")
}

func (s *Session) clearOutgoing() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	s.outgoing = nil
}

func (s *Session) acceptIncoming(id domain.CallID) {
	p, ok := s.incoming[id]
	if !ok {
		s.reject("accept", "unknown call %q", id)
		return
	}
	s.rearm()
	if s.state != StateIdle || s.acquiring {
		s.reject("accept", "busy in %s", s.state)
		return
	}
	inv := p.invite
	s.dropInvite(id, "accepted")
	for other, rest := range s.incoming {
		s.send(protocol.CallBusy{To: string(rest.invite.From), CallID: string(other)})
		s.dropInvite(other, "busy")
	}

	s.mode = domain.ModeDirect
	s.bindPartner(domain.Partner{TransportID: inv.From, UserID: inv.FromUserID, Nick: inv.Nick}, "",
		ResolveRole(domain.ModeDirect, true, s.localID, string(inv.From)))
	s.callID = inv.CallID
	s.setState(StateNegotiating, "accepted")
	s.withLocalStream(func() {
		s.send(protocol.CallAccept{To: string(inv.From), CallID: string(inv.CallID)})
	})
}

func (s *Session) declineIncoming(id domain.CallID) {
	p, ok := s.incoming[id]
	if !ok {
		s.reject("decline", "unknown call %q", id)
		return
	}
	s.send(protocol.CallDecline{To: string(p.invite.From), CallID: string(id)})
	s.match.Suppress(string(p.invite.From))
	s.match.Suppress(string(p.invite.FromUserID))
	s.dropInvite(id, "declined")
}

func (s *Session) dropInvite(id domain.CallID, reason string) {
	p, ok := s.incoming[id]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(s.incoming, id)
	s.emit(Event{Kind: EventInviteEnded, CallID: id, Reason: reason})
}

func (s *Session) clearInvites(reason string) {
	for id := range s.incoming {
		s.dropInvite(id, reason)
	}
}

func (s *Session) toggleMic() {
	now := s.clock.Now()
	if !s.lastMicToggle.IsZero() && now.Sub(s.lastMicToggle) < s.opts.ToggleDebounce {
		log.Debug().Str("module", "session").Msg("mic toggle throttled")
		return
	}
	s.lastMicToggle = now
	s.micEnabled = !s.micEnabled
	s.applyTrack(core.TrackAudio, s.micEnabled)
	s.emit(Event{Kind: EventMicChanged, Enabled: s.micEnabled})
}

func (s *Session) toggleCam() {
	now := s.clock.Now()
	if !s.lastCamToggle.IsZero() && now.Sub(s.lastCamToggle) < s.opts.ToggleDebounce {
		log.Debug().Str("module", "session").Msg("cam toggle throttled")
		return
	}
	s.lastCamToggle = now
	s.camEnabled = !s.camEnabled
	s.applyTrack(core.TrackVideo, s.camEnabled)
	s.emit(Event{Kind: EventCamChanged, Enabled: s.camEnabled})
	s.relayCam()
}

func (s *Session) relayCam() {
	if !s.state.linked() {
		return
	}
	s.send(protocol.CamToggle{
		Enabled: s.camEnabled,
		From:    s.localID,
		To:      string(s.partner.TransportID),
		RoomID:  string(s.roomID),
	})
}

func (s *Session) setPiP(active bool) {
	if s.pipActive == active {
		return
	}
	s.pipActive = active
	s.emit(Event{Kind: EventPiPChanged, Enabled: active})
	if !active {
		// the OS may have paused tracks while we were in the small window
		s.applyTrack(core.TrackAudio, s.micEnabled)
		s.applyTrack(core.TrackVideo, s.camEnabled)
	}
	if !s.state.linked() {
		return
	}
	s.send(protocol.PiPState{
		InPiP:  active,
		From:   s.localID,
		To:     string(s.partner.TransportID),
		RoomID: string(s.roomID),
	})
	if !active {
		s.relayCam()
	}
}

func (s *Session) setBackgrounded(b bool) {
	if s.backgrounded == b {
		return
	}
	s.backgrounded = b
	log.Info().Str("module", "session").Bool("backgrounded", b).Msg("foreground changed")
	if !b && s.state == StateConnected {
		s.evaluateReconnect()
	}
}
