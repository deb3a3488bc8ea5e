package orch

import (
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/session"
	"github.com/goccy/go-json"
)

// EventDTO is the JSON shape viewers receive for every session event.
type EventDTO struct {
	Type       string                     `json:"type"`
	Generation uint64                     `json:"generation"`
	From       string                     `json:"from,omitempty"`
	To         string                     `json:"to,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
	Enabled    *bool                      `json:"enabled,omitempty"`
	Partner    *domain.Partner            `json:"partner,omitempty"`
	StreamID   string                     `json:"streamId,omitempty"`
	Invite     *domain.IncomingCallInvite `json:"invite,omitempty"`
	CallID     domain.CallID              `json:"callId,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// StateDTO mirrors session.Snapshot without the live stream handles.
type StateDTO struct {
	Type       string                      `json:"type"`
	State      string                      `json:"state"`
	Mode       string                      `json:"mode"`
	Role       string                      `json:"role"`
	Partner    *domain.Partner             `json:"partner,omitempty"`
	RoomID     domain.RoomID               `json:"roomId,omitempty"`
	CallID     domain.CallID               `json:"callId,omitempty"`
	Generation uint64                      `json:"generation"`
	LocalID    string                      `json:"localStreamId,omitempty"`
	RemoteID   string                      `json:"remoteStreamId,omitempty"`
	Mic        bool                        `json:"mic"`
	Cam        bool                        `json:"cam"`
	RemoteCam  bool                        `json:"remoteCam"`
	PiP        bool                        `json:"pip"`
	RemotePiP  bool                        `json:"remotePip"`
	Background bool                        `json:"backgrounded"`
	Link       string                      `json:"link"`
	Incoming   []domain.IncomingCallInvite `json:"incoming"`
	Outgoing   *domain.OutgoingInvite      `json:"outgoing,omitempty"`
	At         time.Time                   `json:"at"`
}

func NewEventDTO(ev session.Event) EventDTO {
	dto := EventDTO{
		Type:       string(ev.Kind),
		Generation: ev.Generation,
		Reason:     ev.Reason,
		Invite:     ev.Invite,
		CallID:     ev.CallID,
	}
	switch ev.Kind {
	case session.EventStateChanged:
		dto.From, dto.To = ev.From.String(), ev.To.String()
	case session.EventMicChanged, session.EventCamChanged, session.EventRemoteCamChanged,
		session.EventPiPChanged, session.EventRemotePiPChanged:
		enabled := ev.Enabled
		dto.Enabled = &enabled
	case session.EventPartnerChanged:
		if !ev.Partner.IsZero() {
			p := ev.Partner
			dto.Partner = &p
		}
	case session.EventLocalStreamChanged:
		dto.StreamID = streamID(ev.Local)
	case session.EventRemoteStream:
		dto.StreamID = streamID(ev.Remote)
	}
	if ev.Err != nil {
		dto.Error = ev.Err.Error()
	}
	return dto
}

func NewStateDTO(s session.Snapshot) StateDTO {
	dto := StateDTO{
		Type:       "state",
		State:      s.State.String(),
		Mode:       s.Mode.String(),
		Role:       s.Role.String(),
		RoomID:     s.RoomID,
		CallID:     s.CallID,
		Generation: s.Generation,
		LocalID:    streamID(s.Local),
		RemoteID:   streamID(s.Remote),
		Mic:        s.MicEnabled,
		Cam:        s.CamEnabled,
		RemoteCam:  s.RemoteCamEnabled,
		PiP:        s.PiPActive,
		RemotePiP:  s.RemotePiPActive,
		Background: s.Backgrounded,
		Link:       s.Link.String(),
		Incoming:   s.Incoming,
		Outgoing:   s.Outgoing,
		At:         time.Now().UTC(),
	}
	if dto.Incoming == nil {
		dto.Incoming = []domain.IncomingCallInvite{}
	}
	if !s.Partner.IsZero() {
		p := s.Partner
		dto.Partner = &p
	}
	return dto
}

func EncodeEvent(ev session.Event) (core.Frame, error) {
	return json.Marshal(NewEventDTO(ev))
}

func EncodeSnapshot(s session.Snapshot) (core.Frame, error) {
	return json.Marshal(NewStateDTO(s))
}

type identified interface{ ID() string }

func streamID(s identified) string {
	if s == nil {
		return ""
	}
	return s.ID()
}
