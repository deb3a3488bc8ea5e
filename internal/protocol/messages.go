// Package protocol defines the closed set of signaling messages exchanged
// with the matchmaking/relay server. Every message is a plain struct; the
// event name is carried by the Event method, never by a payload field.
package protocol

import "github.com/pion/webrtc/v4"

// Event names as they appear on the wire.
const (
	EventMatchFound   = "match_found"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"

	EventCallIncoming  = "call:incoming"
	EventCallAccepted  = "call:accepted"
	EventCallDeclined  = "call:declined"
	EventCallBusy      = "call:busy"
	EventCallTimeout   = "call:timeout"
	EventCallEnded     = "call:ended"
	EventCallCancelled = "call:cancelled"

	EventCamToggle = "cam-toggle"
	EventPiPState  = "pip:state"

	EventPeerStopped  = "peer:stopped"
	EventPeerLeft     = "peer:left"
	EventDisconnected = "disconnected"
	EventHangup       = "hangup"

	EventSearch      = "search"
	EventSkip        = "skip"
	EventStop        = "stop"
	EventCallInvite  = "call:invite"
	EventCallAccept  = "call:accept"
	EventCallDecline = "call:decline"
	EventCallCancel  = "call:cancel"
	EventCallEnd     = "call:end"
)

// Message is one signaling message. The set of implementations is closed:
// only the types in this file satisfy it.
type Message interface {
	Event() string
	sealed()
}

type MatchFound struct {
	PartnerID     string `json:"partnerId"`
	PartnerUserID string `json:"partnerUserId,omitempty"`
	RoomID        string `json:"roomId,omitempty"`
}

type Offer struct {
	From       string                    `json:"from,omitempty"`
	To         string                    `json:"to,omitempty"`
	Offer      webrtc.SessionDescription `json:"offer"`
	FromUserID string                    `json:"fromUserId,omitempty"`
	RoomID     string                    `json:"roomId,omitempty"`
}

type Answer struct {
	From   string                    `json:"from,omitempty"`
	To     string                    `json:"to,omitempty"`
	Answer webrtc.SessionDescription `json:"answer"`
	RoomID string                    `json:"roomId,omitempty"`
}

type ICECandidate struct {
	From      string                  `json:"from,omitempty"`
	To        string                  `json:"to,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	RoomID    string                  `json:"roomId,omitempty"`
}

type CallIncoming struct {
	From       string `json:"from"`
	FromNick   string `json:"fromNick,omitempty"`
	FromUserID string `json:"fromUserId,omitempty"`
	CallID     string `json:"callId"`
}

type CallAccepted struct {
	From       string `json:"from"`
	FromUserID string `json:"fromUserId,omitempty"`
	CallID     string `json:"callId"`
	RoomID     string `json:"roomId,omitempty"`
}

type CallDeclined struct {
	From   string `json:"from"`
	CallID string `json:"callId,omitempty"`
}

// CallBusy is received empty from the server and sent with To/CallID when
// the local side rejects an invite because it is already in a call.
type CallBusy struct {
	To     string `json:"to,omitempty"`
	CallID string `json:"callId,omitempty"`
}

type CallTimeout struct {
	CallID string `json:"callId,omitempty"`
}

type CallEnded struct {
	CallID string `json:"callId"`
}

type CallCancelled struct {
	From   string `json:"from,omitempty"`
	CallID string `json:"callId"`
}

type CamToggle struct {
	Enabled bool   `json:"enabled"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type PiPState struct {
	InPiP  bool   `json:"inPiP"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	RoomID string `json:"roomId,omitempty"`
}

type PeerStopped struct {
	From string `json:"from,omitempty"`
}

type PeerLeft struct {
	PeerID string `json:"peerId"`
	Reason string `json:"reason,omitempty"`
}

type Disconnected struct{}

type Hangup struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type Search struct{}

type Skip struct {
	To string `json:"to,omitempty"`
}

type Stop struct{}

type CallInvite struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type CallAccept struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type CallDecline struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type CallCancel struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type CallEnd struct {
	To     string `json:"to,omitempty"`
	CallID string `json:"callId"`
}

func (MatchFound) Event() string    { return EventMatchFound }
func (Offer) Event() string         { return EventOffer }
func (Answer) Event() string        { return EventAnswer }
func (ICECandidate) Event() string  { return EventICECandidate }
func (CallIncoming) Event() string  { return EventCallIncoming }
func (CallAccepted) Event() string  { return EventCallAccepted }
func (CallDeclined) Event() string  { return EventCallDeclined }
func (CallBusy) Event() string      { return EventCallBusy }
func (CallTimeout) Event() string   { return EventCallTimeout }
func (CallEnded) Event() string     { return EventCallEnded }
func (CallCancelled) Event() string { return EventCallCancelled }
func (CamToggle) Event() string     { return EventCamToggle }
func (PiPState) Event() string      { return EventPiPState }
func (PeerStopped) Event() string   { return EventPeerStopped }
func (PeerLeft) Event() string      { return EventPeerLeft }
func (Disconnected) Event() string  { return EventDisconnected }
func (Hangup) Event() string        { return EventHangup }
func (Search) Event() string        { return EventSearch }
func (Skip) Event() string          { return EventSkip }
func (Stop) Event() string          { return EventStop }
func (CallInvite) Event() string    { return EventCallInvite }
func (CallAccept) Event() string    { return EventCallAccept }
func (CallDecline) Event() string   { return EventCallDecline }
func (CallCancel) Event() string    { return EventCallCancel }
func (CallEnd) Event() string       { return EventCallEnd }

func (MatchFound) sealed()    {}
func (Offer) sealed()         {}
func (Answer) sealed()        {}
func (ICECandidate) sealed()  {}
func (CallIncoming) sealed()  {}
func (CallAccepted) sealed()  {}
func (CallDeclined) sealed()  {}
func (CallBusy) sealed()      {}
func (CallTimeout) sealed()   {}
func (CallEnded) sealed()     {}
func (CallCancelled) sealed() {}
func (CamToggle) sealed()     {}
func (PiPState) sealed()      {}
func (PeerStopped) sealed()   {}
func (PeerLeft) sealed()      {}
func (Disconnected) sealed()  {}
func (Hangup) sealed()        {}
func (Search) sealed()        {}
func (Skip) sealed()          {}
func (Stop) sealed()          {}
func (CallInvite) sealed()    {}
func (CallAccept) sealed()    {}
func (CallDecline) sealed()   {}
func (CallCancel) sealed()    {}
func (CallEnd) sealed()       {}
