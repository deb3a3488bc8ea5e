package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadEnvelope  = errors.New("bad envelope")
)

// Envelope is the wire frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var factories = map[string]func() Message{
	EventMatchFound:    func() Message { return &MatchFound{} },
	EventOffer:         func() Message { return &Offer{} },
	EventAnswer:        func() Message { return &Answer{} },
	EventICECandidate:  func() Message { return &ICECandidate{} },
	EventCallIncoming:  func() Message { return &CallIncoming{} },
	EventCallAccepted:  func() Message { return &CallAccepted{} },
	EventCallDeclined:  func() Message { return &CallDeclined{} },
	EventCallBusy:      func() Message { return &CallBusy{} },
	EventCallTimeout:   func() Message { return &CallTimeout{} },
	EventCallEnded:     func() Message { return &CallEnded{} },
	EventCallCancelled: func() Message { return &CallCancelled{} },
	EventCamToggle:     func() Message { return &CamToggle{} },
	EventPiPState:      func() Message { return &PiPState{} },
	EventPeerStopped:   func() Message { return &PeerStopped{} },
	EventPeerLeft:      func() Message { return &PeerLeft{} },
	EventDisconnected:  func() Message { return &Disconnected{} },
	EventHangup:        func() Message { return &Hangup{} },
	EventSearch:        func() Message { return &Search{} },
	EventSkip:          func() Message { return &Skip{} },
	EventStop:          func() Message { return &Stop{} },
	EventCallInvite:    func() Message { return &CallInvite{} },
	EventCallAccept:    func() Message { return &CallAccept{} },
	EventCallDecline:   func() Message { return &CallDecline{} },
	EventCallCancel:    func() Message { return &CallCancel{} },
	EventCallEnd:       func() Message { return &CallEnd{} },
}

// Encode frames m for the wire.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Event(), err)
	}
	return json.Marshal(Envelope{Event: m.Event(), Data: data})
}

// Decode parses one wire frame. Unknown fields are ignored; unknown events
// return ErrUnknownEvent so callers can log and drop them.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrBadEnvelope)
	}
	mk, ok := factories[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	ptr := mk()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadEnvelope, env.Event, err)
		}
	}
	return deref(ptr), nil
}

// deref turns the decoded pointer back into the value type handlers switch on.
func deref(m Message) Message {
	switch v := m.(type) {
	case *MatchFound:
		return *v
	case *Offer:
		return *v
	case *Answer:
		return *v
	case *ICECandidate:
		return *v
	case *CallIncoming:
		return *v
	case *CallAccepted:
		return *v
	case *CallDeclined:
		return *v
	case *CallBusy:
		return *v
	case *CallTimeout:
		return *v
	case *CallEnded:
		return *v
	case *CallCancelled:
		return *v
	case *CamToggle:
		return *v
	case *PiPState:
		return *v
	case *PeerStopped:
		return *v
	case *PeerLeft:
		return *v
	case *Disconnected:
		return *v
	case *Hangup:
		return *v
	case *Search:
		return *v
	case *Skip:
		return *v
	case *Stop:
		return *v
	case *CallInvite:
		return *v
	case *CallAccept:
		return *v
	case *CallDecline:
		return *v
	case *CallCancel:
		return *v
	case *CallEnd:
		return *v
	}
	return m
}
