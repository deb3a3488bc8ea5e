package domain

import "time"

type (
	RoomID string
	CallID string
)

// Mode selects how partners are found.
type Mode int

const (
	ModeRandom Mode = iota
	ModeDirect
)

func (m Mode) String() string {
	switch m {
	case ModeRandom:
		return "random"
	case ModeDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// ParseMode accepts the names produced by Mode.String.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "random":
		return ModeRandom, true
	case "direct":
		return ModeDirect, true
	default:
		return 0, false
	}
}

// Role is the negotiation role of the local side. The Caller sends the offer.
type Role int

const (
	RoleUnresolved Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unresolved"
	}
}

// IncomingCallInvite lives from call:incoming until accept, decline,
// timeout or cancel.
type IncomingCallInvite struct {
	From       TransportID `json:"from"`
	FromUserID UserID      `json:"fromUserId,omitempty"`
	Nick       string      `json:"nick,omitempty"`
	CallID     CallID      `json:"callId"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// OutgoingInvite is a Direct call the local user started.
type OutgoingInvite struct {
	To     UserID    `json:"to"`
	CallID CallID    `json:"callId"`
	SentAt time.Time `json:"sentAt"`
}
