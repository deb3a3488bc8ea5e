package session

// State is the call session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateNegotiating
	StateConnected
	StateEnding
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateEnding:
		return "ending"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// linked reports whether a partner is bound in this state.
func (s State) linked() bool {
	return s == StateNegotiating || s == StateConnected
}

// active reports whether the session holds a call or a queue entry.
func (s State) active() bool {
	return s == StateSearching || s.linked()
}
