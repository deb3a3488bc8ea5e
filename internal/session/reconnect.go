package session

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
)

// ReconnectDecision is what the session should do about a link state change.
type ReconnectDecision int

const (
	ReconnectIgnore ReconnectDecision = iota
	// ReconnectRestart: run an ICE restart now.
	ReconnectRestart
	// ReconnectWait: inside the cooldown, look again when it ends.
	ReconnectWait
	// ReconnectEscalate: the budget is spent, tell the user.
	ReconnectEscalate
)

func (d ReconnectDecision) String() string {
	switch d {
	case ReconnectRestart:
		return "restart"
	case ReconnectWait:
		return "wait"
	case ReconnectEscalate:
		return "escalate"
	default:
		return "ignore"
	}
}

// LinkStatus is the session context a decision depends on.
type LinkStatus struct {
	Connected    bool
	Ending       bool
	Backgrounded bool
}

// ReconnectionPolicy rate-limits ICE restarts: at most one per cooldown and
// at most budget in a row before escalating. Both roles count attempts so
// they escalate together.
type ReconnectionPolicy struct {
	clock    clock.Clock
	cooldown time.Duration
	budget   int

	attempts    int
	lastRestart time.Time
	escalated   bool
}

func NewReconnectionPolicy(clk clock.Clock, cooldown time.Duration, budget int) *ReconnectionPolicy {
	return &ReconnectionPolicy{clock: clk, cooldown: cooldown, budget: budget}
}

// Observe decides what to do about state.
func (p *ReconnectionPolicy) Observe(state webrtc.PeerConnectionState, st LinkStatus) ReconnectDecision {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.Reset()
		return ReconnectIgnore
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
	default:
		return ReconnectIgnore
	}
	if st.Ending || !st.Connected || st.Backgrounded || p.escalated {
		return ReconnectIgnore
	}
	if p.CooldownRemaining() > 0 {
		return ReconnectWait
	}
	if p.attempts >= p.budget {
		p.escalated = true
		return ReconnectEscalate
	}
	p.attempts++
	p.lastRestart = p.clock.Now()
	return ReconnectRestart
}

// CooldownRemaining is how long until another restart is allowed.
func (p *ReconnectionPolicy) CooldownRemaining() time.Duration {
	if p.attempts == 0 {
		return 0
	}
	left := p.cooldown - p.clock.Since(p.lastRestart)
	if left < 0 {
		return 0
	}
	return left
}

func (p *ReconnectionPolicy) Attempts() int { return p.attempts }

// Reset forgets past attempts; called when the link recovers or is replaced.
func (p *ReconnectionPolicy) Reset() {
	p.attempts = 0
	p.lastRestart = time.Time{}
	p.escalated = false
}
