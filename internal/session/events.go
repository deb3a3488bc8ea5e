package session

import (
	"sync"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
)

// EventKind names what changed.
type EventKind string

const (
	EventStateChanged       EventKind = "stateChanged"
	EventLocalStreamChanged EventKind = "localStreamChanged"
	EventRemoteStream       EventKind = "remoteStreamChanged"
	EventPartnerChanged     EventKind = "partnerChanged"
	EventMicChanged         EventKind = "micChanged"
	EventCamChanged         EventKind = "camChanged"
	EventRemoteCamChanged   EventKind = "remoteCamChanged"
	EventPiPChanged         EventKind = "pipChanged"
	EventRemotePiPChanged   EventKind = "remotePipChanged"
	EventIncomingCall       EventKind = "incomingCall"
	EventInviteEnded        EventKind = "inviteEnded"
	EventDisconnected       EventKind = "disconnected"
	EventError              EventKind = "error"
)

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind
	Generation uint64

	From, To State
	Reason   string

	Enabled bool
	Partner domain.Partner
	Local   core.LocalStream
	Remote  core.RemoteStream
	Invite  *domain.IncomingCallInvite
	CallID  domain.CallID
	Err     error
}

const subscriberBuffer = 64

// hub fans events out to subscribers without blocking the session loop.
// A subscriber that falls behind loses events, never the loop.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("module", "session").Int("subscriber", id).Str("event", string(ev.Kind)).Msg("subscriber slow, event dropped")
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
