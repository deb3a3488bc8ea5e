package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Options configures a Session. Zero durations take the defaults below.
type Options struct {
	Transport   core.SignalingTransport
	Media       core.MediaEngine
	Clock       clock.Clock
	LocalUserID domain.UserID

	NextDebounce       time.Duration
	ToggleDebounce     time.Duration
	DeclineSuppression time.Duration
	RestartCooldown    time.Duration
	RestartBudget      int
	InviteTimeout      time.Duration
	DedupeTTL          time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.NextDebounce <= 0 {
		o.NextDebounce = 2 * time.Second
	}
	if o.ToggleDebounce <= 0 {
		o.ToggleDebounce = 500 * time.Millisecond
	}
	if o.DeclineSuppression <= 0 {
		o.DeclineSuppression = 12 * time.Second
	}
	if o.RestartCooldown <= 0 {
		o.RestartCooldown = 10 * time.Second
	}
	if o.RestartBudget <= 0 {
		o.RestartBudget = 3
	}
	if o.InviteTimeout <= 0 {
		o.InviteTimeout = 30 * time.Second
	}
	if o.DedupeTTL <= 0 {
		o.DedupeTTL = 10 * time.Second
	}
	return o
}

// Snapshot is a read-only copy of the session, safe from any goroutine.
type Snapshot struct {
	State      State
	Mode       domain.Mode
	Role       domain.Role
	Partner    domain.Partner
	RoomID     domain.RoomID
	CallID     domain.CallID
	Generation uint64

	Local  core.LocalStream
	Remote core.RemoteStream

	MicEnabled       bool
	CamEnabled       bool
	RemoteCamEnabled bool
	PiPActive        bool
	RemotePiPActive  bool
	Backgrounded     bool
	Link             webrtc.PeerConnectionState

	Incoming []domain.IncomingCallInvite
	Outgoing *domain.OutgoingInvite
}

type pendingInvite struct {
	invite domain.IncomingCallInvite
	timer  *clock.Timer
}

// Session is one user's call: matchmaking or invites, a single peer
// connection at a time, media toggles and reconnection.
//
// Every field below the loop marker is owned by the task loop. Commands,
// inbound messages, timers and completed collaborator calls are all funneled
// into it, so handlers never interleave.
type Session struct {
	opts      Options
	clock     clock.Clock
	transport core.SignalingTransport
	media     core.MediaEngine
	localID   string

	ctx         context.Context
	cancel      context.CancelFunc
	tasks       chan func()
	stopped     chan struct{}
	inbound     <-chan protocol.Message
	unsubscribe func()
	closeOnce   sync.Once

	events *hub
	snap   atomic.Pointer[Snapshot]

	// loop
	state   State
	mode    domain.Mode
	role    domain.Role
	partner domain.Partner
	roomID  domain.RoomID
	callID  domain.CallID
	gen     uint64

	local      core.LocalStream
	remote     core.RemoteStream
	pc         core.PeerConnection
	neg        *NegotiationEngine
	linkState  webrtc.PeerConnectionState
	acquiring  bool
	creatingPC bool
	stashed    *protocol.Offer

	micEnabled       bool
	camEnabled       bool
	remoteCamEnabled bool
	pipActive        bool
	remotePipActive  bool
	backgrounded     bool
	lastMicToggle    time.Time
	lastCamToggle    time.Time

	incoming  map[domain.CallID]*pendingInvite
	outgoing  *domain.OutgoingInvite
	ringTimer *clock.Timer
	recheck   *clock.Timer
	// last renegotiation offer from the partner while connected
	remoteRestartAt time.Time

	queue  *CandidateQueue
	seen   *dedupeSet
	match  *Matchmaker
	policy *ReconnectionPolicy
}

// New starts a session bound to opts.Transport. It runs until Close or until
// ctx is cancelled.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Transport == nil || opts.Media == nil {
		return nil, errors.New("session: transport and media are required")
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		opts:             opts,
		clock:            opts.Clock,
		transport:        opts.Transport,
		media:            opts.Media,
		localID:          opts.Transport.LocalID(),
		ctx:              ctx,
		cancel:           cancel,
		tasks:            make(chan func(), 64),
		stopped:          make(chan struct{}),
		events:           newHub(),
		state:            StateIdle,
		micEnabled:       true,
		camEnabled:       true,
		remoteCamEnabled: true,
		incoming:         make(map[domain.CallID]*pendingInvite),
		queue:            NewCandidateQueue(0),
		seen:             newDedupeSet(opts.Clock, opts.DedupeTTL),
		policy:           NewReconnectionPolicy(opts.Clock, opts.RestartCooldown, opts.RestartBudget),
	}
	s.match = NewMatchmaker(opts.Clock, opts.NextDebounce, opts.DeclineSuppression, s.sendSearch, s.post)
	s.inbound, s.unsubscribe = opts.Transport.Subscribe()
	s.publish()

	go s.run()
	log.Info().Str("module", "session").Str("local", s.localID).Msg("session started")
	return s, nil
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.tasks:
			fn()
		case msg, ok := <-s.inbound:
			if !ok {
				s.inbound = nil
				continue
			}
			s.handle(msg)
		}
		s.publish()
	}
}

// post schedules fn on the loop. It is safe from any goroutine and drops fn
// once the session is closed.
func (s *Session) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.ctx.Done():
	}
}

// postIfCurrent is post guarded by the link identity captured at schedule time.
func (s *Session) postIfCurrent(gen uint64, partner domain.TransportID, fn func()) {
	s.post(func() {
		if !s.current(gen, partner) {
			log.Debug().Str("module", "session").Uint64("gen", gen).Str("partner", string(partner)).Msg("stale callback dropped")
			return
		}
		fn()
	})
}

func (s *Session) current(gen uint64, partner domain.TransportID) bool {
	return s.gen == gen && s.partner.TransportID == partner
}

// async runs work off the loop. then runs on the loop only if the link is
// still the one that scheduled it; otherwise stale (if set) runs instead so
// whatever work produced can be released.
func (s *Session) async(work func(ctx context.Context) error, then func(error), stale func()) {
	gen, partner := s.gen, s.partner.TransportID
	go func() {
		err := work(s.ctx)
		s.post(func() {
			if !s.current(gen, partner) {
				log.Debug().Str("module", "session").Uint64("gen", gen).Str("partner", string(partner)).Msg("stale result dropped")
				if stale != nil {
					stale()
				}
				return
			}
			then(err)
		})
	}()
}

func (s *Session) runner() runner {
	return func(work func(ctx context.Context) error, then func(error)) {
		s.async(work, then, nil)
	}
}

// Subscribe returns session events until cancel is called or the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Snapshot returns the state as of the last processed task. Picture-in-picture
// surfaces read it without going through the loop.
func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

func (s *Session) publish() {
	snap := &Snapshot{
		State:            s.state,
		Mode:             s.mode,
		Role:             s.role,
		Partner:          s.partner,
		RoomID:           s.roomID,
		CallID:           s.callID,
		Generation:       s.gen,
		Local:            s.local,
		Remote:           s.remote,
		MicEnabled:       s.micEnabled,
		CamEnabled:       s.camEnabled,
		RemoteCamEnabled: s.remoteCamEnabled,
		PiPActive:        s.pipActive,
		RemotePiPActive:  s.remotePipActive,
		Backgrounded:     s.backgrounded,
		Link:             s.linkState,
	}
	for _, p := range s.incoming {
		snap.Incoming = append(snap.Incoming, p.invite)
	}
	if s.outgoing != nil {
		out := *s.outgoing
		snap.Outgoing = &out
	}
	s.snap.Store(snap)
}

// Close ends any call without notifying the partner and stops the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		done := make(chan struct{})
		s.post(func() {
			s.shutdown()
			close(done)
		})
		select {
		case <-done:
		case <-s.stopped:
		}
		s.cancel()
		<-s.stopped
		s.unsubscribe()
		s.events.close()
		log.Info().Str("module", "session").Str("local", s.localID).Msg("session closed")
	})
}

func (s *Session) shutdown() {
	s.match.Cancel()
	s.clearInvites("closed")
	s.teardownLink("closed")
	s.releaseLocal()
	s.setState(StateInactive, "closed")
}

func (s *Session) emit(ev Event) {
	ev.Generation = s.gen
	s.events.emit(ev)
}

func (s *Session) setState(to State, reason string) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to
	log.Info().Str("module", "session").Str("from", from.String()).Str("to", to.String()).
		Str("reason", reason).Uint64("gen", s.gen).Msg("state changed")
	s.emit(Event{Kind: EventStateChanged, From: from, To: to, Reason: reason})
}

// absorb logs err and surfaces it when collaborators need to know.
func (s *Session) absorb(err error, what string) {
	if err == nil {
		return
	}
	log.WithLevel(levelFor(err)).Str("module", "session").Str("what", what).
		Str("state", s.state.String()).Str("partner", string(s.partner.TransportID)).Err(err).Msg("handled")
	if surfaced(err) {
		s.emit(Event{Kind: EventError, Err: err})
	}
}

func (s *Session) send(m protocol.Message) {
	if err := s.transport.Send(m); err != nil {
		log.Warn().Str("module", "session").Str("event", m.Event()).Err(err).Msg("send failed")
	}
}

func (s *Session) sendSearch() bool {
	if err := s.transport.Send(protocol.Search{}); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("search not sent, will retry")
		return false
	}
	return true
}
