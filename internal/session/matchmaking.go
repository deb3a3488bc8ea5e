package session

import (
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

const suppressedPartners = 64

// Matchmaker decides when a Random-mode search request goes out.
//
// At most one search is outstanding until the server confirms a match, and
// searches are spaced by the debounce window: a requeue inside the window is
// deferred to its end rather than dropped, and further requeues fold into the
// deferred one. A search the transport could not deliver is retried once the
// window passes.
type Matchmaker struct {
	clock       clock.Clock
	debounce    time.Duration
	suppressFor time.Duration
	search      func() bool
	post        func(func())

	lastSearch  time.Time
	searched    bool
	outstanding bool
	deferred    *clock.Timer
	deferSeq    uint64
	suppressed  *lru.Cache[string, time.Time]
}

// NewMatchmaker returns a matchmaker that calls search on the session loop;
// search reports whether the request was handed to the transport. post must
// schedule a function there.
func NewMatchmaker(clk clock.Clock, debounce, suppressFor time.Duration, search func() bool, post func(func())) *Matchmaker {
	suppressed, _ := lru.New[string, time.Time](suppressedPartners)
	return &Matchmaker{
		clock:       clk,
		debounce:    debounce,
		suppressFor: suppressFor,
		search:      search,
		post:        post,
		suppressed:  suppressed,
	}
}

// Requeue asks for a new partner. It reports whether a search went out now.
func (m *Matchmaker) Requeue() bool {
	if m.outstanding || m.deferred != nil {
		return false
	}
	wait := m.remaining()
	if wait <= 0 {
		return m.fire()
	}
	seq := m.deferSeq
	m.deferred = m.clock.AfterFunc(wait, func() {
		m.post(func() {
			if seq != m.deferSeq {
				return
			}
			m.deferred = nil
			if !m.outstanding {
				m.fire()
			}
		})
	})
	return false
}

// Pending reports whether a search is outstanding or scheduled.
func (m *Matchmaker) Pending() bool { return m.outstanding || m.deferred != nil }

// Matched records the server's match confirmation.
func (m *Matchmaker) Matched() {
	m.outstanding = false
	m.cancelDeferred()
}

// Lost forgets the outstanding search, e.g. after the signaling socket
// dropped and took the server-side queue entry with it.
func (m *Matchmaker) Lost() {
	m.outstanding = false
}

// Cancel drops any outstanding or deferred search.
func (m *Matchmaker) Cancel() {
	m.outstanding = false
	m.cancelDeferred()
}

// Suppress ignores matches with id for the suppression window.
func (m *Matchmaker) Suppress(id string) {
	if id == "" {
		return
	}
	m.suppressed.Add(id, m.clock.Now())
}

func (m *Matchmaker) Suppressed(id string) bool {
	if id == "" {
		return false
	}
	at, ok := m.suppressed.Get(id)
	if !ok {
		return false
	}
	if m.clock.Since(at) >= m.suppressFor {
		m.suppressed.Remove(id)
		return false
	}
	return true
}

func (m *Matchmaker) fire() bool {
	m.lastSearch = m.clock.Now()
	m.searched = true
	if !m.search() {
		m.Requeue()
		return false
	}
	m.outstanding = true
	return true
}

func (m *Matchmaker) remaining() time.Duration {
	if !m.searched {
		return 0
	}
	return m.debounce - m.clock.Since(m.lastSearch)
}

func (m *Matchmaker) cancelDeferred() {
	m.deferSeq++
	if m.deferred != nil {
		m.deferred.Stop()
		m.deferred = nil
	}
}
