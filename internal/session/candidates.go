package session

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/webrtc/v4"
)

const (
	maxQueuedCandidates = 64
	abandonedPartners   = 128
)

// CandidateQueue holds remote ICE candidates per partner until a remote
// description exists for that partner. Partners we walked away from are
// remembered so their late candidates are discarded instead of queued.
type CandidateQueue struct {
	limit     int
	pending   map[string][]webrtc.ICECandidateInit
	abandoned *lru.Cache[string, struct{}]
}

func NewCandidateQueue(limit int) *CandidateQueue {
	if limit <= 0 {
		limit = maxQueuedCandidates
	}
	abandoned, _ := lru.New[string, struct{}](abandonedPartners)
	return &CandidateQueue{
		limit:     limit,
		pending:   make(map[string][]webrtc.ICECandidateInit),
		abandoned: abandoned,
	}
}

// Push queues c for partner. It reports false when the candidate was
// discarded: abandoned partner or queue full.
func (q *CandidateQueue) Push(partner string, c webrtc.ICECandidateInit) bool {
	if partner == "" || q.abandoned.Contains(partner) {
		return false
	}
	cur := q.pending[partner]
	if len(cur) >= q.limit {
		return false
	}
	q.pending[partner] = append(cur, c)
	return true
}

// Drain removes and returns everything queued for partner, oldest first.
func (q *CandidateQueue) Drain(partner string) []webrtc.ICECandidateInit {
	out := q.pending[partner]
	delete(q.pending, partner)
	return out
}

// Abandon drops partner's queue and discards whatever it sends later.
func (q *CandidateQueue) Abandon(partner string) {
	if partner == "" {
		return
	}
	delete(q.pending, partner)
	q.abandoned.Add(partner, struct{}{})
}

// Revive forgets an earlier Abandon when the same partner is matched again.
func (q *CandidateQueue) Revive(partner string) {
	q.abandoned.Remove(partner)
}

func (q *CandidateQueue) Abandoned(partner string) bool {
	return q.abandoned.Contains(partner)
}

func (q *CandidateQueue) Len(partner string) int {
	return len(q.pending[partner])
}
