package session

import (
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const dedupeKeys = 256

// dedupeSet remembers in-flight match/offer keys for ttl so replays of the
// same delivery are handled once.
type dedupeSet struct {
	clock clock.Clock
	ttl   time.Duration
	keys  *lru.Cache[string, time.Time]
}

func newDedupeSet(clk clock.Clock, ttl time.Duration) *dedupeSet {
	keys, _ := lru.New[string, time.Time](dedupeKeys)
	return &dedupeSet{clock: clk, ttl: ttl, keys: keys}
}

// Seen reports whether key was marked within ttl.
func (d *dedupeSet) Seen(key string) bool {
	at, ok := d.keys.Get(key)
	if !ok {
		return false
	}
	if d.clock.Since(at) >= d.ttl {
		d.keys.Remove(key)
		return false
	}
	return true
}

// TryMark marks key and reports false if it was already marked.
func (d *dedupeSet) TryMark(key string) bool {
	if d.Seen(key) {
		return false
	}
	d.keys.Add(key, d.clock.Now())
	return true
}

func (d *dedupeSet) Forget(key string) {
	d.keys.Remove(key)
}

func matchKey(partner string) string { return "match:" + partner }

func offerKey(partner, sdp string) string {
	return "offer:" + partner + ":" + strconv.FormatUint(xxhash.Sum64String(sdp), 16)
}
