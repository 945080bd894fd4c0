package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/rhuss/runcode/pkg/debug"
)

// maxDedupEntries bounds the cache between sweeps.
const maxDedupEntries = 10000

// DedupKey hashes a session and code into a cache key. The NUL separator
// keeps ("ab", "c") and ("a", "bc") apart.
func DedupKey(sessionID, code string) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return hex.EncodeToString(h.Sum(nil))
}

// CodeHash returns the hex SHA-256 of code, stored with execution records.
func CodeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

type dedupEntry struct {
	outcome Outcome
	at      time.Time
}

// Dedup remembers recent outcomes per key for a time window, so a model
// that repeats the same tool call gets the earlier result instead of a
// second execution. Entries are kept in store order, which is also age
// order: expiry and the size cap both drop from the oldest end. Safe for
// concurrent use.
type Dedup struct {
	mu      sync.Mutex
	window  time.Duration
	entries *simplelru.LRU[string, dedupEntry]
	now     func() time.Time
}

// NewDedup creates a cache with the given window. A window <= 0 returns
// nil; all methods are no-ops on a nil *Dedup.
func NewDedup(window time.Duration) *Dedup {
	if window <= 0 {
		return nil
	}
	entries, err := simplelru.NewLRU[string, dedupEntry](maxDedupEntries, nil)
	if err != nil {
		panic(err) // maxDedupEntries is positive
	}
	return &Dedup{window: window, entries: entries, now: time.Now}
}

// Lookup returns the cached outcome for key and its age, if one was stored
// within the window. Lookups do not extend an entry's life.
func (d *Dedup) Lookup(key string) (Outcome, time.Duration, bool) {
	if d == nil {
		return Outcome{}, 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries.Peek(key)
	if !ok {
		return Outcome{}, 0, false
	}
	age := d.now().Sub(e.at)
	if age > d.window {
		d.entries.Remove(key)
		return Outcome{}, 0, false
	}
	return e.outcome, age, true
}

// Store records an outcome under key, replacing any earlier one. A full
// cache drops its oldest entry.
func (d *Dedup) Store(key string, o Outcome) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries.Add(key, dedupEntry{outcome: o, at: d.now()})
}

// Sweep drops expired entries and returns how many were removed.
func (d *Dedup) Sweep() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-d.window)
	removed := 0
	for {
		_, e, ok := d.entries.GetOldest()
		if !ok || !e.at.Before(cutoff) {
			return removed
		}
		d.entries.RemoveOldest()
		removed++
	}
}

// Len returns the number of cached entries, expired ones included.
func (d *Dedup) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Len()
}

// Run sweeps the cache every interval until ctx is done. A non-positive
// interval sweeps once per window.
func (d *Dedup) Run(ctx context.Context, interval time.Duration) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = d.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Sweep(); n > 0 {
				debug.Log("runner", "swept duplicate cache", "removed", n)
			}
		}
	}
}
