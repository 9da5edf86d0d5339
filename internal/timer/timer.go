// Package timer derives elapsed and remaining session time from a stored
// start timestamp. Values are always recomputed, never accumulated, so missed
// ticks and suspended processes cannot skew them.
package timer

import (
	"sync"
	"time"
)

// DefaultDuration is the length of one interview session.
const DefaultDuration = 45 * time.Minute

// Clock abstracts wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// Elapsed returns whole seconds since start, clamped to [0, total].
func Elapsed(start, now time.Time, total time.Duration) int {
	secs := int(now.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}
	if limit := int(total / time.Second); secs > limit {
		return limit
	}
	return secs
}

// Remaining returns max(0, total - floor((now-start)/1s)) in seconds.
func Remaining(start, now time.Time, total time.Duration) int {
	return int(total/time.Second) - Elapsed(start, now, total)
}

// Reconciler combines a locally recomputed timer with server pushes. A pushed
// value wins for display while the push channel is live; once the channel
// drops, the local value is used again. Expiry is latched.
type Reconciler struct {
	clock Clock
	total time.Duration

	mu         sync.Mutex
	start      time.Time
	pushed     int
	pushedAt   time.Time
	pushActive bool
	expired    bool
}

// NewReconciler builds a Reconciler for a session that began at start.
func NewReconciler(clock Clock, start time.Time, total time.Duration) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	if total <= 0 {
		total = DefaultDuration
	}
	return &Reconciler{clock: clock, start: start, total: total}
}

// Start returns the session start time.
func (r *Reconciler) Start() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start
}

// Total returns the configured session length.
func (r *Reconciler) Total() time.Duration { return r.total }

// Push records an authoritative remaining-seconds value from the server.
func (r *Reconciler) Push(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if remaining < 0 {
		remaining = 0
	}
	r.pushed = remaining
	r.pushedAt = r.clock.Now()
	r.pushActive = true
}

// PushChannelLost reverts display to the locally computed value.
func (r *Reconciler) PushChannelLost() {
	r.mu.Lock()
	r.pushActive = false
	r.mu.Unlock()
}

// Elapsed returns the locally computed elapsed seconds.
func (r *Reconciler) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Elapsed(r.start, r.clock.Now(), r.total)
}

// Remaining returns the displayed remaining seconds.
func (r *Reconciler) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remainingLocked()
}

func (r *Reconciler) remainingLocked() int {
	if r.expired {
		return 0
	}
	now := r.clock.Now()
	value := Remaining(r.start, now, r.total)
	if r.pushActive {
		aged := r.pushed - int(now.Sub(r.pushedAt)/time.Second)
		if aged < 0 {
			aged = 0
		}
		value = aged
	}
	if value == 0 {
		r.expired = true
	}
	return value
}

// Expired reports whether the session has run out of time. Once true it never
// becomes false again.
func (r *Reconciler) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.expired {
		r.remainingLocked()
	}
	return r.expired
}
