// Package ratelimit enforces the exchange's request quotas with two
// independent sliding windows: request weight per minute and raw calls per
// second. Both windows must admit a call. Counting is exact and serialized
// through a single mutex: the quotas are hard limits on the exchange side,
// and overshoot risks account suspension. A rejected call never blocks or
// queues; backpressure is returned to the caller as a Decision.
package ratelimit

import (
	"sync"
	"time"
)

// Default quotas for the spot API.
const (
	DefaultPerMinute = 1200
	DefaultPerSecond = 10
)

const (
	minuteSpan = time.Minute
	secondSpan = time.Second
)

// Window labels for rejection decisions.
const (
	WindowMinute = "minute"
	WindowSecond = "second"
)

// Decision is the outcome of an admission check. Window and RetryAfter are
// only set on rejection; RetryAfter reports when the earliest blocking entry
// leaves the rejecting window.
type Decision struct {
	Allowed    bool
	Window     string
	RetryAfter time.Duration
}

type entry struct {
	at     time.Time
	weight int
}

// window tracks weighted admissions over a trailing span. Entries are
// ordered by admission time; used is the weight sum of live entries.
type window struct {
	span    time.Duration
	quota   int
	entries []entry
	used    int
}

func (w *window) purge(now time.Time) {
	cutoff := now.Add(-w.span)
	idx := 0
	for idx < len(w.entries) && !w.entries[idx].at.After(cutoff) {
		w.used -= w.entries[idx].weight
		idx++
	}
	if idx > 0 {
		w.entries = append(w.entries[:0], w.entries[idx:]...)
	}
}

func (w *window) admits(weight int) bool {
	return w.used+weight <= w.quota
}

func (w *window) add(now time.Time, weight int) {
	w.entries = append(w.entries, entry{at: now, weight: weight})
	w.used += weight
}

// retryAfter reports how long until enough weight expires for an admission
// of the given weight to succeed. If the weight exceeds the quota outright
// it can never succeed; the full span is returned as a ceiling.
func (w *window) retryAfter(now time.Time, weight int) time.Duration {
	overshoot := w.used + weight - w.quota
	freed := 0
	for _, e := range w.entries {
		freed += e.weight
		if freed >= overshoot {
			d := e.at.Add(w.span).Sub(now)
			if d < 0 {
				return 0
			}
			return d
		}
	}
	return w.span
}

// Limiter is the process-wide gate shared by every tool call.
type Limiter struct {
	mu     sync.Mutex
	minute window
	second window
	clock  func() time.Time
}

// New returns a Limiter with the given quotas. Non-positive quotas fall
// back to the spot API defaults.
func New(perMinute, perSecond int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perSecond <= 0 {
		perSecond = DefaultPerSecond
	}
	return &Limiter{
		minute: window{span: minuteSpan, quota: perMinute},
		second: window{span: secondSpan, quota: perSecond},
		clock:  time.Now,
	}
}

// Allow admits a call of the given request weight, or rejects it without
// mutating admission state. The per-second window counts raw calls; the
// per-minute window counts weight. Weights below one count as one.
func (l *Limiter) Allow(weight int) Decision {
	if weight < 1 {
		weight = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.minute.purge(now)
	l.second.purge(now)

	if !l.second.admits(1) {
		return Decision{Window: WindowSecond, RetryAfter: l.second.retryAfter(now, 1)}
	}
	if !l.minute.admits(weight) {
		return Decision{Window: WindowMinute, RetryAfter: l.minute.retryAfter(now, weight)}
	}

	l.second.add(now, 1)
	l.minute.add(now, weight)
	return Decision{Allowed: true}
}

// AllowOne admits a call of weight one.
func (l *Limiter) AllowOne() Decision {
	return l.Allow(1)
}

// Usage reports the live weight in the minute window and the live call
// count in the second window.
func (l *Limiter) Usage() (minuteWeight, secondCalls int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	l.minute.purge(now)
	l.second.purge(now)
	return l.minute.used, l.second.used
}
