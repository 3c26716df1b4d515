package services

import (
	"sync"
	"time"
)

// Limiter enforces "at most N operations per subject per rolling window".
// It backs the manual and bulk refresh quotas; each quota gets its own
// Limiter instance so the two policies stay independent. State is held in
// memory behind a mutex, which is sufficient for single-instance
// deployments; a distributed store would slot in behind the same contract.

type limitEntry struct {
	count   int
	resetAt time.Time
}

// LimitStatus describes the current window for a subject
type LimitStatus struct {
	Allowed bool      `json:"allowed"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*limitEntry

	now func() time.Time // overridable for tests
}

func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		entries: make(map[string]*limitEntry),
		now:     time.Now,
	}
}

// Max returns the per-window operation limit
func (l *Limiter) Max() int {
	return l.max
}

// Check reports the subject's window state without mutating it
func (l *Limiter) Check(subject string) LimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(subject)
}

func (l *Limiter) statusLocked(subject string) LimitStatus {
	now := l.now()
	entry, ok := l.entries[subject]
	if !ok || !now.Before(entry.resetAt) {
		// No record or expired window. The boundary is exclusive: a call
		// arriving exactly at resetAt starts a fresh window.
		return LimitStatus{Allowed: l.max > 0, Count: 0, ResetAt: now.Add(l.window)}
	}
	return LimitStatus{Allowed: entry.count < l.max, Count: entry.count, ResetAt: entry.resetAt}
}

// Increment adds amount to the subject's counter, starting a new window if
// none is active. The window's resetAt is preserved on in-place updates.
func (l *Limiter) Increment(subject string, amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addLocked(subject, amount)
}

func (l *Limiter) addLocked(subject string, amount int) {
	now := l.now()
	entry, ok := l.entries[subject]
	if !ok || !now.Before(entry.resetAt) {
		l.entries[subject] = &limitEntry{count: amount, resetAt: now.Add(l.window)}
		return
	}
	entry.count += amount
}

// Reserve atomically admits n operations if the whole batch fits the
// remaining quota, incrementing the counter by n. Admission is all or
// nothing: if count+n would exceed the limit, nothing is consumed and the
// returned status carries the window's resetAt for the caller to report.
func (l *Limiter) Reserve(subject string, n int) (LimitStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.statusLocked(subject)
	if st.Count+n > l.max {
		st.Allowed = false
		return st, false
	}
	l.addLocked(subject, n)
	st.Count += n
	st.Allowed = st.Count < l.max
	return st, true
}

// Release returns units reserved for operations that were not actually
// performed (failed items of a bulk batch). A release after the window
// rolled over is a no-op.
func (l *Limiter) Release(subject string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[subject]
	if !ok || !now.Before(entry.resetAt) {
		return
	}
	entry.count -= n
	if entry.count < 0 {
		entry.count = 0
	}
}

// Prune drops entries whose window expired more than one window ago
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for subject, entry := range l.entries {
		if now.After(entry.resetAt.Add(l.window)) {
			delete(l.entries, subject)
		}
	}
}
