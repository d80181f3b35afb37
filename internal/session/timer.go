package session

import (
	"errors"
	"sync"
	"time"
)

// TimerConfig fixes the session lifetime shape: total duration, warning
// lead time before hard expiry, and the minimum interval between accepted
// activity resets.
type TimerConfig struct {
	TTL              time.Duration
	WarningLead      time.Duration
	ActivityThrottle time.Duration
}

// Validate enforces 0 < throttle < warning lead < TTL.
func (c TimerConfig) Validate() error {
	if c.ActivityThrottle <= 0 {
		return errors.New("session: activity throttle must be positive")
	}
	if c.WarningLead <= c.ActivityThrottle {
		return errors.New("session: warning lead must exceed activity throttle")
	}
	if c.TTL <= c.WarningLead {
		return errors.New("session: ttl must exceed warning lead")
	}
	return nil
}

type timerState uint8

const (
	timerIdle timerState = iota
	timerActive
	timerWarning
	timerExpired
)

// Timer runs the session countdown: a single pair of scheduled callbacks
// (warning, expiry) that reset on accepted activity. Every reschedule
// clears the previous pair first, so at most one pair is ever outstanding.
//
// Callbacks fire on timer goroutines and are invoked outside the Timer
// lock; they must not assume the state that triggered them still holds.
type Timer struct {
	mu  sync.Mutex
	cfg TimerConfig

	state        timerState
	generation   uint64
	warnTimer    *time.Timer
	expireTimer  *time.Timer
	lastActivity time.Time
	expiresAt    time.Time

	onWarning func()
	onExpire  func()
	now       func() time.Time
}

// NewTimer builds an idle timer. onWarning and onExpire may be nil.
func NewTimer(cfg TimerConfig, onWarning, onExpire func()) (*Timer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Timer{cfg: cfg, onWarning: onWarning, onExpire: onExpire, now: time.Now}, nil
}

// Start transitions to Active and schedules a fresh timer pair. A fresh
// start is also how a new session replaces an expired one.
func (t *Timer) Start() {
	t.mu.Lock()
	t.rescheduleLocked()
	t.mu.Unlock()
}

// Touch records user activity. Signals inside the throttle window are
// dropped; an accepted signal reschedules the pair from now, clearing a
// pending warning. Touch outside an active session is a no-op.
func (t *Timer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != timerActive && t.state != timerWarning {
		return
	}
	if t.now().Sub(t.lastActivity) < t.cfg.ActivityThrottle {
		return
	}
	t.rescheduleLocked()
}

// Extend reschedules unconditionally from now, clearing a pending warning.
// Extending an idle or expired timer is a no-op, never an error.
func (t *Timer) Extend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != timerActive && t.state != timerWarning {
		return
	}
	t.rescheduleLocked()
}

// Stop cancels the outstanding pair and returns to Idle.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.clearLocked()
	t.state = timerIdle
	t.mu.Unlock()
}

// Warning reports whether the warning callback has fired for the current
// pair.
func (t *Timer) Warning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == timerWarning
}

// Active reports whether a session countdown is running (Active or
// Warning).
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == timerActive || t.state == timerWarning
}

// ExpiresAt returns the current hard-expiry deadline, zero when idle.
func (t *Timer) ExpiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == timerActive || t.state == timerWarning {
		return t.expiresAt
	}
	return time.Time{}
}

// rescheduleLocked clears any outstanding pair and schedules a new one
// from now. Caller holds t.mu.
func (t *Timer) rescheduleLocked() {
	t.clearLocked()
	t.generation++
	gen := t.generation
	now := t.now()
	t.state = timerActive
	t.lastActivity = now
	t.expiresAt = now.Add(t.cfg.TTL)
	t.warnTimer = time.AfterFunc(t.cfg.TTL-t.cfg.WarningLead, func() { t.fireWarning(gen) })
	t.expireTimer = time.AfterFunc(t.cfg.TTL, func() { t.fireExpiry(gen) })
}

// clearLocked cancels both pending timers. Caller holds t.mu.
func (t *Timer) clearLocked() {
	if t.warnTimer != nil {
		t.warnTimer.Stop()
		t.warnTimer = nil
	}
	if t.expireTimer != nil {
		t.expireTimer.Stop()
		t.expireTimer = nil
	}
}

func (t *Timer) fireWarning(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.state != timerActive {
		t.mu.Unlock()
		return
	}
	t.state = timerWarning
	cb := t.onWarning
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (t *Timer) fireExpiry(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || (t.state != timerActive && t.state != timerWarning) {
		t.mu.Unlock()
		return
	}
	t.state = timerExpired
	t.clearLocked()
	cb := t.onExpire
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}
