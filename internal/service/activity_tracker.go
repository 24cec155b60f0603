package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/civicportal/session-core/internal/logger"
	"github.com/civicportal/session-core/internal/models"
)

// ActivityTracker watches user activity and fires a warning callback
// WarningLeadTime before the inactivity timeout and an expiry callback at it.
//
// Every RecordActivity re-arms both timers with a new generation. A timer
// that fires with a stale generation does nothing, so a superseded timer can
// never end the session.
type ActivityTracker struct {
	clock  clockwork.Clock
	source ActivitySource
	log    zerolog.Logger

	mu           sync.Mutex
	tracking     bool
	expired      bool
	generation   uint64
	sessionStart time.Time
	lastActivity time.Time
	warningTimer clockwork.Timer
	expiryTimer  clockwork.Timer
	onExpiry     func()
	onWarning    func()
	unsubscribe  func()
}

func NewActivityTracker(clock clockwork.Clock, source ActivitySource) *ActivityTracker {
	return &ActivityTracker{
		clock:  clock,
		source: source,
		log:    logger.Component("activity_tracker"),
	}
}

// StartTracking registers the callbacks and arms the timers from now.
// Calling it again while tracking re-arms without a second subscription.
func (t *ActivityTracker) StartTracking(onExpiry, onWarning func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.onExpiry = onExpiry
	t.onWarning = onWarning
	t.expired = false
	if !t.tracking {
		t.tracking = true
		t.sessionStart = now
		if t.source != nil {
			t.unsubscribe = t.source.Subscribe(models.TrackedActivityKinds, func(models.ActivityKind) {
				t.RecordActivity()
			})
		}
		t.log.Debug().Msg("Activity tracking started")
	}
	t.lastActivity = now
	t.armLocked()
}

// RecordActivity marks the user as active now. It is a no-op when not tracking.
func (t *ActivityTracker) RecordActivity() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking {
		return
	}
	if now := t.clock.Now(); now.After(t.lastActivity) {
		t.lastActivity = now
	}
	t.armLocked()
}

// StopTracking cancels both timers and the activity subscription.
func (t *ActivityTracker) StopTracking() {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return
	}
	t.tracking = false
	t.generation++
	t.stopTimersLocked()
	t.onExpiry, t.onWarning = nil, nil
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	t.log.Debug().Msg("Activity tracking stopped")
}

func (t *ActivityTracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// SecondsUntilExpiry is the whole number of seconds left before the inactivity timeout.
func (t *ActivityTracker) SecondsUntilExpiry() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking {
		return 0
	}
	remaining := t.lastActivity.Add(models.InactivityTimeout).Sub(t.clock.Now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

func (t *ActivityTracker) SessionStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionStart
}

func (t *ActivityTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// SessionDuration is the time elapsed since tracking started, or zero when idle.
func (t *ActivityTracker) SessionDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return 0
	}
	return t.clock.Since(t.sessionStart)
}

func (t *ActivityTracker) armLocked() {
	t.generation++
	t.stopTimersLocked()

	gen := t.generation
	t.warningTimer = t.clock.AfterFunc(models.InactivityTimeout-models.WarningLeadTime, func() {
		t.fire(gen, false)
	})
	t.expiryTimer = t.clock.AfterFunc(models.InactivityTimeout, func() {
		t.fire(gen, true)
	})
}

func (t *ActivityTracker) stopTimersLocked() {
	if t.warningTimer != nil {
		t.warningTimer.Stop()
		t.warningTimer = nil
	}
	if t.expiryTimer != nil {
		t.expiryTimer.Stop()
		t.expiryTimer = nil
	}
}

func (t *ActivityTracker) fire(gen uint64, expiry bool) {
	t.mu.Lock()
	if !t.tracking || gen != t.generation {
		t.mu.Unlock()
		return
	}

	var cb func()
	if expiry {
		if t.expired {
			t.mu.Unlock()
			return
		}
		t.expired = true
		cb = t.onExpiry
	} else {
		cb = t.onWarning
	}
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}
