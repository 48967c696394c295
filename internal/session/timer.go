package session

import (
	"time"

	"github.com/google/uuid"
)

// stopper is what a scheduled expiry hands back; *time.Timer satisfies it.
type stopper interface {
	Stop() bool
}

// timerFactory schedules fn after d. Tests substitute a manual trigger.
type timerFactory func(d time.Duration, fn func()) stopper

func defaultTimerFactory(d time.Duration, fn func()) stopper {
	return time.AfterFunc(d, fn)
}

// expiryTimer tracks the single temporary-session deadline. Starting a new
// one cancels the previous; an expiry firing after its cancel still posts, but
// carries a stale id the controller discards. All methods run on the
// controller loop, so no locking is needed.
type expiryTimer struct {
	newTimer timerFactory
	post     func(Event)

	id     uuid.UUID
	active stopper
}

func newExpiryTimer(factory timerFactory, post func(Event)) *expiryTimer {
	if factory == nil {
		factory = defaultTimerFactory
	}
	return &expiryTimer{newTimer: factory, post: post}
}

// Start schedules an expiry after d and returns the id that identifies it.
func (t *expiryTimer) Start(d time.Duration) uuid.UUID {
	t.Cancel()
	id := uuid.New()
	t.id = id
	t.active = t.newTimer(d, func() {
		t.post(timerExpired{id: id})
	})
	return id
}

// Cancel stops the active timer, if any.
func (t *expiryTimer) Cancel() {
	if t.active != nil {
		t.active.Stop()
		t.active = nil
	}
	t.id = uuid.Nil
}

// Matches reports whether id belongs to the currently armed timer.
func (t *expiryTimer) Matches(id uuid.UUID) bool {
	return t.active != nil && t.id == id
}
