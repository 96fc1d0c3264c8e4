package timer

import (
	"sync"
	"time"

	"github.com/rtp-go/rtp/std/types/priority_queue"
)

// DummyTimer is a virtual clock. Scheduled callbacks only run from
// MoveForward, on the caller's goroutine, in deadline order.
type DummyTimer struct {
	now    time.Time
	events priority_queue.Queue[func(), int64]
	lock   sync.Mutex
}

// NewDummyTimer creates a virtual clock starting at the Unix epoch.
func NewDummyTimer() *DummyTimer {
	return &DummyTimer{
		now:    time.Unix(0, 0).UTC(),
		events: priority_queue.New[func(), int64](),
	}
}

func (tm *DummyTimer) Now() time.Time {
	tm.lock.Lock()
	defer tm.lock.Unlock()
	return tm.now
}

// Pending returns the number of scheduled events that have not run.
func (tm *DummyTimer) Pending() int {
	tm.lock.Lock()
	defer tm.lock.Unlock()
	return tm.events.Len()
}

// MoveForward advances the clock by d and runs every event that became due.
// Events scheduled by a callback run too if they fall inside the window.
func (tm *DummyTimer) MoveForward(d time.Duration) {
	tm.lock.Lock()
	target := tm.now.Add(d)
	tm.lock.Unlock()

	for {
		f, ok := tm.popDue(target)
		if !ok {
			break
		}
		f()
	}

	tm.lock.Lock()
	tm.now = target
	tm.lock.Unlock()
}

func (tm *DummyTimer) popDue(target time.Time) (func(), bool) {
	tm.lock.Lock()
	defer tm.lock.Unlock()

	if tm.events.Len() == 0 || tm.events.PeekPriority() > target.UnixNano() {
		return nil, false
	}
	tm.now = time.Unix(0, tm.events.PeekPriority()).UTC()
	return tm.events.Pop(), true
}

func (tm *DummyTimer) Schedule(d time.Duration, f func()) func() error {
	tm.lock.Lock()
	defer tm.lock.Unlock()

	e := tm.events.Push(f, tm.now.Add(d).UnixNano())
	return func() error {
		tm.lock.Lock()
		defer tm.lock.Unlock()
		if !tm.events.Remove(e) {
			return ErrCancelled
		}
		return nil
	}
}
