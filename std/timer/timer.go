// Package timer provides the clock used by the protocol engines.
// Engines schedule retransmissions through the Timer interface so that
// tests can drive them with a virtual clock.
package timer

import (
	"errors"
	"sync"
	"time"
)

// ErrCancelled is returned when cancelling an event twice.
var ErrCancelled = errors.New("event has already been canceled")

type Timer interface {
	// Now returns current time.
	Now() time.Time
	// Schedule schedules the callback function to be called after the duration,
	// and returns a cancel callback to cancel the scheduled function.
	Schedule(time.Duration, func()) func() error
}

type wallTimer struct{}

// NewTimer returns a Timer backed by the system clock.
func NewTimer() Timer {
	return wallTimer{}
}

func (wallTimer) Schedule(d time.Duration, f func()) func() error {
	t := time.AfterFunc(d, f)
	var once sync.Once
	return func() error {
		err := ErrCancelled
		once.Do(func() {
			t.Stop()
			err = nil
		})
		return err
	}
}

func (wallTimer) Now() time.Time {
	return time.Now()
}
