package realtime

import (
	"time"

	"github.com/benbjohnson/clock"
)

// SteppingClock is a mock clock for single-threaded tests.
// Sleep advances mock time by d instead of blocking.
type SteppingClock struct {
	*clock.Mock
}

// NewSteppingClock creates a SteppingClock set to start.
func NewSteppingClock(start time.Time) *SteppingClock {
	m := clock.NewMock()
	m.Set(start)
	return &SteppingClock{Mock: m}
}

// Sleep advances the mock clock by d.
func (c *SteppingClock) Sleep(d time.Duration) {
	c.Add(d)
}
