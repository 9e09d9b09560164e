// Package task implements a fixed-capacity pool of deferred one-shot tasks.
//
// Tasks never fire from a timer goroutine. They are fired by Execute, which the
// owner calls from its housekeeping loop, so a task always runs on the same
// thread of control as the code that scheduled it.
package task

import "time"

// Func is a deferred action.
type Func func()

// Handle identifies a scheduled task. The zero Handle never refers to a task.
type Handle struct {
	idx int
	gen uint32
}

// Valid reports whether h was returned by a successful AddDelayed.
func (h Handle) Valid() bool {
	return h.gen != 0
}

type slot struct {
	fn   Func
	due  time.Time
	gen  uint32
	used bool
}

// Scheduler holds up to a fixed number of pending tasks.
// Not safe for concurrent use.
type Scheduler struct {
	slots []slot
	gen   uint32
}

// New creates a Scheduler with room for capacity pending tasks.
func New(capacity int) *Scheduler {
	if capacity <= 0 {
		capacity = 1
	}
	return &Scheduler{slots: make([]slot, capacity)}
}

// AddDelayed schedules fn to run at now+delay.
// Returns false if fn is nil or every slot is in use.
func (s *Scheduler) AddDelayed(fn Func, now time.Time, delay time.Duration) (Handle, bool) {
	if fn == nil {
		return Handle{}, false
	}
	for i := range s.slots {
		if s.slots[i].used {
			continue
		}
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		s.slots[i] = slot{fn: fn, due: now.Add(delay), gen: s.gen, used: true}
		return Handle{idx: i, gen: s.gen}, true
	}
	return Handle{}, false
}

// Delete cancels a pending task. Returns false if the task already fired,
// was already deleted, or h is invalid.
func (s *Scheduler) Delete(h Handle) bool {
	if !h.Valid() || h.idx < 0 || h.idx >= len(s.slots) {
		return false
	}
	sl := &s.slots[h.idx]
	if !sl.used || sl.gen != h.gen {
		return false
	}
	*sl = slot{}
	return true
}

// Pending returns the number of scheduled tasks.
func (s *Scheduler) Pending() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].used {
			n++
		}
	}
	return n
}

// Execute fires every task due at or before now, earliest first.
// A task may schedule further tasks; those fire in the same call if already due.
func (s *Scheduler) Execute(now time.Time) int {
	fired := 0
	for {
		next := -1
		for i := range s.slots {
			sl := &s.slots[i]
			if !sl.used || sl.due.After(now) {
				continue
			}
			if next < 0 || sl.due.Before(s.slots[next].due) {
				next = i
			}
		}
		if next < 0 {
			return fired
		}

		// Free the slot before running so the task can reschedule itself.
		fn := s.slots[next].fn
		s.slots[next] = slot{}
		fn()
		fired++
	}
}
