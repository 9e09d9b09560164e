// Package machine tracks the motion controller's state as reported on the
// machine topic.
package machine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/auxio/internal/sleep"
)

// Report is the JSON body published on the machine topic.
type Report struct {
	State        string `json:"state"`
	HoldComplete bool   `json:"hold_complete"`
	DoorAjar     bool   `json:"door_ajar"`
	Spindle      bool   `json:"spindle"`
	Coolant      bool   `json:"coolant"`
	Deenergized  bool   `json:"deenergized"`
	AutoReport   bool   `json:"auto_report"`
}

var runStates = map[string]sleep.RunState{
	"idle":  sleep.StateIdle,
	"run":   sleep.StateCycle,
	"cycle": sleep.StateCycle,
	"hold":  sleep.StateHold,
	"door":  sleep.StateSafetyDoor,
	"jog":   sleep.StateJog,
	"home":  sleep.StateHoming,
	"alarm": sleep.StateAlarm,
	"sleep": sleep.StateSleep,
}

// ParseRunState parses a state name such as "Idle" or "Hold".
func ParseRunState(s string) (sleep.RunState, error) {
	st, ok := runStates[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown run state %q", s)
	}
	return st, nil
}

// Tracker holds the last reported machine conditions. Until the first
// report it reports an idle machine with nothing powered, which never
// arms the sleep timer.
type Tracker struct {
	mu      sync.Mutex
	c       sleep.Conditions
	updated time.Time
	reports uint64
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update applies a JSON report.
func (t *Tracker) Update(payload []byte, now time.Time) error {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decode machine report: %w", err)
	}
	st, err := ParseRunState(r.State)
	if err != nil {
		return err
	}
	t.Set(sleep.Conditions{
		State:         st,
		HoldComplete:  r.HoldComplete,
		DoorAjar:      r.DoorAjar,
		SpindleOn:     r.Spindle,
		CoolantOn:     r.Coolant,
		Deenergized:   r.Deenergized,
		AutoReporting: r.AutoReport,
	}, now)
	return nil
}

// Set replaces the conditions directly.
func (t *Tracker) Set(c sleep.Conditions, now time.Time) {
	t.mu.Lock()
	t.c = c
	t.updated = now
	t.reports++
	t.mu.Unlock()
}

// Sleep records that the controller was put to sleep. The state holds until
// the next report, so the idle timer does not re-arm in the meantime.
func (t *Tracker) Sleep(now time.Time) {
	t.mu.Lock()
	t.c.State = sleep.StateSleep
	t.updated = now
	t.mu.Unlock()
}

// Conditions implements sleep.Machine.
func (t *Tracker) Conditions() sleep.Conditions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

// LastUpdate returns when the last report arrived and how many have been
// applied.
func (t *Tracker) LastUpdate() (time.Time, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updated, t.reports
}
