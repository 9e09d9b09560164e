// Package sleep puts the controller to sleep after it has sat idle with
// powered components for the configured timeout.
package sleep

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/auxio/internal/realtime"
	"github.com/sweeney/auxio/internal/settings"
)

// State is the scheduler state.
type State int32

const (
	Awake State = iota
	Armed
	Expired
)

func (s State) String() string {
	switch s {
	case Awake:
		return "awake"
	case Armed:
		return "armed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// RunState is the coarse machine state the scheduler cares about.
type RunState int

const (
	StateIdle RunState = iota
	StateCycle
	StateHold
	StateSafetyDoor
	StateJog
	StateHoming
	StateAlarm
	StateSleep
)

func (r RunState) String() string {
	switch r {
	case StateIdle:
		return "Idle"
	case StateCycle:
		return "Run"
	case StateHold:
		return "Hold"
	case StateSafetyDoor:
		return "Door"
	case StateJog:
		return "Jog"
	case StateHoming:
		return "Home"
	case StateAlarm:
		return "Alarm"
	case StateSleep:
		return "Sleep"
	default:
		return "Unknown"
	}
}

// Conditions is a snapshot of the machine flags that gate sleep.
type Conditions struct {
	State         RunState
	HoldComplete  bool
	DoorAjar      bool
	SpindleOn     bool
	CoolantOn     bool
	Deenergized   bool
	AutoReporting bool
}

// Machine reports the current machine conditions.
type Machine interface {
	Conditions() Conditions
}

// RxBuffer reports free space in the input stream buffer.
type RxBuffer interface {
	RxFree() int
}

// SettingsSource provides the live sleep settings.
type SettingsSource interface {
	Settings() *settings.Settings
}

// CheckInterval is the minimum time between two evaluations of the arming
// conditions, in ticks.
const CheckInterval = 50

// PollInterval is how long the armed loop suspends per iteration.
const PollInterval = 20 * time.Millisecond

// Config configures a Scheduler.
type Config struct {
	Runtime  *realtime.Runtime
	Machine  Machine
	Rx       RxBuffer
	Settings SettingsSource
}

// Scheduler is the idle-timeout sleep scheduler.
type Scheduler struct {
	rt       *realtime.Runtime
	machine  Machine
	rx       RxBuffer
	settings SettingsSource

	lastCheck uint32
	armed     bool

	state   atomic.Int32
	cycles  atomic.Uint64
	cancels atomic.Uint64
}

// New creates a Scheduler in the Awake state.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		rt:       cfg.Runtime,
		machine:  cfg.Machine,
		rx:       cfg.Rx,
		settings: cfg.Settings,
	}
}

// State returns the current state. Safe from any goroutine.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns how many times the timer has expired.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Cancels returns how many armed timers were cancelled by activity.
func (s *Scheduler) Cancels() uint64 {
	return s.cancels.Load()
}

// Check evaluates the arming conditions at most once per CheckInterval
// ticks. If they hold it arms the timer and blocks the foreground loop until
// the timer expires or activity cancels it.
func (s *Scheduler) Check() {
	now := s.rt.Ticks()
	if now-s.lastCheck < CheckInterval {
		return
	}
	s.lastCheck = now

	cfg := s.settings.Settings().Sleep
	if !cfg.Enabled || s.armed {
		return
	}
	if !eligible(s.machine.Conditions()) {
		return
	}
	s.execute(cfg.Timeout.Duration)
}

func eligible(c Conditions) bool {
	if c.Deenergized || c.AutoReporting || !(c.SpindleOn || c.CoolantOn) {
		return false
	}
	switch c.State {
	case StateIdle:
		return true
	case StateHold:
		return c.HoldComplete
	case StateSafetyDoor:
		return c.DoorAjar
	default:
		return false
	}
}

func (s *Scheduler) execute(timeout time.Duration) {
	h, ok := s.rt.AddDelayed(func() { s.armed = false }, timeout)
	if !ok {
		log.Printf("sleep: task pool full, not arming")
		return
	}
	s.armed = true
	s.state.Store(int32(Armed))

	rx := s.rx.RxFree()
	for s.armed {
		s.rt.ExecuteRealtime()
		if s.rx.RxFree() != rx || s.rt.ExecState() != 0 || s.rt.Alarm() != realtime.AlarmNone || s.rt.Aborted() {
			s.armed = false
			s.rt.DeleteTask(h)
			s.cancels.Add(1)
			s.state.Store(int32(Awake))
			return
		}
		if s.armed {
			s.rt.Delay(PollInterval)
		}
	}

	s.state.Store(int32(Expired))
	s.cycles.Add(1)
	log.Printf("sleep: idle for %v, entering sleep", timeout)
	s.rt.SetExecFlag(realtime.ExecSleep)
	s.state.Store(int32(Awake))
}
