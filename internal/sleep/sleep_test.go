package sleep

import (
	"testing"
	"time"

	"github.com/sweeney/auxio/internal/realtime"
	"github.com/sweeney/auxio/internal/settings"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeMachine struct {
	c     Conditions
	calls int
}

func (m *fakeMachine) Conditions() Conditions {
	m.calls++
	return m.c
}

type fakeRx struct{ free int }

func (r *fakeRx) RxFree() int { return r.free }

type harness struct {
	s       *Scheduler
	rt      *realtime.Runtime
	clk     *realtime.SteppingClock
	machine *fakeMachine
	rx      *fakeRx
	store   *settings.Store
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		clk:     realtime.NewSteppingClock(t0),
		machine: &fakeMachine{c: Conditions{State: StateIdle, SpindleOn: true}},
		rx:      &fakeRx{free: 1024},
	}
	st := settings.Defaults()
	st.Sleep.Timeout = settings.Duration{Duration: timeout}
	h.store = settings.NewMemoryStore(st)
	h.rt = realtime.New(realtime.Config{Clock: h.clk})
	h.s = New(Config{Runtime: h.rt, Machine: h.machine, Rx: h.rx, Settings: h.store})
	return h
}

func TestCheckRateLimited(t *testing.T) {
	h := newHarness(t, time.Second)
	h.machine.c.SpindleOn = false

	h.s.Check()
	if h.machine.calls != 0 {
		t.Error("conditions evaluated before the first interval elapsed")
	}

	h.rt.Delay(CheckInterval * time.Millisecond)
	h.s.Check()
	h.s.Check()
	if h.machine.calls != 1 {
		t.Errorf("expected 1 evaluation, got %d", h.machine.calls)
	}

	h.rt.Delay(49 * time.Millisecond)
	h.s.Check()
	if h.machine.calls != 1 {
		t.Errorf("expected still 1 evaluation, got %d", h.machine.calls)
	}
	h.rt.Delay(time.Millisecond)
	h.s.Check()
	if h.machine.calls != 2 {
		t.Errorf("expected 2 evaluations, got %d", h.machine.calls)
	}
}

func TestSleepExpires(t *testing.T) {
	h := newHarness(t, time.Second)
	h.rt.Delay(CheckInterval * time.Millisecond)

	start := h.clk.Now()
	h.s.Check()

	if !h.rt.TakeExecFlag(realtime.ExecSleep) {
		t.Fatal("expected ExecSleep after expiry")
	}
	if h.s.Cycles() != 1 {
		t.Errorf("expected 1 sleep cycle, got %d", h.s.Cycles())
	}
	if h.s.State() != Awake {
		t.Errorf("expected Awake after expiry, got %s", h.s.State())
	}
	if elapsed := h.clk.Now().Sub(start); elapsed < time.Second {
		t.Errorf("expired after only %v", elapsed)
	}
	if h.rt.PendingTasks() != 0 {
		t.Errorf("expected no pending tasks, got %d", h.rt.PendingTasks())
	}
}

func TestSleepCancelledByInput(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.rt.Delay(CheckInterval * time.Millisecond)

	iterations := 0
	h.rt.OnExecuteRealtime(func() {
		iterations++
		if iterations == 5 {
			h.rx.free--
		}
	})

	h.s.Check()

	if h.rt.ExecState()&realtime.ExecSleep != 0 {
		t.Error("ExecSleep set despite new input")
	}
	if h.s.Cancels() != 1 || h.s.Cycles() != 0 {
		t.Errorf("expected 1 cancel and 0 cycles, got %d and %d", h.s.Cancels(), h.s.Cycles())
	}
	if h.rt.PendingTasks() != 0 {
		t.Error("cancelled timer task still pending")
	}
	if iterations != 5 {
		t.Errorf("expected cancel on iteration 5, got %d", iterations)
	}
}

func TestSleepCancelledByExternalEvents(t *testing.T) {
	tests := []struct {
		name  string
		raise func(rt *realtime.Runtime)
	}{
		{"exec state", func(rt *realtime.Runtime) { rt.SetExecFlag(realtime.ExecStatusReport) }},
		{"alarm", func(rt *realtime.Runtime) { rt.SetAlarm(realtime.AlarmHardLimit) }},
		{"abort", func(rt *realtime.Runtime) { rt.Abort() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Minute)
			h.rt.Delay(CheckInterval * time.Millisecond)
			h.rt.OnExecuteRealtime(func() { tt.raise(h.rt) })

			h.s.Check()

			if h.s.Cancels() != 1 {
				t.Errorf("expected cancel, got %d", h.s.Cancels())
			}
			if h.rt.ExecState()&realtime.ExecSleep != 0 {
				t.Error("ExecSleep set after cancel")
			}
		})
	}
}

func TestSleepConditions(t *testing.T) {
	tests := []struct {
		name string
		c    Conditions
		want bool
	}{
		{"idle spindle", Conditions{State: StateIdle, SpindleOn: true}, true},
		{"idle coolant", Conditions{State: StateIdle, CoolantOn: true}, true},
		{"idle nothing powered", Conditions{State: StateIdle}, false},
		{"deenergized", Conditions{State: StateIdle, SpindleOn: true, Deenergized: true}, false},
		{"auto reporting", Conditions{State: StateIdle, SpindleOn: true, AutoReporting: true}, false},
		{"hold pending", Conditions{State: StateHold, SpindleOn: true}, false},
		{"hold complete", Conditions{State: StateHold, SpindleOn: true, HoldComplete: true}, true},
		{"door closed", Conditions{State: StateSafetyDoor, SpindleOn: true}, false},
		{"door ajar", Conditions{State: StateSafetyDoor, SpindleOn: true, DoorAjar: true}, true},
		{"running", Conditions{State: StateCycle, SpindleOn: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eligible(tt.c); got != tt.want {
				t.Errorf("eligible(%+v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestSleepDisabled(t *testing.T) {
	h := newHarness(t, time.Second)
	h.store.Settings().Sleep.Enabled = false
	h.rt.Delay(CheckInterval * time.Millisecond)

	h.s.Check()
	if h.machine.calls != 0 {
		t.Error("machine queried while sleep disabled")
	}
}

func TestSleepPoolFull(t *testing.T) {
	h := newHarness(t, time.Second)
	h.rt = realtime.New(realtime.Config{Clock: h.clk, TaskSlots: 1})
	h.s = New(Config{Runtime: h.rt, Machine: h.machine, Rx: h.rx, Settings: h.store})
	h.rt.AddDelayed(func() {}, time.Hour)
	h.rt.Delay(CheckInterval * time.Millisecond)

	before := h.clk.Now()
	h.s.Check()
	if !h.clk.Now().Equal(before) {
		t.Error("scheduler blocked despite full task pool")
	}
	if h.s.State() != Awake {
		t.Errorf("expected Awake, got %s", h.s.State())
	}
}
