// Package realtime holds the cooperative execution context shared by every
// blocking loop in the daemon: the clock, the abort and exec-state flags, the
// deferred-task pool and the housekeeping hook.
//
// All methods except the flag accessors must be called from the foreground
// loop. The flag accessors are safe from any goroutine.
package realtime

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sweeney/auxio/internal/task"
)

// ExecFlags are pending real-time requests raised outside the foreground loop.
type ExecFlags uint32

const (
	ExecStatusReport ExecFlags = 1 << iota
	ExecCycleStart
	ExecFeedHold
	ExecSleep
)

// Alarm is a latched alarm code. AlarmNone means no alarm.
type Alarm uint32

const (
	AlarmNone Alarm = iota
	AlarmHardLimit
	AlarmSoftLimit
	AlarmAbortCycle
	AlarmProbeFail
)

// DefaultTaskSlots is the deferred-task pool size used when Config leaves it zero.
const DefaultTaskSlots = 8

// Duty is a periodic function run by ExecuteRealtime.
type Duty func()

// Config configures a Runtime.
type Config struct {
	Clock     clock.Clock // nil uses the wall clock
	TaskSlots int
}

// Runtime is the explicit replacement for firmware-global state.
type Runtime struct {
	clock  clock.Clock
	start  time.Time
	tasks  *task.Scheduler
	duties []Duty

	abort atomic.Bool
	exec  atomic.Uint32
	alarm atomic.Uint32
}

// New creates a Runtime.
func New(cfg Config) *Runtime {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	slots := cfg.TaskSlots
	if slots <= 0 {
		slots = DefaultTaskSlots
	}
	return &Runtime{
		clock: clk,
		start: clk.Now(),
		tasks: task.New(slots),
	}
}

// Clock returns the runtime clock.
func (r *Runtime) Clock() clock.Clock {
	return r.clock
}

// Now returns the current clock time.
func (r *Runtime) Now() time.Time {
	return r.clock.Now()
}

// Ticks returns milliseconds elapsed since the runtime was created.
// Wraps like a hardware tick counter; compare with subtraction.
func (r *Runtime) Ticks() uint32 {
	return uint32(r.clock.Since(r.start).Milliseconds())
}

// Delay suspends the foreground loop for d.
func (r *Runtime) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	r.clock.Sleep(d)
}

// OnExecuteRealtime registers a duty run on every housekeeping call.
func (r *Runtime) OnExecuteRealtime(d Duty) {
	if d != nil {
		r.duties = append(r.duties, d)
	}
}

// ExecuteRealtime is the housekeeping hook. Every suspension loop calls it
// once per iteration. It fires due deferred tasks and runs registered duties.
// It does not consume exec flags; those stay visible to the loop that polls.
func (r *Runtime) ExecuteRealtime() {
	r.tasks.Execute(r.clock.Now())
	for _, d := range r.duties {
		d()
	}
}

// AddDelayed schedules fn to run from ExecuteRealtime after delay.
func (r *Runtime) AddDelayed(fn task.Func, delay time.Duration) (task.Handle, bool) {
	return r.tasks.AddDelayed(fn, r.clock.Now(), delay)
}

// DeleteTask cancels a task scheduled with AddDelayed.
func (r *Runtime) DeleteTask(h task.Handle) bool {
	return r.tasks.Delete(h)
}

// PendingTasks returns the number of scheduled deferred tasks.
func (r *Runtime) PendingTasks() int {
	return r.tasks.Pending()
}

// Abort raises the global abort signal.
func (r *Runtime) Abort() {
	r.abort.Store(true)
}

// Aborted reports whether abort is raised.
func (r *Runtime) Aborted() bool {
	return r.abort.Load()
}

// ClearAbort resets the abort signal after the foreground loop has handled it.
func (r *Runtime) ClearAbort() {
	r.abort.Store(false)
}

// SetExecFlag raises f.
func (r *Runtime) SetExecFlag(f ExecFlags) {
	r.exec.Or(uint32(f))
}

// ExecState returns all raised exec flags.
func (r *Runtime) ExecState() ExecFlags {
	return ExecFlags(r.exec.Load())
}

// TakeExecFlag clears f and reports whether it was raised.
func (r *Runtime) TakeExecFlag(f ExecFlags) bool {
	old := r.exec.And(^uint32(f))
	return ExecFlags(old)&f != 0
}

// SetAlarm latches an alarm code.
func (r *Runtime) SetAlarm(a Alarm) {
	r.alarm.Store(uint32(a))
}

// Alarm returns the latched alarm code.
func (r *Runtime) Alarm() Alarm {
	return Alarm(r.alarm.Load())
}

// ClearAlarm resets the latched alarm.
func (r *Runtime) ClearAlarm() {
	r.alarm.Store(uint32(AlarmNone))
}
