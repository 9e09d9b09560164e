// Package ioport virtualizes auxiliary digital I/O lines as stable logical
// ports.
//
// Each direction has a pool that maps logical indices (what callers address)
// to port numbers (fixed at startup; invert-mask bits and default labels are
// keyed by them). Every port number owns one hardware line at a time.
// Claiming a port moves it to the end of the pool; swapping exchanges the
// hardware behind two port numbers. A board may also carry one analog input
// backed by a converter; it has a pool of its own and cannot be swapped.
//
// Bookkeeping methods are safe for concurrent use. WaitOnInput and the
// settings hooks run the housekeeping hook or drive lines and belong to the
// foreground loop. OnEvent is the interrupt-context entry point used by line
// event handlers.
package ioport

import (
	"strings"
	"time"

	"github.com/sweeney/auxio/internal/gpio"
	"github.com/sweeney/auxio/internal/settings"
)

// Direction selects the input or output pool.
type Direction uint8

const (
	Input Direction = iota
	Output
	Analog
)

func (d Direction) String() string {
	switch d {
	case Output:
		return "out"
	case Analog:
		return "adc"
	default:
		return "in"
	}
}

// IRQMode is a set of interrupt triggers. Its bits match gpio.Trigger.
type IRQMode uint8

const (
	IRQNone    = IRQMode(gpio.TriggerNone)
	IRQRising  = IRQMode(gpio.TriggerRising)
	IRQFalling = IRQMode(gpio.TriggerFalling)
	IRQHigh    = IRQMode(gpio.TriggerHigh)
	IRQLow     = IRQMode(gpio.TriggerLow)
	IRQChange  = IRQRising | IRQFalling
	IRQAll     = IRQChange | IRQHigh | IRQLow
)

// Has reports whether every trigger in o is in m.
func (m IRQMode) Has(o IRQMode) bool {
	return m&o == o
}

func (m IRQMode) String() string {
	if m == IRQNone {
		return "none"
	}
	var parts []string
	if m&IRQRising != 0 {
		parts = append(parts, "rise")
	}
	if m&IRQFalling != 0 {
		parts = append(parts, "fall")
	}
	if m&IRQHigh != 0 {
		parts = append(parts, "high")
	}
	if m&IRQLow != 0 {
		parts = append(parts, "low")
	}
	return strings.Join(parts, ",")
}

// WaitMode selects what WaitOnInput waits for.
type WaitMode uint8

const (
	WaitImmediate WaitMode = iota
	WaitRise
	WaitFall
	WaitHigh
	WaitLow
)

func (w WaitMode) String() string {
	switch w {
	case WaitImmediate:
		return "immediate"
	case WaitRise:
		return "rise"
	case WaitFall:
		return "fall"
	case WaitHigh:
		return "high"
	case WaitLow:
		return "low"
	default:
		return "unknown"
	}
}

// PollTick is the wait loop period: 50 polls per second.
const PollTick = 20 * time.Millisecond

// MaxPorts is the per-direction limit imposed by the 64-bit masks.
const MaxPorts = 64

// Caps describes what a line can do. Analog is set only on a powered
// converter port.
type Caps struct {
	IRQ    IRQMode
	Analog bool
}

// ControlSignal binds an input to a built-in control function. Mask selects
// the function's bits in the control invert mask.
type ControlSignal struct {
	Function string
	Mask     settings.Mask
}

// InputPin is a board input line.
type InputPin struct {
	Locator     string
	Group       string
	Description string
	Pull        gpio.Pull
	Caps        Caps
	Control     *ControlSignal
}

// OutputPin is a board output line.
type OutputPin struct {
	Locator     string
	Group       string
	Description string
}

// ADC is a single-channel analog converter.
type ADC interface {
	Read() (int, error)
}

// AnalogPin is the board's analog input. ADC may be nil if the converter
// could not be opened; the port is then listed without power.
type AnalogPin struct {
	Locator string
	Group   string
	ADC     ADC
}

// PinInfo is a point-in-time copy of a port's descriptor.
// It is a value type and safe to keep across further calls.
type PinInfo struct {
	Direction   Direction
	Logical     int
	Port        int
	Locator     string
	Group       string
	Caps        Caps
	Inverted    bool
	Claimable   bool
	Description string
	Function    string
	Armed       IRQMode
	Pending     bool // an edge was recorded and not yet consumed by a wait

	// Value reads the port's current logical (inverted) level. For the
	// analog port it reports a non-zero reading.
	Value func() (bool, error) `json:"-"`

	// Reading returns the raw conversion. It is nil on digital ports.
	Reading func() (int, error) `json:"-"`
}

// InterruptCallback receives the logical index of the port that fired and its
// raw line level. It runs in interrupt context and must return quickly. It
// must not register or disarm handlers.
type InterruptCallback func(logical int, level bool)

// EventSource is present only when the board has inputs.
type EventSource interface {
	// WaitOnInput reads or waits for a condition on an input port.
	WaitOnInput(logical int, mode WaitMode, timeout time.Duration) (bool, error)

	// RegisterInterruptHandler arms cb for mode, or disarms on IRQNone.
	RegisterInterruptHandler(logical int, mode IRQMode, cb InterruptCallback) error
}

// DigitalWriter is present only when the board has outputs.
type DigitalWriter interface {
	// DigitalOut sets an output port's logical level.
	DigitalOut(logical int, on bool) error
}

// AnalogReader is present only when the converter answered at startup.
type AnalogReader interface {
	// ReadAnalog returns one conversion from an analog port.
	ReadAnalog(logical int) (int, error)
}

// SettingsStore gives access to the live settings and persists them.
type SettingsStore interface {
	Settings() *settings.Settings
	Write() error
}
