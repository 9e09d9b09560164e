// Package gpio provides physical GPIO lines with hardware abstraction.
// CdevChip uses the Linux GPIO character device, PeriphChip uses periph.io
// and FakeChip allows testing without hardware.
package gpio

// Trigger is a set of conditions that raise a line event.
type Trigger uint8

const (
	TriggerNone    Trigger = 0
	TriggerRising  Trigger = 1 << 0
	TriggerFalling Trigger = 1 << 1
	TriggerHigh    Trigger = 1 << 2
	TriggerLow     Trigger = 1 << 3

	TriggerBoth = TriggerRising | TriggerFalling
	TriggerAll  = TriggerBoth | TriggerHigh | TriggerLow
)

// Pull selects the input bias.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// EventHandler is called from the chip's event goroutine when an armed
// trigger fires. It must return quickly.
type EventHandler func()

// Input is a requested input line.
type Input interface {
	// Value returns the raw (non-inverted) line level.
	Value() (bool, error)

	// Arm enables event delivery for t. TriggerNone disables it.
	Arm(t Trigger) error

	// Close releases the line.
	Close() error
}

// Output is a requested output line.
type Output interface {
	// Value returns the level currently driven on the line.
	Value() (bool, error)

	// SetValue drives the line.
	SetValue(v bool) error

	// Reassert re-applies output mode without changing the driven level.
	Reassert() error

	// Close releases the line.
	Close() error
}

// Chip opens lines by locator.
type Chip interface {
	RequestInput(locator string, pull Pull, handler EventHandler) (Input, error)
	RequestOutput(locator string) (Output, error)

	// Triggers returns the triggers the backend can arm.
	Triggers() Trigger

	Close() error
}
