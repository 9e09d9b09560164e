package gpio

import (
	"fmt"
	"sync"
)

// FakeChip is a test double that hands out in-memory lines.
type FakeChip struct {
	mu      sync.Mutex
	inputs  map[string]*FakeInput
	outputs map[string]*FakeOutput

	// Supported is returned by Triggers.
	Supported Trigger

	// RequestError, if set, is returned by RequestInput and RequestOutput.
	RequestError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChip creates a FakeChip that supports every trigger.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		inputs:    make(map[string]*FakeInput),
		outputs:   make(map[string]*FakeOutput),
		Supported: TriggerAll,
	}
}

// RequestInput returns a FakeInput for locator.
func (c *FakeChip) RequestInput(locator string, pull Pull, handler EventHandler) (Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RequestError != nil {
		return nil, c.RequestError
	}
	if _, ok := c.inputs[locator]; ok {
		return nil, fmt.Errorf("fake: line %s busy", locator)
	}
	in := &FakeInput{Locator: locator, Pull: pull, handler: handler}
	c.inputs[locator] = in
	return in, nil
}

// RequestOutput returns a FakeOutput for locator.
func (c *FakeChip) RequestOutput(locator string) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RequestError != nil {
		return nil, c.RequestError
	}
	if _, ok := c.outputs[locator]; ok {
		return nil, fmt.Errorf("fake: line %s busy", locator)
	}
	out := &FakeOutput{Locator: locator}
	c.outputs[locator] = out
	return out, nil
}

// Triggers returns Supported.
func (c *FakeChip) Triggers() Trigger {
	return c.Supported
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}

// Input returns the requested input for locator, or nil.
func (c *FakeChip) Input(locator string) *FakeInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs[locator]
}

// Output returns the requested output for locator, or nil.
func (c *FakeChip) Output(locator string) *FakeOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs[locator]
}

// FakeInput is an input line whose level is driven by the test.
type FakeInput struct {
	Locator string
	Pull    Pull

	mu      sync.Mutex
	level   bool
	samples []bool
	armed   Trigger
	arms    []Trigger
	handler EventHandler
	closed  bool

	// ReadError, if set, will be returned by Value().
	ReadError error
}

// Value returns the next scripted sample if any remain, otherwise the
// current level.
func (f *FakeInput) Value() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.samples) > 0 {
		f.level = f.samples[0]
		f.samples = f.samples[1:]
	}
	return f.level, nil
}

// Script queues levels returned by successive Value calls. Once exhausted the
// last level repeats.
func (f *FakeInput) Script(levels ...bool) {
	f.mu.Lock()
	f.samples = append(f.samples, levels...)
	f.mu.Unlock()
}

// Arm records t as the armed trigger set.
func (f *FakeInput) Arm(t Trigger) error {
	f.mu.Lock()
	f.armed = t
	f.arms = append(f.arms, t)
	f.mu.Unlock()
	return nil
}

// Armed returns the current trigger set.
func (f *FakeInput) Armed() Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

// ArmHistory returns every trigger set passed to Arm, in order.
func (f *FakeInput) ArmHistory() []Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Trigger(nil), f.arms...)
}

// Set drives the line to level and, if an armed trigger matches the change,
// calls the event handler synchronously on the caller's goroutine.
func (f *FakeInput) Set(level bool) {
	f.mu.Lock()
	prev := f.level
	f.level = level
	fire := false
	switch {
	case !prev && level:
		fire = f.armed&TriggerRising != 0
	case prev && !level:
		fire = f.armed&TriggerFalling != 0
	}
	if level && f.armed&TriggerHigh != 0 || !level && f.armed&TriggerLow != 0 {
		fire = true
	}
	h := f.handler
	f.mu.Unlock()

	if fire && h != nil {
		h()
	}
}

// Fire calls the event handler regardless of level or armed triggers.
func (f *FakeInput) Fire() {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// Close marks the line as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeInput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeOutput records everything written to it.
type FakeOutput struct {
	Locator string

	mu        sync.Mutex
	level     bool
	writes    []bool
	reasserts int
	closed    bool

	// WriteError, if set, will be returned by SetValue().
	WriteError error
}

// Value returns the driven level.
func (f *FakeOutput) Value() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, nil
}

// SetValue drives the line.
func (f *FakeOutput) SetValue(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.level = v
	f.writes = append(f.writes, v)
	return nil
}

// Reassert counts output mode re-applications.
func (f *FakeOutput) Reassert() error {
	f.mu.Lock()
	f.reasserts++
	f.mu.Unlock()
	return nil
}

// Level returns the driven level without error.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Writes returns every level written, in order.
func (f *FakeOutput) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

// Reasserts returns how many times Reassert was called.
func (f *FakeOutput) Reasserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reasserts
}

// Close marks the line as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
