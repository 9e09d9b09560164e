//go:build linux

package gpio

import (
	"fmt"
	"strconv"

	"github.com/warthog618/go-gpiocdev"
)

// CdevChip opens lines from a Linux GPIO character device.
// Locators are line offsets on the chip.
type CdevChip struct {
	chip *gpiocdev.Chip
}

// NewCdevChip opens the named chip, e.g. "gpiochip0".
func NewCdevChip(name string) (*CdevChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevChip{chip: chip}, nil
}

// Triggers returns the edge triggers. The character device has no level
// interrupts.
func (c *CdevChip) Triggers() Trigger {
	return TriggerBoth
}

// RequestInput requests locator as an input. Edge detection starts disabled;
// events are delivered to handler once Arm enables them.
func (c *CdevChip) RequestInput(locator string, pull Pull, handler EventHandler) (Input, error) {
	offset, err := strconv.Atoi(locator)
	if err != nil {
		return nil, fmt.Errorf("input locator %q: %w", locator, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, cdevBias(pull)}
	if handler != nil {
		opts = append(opts, gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			handler()
		}))
	}

	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input %d: %w", offset, err)
	}
	return &cdevInput{line: line, pull: pull}, nil
}

// RequestOutput requests locator as an output, initially low.
func (c *CdevChip) RequestOutput(locator string) (Output, error) {
	offset, err := strconv.Atoi(locator)
	if err != nil {
		return nil, fmt.Errorf("output locator %q: %w", locator, err)
	}
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output %d: %w", offset, err)
	}
	return &cdevOutput{line: line}, nil
}

// Close releases the chip.
func (c *CdevChip) Close() error {
	return c.chip.Close()
}

func cdevBias(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

type cdevInput struct {
	line *gpiocdev.Line
	pull Pull
}

func (i *cdevInput) Value() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", i.line.Offset(), err)
	}
	return v != 0, nil
}

func (i *cdevInput) Arm(t Trigger) error {
	var edge gpiocdev.LineConfigOption
	switch t &^ (TriggerHigh | TriggerLow) {
	case TriggerNone:
		edge = gpiocdev.WithoutEdges
	case TriggerRising:
		edge = gpiocdev.WithRisingEdge
	case TriggerFalling:
		edge = gpiocdev.WithFallingEdge
	default:
		edge = gpiocdev.WithBothEdges
	}
	if t&(TriggerHigh|TriggerLow) != 0 {
		return fmt.Errorf("line %d: level triggers not supported", i.line.Offset())
	}
	if err := i.line.Reconfigure(edge); err != nil {
		return fmt.Errorf("arm line %d: %w", i.line.Offset(), err)
	}
	return nil
}

// Close leaves the line as a pulled-down input, matching Pi boot defaults, so
// whatever is wired to it sees a known state after shutdown.
func (i *cdevInput) Close() error {
	var errs []error
	if err := i.line.Reconfigure(gpiocdev.WithoutEdges, gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line %d: %w", i.line.Offset(), err))
	}
	if err := i.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line %d: %w", i.line.Offset(), err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type cdevOutput struct {
	line *gpiocdev.Line
}

func (o *cdevOutput) Value() (bool, error) {
	v, err := o.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", o.line.Offset(), err)
	}
	return v != 0, nil
}

func (o *cdevOutput) SetValue(v bool) error {
	n := 0
	if v {
		n = 1
	}
	if err := o.line.SetValue(n); err != nil {
		return fmt.Errorf("write line %d: %w", o.line.Offset(), err)
	}
	return nil
}

func (o *cdevOutput) Reassert() error {
	v, err := o.line.Value()
	if err != nil {
		return fmt.Errorf("read line %d: %w", o.line.Offset(), err)
	}
	if err := o.line.Reconfigure(gpiocdev.AsOutput(v)); err != nil {
		return fmt.Errorf("reassert line %d: %w", o.line.Offset(), err)
	}
	return nil
}

// Close drives the line low and releases it.
func (o *cdevOutput) Close() error {
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reset line %d: %w", o.line.Offset(), err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line %d: %w", o.line.Offset(), err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
