package gpio

import (
	"fmt"
	"sync/atomic"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	periphEdgeWait = 100 * time.Millisecond
	periphIdlePoll = 50 * time.Millisecond
)

// PeriphChip opens lines through periph.io. Locators are pin names as known
// to gpioreg, e.g. "GPIO17".
type PeriphChip struct{}

// NewPeriphChip initializes the periph.io host drivers.
func NewPeriphChip() (*PeriphChip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return &PeriphChip{}, nil
}

// Triggers returns the edge triggers.
func (c *PeriphChip) Triggers() Trigger {
	return TriggerBoth
}

// RequestInput configures the named pin as an input and starts a watch
// goroutine that calls handler on each armed edge.
func (c *PeriphChip) RequestInput(locator string, pull Pull, handler EventHandler) (Input, error) {
	p := gpioreg.ByName(locator)
	if p == nil {
		return nil, fmt.Errorf("no pin named %q", locator)
	}
	in := &periphInput{pin: p, pull: periphPull(pull), stop: make(chan struct{}), done: make(chan struct{})}
	if err := p.In(in.pull, pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure input %s: %w", locator, err)
	}
	go in.watch(handler)
	return in, nil
}

// RequestOutput configures the named pin as an output, initially low.
func (c *PeriphChip) RequestOutput(locator string) (Output, error) {
	p := gpioreg.ByName(locator)
	if p == nil {
		return nil, fmt.Errorf("no pin named %q", locator)
	}
	if err := p.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("configure output %s: %w", locator, err)
	}
	return &periphOutput{pin: p}, nil
}

// Close is a no-op; pins are released individually.
func (c *PeriphChip) Close() error {
	return nil
}

func periphPull(p Pull) pgpio.Pull {
	switch p {
	case PullUp:
		return pgpio.PullUp
	case PullDown:
		return pgpio.PullDown
	default:
		return pgpio.Float
	}
}

type periphInput struct {
	pin   pgpio.PinIO
	pull  pgpio.Pull
	armed atomic.Uint32
	stop  chan struct{}
	done  chan struct{}
}

func (i *periphInput) watch(handler EventHandler) {
	defer close(i.done)
	for {
		if Trigger(i.armed.Load()) == TriggerNone {
			select {
			case <-i.stop:
				return
			case <-time.After(periphIdlePoll):
			}
			continue
		}
		if i.pin.WaitForEdge(periphEdgeWait) && Trigger(i.armed.Load()) != TriggerNone && handler != nil {
			handler()
		}
		select {
		case <-i.stop:
			return
		default:
		}
	}
}

func (i *periphInput) Value() (bool, error) {
	return i.pin.Read() == pgpio.High, nil
}

func (i *periphInput) Arm(t Trigger) error {
	if t&(TriggerHigh|TriggerLow) != 0 {
		return fmt.Errorf("pin %s: level triggers not supported", i.pin.Name())
	}
	edge := pgpio.NoEdge
	switch t {
	case TriggerRising:
		edge = pgpio.RisingEdge
	case TriggerFalling:
		edge = pgpio.FallingEdge
	case TriggerBoth:
		edge = pgpio.BothEdges
	}
	if err := i.pin.In(i.pull, edge); err != nil {
		return fmt.Errorf("arm pin %s: %w", i.pin.Name(), err)
	}
	i.armed.Store(uint32(t))
	return nil
}

func (i *periphInput) Close() error {
	i.armed.Store(uint32(TriggerNone))
	close(i.stop)
	<-i.done
	if err := i.pin.Halt(); err != nil {
		return fmt.Errorf("halt pin %s: %w", i.pin.Name(), err)
	}
	return nil
}

type periphOutput struct {
	pin pgpio.PinIO
}

func (o *periphOutput) Value() (bool, error) {
	return o.pin.Read() == pgpio.High, nil
}

func (o *periphOutput) SetValue(v bool) error {
	if err := o.pin.Out(pgpio.Level(v)); err != nil {
		return fmt.Errorf("write pin %s: %w", o.pin.Name(), err)
	}
	return nil
}

func (o *periphOutput) Reassert() error {
	return o.SetValue(o.pin.Read() == pgpio.High)
}

func (o *periphOutput) Close() error {
	if err := o.pin.Out(pgpio.Low); err != nil {
		return fmt.Errorf("reset pin %s: %w", o.pin.Name(), err)
	}
	return nil
}
