package ioport

import (
	"fmt"
	"log"
	"math"
	"runtime"
	"time"

	"github.com/sweeney/auxio/internal/gpio"
)

// waitBudget returns the number of poll iterations for timeout:
// ceil(timeout / PollTick) + 1. A zero timeout still polls once. The result
// is clamped to maxWaitBudget.
func waitBudget(timeout time.Duration) int {
	if timeout <= 0 {
		return 1
	}
	n := timeout / PollTick
	if timeout%PollTick != 0 {
		n++
	}
	if n >= maxWaitBudget {
		return maxWaitBudget
	}
	return int(n) + 1
}

// maxWaitBudget keeps the budget within a 32-bit int; at 50 polls a second
// that is over a year.
const maxWaitBudget = math.MaxInt32

func (p *Ports) inputAt(logical int) (*inputPort, *hwInput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inPool.valid(logical) {
		return nil, nil, ErrOutOfRange
	}
	port := p.in[p.inPool.m[logical]]
	return port, port.hw, nil
}

func (p *Ports) waitOnInput(logical int, mode WaitMode, timeout time.Duration) (bool, error) {
	port, hw, err := p.inputAt(logical)
	if err != nil {
		return false, err
	}
	invert := p.store.Settings().IOPort.InvertIn.Bit(port.num)
	read := func() (bool, error) {
		v, err := hw.line.Value()
		return v != invert, err
	}

	switch mode {
	case WaitImmediate:
		return read()

	case WaitRise, WaitFall:
		irq := IRQRising
		if mode == WaitFall {
			irq = IRQFalling
		}
		if !hw.pin.Caps.IRQ.Has(irq) {
			return false, fmt.Errorf("%w: input %d cannot wait for %s", ErrCapability, logical, mode)
		}

		bit := uint64(1) << uint(hw.id)
		p.pending.And(^bit)
		if err := hw.line.Arm(gpio.Trigger(irq)); err != nil {
			return false, fmt.Errorf("arm input %d: %w", logical, err)
		}
		defer p.restoreIRQ(port, hw)

		return p.poll(waitBudget(timeout), func() (bool, bool, error) {
			if p.pending.Load()&bit == 0 {
				return false, false, nil
			}
			v, err := read()
			return v, true, err
		})

	case WaitHigh, WaitLow:
		target := mode == WaitHigh
		return p.poll(waitBudget(timeout), func() (bool, bool, error) {
			v, err := read()
			if err != nil {
				return false, true, err
			}
			return v, v == target, nil
		})

	default:
		return false, fmt.Errorf("%w: wait mode %d", ErrCapability, mode)
	}
}

// poll runs the cooperative wait loop. Each iteration runs the housekeeping
// hook, then check; if check is not satisfied it suspends for one tick and
// spends one unit of budget.
func (p *Ports) poll(budget int, check func() (value, done bool, err error)) (bool, error) {
	for {
		p.rt.ExecuteRealtime()
		if v, done, err := check(); done || err != nil {
			return v, err
		}
		p.rt.Delay(PollTick)
		budget--
		if budget <= 0 {
			return false, ErrTimeout
		}
		if p.rt.Aborted() {
			return false, ErrAborted
		}
	}
}

// restoreIRQ puts the line back to the registered binding's triggers, or
// disarms it if there is none.
func (p *Ports) restoreIRQ(port *inputPort, hw *hwInput) {
	mode := IRQNone
	if b := port.binding.Load(); b != nil {
		mode = b.mode
	}
	if err := hw.line.Arm(gpio.Trigger(mode)); err != nil {
		log.Printf("ioport: restore interrupt on port %d: %v", port.num, err)
	}
}

func (p *Ports) registerInterruptHandler(logical int, mode IRQMode, cb InterruptCallback) error {
	port, hw, err := p.inputAt(logical)
	if err != nil {
		return err
	}

	if mode != IRQNone && cb != nil && hw.pin.Caps.IRQ.Has(mode) {
		port.binding.Store(&binding{mode: mode, cb: cb})
		if err := hw.line.Arm(gpio.Trigger(mode)); err != nil {
			p.disarm(port, hw)
			return fmt.Errorf("arm input %d: %w", logical, err)
		}
		return nil
	}

	p.disarm(port, hw)
	if mode == IRQNone {
		return nil
	}
	return fmt.Errorf("%w: input %d mode %s", ErrCapability, logical, mode)
}

// disarm waits for any in-flight OnEvent to finish before dropping the
// callback. The spin is unfair; a callback that never returns starves it.
func (p *Ports) disarm(port *inputPort, hw *hwInput) {
	for p.busy.Load() {
		runtime.Gosched()
	}
	if err := hw.line.Arm(gpio.TriggerNone); err != nil {
		log.Printf("ioport: disarm port %d: %v", port.num, err)
	}
	port.binding.Store(nil)
}

// OnEvent records an event on hardware input hw and runs the owning port's
// callback, if any. Line event handlers call it from their own goroutine.
func (p *Ports) OnEvent(hw int) {
	p.isr.Lock()
	defer p.isr.Unlock()

	p.busy.Store(true)
	defer p.busy.Store(false)

	if hw < 0 || hw >= len(p.inHW) {
		return
	}
	p.pending.Or(uint64(1) << uint(hw))

	p.mu.Lock()
	num := p.owner[hw]
	port := p.in[num]
	logical := p.inPool.reverse(num)
	line := p.inHW[hw].line
	p.mu.Unlock()

	b := port.binding.Load()
	if b == nil {
		return
	}
	level, err := line.Value()
	if err != nil {
		log.Printf("ioport: read input %d in event: %v", logical, err)
		return
	}
	b.cb(logical, level)
}
