package ioport

import (
	"errors"
	"fmt"

	"github.com/sweeney/auxio/internal/settings"
)

// OnSettingsLoaded re-applies output mode and drives every output to its
// resting level for the loaded invert mask, then reconciles control-bound
// inputs. On a mismatch the control invert bit wins and the settings are
// written back. A write-back failure is returned but the in-memory masks stay
// in effect.
func (p *Ports) OnSettingsLoaded() error {
	s := p.store.Settings()
	var errs []error

	p.mu.Lock()
	p.invertOut = s.IOPort.InvertOut
	outs := p.outputLines()
	p.mu.Unlock()

	for _, o := range outs {
		if err := o.hw.line.Reassert(); err != nil {
			errs = append(errs, fmt.Errorf("output port %d mode: %w", o.num, err))
			continue
		}
		if err := o.hw.line.SetValue(s.IOPort.InvertOut.Bit(o.num)); err != nil {
			errs = append(errs, fmt.Errorf("output port %d level: %w", o.num, err))
		}
	}

	if p.mirrorControlToInputs(s) {
		if err := p.store.Write(); err != nil {
			errs = append(errs, fmt.Errorf("write back settings: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OnSettingChanged applies a change to one of the invert masks.
// Unrelated ids are ignored.
func (p *Ports) OnSettingChanged(id settings.ID) error {
	s := p.store.Settings()
	write := false

	switch id {
	case settings.SettingInvertOut:
		return p.applyOutputInvert(s.IOPort.InvertOut)

	case settings.SettingInvertIn:
		write = p.mirrorInputsToControl(s)

	case settings.SettingControlInvert:
		write = p.mirrorControlToInputs(s)

	default:
		return nil
	}

	if write {
		if err := p.store.Write(); err != nil {
			return fmt.Errorf("write back settings: %w", err)
		}
	}
	return nil
}

type outputLine struct {
	num int
	hw  *hwOutput
}

func (p *Ports) outputLines() []outputLine {
	lines := make([]outputLine, len(p.out))
	for i, o := range p.out {
		lines[i] = outputLine{num: o.num, hw: o.hw}
	}
	return lines
}

// applyOutputInvert flips the physical level of every output whose invert bit
// changed, so its logical state is preserved.
func (p *Ports) applyOutputInvert(mask settings.Mask) error {
	p.mu.Lock()
	old := p.invertOut
	outs := p.outputLines()
	p.mu.Unlock()

	if old == mask {
		return nil
	}

	var errs []error
	for _, o := range outs {
		if old.Bit(o.num) == mask.Bit(o.num) {
			continue
		}
		v, err := o.hw.line.Value()
		if err != nil {
			errs = append(errs, fmt.Errorf("output port %d: %w", o.num, err))
			continue
		}
		if err := o.hw.line.SetValue(!v); err != nil {
			errs = append(errs, fmt.Errorf("output port %d: %w", o.num, err))
		}
	}

	p.mu.Lock()
	p.invertOut = mask
	p.mu.Unlock()
	return errors.Join(errs...)
}

// mirrorControlToInputs copies each control function's invert state onto the
// generic invert bit of the input bound to it. Reports whether anything changed.
func (p *Ports) mirrorControlToInputs(s *settings.Settings) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for _, port := range p.in {
		c := port.hw.pin.Control
		if c == nil {
			continue
		}
		want := s.ControlInvert.Any(c.Mask)
		if s.IOPort.InvertIn.Bit(port.num) != want {
			s.IOPort.InvertIn = s.IOPort.InvertIn.With(port.num, want)
			changed = true
		}
	}
	return changed
}

// mirrorInputsToControl copies each control-bound input's invert bit onto its
// control function's invert bits. Reports whether anything changed.
func (p *Ports) mirrorInputsToControl(s *settings.Settings) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for _, port := range p.in {
		c := port.hw.pin.Control
		if c == nil {
			continue
		}
		want := s.IOPort.InvertIn.Bit(port.num)
		var next settings.Mask
		if want {
			next = s.ControlInvert | c.Mask
		} else {
			next = s.ControlInvert &^ c.Mask
		}
		if next != s.ControlInvert {
			s.ControlInvert = next
			changed = true
		}
	}
	return changed
}
