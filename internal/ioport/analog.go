package ioport

import (
	"fmt"
	"log"
)

// Descriptions of the analog port before it is claimed.
const (
	analogPowered   = "E0"
	analogUnpowered = "No power"
)

type analogPort struct {
	pin     AnalogPin
	powered bool // fixed by the first read in New

	claimed     bool
	description string
}

// newAnalogPort reads the converter once. A converter that does not answer
// leaves the port listed but unclaimable.
func newAnalogPort(pin AnalogPin) *analogPort {
	a := &analogPort{pin: pin, description: analogUnpowered}
	if pin.ADC == nil {
		log.Printf("ioport: analog input %s has no converter", pin.Locator)
		return a
	}
	if _, err := pin.ADC.Read(); err != nil {
		log.Printf("ioport: analog input %s not responding: %v", pin.Locator, err)
		return a
	}
	a.powered = true
	a.description = analogPowered
	return a
}

// Analog returns the analog read operation, or false if the board has no
// powered converter.
func (p *Ports) Analog() (AnalogReader, bool) {
	if p.an == nil || !p.an.powered {
		return nil, false
	}
	return analogReader{p}, true
}

type analogReader struct{ p *Ports }

func (r analogReader) ReadAnalog(logical int) (int, error) {
	return r.p.readAnalog(logical)
}

func (p *Ports) readAnalog(logical int) (int, error) {
	p.mu.Lock()
	if !p.anPool.valid(logical) {
		p.mu.Unlock()
		return 0, ErrOutOfRange
	}
	a := p.an
	p.mu.Unlock()

	if !a.powered {
		return 0, fmt.Errorf("%w: analog input %s has no power", ErrCapability, a.pin.Locator)
	}
	return a.pin.ADC.Read()
}

func (p *Ports) analogInfoLocked(logical int) PinInfo {
	a := p.an
	read := func() (int, error) { return p.readAnalog(logical) }
	return PinInfo{
		Direction:   Analog,
		Logical:     logical,
		Port:        p.anPool.m[logical],
		Locator:     a.pin.Locator,
		Group:       a.pin.Group,
		Caps:        Caps{Analog: a.powered},
		Claimable:   a.powered && !a.claimed,
		Description: a.description,
		Reading:     read,
		Value: func() (bool, error) {
			v, err := read()
			return v != 0, err
		},
	}
}
