// Package adc reads the auxiliary analog input converter.
package adc

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddr is the MCP3221A5 bus address.
const DefaultAddr = 0x4D

// MCP3221 is a 12-bit single-channel I2C converter. Every read returns a
// fresh conversion.
type MCP3221 struct {
	dev    i2c.Dev
	closer i2c.BusCloser
}

// NewMCP3221 uses an already opened bus.
func NewMCP3221(bus i2c.Bus, addr uint16) *MCP3221 {
	return &MCP3221{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

// OpenMCP3221 initializes the periph.io host drivers and opens the named
// bus. An empty name selects the first bus found.
func OpenMCP3221(bus string, addr uint16) (*MCP3221, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	m := NewMCP3221(b, addr)
	m.closer = b
	return m, nil
}

// Read returns the conversion result, 0 to 4095.
func (m *MCP3221) Read() (int, error) {
	var buf [2]byte
	if err := m.dev.Tx(nil, buf[:]); err != nil {
		return 0, fmt.Errorf("mcp3221 %#x: %w", m.dev.Addr, err)
	}
	return decode(buf), nil
}

// Locator names the converter the way pin listings show it.
func (m *MCP3221) Locator() string {
	return fmt.Sprintf("MCP3221:%#x", m.dev.Addr)
}

// Close releases the bus if OpenMCP3221 opened it.
func (m *MCP3221) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

// decode drops the four leading zero bits of the big-endian result.
func decode(b [2]byte) int {
	return int(b[0]&0x0F)<<8 | int(b[1])
}
