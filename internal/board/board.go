// Package board loads the board pin table: which GPIO lines exist, what
// they can do and which control functions they are wired to.
package board

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sweeney/auxio/internal/adc"
	"github.com/sweeney/auxio/internal/gpio"
	"github.com/sweeney/auxio/internal/ioport"
	"github.com/sweeney/auxio/internal/settings"
)

// Backend names.
const (
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
)

// Control function bits in the control invert mask.
var controlBits = map[string]uint{
	"reset":              0,
	"feed_hold":          1,
	"cycle_start":        2,
	"safety_door":        3,
	"block_delete":       4,
	"stop_disable":       5,
	"e_stop":             6,
	"probe_disconnected": 7,
	"motor_fault":        8,
}

// ControlMask returns the control invert bit for a function name.
func ControlMask(function string) (settings.Mask, bool) {
	bit, ok := controlBits[function]
	if !ok {
		return 0, false
	}
	return settings.Mask(1) << bit, true
}

// Line is one [[input]] or [[output]] table entry.
type Line struct {
	Locator     string   `toml:"locator"`
	Group       string   `toml:"group"`
	Description string   `toml:"description"`
	Pull        string   `toml:"pull"`
	IRQ         []string `toml:"irq"`
	Control     string   `toml:"control"`
}

// ADC is the optional [adc] table for an MCP3221 on an I2C bus.
type ADC struct {
	Bus     string `toml:"bus"` // empty selects the first bus
	Address uint16 `toml:"address"`
	Group   string `toml:"group"`
}

// Board is the decoded board file.
type Board struct {
	Name    string `toml:"name"`
	Backend string `toml:"backend"`
	Chip    string `toml:"chip"`
	Inputs  []Line `toml:"input"`
	Outputs []Line `toml:"output"`
	ADC     *ADC   `toml:"adc"`
}

// Load reads and validates a board file.
func Load(path string) (*Board, error) {
	var b Board
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, fmt.Errorf("load board %s: %w", path, err)
	}
	if err := b.normalize(); err != nil {
		return nil, fmt.Errorf("board %s: %w", path, err)
	}
	return &b, nil
}

// Parse decodes and validates a board table from TOML text.
func Parse(data string) (*Board, error) {
	var b Board
	if _, err := toml.Decode(data, &b); err != nil {
		return nil, fmt.Errorf("parse board: %w", err)
	}
	if err := b.normalize(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Board) normalize() error {
	if b.Backend == "" {
		b.Backend = BackendCdev
	}
	if b.Backend != BackendCdev && b.Backend != BackendPeriph {
		return fmt.Errorf("unknown backend %q", b.Backend)
	}
	if b.Backend == BackendCdev && b.Chip == "" {
		b.Chip = "gpiochip0"
	}
	if b.ADC != nil && b.ADC.Address == 0 {
		b.ADC.Address = adc.DefaultAddr
	}
	if b.ADC != nil && b.ADC.Address > 0x7F {
		return fmt.Errorf("adc address %#x is not a 7-bit address", b.ADC.Address)
	}
	if len(b.Inputs) > ioport.MaxPorts || len(b.Outputs) > ioport.MaxPorts {
		return fmt.Errorf("at most %d lines per direction", ioport.MaxPorts)
	}

	seen := make(map[string]bool)
	for _, l := range append(append([]Line(nil), b.Inputs...), b.Outputs...) {
		if l.Locator == "" {
			return errors.New("line without locator")
		}
		if seen[l.Locator] {
			return fmt.Errorf("line %s listed twice", l.Locator)
		}
		seen[l.Locator] = true
	}
	return nil
}

// InputPins converts the input table.
func (b *Board) InputPins() ([]ioport.InputPin, error) {
	pins := make([]ioport.InputPin, 0, len(b.Inputs))
	for i, l := range b.Inputs {
		pull, err := parsePull(l.Pull)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		irq, err := parseIRQ(l.IRQ)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		pin := ioport.InputPin{
			Locator:     l.Locator,
			Group:       l.Group,
			Description: l.Description,
			Pull:        pull,
			Caps:        ioport.Caps{IRQ: irq},
		}
		if l.Control != "" {
			mask, ok := ControlMask(l.Control)
			if !ok {
				return nil, fmt.Errorf("input %d: unknown control function %q", i, l.Control)
			}
			pin.Control = &ioport.ControlSignal{Function: l.Control, Mask: mask}
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

// OutputPins converts the output table.
func (b *Board) OutputPins() []ioport.OutputPin {
	pins := make([]ioport.OutputPin, 0, len(b.Outputs))
	for _, l := range b.Outputs {
		pins = append(pins, ioport.OutputPin{
			Locator:     l.Locator,
			Group:       l.Group,
			Description: l.Description,
		})
	}
	return pins
}

// OpenChip opens the GPIO backend named by the board.
func (b *Board) OpenChip() (gpio.Chip, error) {
	if b.Backend == BackendPeriph {
		c, err := gpio.NewPeriphChip()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := gpio.NewCdevChip(b.Chip)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AnalogPin opens the converter named by the [adc] table. It returns nil if
// the board has none. A converter that cannot be opened is logged and the
// port is listed without power.
func (b *Board) AnalogPin() (*ioport.AnalogPin, io.Closer) {
	if b.ADC == nil {
		return nil, nil
	}
	pin := &ioport.AnalogPin{
		Locator: fmt.Sprintf("MCP3221:%#x", b.ADC.Address),
		Group:   b.ADC.Group,
	}
	m, err := adc.OpenMCP3221(b.ADC.Bus, b.ADC.Address)
	if err != nil {
		log.Printf("board: analog input: %v", err)
		return pin, nil
	}
	pin.ADC = m
	return pin, m
}

func parsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return gpio.PullNone, nil
	case "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	default:
		return gpio.PullNone, fmt.Errorf("unknown pull %q", s)
	}
}

// ParseIRQ parses a single interrupt mode name.
func ParseIRQ(s string) (ioport.IRQMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return ioport.IRQNone, nil
	case "rise", "rising":
		return ioport.IRQRising, nil
	case "fall", "falling":
		return ioport.IRQFalling, nil
	case "change", "both":
		return ioport.IRQChange, nil
	case "high":
		return ioport.IRQHigh, nil
	case "low":
		return ioport.IRQLow, nil
	case "all":
		return ioport.IRQAll, nil
	default:
		return ioport.IRQNone, fmt.Errorf("unknown irq mode %q", s)
	}
}

func parseIRQ(modes []string) (ioport.IRQMode, error) {
	var m ioport.IRQMode
	for _, s := range modes {
		v, err := ParseIRQ(s)
		if err != nil {
			return 0, err
		}
		m |= v
	}
	return m, nil
}
