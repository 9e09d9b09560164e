package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/auxio/internal/gpio"
	"github.com/sweeney/auxio/internal/ioport"
)

const sampleBoard = `
name = "pi-aux"
chip = "gpiochip0"

[[input]]
locator = "17"
group = "aux"
pull = "up"
irq = ["rise", "fall"]

[[input]]
locator = "27"
description = "Feed hold"
irq = ["change"]
control = "feed_hold"

[[output]]
locator = "22"
description = "Air blast"
`

func TestParseBoard(t *testing.T) {
	b, err := Parse(sampleBoard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Backend != BackendCdev {
		t.Errorf("expected default backend cdev, got %q", b.Backend)
	}

	ins, err := b.InputPins()
	if err != nil {
		t.Fatal(err)
	}
	want := []ioport.InputPin{
		{Locator: "17", Group: "aux", Pull: gpio.PullUp, Caps: ioport.Caps{IRQ: ioport.IRQChange}},
		{Locator: "27", Description: "Feed hold", Caps: ioport.Caps{IRQ: ioport.IRQChange},
			Control: &ioport.ControlSignal{Function: "feed_hold", Mask: 1 << 1}},
	}
	if diff := cmp.Diff(want, ins); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}

	outs := b.OutputPins()
	if diff := cmp.Diff([]ioport.OutputPin{{Locator: "22", Description: "Air blast"}}, outs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBoardFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.toml")
	if err := os.WriteFile(path, []byte(sampleBoard), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Name != "pi-aux" || len(b.Inputs) != 2 || len(b.Outputs) != 1 {
		t.Errorf("unexpected board %+v", b)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBoardValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad backend", `backend = "spi"`},
		{"missing locator", "[[input]]\ngroup = \"x\""},
		{"duplicate", "[[input]]\nlocator = \"4\"\n[[output]]\nlocator = \"4\""},
		{"bad toml", "[[input"},
		{"wide adc address", "[adc]\naddress = 0x1FF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseADC(t *testing.T) {
	b, err := Parse("[adc]\nbus = \"/dev/i2c-1\"\ngroup = \"aux\"")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &ADC{Bus: "/dev/i2c-1", Address: 0x4D, Group: "aux"}
	if diff := cmp.Diff(want, b.ADC); diff != "" {
		t.Errorf("adc (-want +got):\n%s", diff)
	}

	b, err = Parse("[adc]\naddress = 0x48")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.ADC.Address != 0x48 {
		t.Errorf("address = %#x, want 0x48", b.ADC.Address)
	}
}

func TestAnalogPinAbsent(t *testing.T) {
	b, err := Parse(sampleBoard)
	if err != nil {
		t.Fatal(err)
	}
	pin, closer := b.AnalogPin()
	if pin != nil || closer != nil {
		t.Errorf("expected no analog pin, got %+v %v", pin, closer)
	}
}

func TestInputPinsErrors(t *testing.T) {
	tests := []struct {
		name string
		line Line
	}{
		{"pull", Line{Locator: "1", Pull: "sideways"}},
		{"irq", Line{Locator: "1", IRQ: []string{"sometimes"}}},
		{"control", Line{Locator: "1", Control: "warp_drive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Board{Inputs: []Line{tt.line}}
			if _, err := b.InputPins(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseIRQ(t *testing.T) {
	for s, want := range map[string]ioport.IRQMode{
		"none":   ioport.IRQNone,
		"rise":   ioport.IRQRising,
		"Fall":   ioport.IRQFalling,
		"change": ioport.IRQChange,
		"high":   ioport.IRQHigh,
		"low":    ioport.IRQLow,
		"all":    ioport.IRQAll,
	} {
		got, err := ParseIRQ(s)
		if err != nil || got != want {
			t.Errorf("ParseIRQ(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
}
