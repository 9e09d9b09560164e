package adc

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestDecodeMasksHighNibble(t *testing.T) {
	tests := []struct {
		in   [2]byte
		want int
	}{
		{[2]byte{0x00, 0x00}, 0},
		{[2]byte{0x0F, 0xFF}, 4095},
		{[2]byte{0x08, 0x00}, 2048},
		{[2]byte{0xF1, 0x23}, 0x123},
	}
	for _, tt := range tests {
		if got := decode(tt.in); got != tt.want {
			t.Errorf("decode(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMCP3221Read(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: DefaultAddr, R: []byte{0x0A, 0xBC}},
		{Addr: DefaultAddr, R: []byte{0x00, 0x07}},
	}}
	m := NewMCP3221(bus, DefaultAddr)

	for _, want := range []int{0xABC, 7} {
		got, err := m.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got != want {
			t.Errorf("Read = %d, want %d", got, want)
		}
	}
	if err := bus.Close(); err != nil {
		t.Errorf("unconsumed bus traffic: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close on a borrowed bus: %v", err)
	}
}

func TestMCP3221ReadError(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	m := NewMCP3221(bus, DefaultAddr)

	if _, err := m.Read(); err == nil {
		t.Fatal("expected an error from a silent bus")
	}
}

func TestMCP3221Locator(t *testing.T) {
	m := NewMCP3221(&i2ctest.Playback{}, 0x48)
	if got := m.Locator(); got != "MCP3221:0x48" {
		t.Errorf("Locator = %q", got)
	}
}

func TestFake(t *testing.T) {
	f := NewFake(100)
	if v, err := f.Read(); err != nil || v != 100 {
		t.Fatalf("Read = %d, %v", v, err)
	}
	f.Set(200)
	boom := errors.New("boom")
	f.Fail(boom)
	if _, err := f.Read(); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	f.Fail(nil)
	if v, _ := f.Read(); v != 200 {
		t.Errorf("Read after Set = %d", v)
	}
	if f.Reads() != 3 {
		t.Errorf("Reads = %d, want 3", f.Reads())
	}
}
