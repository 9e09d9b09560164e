package ioport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/auxio/internal/gpio"
	"github.com/sweeney/auxio/internal/realtime"
	"github.com/sweeney/auxio/internal/settings"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ports *Ports
	chip  *gpio.FakeChip
	clk   *realtime.SteppingClock
	rt    *realtime.Runtime
	store *settings.Store
}

func newFixture(t *testing.T, nIn, nOut int, s settings.Settings) *fixture {
	t.Helper()
	var ins []InputPin
	for i := 0; i < nIn; i++ {
		ins = append(ins, InputPin{Locator: fmt.Sprintf("in%d", i), Caps: Caps{IRQ: IRQAll}})
	}
	var outs []OutputPin
	for i := 0; i < nOut; i++ {
		outs = append(outs, OutputPin{Locator: fmt.Sprintf("out%d", i)})
	}
	return newFixtureWithPins(t, ins, outs, s)
}

func newFixtureWithPins(t *testing.T, ins []InputPin, outs []OutputPin, s settings.Settings) *fixture {
	t.Helper()
	f := &fixture{
		chip:  gpio.NewFakeChip(),
		clk:   realtime.NewSteppingClock(t0),
		store: settings.NewMemoryStore(s),
	}
	f.rt = realtime.New(realtime.Config{Clock: f.clk})
	p, err := New(Config{Chip: f.chip, Inputs: ins, Outputs: outs, Store: f.store, Runtime: f.rt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.ports = p
	return f
}

func logicalMap(p *Ports, dir Direction) []int {
	var m []int
	for i := 0; i < p.Count(dir); i++ {
		n, _ := p.Map(dir, i)
		m = append(m, n)
	}
	return m
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestNewRejectsTooManyPorts(t *testing.T) {
	ins := make([]InputPin, MaxPorts+1)
	for i := range ins {
		ins[i].Locator = fmt.Sprintf("in%d", i)
	}
	_, err := New(Config{
		Chip:    gpio.NewFakeChip(),
		Inputs:  ins,
		Store:   settings.NewMemoryStore(settings.Defaults()),
		Runtime: realtime.New(realtime.Config{Clock: realtime.NewSteppingClock(t0)}),
	})
	if err == nil {
		t.Error("expected error for more than MaxPorts inputs")
	}
}

func TestNewPropagatesRequestError(t *testing.T) {
	chip := gpio.NewFakeChip()
	chip.RequestError = errors.New("busy")
	_, err := New(Config{
		Chip:    chip,
		Inputs:  []InputPin{{Locator: "in0"}},
		Store:   settings.NewMemoryStore(settings.Defaults()),
		Runtime: realtime.New(realtime.Config{Clock: realtime.NewSteppingClock(t0)}),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, chip.RequestError) {
		t.Errorf("expected wrapped request error, got %v", err)
	}
}

func TestIdentityMapAfterInit(t *testing.T) {
	f := newFixture(t, 4, 3, settings.Defaults())
	p := f.ports

	if got := logicalMap(p, Input); !cmp.Equal(got, []int{0, 1, 2, 3}) {
		t.Errorf("input map = %v", got)
	}
	if got := logicalMap(p, Output); !cmp.Equal(got, []int{0, 1, 2}) {
		t.Errorf("output map = %v", got)
	}
	if p.Available(Input) != 4 || p.Available(Output) != 3 {
		t.Errorf("expected everything available, got in=%d out=%d", p.Available(Input), p.Available(Output))
	}

	info, err := p.PinInfo(Input, 2)
	if err != nil {
		t.Fatal(err)
	}
	if info.Description != "Aux in 2" {
		t.Errorf("expected default label, got %q", info.Description)
	}
	if !info.Claimable {
		t.Error("new port should be claimable")
	}
}

func TestMapOutOfRange(t *testing.T) {
	f := newFixture(t, 2, 0, settings.Defaults())
	for _, logical := range []int{-1, 2, 99} {
		if _, err := f.ports.Map(Input, logical); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Map(%d): expected ErrOutOfRange, got %v", logical, err)
		}
	}
	if _, err := f.ports.MapReverse(Output, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange on empty output pool, got %v", err)
	}
}

func TestClaimMovesPortToTail(t *testing.T) {
	f := newFixture(t, 4, 0, settings.Defaults())
	p := f.ports

	idx, err := p.Claim(Input, 1, "Probe")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if idx != 3 {
		t.Errorf("expected claimed index 3, got %d", idx)
	}
	if got := logicalMap(p, Input); !cmp.Equal(got, []int{0, 2, 3, 1}) {
		t.Errorf("map after claim = %v", got)
	}
	if p.Available(Input) != 3 {
		t.Errorf("expected 3 available, got %d", p.Available(Input))
	}

	info, _ := p.PinInfo(Input, 3)
	if info.Description != "Probe" || info.Claimable {
		t.Errorf("claimed port info = %+v", info)
	}
	// Shifted ports take the label of their new index.
	info, _ = p.PinInfo(Input, 1)
	if info.Port != 2 || info.Description != "Aux in 1" {
		t.Errorf("shifted port info = port %d %q", info.Port, info.Description)
	}

	// Claim the lowest free port next; it lands just below the first claim.
	idx, err = p.Claim(Input, 0, "Door")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 {
		t.Errorf("expected second claim at 2, got %d", idx)
	}
	if got := logicalMap(p, Input); !cmp.Equal(got, []int{2, 3, 0, 1}) {
		t.Errorf("map after second claim = %v", got)
	}
}

func TestClaimTwiceFails(t *testing.T) {
	f := newFixture(t, 0, 2, settings.Defaults())
	idx, err := f.ports.Claim(Output, 0, "Spindle")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ports.Claim(Output, idx, "Again"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	if _, err := f.ports.Claim(Output, 5, "Nope"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestMapReverseIsInverse(t *testing.T) {
	f := newFixture(t, 6, 0, settings.Defaults())
	p := f.ports
	p.Claim(Input, 4, "a")
	p.Claim(Input, 0, "b")
	p.Claim(Input, 2, "c")

	for logical := 0; logical < p.Count(Input); logical++ {
		port, err := p.Map(Input, logical)
		if err != nil {
			t.Fatal(err)
		}
		back, err := p.MapReverse(Input, port)
		if err != nil {
			t.Fatal(err)
		}
		if back != logical {
			t.Errorf("MapReverse(Map(%d)) = %d", logical, back)
		}
	}
}

func TestSwapPinsMovesHardwareOnly(t *testing.T) {
	f := newFixture(t, 3, 0, settings.Defaults())
	p := f.ports
	p.SetDescription(Input, 0, "Left")
	p.SetDescription(Input, 2, "Right")

	if err := p.SwapPins(Input, 0, 2); err != nil {
		t.Fatalf("SwapPins failed: %v", err)
	}

	left, _ := p.PinInfo(Input, 0)
	right, _ := p.PinInfo(Input, 2)
	if left.Description != "Left" || right.Description != "Right" {
		t.Errorf("descriptions moved: %q %q", left.Description, right.Description)
	}
	if left.Locator != "in2" || right.Locator != "in0" {
		t.Errorf("locators not swapped: %q %q", left.Locator, right.Locator)
	}

	// Reading logical 0 now reads line in2.
	f.chip.Input("in2").Set(true)
	ev, _ := p.Events()
	v, err := ev.WaitOnInput(0, WaitImmediate, 0)
	if err != nil || !v {
		t.Errorf("expected logical 0 to read in2 high, got %v %v", v, err)
	}
}

func TestSwapPinsSameIndexIsNoop(t *testing.T) {
	f := newFixture(t, 2, 0, settings.Defaults())
	if err := f.ports.SwapPins(Input, 1, 1); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	info, _ := f.ports.PinInfo(Input, 1)
	if info.Locator != "in1" {
		t.Errorf("expected in1, got %s", info.Locator)
	}
}

func TestSwapPinsRejectsLiveBinding(t *testing.T) {
	f := newFixture(t, 2, 0, settings.Defaults())
	ev, _ := f.ports.Events()
	if err := ev.RegisterInterruptHandler(1, IRQRising, func(int, bool) {}); err != nil {
		t.Fatal(err)
	}
	if err := f.ports.SwapPins(Input, 0, 1); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	ev.RegisterInterruptHandler(1, IRQNone, nil)
	if err := f.ports.SwapPins(Input, 0, 1); err != nil {
		t.Errorf("expected swap after disarm to succeed, got %v", err)
	}
}

func TestSwapPinsOutputs(t *testing.T) {
	f := newFixture(t, 0, 2, settings.Defaults())
	p := f.ports
	if err := p.SwapPins(Output, 0, 1); err != nil {
		t.Fatal(err)
	}
	w, _ := p.Writer()
	if err := w.DigitalOut(0, true); err != nil {
		t.Fatal(err)
	}
	if !f.chip.Output("out1").Level() {
		t.Error("expected logical 0 to drive out1 after swap")
	}
	if f.chip.Output("out0").Level() {
		t.Error("out0 should be untouched")
	}
}

func TestCapabilityGating(t *testing.T) {
	f := newFixture(t, 0, 1, settings.Defaults())
	if _, ok := f.ports.Events(); ok {
		t.Error("board without inputs should not expose events")
	}
	if _, ok := f.ports.Writer(); !ok {
		t.Error("board with outputs should expose writer")
	}

	f = newFixture(t, 1, 0, settings.Defaults())
	if _, ok := f.ports.Writer(); ok {
		t.Error("board without outputs should not expose writer")
	}
}

func TestDigitalOutAppliesInvert(t *testing.T) {
	s := settings.Defaults()
	s.IOPort.InvertOut = 0b10
	f := newFixture(t, 0, 2, s)
	w, _ := f.ports.Writer()

	w.DigitalOut(0, true)
	w.DigitalOut(1, true)
	if !f.chip.Output("out0").Level() {
		t.Error("out0 should be high")
	}
	if f.chip.Output("out1").Level() {
		t.Error("inverted out1 should be low")
	}

	info, _ := f.ports.PinInfo(Output, 1)
	v, err := info.Value()
	if err != nil || !v {
		t.Errorf("expected logical on, got %v %v", v, err)
	}
	if err := w.DigitalOut(2, true); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestInvertFollowsPortNumberAcrossClaim(t *testing.T) {
	s := settings.Defaults()
	s.IOPort.InvertIn = 1 << 0
	f := newFixture(t, 3, 0, s)

	idx, _ := f.ports.Claim(Input, 0, "Probe")
	info, _ := f.ports.PinInfo(Input, idx)
	if !info.Inverted || info.Port != 0 {
		t.Errorf("expected port 0 inverted after claim, got %+v", info)
	}
	info, _ = f.ports.PinInfo(Input, 0)
	if info.Inverted {
		t.Error("port shifted to logical 0 should not inherit the invert bit")
	}
}

func TestPortsListing(t *testing.T) {
	f := newFixture(t, 2, 1, settings.Defaults())
	ins := f.ports.Ports(Input)
	if len(ins) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(ins))
	}
	for i, info := range ins {
		if info.Logical != i || info.Direction != Input {
			t.Errorf("entry %d = %+v", i, info)
		}
	}
}

func TestCloseReleasesLines(t *testing.T) {
	f := newFixture(t, 1, 1, settings.Defaults())
	if err := f.ports.Close(); err != nil {
		t.Fatal(err)
	}
	if !f.chip.Input("in0").Closed() || !f.chip.Output("out0").Closed() {
		t.Error("expected every line closed")
	}
}

func TestChipTriggersMaskCaps(t *testing.T) {
	chip := gpio.NewFakeChip()
	chip.Supported = gpio.TriggerBoth
	rt := realtime.New(realtime.Config{Clock: realtime.NewSteppingClock(t0)})
	p, err := New(Config{
		Chip:    chip,
		Inputs:  []InputPin{{Locator: "in0", Caps: Caps{IRQ: IRQAll}}},
		Store:   settings.NewMemoryStore(settings.Defaults()),
		Runtime: rt,
	})
	if err != nil {
		t.Fatal(err)
	}
	info, _ := p.PinInfo(Input, 0)
	if info.Caps.IRQ != IRQChange {
		t.Errorf("expected caps masked to change, got %s", info.Caps.IRQ)
	}
	ev, _ := p.Events()
	if err := ev.RegisterInterruptHandler(0, IRQHigh, func(int, bool) {}); !errors.Is(err, ErrCapability) {
		t.Errorf("expected ErrCapability for unsupported level trigger, got %v", err)
	}
}

func TestIRQModeString(t *testing.T) {
	tests := []struct {
		m    IRQMode
		want string
	}{
		{IRQNone, "none"},
		{IRQRising, "rise"},
		{IRQChange, "rise,fall"},
		{IRQAll, "rise,fall,high,low"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}
