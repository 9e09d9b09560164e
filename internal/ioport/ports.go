package ioport

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/auxio/internal/gpio"
	"github.com/sweeney/auxio/internal/realtime"
	"github.com/sweeney/auxio/internal/settings"
)

// Config configures New.
type Config struct {
	Chip    gpio.Chip
	Inputs  []InputPin
	Outputs []OutputPin
	Analog  *AnalogPin // optional
	Store   SettingsStore
	Runtime *realtime.Runtime
}

type hwInput struct {
	id   int
	pin  InputPin
	line gpio.Input
}

type hwOutput struct {
	pin  OutputPin
	line gpio.Output
}

type binding struct {
	mode IRQMode
	cb   InterruptCallback
}

type inputPort struct {
	num         int
	hw          *hwInput
	description string
	claimed     bool
	binding     atomic.Pointer[binding]
}

type outputPort struct {
	num         int
	hw          *hwOutput
	description string
	claimed     bool
}

// Ports is the claim manager and event engine for one board.
type Ports struct {
	store SettingsStore
	rt    *realtime.Runtime

	// mu guards the pools, port records and hardware ownership. It is held
	// only for bookkeeping, never across line I/O waits or callbacks.
	mu        sync.Mutex
	in        []*inputPort
	out       []*outputPort
	inHW      []*hwInput
	owner     []int // hardware input id -> port number
	inPool    pool
	outPool   pool
	inLabels  []string
	outLabels []string
	an        *analogPort
	anPool    pool

	invertOut settings.Mask

	pending atomic.Uint64 // one bit per hardware input
	busy    atomic.Bool   // set while OnEvent runs
	isr     sync.Mutex    // serializes OnEvent; interrupts do not nest
}

// New requests every board line from cfg.Chip and builds identity pools.
func New(cfg Config) (*Ports, error) {
	if cfg.Chip == nil || cfg.Store == nil || cfg.Runtime == nil {
		return nil, errors.New("ioport: chip, store and runtime are required")
	}
	if len(cfg.Inputs) > MaxPorts || len(cfg.Outputs) > MaxPorts {
		return nil, fmt.Errorf("ioport: at most %d ports per direction (got %d in, %d out)",
			MaxPorts, len(cfg.Inputs), len(cfg.Outputs))
	}

	p := &Ports{
		store:     cfg.Store,
		rt:        cfg.Runtime,
		inPool:    newPool(len(cfg.Inputs)),
		outPool:   newPool(len(cfg.Outputs)),
		owner:     make([]int, len(cfg.Inputs)),
		inLabels:  make([]string, len(cfg.Inputs)),
		outLabels: make([]string, len(cfg.Outputs)),
	}

	supported := IRQMode(cfg.Chip.Triggers())
	for i, pin := range cfg.Inputs {
		pin.Caps.IRQ &= supported
		hw := &hwInput{id: i, pin: pin}

		var handler gpio.EventHandler
		if pin.Caps.IRQ != IRQNone {
			id := i
			handler = func() { p.OnEvent(id) }
		}
		line, err := cfg.Chip.RequestInput(pin.Locator, pin.Pull, handler)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("ioport: input %d (%s): %w", i, pin.Locator, err)
		}
		hw.line = line

		p.inLabels[i] = fmt.Sprintf("Aux in %d", i)
		desc := pin.Description
		if desc == "" {
			desc = p.inLabels[i]
		}
		p.inHW = append(p.inHW, hw)
		p.in = append(p.in, &inputPort{num: i, hw: hw, description: desc})
		p.owner[i] = i
	}

	for i, pin := range cfg.Outputs {
		line, err := cfg.Chip.RequestOutput(pin.Locator)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("ioport: output %d (%s): %w", i, pin.Locator, err)
		}
		p.outLabels[i] = fmt.Sprintf("Aux out %d", i)
		desc := pin.Description
		if desc == "" {
			desc = p.outLabels[i]
		}
		p.out = append(p.out, &outputPort{num: i, hw: &hwOutput{pin: pin, line: line}, description: desc})
	}

	p.anPool = newPool(0)
	if cfg.Analog != nil {
		p.an = newAnalogPort(*cfg.Analog)
		p.anPool = newPool(1)
	}

	p.invertOut = cfg.Store.Settings().IOPort.InvertOut
	return p, nil
}

// Events returns the input operations, or false if the board has no inputs.
func (p *Ports) Events() (EventSource, bool) {
	if len(p.in) == 0 {
		return nil, false
	}
	return inputEvents{p}, true
}

// Writer returns the output operation, or false if the board has no outputs.
func (p *Ports) Writer() (DigitalWriter, bool) {
	if len(p.out) == 0 {
		return nil, false
	}
	return outputWriter{p}, true
}

type inputEvents struct{ p *Ports }

func (e inputEvents) WaitOnInput(logical int, mode WaitMode, timeout time.Duration) (bool, error) {
	return e.p.waitOnInput(logical, mode, timeout)
}

func (e inputEvents) RegisterInterruptHandler(logical int, mode IRQMode, cb InterruptCallback) error {
	return e.p.registerInterruptHandler(logical, mode, cb)
}

type outputWriter struct{ p *Ports }

func (w outputWriter) DigitalOut(logical int, on bool) error {
	return w.p.digitalOut(logical, on)
}

func (p *Ports) pool(dir Direction) *pool {
	switch dir {
	case Output:
		return &p.outPool
	case Analog:
		return &p.anPool
	default:
		return &p.inPool
	}
}

func (p *Ports) claimedLocked(dir Direction) func(port int) bool {
	switch dir {
	case Output:
		return func(n int) bool { return p.out[n].claimed }
	case Analog:
		return func(int) bool { return p.an.claimed }
	default:
		return func(n int) bool { return p.in[n].claimed }
	}
}

// Count returns the total number of ports in dir, claimed or not.
func (p *Ports) Count(dir Direction) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool(dir).len()
}

// Available returns the number of unclaimed ports in dir. Their logical
// indices are exactly [0, Available). An analog port without power is never
// available.
func (p *Ports) Available(dir Direction) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dir == Analog && (p.an == nil || !p.an.powered) {
		return 0
	}
	return p.pool(dir).available
}

// Map returns the port number behind a logical index.
func (p *Ports) Map(dir Direction, logical int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl := p.pool(dir)
	if !pl.valid(logical) {
		return 0, ErrOutOfRange
	}
	return pl.m[logical], nil
}

// MapReverse returns the logical index currently addressing a port number.
func (p *Ports) MapReverse(dir Direction, port int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl := p.pool(dir)
	if !pl.valid(port) {
		return 0, ErrOutOfRange
	}
	logical := pl.reverse(port)
	if logical < 0 {
		panic(fmt.Sprintf("ioport: %s port %d missing from pool", dir, port))
	}
	return logical, nil
}

// Claim removes a port from the generic pool for dedicated use and returns
// the logical index it must be addressed by from now on. Ports shifted to
// close the gap are relabelled with their default description. Claims are
// permanent.
func (p *Ports) Claim(dir Direction, logical int, description string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := p.pool(dir)
	if !pl.valid(logical) {
		return 0, ErrOutOfRange
	}
	claimed := p.claimedLocked(dir)
	if claimed(pl.m[logical]) {
		return 0, ErrAlreadyClaimed
	}
	if dir == Analog && !p.an.powered {
		return 0, fmt.Errorf("%w: analog input %s has no power", ErrCapability, p.an.pin.Locator)
	}
	if logical >= pl.available {
		panic(fmt.Sprintf("ioport: unclaimed %s port at %d beyond available %d", dir, logical, pl.available))
	}

	port := pl.m[logical]
	var idx int
	switch dir {
	case Output:
		idx = pl.claim(logical, func(n, i int) { p.out[n].description = p.outLabels[i] })
		p.out[port].claimed = true
		p.out[port].description = description
	case Analog:
		idx = pl.claim(logical, func(int, int) {})
		p.an.claimed = true
		p.an.description = description
	default:
		idx = pl.claim(logical, func(n, i int) {
			p.in[n].description = p.inLabels[i]
			if p.in[n].binding.Load() != nil {
				log.Printf("ioport: claim renumbered input port %d to %d with a live interrupt binding", n, i)
			}
		})
		p.in[port].claimed = true
		p.in[port].description = description
	}
	pl.verify(dir, claimed)
	return idx, nil
}

// SwapPins exchanges the hardware behind two logical indices. Descriptions,
// claim state and invert bits stay with the logical port; only the line moves.
func (p *Ports) SwapPins(dir Direction, a, b int) error {
	if a == b {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pl := p.pool(dir)
	if !pl.valid(a) || !pl.valid(b) {
		return ErrOutOfRange
	}
	na, nb := pl.m[a], pl.m[b]

	switch dir {
	case Analog:
		return ErrOutOfRange
	case Output:
		p.out[na].hw, p.out[nb].hw = p.out[nb].hw, p.out[na].hw
		return nil
	}

	pa, pb := p.in[na], p.in[nb]
	if pa.binding.Load() != nil || pb.binding.Load() != nil {
		return ErrBusy
	}
	pa.hw, pb.hw = pb.hw, pa.hw
	p.owner[pa.hw.id] = na
	p.owner[pb.hw.id] = nb
	return nil
}

// SetDescription replaces a port's description.
func (p *Ports) SetDescription(dir Direction, logical int, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := p.pool(dir)
	if !pl.valid(logical) {
		return ErrOutOfRange
	}
	switch dir {
	case Output:
		p.out[pl.m[logical]].description = text
	case Analog:
		p.an.description = text
	default:
		p.in[pl.m[logical]].description = text
	}
	return nil
}

// PinInfo returns a copy of the descriptor behind a logical index.
func (p *Ports) PinInfo(dir Direction, logical int) (PinInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := p.pool(dir)
	if !pl.valid(logical) {
		return PinInfo{}, ErrOutOfRange
	}
	return p.pinInfoLocked(dir, logical), nil
}

// Ports returns descriptors for every logical index in dir, in order.
func (p *Ports) Ports(dir Direction) []PinInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := p.pool(dir)
	infos := make([]PinInfo, pl.len())
	for i := range infos {
		infos[i] = p.pinInfoLocked(dir, i)
	}
	return infos
}

func (p *Ports) pinInfoLocked(dir Direction, logical int) PinInfo {
	if dir == Analog {
		return p.analogInfoLocked(logical)
	}
	s := p.store.Settings()
	num := p.pool(dir).m[logical]

	if dir == Output {
		port := p.out[num]
		return PinInfo{
			Direction:   Output,
			Logical:     logical,
			Port:        num,
			Locator:     port.hw.pin.Locator,
			Group:       port.hw.pin.Group,
			Inverted:    s.IOPort.InvertOut.Bit(num),
			Claimable:   !port.claimed,
			Description: port.description,
			Value:       func() (bool, error) { return p.outputState(port) },
		}
	}

	port := p.in[num]
	info := PinInfo{
		Direction:   Input,
		Logical:     logical,
		Port:        num,
		Locator:     port.hw.pin.Locator,
		Group:       port.hw.pin.Group,
		Caps:        port.hw.pin.Caps,
		Inverted:    s.IOPort.InvertIn.Bit(num),
		Claimable:   !port.claimed,
		Description: port.description,
		Value:       func() (bool, error) { return p.inputState(port) },
	}
	if c := port.hw.pin.Control; c != nil {
		info.Function = c.Function
	}
	if b := port.binding.Load(); b != nil {
		info.Armed = b.mode
	}
	info.Pending = p.pending.Load()&(uint64(1)<<uint(port.hw.id)) != 0
	return info
}

func (p *Ports) inputState(port *inputPort) (bool, error) {
	p.mu.Lock()
	hw := port.hw
	p.mu.Unlock()
	v, err := hw.line.Value()
	if err != nil {
		return false, err
	}
	return v != p.store.Settings().IOPort.InvertIn.Bit(port.num), nil
}

func (p *Ports) outputState(port *outputPort) (bool, error) {
	p.mu.Lock()
	hw := port.hw
	p.mu.Unlock()
	v, err := hw.line.Value()
	if err != nil {
		return false, err
	}
	return v != p.store.Settings().IOPort.InvertOut.Bit(port.num), nil
}

func (p *Ports) digitalOut(logical int, on bool) error {
	p.mu.Lock()
	if !p.outPool.valid(logical) {
		p.mu.Unlock()
		return ErrOutOfRange
	}
	port := p.out[p.outPool.m[logical]]
	hw := port.hw
	p.mu.Unlock()

	return hw.line.SetValue(on != p.store.Settings().IOPort.InvertOut.Bit(port.num))
}

// Close releases every line.
func (p *Ports) Close() error {
	var errs []error
	for _, hw := range p.inHW {
		if err := hw.line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, port := range p.out {
		if err := port.hw.line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
