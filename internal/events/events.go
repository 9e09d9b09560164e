// Package events forwards input interrupts to MQTT.
//
// Interrupt callbacks only enqueue; a single goroutine resolves the port,
// applies the per-port rate limit and publishes.
package events

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/sweeney/auxio/internal/ioport"
	"github.com/sweeney/auxio/internal/mqtt"
)

// DefaultQueue is the event queue depth.
const DefaultQueue = 64

// DefaultRates allows bursts of 10 events a second per port, and 120 a minute.
var DefaultRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 120,
}

// PortLookup resolves a logical input index to its descriptor.
type PortLookup interface {
	PinInfo(dir ioport.Direction, logical int) (ioport.PinInfo, error)
}

// Config configures a Forwarder.
type Config struct {
	Publisher mqtt.Publisher
	Ports     PortLookup
	Clock     clock.Clock           // nil uses the wall clock
	Rates     map[time.Duration]int // nil uses DefaultRates; empty disables limiting
	Queue     int
}

type pending struct {
	logical int
	level   bool
	mode    ioport.IRQMode
	at      time.Time
}

// Stats are the forwarder counters.
type Stats struct {
	Published uint64
	Limited   uint64
	Dropped   uint64
	Failed    uint64
}

// Forwarder turns interrupt callbacks into published port events.
type Forwarder struct {
	pub     mqtt.Publisher
	ports   PortLookup
	clock   clock.Clock
	limiter *catrate.Limiter

	queue chan pending
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	published atomic.Uint64
	limited   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Forwarder and starts its publishing goroutine.
func New(cfg Config) *Forwarder {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	rates := cfg.Rates
	if rates == nil {
		rates = DefaultRates
	}
	q := cfg.Queue
	if q <= 0 {
		q = DefaultQueue
	}

	f := &Forwarder{
		pub:   cfg.Publisher,
		ports: cfg.Ports,
		clock: clk,
		queue: make(chan pending, q),
		done:  make(chan struct{}),
	}
	if len(rates) > 0 {
		f.limiter = catrate.NewLimiter(rates)
	}

	f.wg.Add(1)
	go f.run()
	return f
}

// Callback returns an interrupt callback for a handler armed with mode.
// It never blocks; events that do not fit the queue are counted and dropped.
func (f *Forwarder) Callback(mode ioport.IRQMode) ioport.InterruptCallback {
	return func(logical int, level bool) {
		select {
		case f.queue <- pending{logical: logical, level: level, mode: mode, at: f.clock.Now()}:
		default:
			f.dropped.Add(1)
		}
	}
}

// Arm registers a forwarding callback on an input.
func (f *Forwarder) Arm(ev ioport.EventSource, logical int, mode ioport.IRQMode) error {
	if mode == ioport.IRQNone {
		return ev.RegisterInterruptHandler(logical, mode, nil)
	}
	return ev.RegisterInterruptHandler(logical, mode, f.Callback(mode))
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for {
		select {
		case p := <-f.queue:
			f.forward(p)
		case <-f.done:
			for {
				select {
				case p := <-f.queue:
					f.forward(p)
				default:
					return
				}
			}
		}
	}
}

func (f *Forwarder) forward(p pending) {
	ev := mqtt.PortEvent{
		Timestamp: p.at,
		Logical:   p.logical,
		Port:      p.logical,
		Level:     p.level,
		Mode:      p.mode.String(),
	}
	if info, err := f.ports.PinInfo(ioport.Input, p.logical); err == nil {
		ev.Port = info.Port
		ev.Description = info.Description
	}

	if f.limiter != nil {
		if _, ok := f.limiter.Allow(ev.Port); !ok {
			f.limited.Add(1)
			return
		}
	}
	if err := f.pub.PublishPort(ev); err != nil {
		f.failed.Add(1)
		log.Printf("events: publish port %d: %v", ev.Port, err)
		return
	}
	f.published.Add(1)
}

// Stats returns a snapshot of the counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Published: f.published.Load(),
		Limited:   f.limited.Load(),
		Dropped:   f.dropped.Load(),
		Failed:    f.failed.Load(),
	}
}

// Close publishes whatever is queued and stops the goroutine.
// Callbacks that fire afterwards are counted as dropped once the queue fills.
func (f *Forwarder) Close() {
	f.once.Do(func() {
		close(f.done)
		f.wg.Wait()
	})
}
