// Package status provides a thread-safe status tracker for the auxio daemon.
// It is read by the HTTP handlers and by the heartbeat publisher.
package status

import (
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/auxio/internal/ioport"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Board       string
	Settings    string
	Serial      string
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	EventsTopic string
}

// Port is one row of the port table.
type Port struct {
	Direction   string
	Logical     int
	Number      int
	Locator     string
	Description string
	Claimed     bool
	Inverted    bool
	Level       string // HIGH, LOW, ERROR, or the conversion of an analog port
	IRQ         string
	Function    string
}

// PortFromInfo reads the current level of p and converts it to a table row.
func PortFromInfo(p ioport.PinInfo) Port {
	row := Port{
		Direction:   p.Direction.String(),
		Logical:     p.Logical,
		Number:      p.Port,
		Locator:     p.Locator,
		Description: p.Description,
		Claimed:     !p.Claimable,
		Inverted:    p.Inverted,
		Function:    p.Function,
		Level:       "ERROR",
	}
	if p.Direction == ioport.Input {
		row.IRQ = p.Armed.String()
	}
	if p.Reading != nil {
		if v, err := p.Reading(); err == nil {
			row.Level = strconv.Itoa(v)
		}
		return row
	}
	if p.Value != nil {
		if v, err := p.Value(); err == nil {
			row.Level = "LOW"
			if v {
				row.Level = "HIGH"
			}
		}
	}
	return row
}

// PortsFromInfo converts a whole pool listing.
func PortsFromInfo(infos []ioport.PinInfo) []Port {
	rows := make([]Port, len(infos))
	for i, p := range infos {
		rows[i] = PortFromInfo(p)
	}
	return rows
}

// Counts are the event forwarding counters.
type Counts struct {
	Published uint64
	Limited   uint64
	Dropped   uint64
	Failed    uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	Inputs        []Port
	Outputs       []Port
	Analog        []Port
	Counts        Counts
	Sleep         string
	SleepCycles   uint64
	Machine       string
	RxFree        int
	RxOverflows   uint64
	Commands      uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Sleep:     "awake",
			Machine:   "Idle",
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// UpdatePorts replaces the port tables.
func (t *Tracker) UpdatePorts(inputs, outputs []Port) {
	t.mu.Lock()
	t.snap.Inputs = inputs
	t.snap.Outputs = outputs
	t.mu.Unlock()
}

// UpdateAnalog replaces the analog port table.
func (t *Tracker) UpdateAnalog(ports []Port) {
	t.mu.Lock()
	t.snap.Analog = ports
	t.mu.Unlock()
}

// Update sets the runtime counters. Called from runLoop on every pass.
func (t *Tracker) Update(counts Counts, sleepState string, sleepCycles uint64, machine string) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.snap.Sleep = sleepState
	t.snap.SleepCycles = sleepCycles
	t.snap.Machine = machine
	t.mu.Unlock()
}

// SetStream records the command stream state.
func (t *Tracker) SetStream(rxFree int, overflows, commands uint64) {
	t.mu.Lock()
	t.snap.RxFree = rxFree
	t.snap.RxOverflows = overflows
	t.snap.Commands = commands
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Inputs = append([]Port(nil), s.Inputs...)
	s.Outputs = append([]Port(nil), s.Outputs...)
	s.Analog = append([]Port(nil), s.Analog...)
	s.Now = now()
	return s
}
