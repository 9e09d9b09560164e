// Command auxio exposes a board's auxiliary GPIO lines as stable logical
// ports, takes commands over serial and MQTT, and publishes input events.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/auxio/internal/board"
	"github.com/sweeney/auxio/internal/command"
	"github.com/sweeney/auxio/internal/events"
	"github.com/sweeney/auxio/internal/ioport"
	"github.com/sweeney/auxio/internal/machine"
	"github.com/sweeney/auxio/internal/mqtt"
	"github.com/sweeney/auxio/internal/realtime"
	"github.com/sweeney/auxio/internal/settings"
	"github.com/sweeney/auxio/internal/sleep"
	"github.com/sweeney/auxio/internal/status"
	"github.com/sweeney/auxio/internal/stream"
	"github.com/sweeney/auxio/internal/web"
)

type options struct {
	board      string
	settings   string
	broker     string
	id         string
	serial     string
	baud       int
	heartbeat  time.Duration
	httpAddr   string
	wsBroker   string
	printState bool
}

func main() {
	var o options
	flag.StringVar(&o.board, "board", "/etc/auxio/board.toml", "Board line table")
	flag.StringVar(&o.settings, "settings", "/var/lib/auxio/settings.toml", "Persisted settings file")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.id, "id", "default", "Device id used in MQTT topics")
	flag.StringVar(&o.serial, "serial", "", "Serial device for the command stream (empty to disable)")
	flag.IntVar(&o.baud, "baud", 115200, "Serial baud rate")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&o.wsBroker, "ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	flag.BoolVar(&o.printState, "print-state", false, "Print the port table and exit")

	flag.Parse()

	o.wsBroker = resolveWSBroker(o.wsBroker, o.broker)
	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	b, err := board.Load(o.board)
	if err != nil {
		return err
	}
	store, err := settings.Open(o.settings)
	if err != nil {
		return err
	}
	inputs, err := b.InputPins()
	if err != nil {
		return err
	}

	chip, err := b.OpenChip()
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	analog, conv := b.AnalogPin()
	if conv != nil {
		defer conv.Close()
	}

	rt := realtime.New(realtime.Config{})
	ports, err := ioport.New(ioport.Config{
		Chip:    chip,
		Inputs:  inputs,
		Outputs: b.OutputPins(),
		Analog:  analog,
		Store:   store,
		Runtime: rt,
	})
	if err != nil {
		return err
	}
	defer ports.Close()

	if err := ports.OnSettingsLoaded(); err != nil {
		log.Printf("apply settings: %v", err)
	}

	// Print state mode
	if o.printState {
		for _, dir := range []ioport.Direction{ioport.Input, ioport.Output, ioport.Analog} {
			for _, p := range ports.Ports(dir) {
				fmt.Println(command.FormatPin(p))
			}
		}
		return nil
	}

	buf := stream.NewBuffer(rt, stream.DefaultSize)
	tracker := machine.NewTracker()
	topics := mqtt.NewTopics(o.id)

	publisher := mqtt.NewRealPublisher(mqtt.Config{
		Broker:   o.broker,
		ClientID: "auxio-" + o.id,
		Topics:   topics,
		OnCommand: func(payload []byte) {
			buf.PushLine(string(payload))
		},
		OnMachine: func(payload []byte) {
			if err := tracker.Update(payload, time.Now()); err != nil {
				log.Printf("machine report: %v", err)
			}
		},
	})
	defer publisher.Close()

	fwd := events.New(events.Config{Publisher: publisher, Ports: ports, Clock: rt.Clock()})
	defer fwd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var replies io.Writer
	if o.serial != "" {
		sp, err := stream.OpenSerial(stream.SerialConfig{Name: o.serial, Baud: o.baud})
		if err != nil {
			return err
		}
		defer sp.Close()
		replies = sp
		go stream.Pump(ctx, sp, buf)
		log.Printf("command stream on %s at %d baud", o.serial, o.baud)
	}

	st := status.NewTracker(time.Now(), status.Config{
		Board:       o.board,
		Settings:    o.settings,
		Serial:      o.serial,
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		HTTPAddr:    o.httpAddr,
		WSBroker:    o.wsBroker,
		EventsTopic: topics.Events,
	})
	if net := readNetworkInfo(); net != nil {
		st.SetNetwork(net)
	}

	d := newDaemon(daemonConfig{
		Runtime:   rt,
		Ports:     ports,
		Buffer:    buf,
		Store:     store,
		Machine:   tracker,
		Forwarder: fwd,
		Publisher: publisher,
		Conn:      publisher,
		Status:    st,
		Replies:   replies,
		Heartbeat: o.heartbeat,
	})

	// Publish startup event with full status snapshot
	d.publishSystem("STARTUP", "", true)

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, st)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: board=%s inputs=%d outputs=%d broker=%s topics=%s/%s heartbeat=%v",
		b.Name, ports.Count(ioport.Input), ports.Count(ioport.Output), o.broker, mqtt.TopicPrefix, o.id, o.heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(sigCh)
}

// idleDelay is how long the foreground loop suspends when no command is queued.
const idleDelay = 10 * time.Millisecond

// statusInterval is how often the port table is re-read for the status page.
const statusInterval = time.Second

type daemonConfig struct {
	Runtime   *realtime.Runtime
	Ports     *ioport.Ports
	Buffer    *stream.Buffer
	Store     *settings.Store
	Machine   *machine.Tracker
	Forwarder *events.Forwarder
	Publisher mqtt.Publisher
	Conn      mqtt.ConnectionStatus // may be nil
	Status    *status.Tracker
	Replies   io.Writer // may be nil
	Heartbeat time.Duration
}

// daemon is the foreground loop and everything it drives.
type daemon struct {
	rt        *realtime.Runtime
	ports     *ioport.Ports
	buf       *stream.Buffer
	interp    *command.Interpreter
	sleeper   *sleep.Scheduler
	machine   *machine.Tracker
	fwd       *events.Forwarder
	pub       mqtt.Publisher
	conn      mqtt.ConnectionStatus
	status    *status.Tracker
	replies   io.Writer
	heartbeat time.Duration

	commands    uint64
	lastBeat    time.Time
	lastRefresh time.Time
}

func newDaemon(cfg daemonConfig) *daemon {
	sleeper := sleep.New(sleep.Config{
		Runtime:  cfg.Runtime,
		Machine:  cfg.Machine,
		Rx:       cfg.Buffer,
		Settings: cfg.Store,
	})
	return &daemon{
		rt:        cfg.Runtime,
		ports:     cfg.Ports,
		buf:       cfg.Buffer,
		interp:    command.New(cfg.Ports, cfg.Store, cfg.Forwarder),
		sleeper:   sleeper,
		machine:   cfg.Machine,
		fwd:       cfg.Forwarder,
		pub:       cfg.Publisher,
		conn:      cfg.Conn,
		status:    cfg.Status,
		replies:   cfg.Replies,
		heartbeat: cfg.Heartbeat,
		lastBeat:  cfg.Runtime.Now(),
	}
}

// runLoop runs the foreground loop until a signal arrives. Signals are only
// looked at once the command buffer is empty.
func (d *daemon) runLoop(sig <-chan os.Signal) error {
	for {
		d.rt.ExecuteRealtime()
		d.sleeper.Check()
		d.handleExec()

		line, busy := d.buf.Pop()
		if busy {
			d.execute(line)
		}

		now := d.rt.Now()
		if now.Sub(d.lastRefresh) >= statusInterval {
			d.refresh()
		}
		if d.heartbeat > 0 && now.Sub(d.lastBeat) >= d.heartbeat {
			d.lastBeat = now
			if net := readNetworkInfo(); net != nil {
				d.status.SetNetwork(net)
			}
			d.refresh()
			log.Printf("heartbeat: uptime=%v commands=%d", d.status.Snapshot().Uptime().Truncate(time.Second), d.commands)
			d.publishSystem("HEARTBEAT", "", false)
		}

		if busy {
			continue
		}
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			d.refresh()
			d.publishSystem("SHUTDOWN", signalName(s), true)
			return nil
		default:
		}
		d.rt.Delay(idleDelay)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// handleExec consumes pending exec-state flags and the abort flag.
func (d *daemon) handleExec() {
	if d.rt.TakeExecFlag(realtime.ExecSleep) {
		d.machine.Sleep(d.rt.Now())
		d.refresh()
		d.publishSystem("SLEEP", "", false)
	}
	if d.rt.TakeExecFlag(realtime.ExecStatusReport) {
		d.refresh()
		d.publishSystem("STATUS", "", false)
	}
	if d.rt.TakeExecFlag(realtime.ExecFeedHold) {
		d.publishSystem("FEED_HOLD", "", false)
	}
	if d.rt.TakeExecFlag(realtime.ExecCycleStart) {
		d.publishSystem("CYCLE_START", "", false)
	}
	if d.rt.Aborted() {
		d.rt.ClearAbort()
		log.Printf("abort requested")
		d.publishSystem("ABORT", "", false)
	}
}

func (d *daemon) execute(line string) {
	d.commands++
	for _, reply := range d.interp.Execute(line) {
		if err := d.pub.PublishReply(reply); err != nil {
			log.Printf("reply publish error: %v", err)
		}
		if d.replies != nil {
			if _, err := io.WriteString(d.replies, reply+"\n"); err != nil {
				log.Printf("serial reply error: %v", err)
			}
		}
	}
}

// refresh pushes the current state into the status tracker.
func (d *daemon) refresh() {
	d.lastRefresh = d.rt.Now()
	d.status.UpdatePorts(
		status.PortsFromInfo(d.ports.Ports(ioport.Input)),
		status.PortsFromInfo(d.ports.Ports(ioport.Output)),
	)
	d.status.UpdateAnalog(status.PortsFromInfo(d.ports.Ports(ioport.Analog)))
	fs := d.fwd.Stats()
	d.status.Update(
		status.Counts{Published: fs.Published, Limited: fs.Limited, Dropped: fs.Dropped, Failed: fs.Failed},
		d.sleeper.State().String(),
		d.sleeper.Cycles(),
		d.machine.Conditions().State.String(),
	)
	d.status.SetStream(d.buf.RxFree(), d.buf.Overflows(), d.commands)
	if d.conn != nil {
		d.status.SetMQTTConnected(d.conn.IsConnected())
	}
}

func (d *daemon) publishSystem(event, reason string, retained bool) {
	snap := d.status.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(se); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
