// Package command interprets text command lines against the port manager.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/sweeney/auxio/internal/board"
	"github.com/sweeney/auxio/internal/ioport"
	"github.com/sweeney/auxio/internal/settings"
)

// Reply lines.
const (
	OK = "ok"
)

// Store is the settings store the interpreter edits.
type Store interface {
	Settings() *settings.Settings
	Write() error
}

// Arming registers interrupt handlers on behalf of the irq command.
type Arming interface {
	Arm(ev ioport.EventSource, logical int, mode ioport.IRQMode) error
}

// Interpreter executes command lines. It must run on the foreground loop.
type Interpreter struct {
	ports *ioport.Ports
	store Store
	arm   Arming
}

// New creates an Interpreter.
func New(ports *ioport.Ports, store Store, arm Arming) *Interpreter {
	return &Interpreter{ports: ports, store: store, arm: arm}
}

var errUsage = errors.New("usage")

type handler func(in *Interpreter, args []string) ([]string, error)

type entry struct {
	usage string
	run   handler
}

var commands map[string]entry

func init() {
	commands = map[string]entry{
		"help":     {"help", (*Interpreter).help},
		"list":     {"list", (*Interpreter).list},
		"info":     {"info in|out|adc N", (*Interpreter).info},
		"claim":    {"claim in|out|adc N DESCRIPTION", (*Interpreter).claim},
		"swap":     {"swap in|out A B", (*Interpreter).swap},
		"describe": {"describe in|out|adc N TEXT", (*Interpreter).describe},
		"out":      {"out N 0|1", (*Interpreter).out},
		"wait":     {"wait N immediate|rise|fall|high|low [SECONDS]", (*Interpreter).wait},
		"adc":      {"adc N", (*Interpreter).adc},
		"irq":      {"irq N none|rise|fall|change|high|low", (*Interpreter).irq},
		"invert":   {"invert in|out|ctrl MASK", (*Interpreter).invert},
		"settings": {"settings", (*Interpreter).showSettings},
	}
}

// Execute runs one line and returns the reply lines. The last line is
// always "ok" or starts with "error:".
func (in *Interpreter) Execute(line string) []string {
	args, err := shlex.Split(line)
	if err != nil {
		return []string{"error: " + err.Error()}
	}
	if len(args) == 0 {
		return []string{OK}
	}

	cmd, ok := commands[strings.ToLower(args[0])]
	if !ok {
		return []string{fmt.Sprintf("error: unknown command %q", args[0])}
	}
	out, err := cmd.run(in, args[1:])
	if errors.Is(err, errUsage) {
		return []string{"error: usage: " + cmd.usage}
	}
	if err != nil {
		return []string{"error: " + err.Error()}
	}
	return append(out, OK)
}

func (in *Interpreter) help(args []string) ([]string, error) {
	names := []string{"help", "list", "info", "claim", "swap", "describe", "out", "wait", "adc", "irq", "invert", "settings"}
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = commands[n].usage
	}
	return lines, nil
}

func parseDir(s string) (ioport.Direction, error) {
	switch strings.ToLower(s) {
	case "in", "input":
		return ioport.Input, nil
	case "out", "output":
		return ioport.Output, nil
	case "adc", "analog":
		return ioport.Analog, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad port %q", s)
	}
	return n, nil
}

// FormatPin renders one port descriptor as a reply line.
func FormatPin(p ioport.PinInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d port=%d loc=%s", p.Direction, p.Logical, p.Port, p.Locator)
	if p.Group != "" {
		fmt.Fprintf(&b, " group=%s", p.Group)
	}
	fmt.Fprintf(&b, " desc=%q inv=%d claimable=%d", p.Description, b2i(p.Inverted), b2i(p.Claimable))
	if p.Direction == ioport.Input {
		fmt.Fprintf(&b, " caps=%s irq=%s", p.Caps.IRQ, p.Armed)
		if p.Function != "" {
			fmt.Fprintf(&b, " fn=%s", p.Function)
		}
		if p.Pending {
			b.WriteString(" pending=1")
		}
	}
	if p.Direction == ioport.Analog && p.Caps.Analog {
		b.WriteString(" caps=analog")
	}
	return b.String()
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (in *Interpreter) list(args []string) ([]string, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	var lines []string
	for _, dir := range []ioport.Direction{ioport.Input, ioport.Output, ioport.Analog} {
		for _, p := range in.ports.Ports(dir) {
			lines = append(lines, FormatPin(p))
		}
	}
	return lines, nil
}

func (in *Interpreter) info(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, errUsage
	}
	dir, err := parseDir(args[0])
	if err != nil {
		return nil, err
	}
	n, err := parseIndex(args[1])
	if err != nil {
		return nil, err
	}
	p, err := in.ports.PinInfo(dir, n)
	if err != nil {
		return nil, err
	}
	line := FormatPin(p)
	if p.Reading != nil {
		if v, err := p.Reading(); err == nil {
			line += fmt.Sprintf(" val=%d", v)
		}
	} else if v, err := p.Value(); err == nil {
		line += fmt.Sprintf(" val=%d", b2i(v))
	}
	return []string{line}, nil
}

func (in *Interpreter) claim(args []string) ([]string, error) {
	if len(args) < 3 {
		return nil, errUsage
	}
	dir, err := parseDir(args[0])
	if err != nil {
		return nil, err
	}
	n, err := parseIndex(args[1])
	if err != nil {
		return nil, err
	}
	idx, err := in.ports.Claim(dir, n, strings.Join(args[2:], " "))
	if err != nil {
		return nil, err
	}
	return []string{strconv.Itoa(idx)}, nil
}

func (in *Interpreter) swap(args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, errUsage
	}
	dir, err := parseDir(args[0])
	if err != nil {
		return nil, err
	}
	a, err := parseIndex(args[1])
	if err != nil {
		return nil, err
	}
	b, err := parseIndex(args[2])
	if err != nil {
		return nil, err
	}
	return nil, in.ports.SwapPins(dir, a, b)
}

func (in *Interpreter) describe(args []string) ([]string, error) {
	if len(args) < 3 {
		return nil, errUsage
	}
	dir, err := parseDir(args[0])
	if err != nil {
		return nil, err
	}
	n, err := parseIndex(args[1])
	if err != nil {
		return nil, err
	}
	return nil, in.ports.SetDescription(dir, n, strings.Join(args[2:], " "))
}

func (in *Interpreter) out(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, errUsage
	}
	w, ok := in.ports.Writer()
	if !ok {
		return nil, errors.New("board has no outputs")
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return nil, err
	}
	var on bool
	switch args[1] {
	case "0", "off":
	case "1", "on":
		on = true
	default:
		return nil, errUsage
	}
	return nil, w.DigitalOut(n, on)
}

var waitModes = map[string]ioport.WaitMode{
	"immediate": ioport.WaitImmediate,
	"rise":      ioport.WaitRise,
	"fall":      ioport.WaitFall,
	"high":      ioport.WaitHigh,
	"low":       ioport.WaitLow,
}

// maxWaitSeconds bounds the wait timeout to one year.
const maxWaitSeconds = 365 * 24 * 60 * 60

func (in *Interpreter) wait(args []string) ([]string, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, errUsage
	}
	ev, ok := in.ports.Events()
	if !ok {
		return nil, errors.New("board has no inputs")
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return nil, err
	}
	mode, ok := waitModes[strings.ToLower(args[1])]
	if !ok {
		return nil, errUsage
	}
	var timeout time.Duration
	if len(args) == 3 {
		secs, err := strconv.ParseFloat(args[2], 64)
		if err != nil || !(secs >= 0 && secs <= maxWaitSeconds) {
			return nil, fmt.Errorf("bad timeout %q", args[2])
		}
		timeout = time.Duration(secs * float64(time.Second))
	}
	v, err := ev.WaitOnInput(n, mode, timeout)
	if err != nil {
		return nil, err
	}
	return []string{strconv.Itoa(b2i(v))}, nil
}

func (in *Interpreter) adc(args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, errUsage
	}
	r, ok := in.ports.Analog()
	if !ok {
		return nil, errors.New("board has no powered analog input")
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return nil, err
	}
	v, err := r.ReadAnalog(n)
	if err != nil {
		return nil, err
	}
	return []string{strconv.Itoa(v)}, nil
}

func (in *Interpreter) irq(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, errUsage
	}
	ev, ok := in.ports.Events()
	if !ok {
		return nil, errors.New("board has no inputs")
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return nil, err
	}
	mode, err := board.ParseIRQ(args[1])
	if err != nil {
		return nil, err
	}
	return nil, in.arm.Arm(ev, n, mode)
}

func (in *Interpreter) invert(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, errUsage
	}
	mask, err := settings.ParseMask(args[1])
	if err != nil {
		return nil, err
	}
	s := in.store.Settings()
	var id settings.ID
	switch strings.ToLower(args[0]) {
	case "in":
		id, s.IOPort.InvertIn = settings.SettingInvertIn, mask
	case "out":
		id, s.IOPort.InvertOut = settings.SettingInvertOut, mask
	case "ctrl":
		id, s.ControlInvert = settings.SettingControlInvert, mask
	default:
		return nil, errUsage
	}
	if err := in.store.Write(); err != nil {
		return nil, err
	}
	return nil, in.ports.OnSettingChanged(id)
}

func (in *Interpreter) showSettings(args []string) ([]string, error) {
	s := in.store.Settings()
	return []string{
		fmt.Sprintf("$%d=%s", settings.SettingControlInvert, s.ControlInvert),
		fmt.Sprintf("$%d=%s", settings.SettingInvertIn, s.IOPort.InvertIn),
		fmt.Sprintf("$%d=%s", settings.SettingInvertOut, s.IOPort.InvertOut),
		fmt.Sprintf("sleep=%t timeout=%s", s.Sleep.Enabled, s.Sleep.Timeout.Duration),
	}, nil
}
