// Package settings holds the persisted auxiliary I/O settings and the
// notification ids used to announce changes to them.
package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies a setting in change notifications.
type ID int

// Setting ids. The numbering follows the controller's $-setting numbers.
const (
	SettingControlInvert ID = 14
	SettingInvertIn      ID = 370
	SettingInvertOut     ID = 372
)

func (id ID) String() string {
	switch id {
	case SettingControlInvert:
		return "control_invert"
	case SettingInvertIn:
		return "invert_in"
	case SettingInvertOut:
		return "invert_out"
	default:
		return "setting_" + strconv.Itoa(int(id))
	}
}

// Mask is a fixed-width bitset. Bit n of a port mask refers to port number n,
// the index a port was given at startup, not its current pool position.
type Mask uint64

// Bit reports whether bit n is set.
func (m Mask) Bit(n int) bool {
	if n < 0 || n >= 64 {
		return false
	}
	return m&(1<<uint(n)) != 0
}

// With returns m with bit n set to v.
func (m Mask) With(n int, v bool) Mask {
	if n < 0 || n >= 64 {
		return m
	}
	if v {
		return m | 1<<uint(n)
	}
	return m &^ (1 << uint(n))
}

// Any reports whether m and o share a set bit.
func (m Mask) Any(o Mask) bool {
	return m&o != 0
}

// String formats the mask as a decimal, the way $-settings show it.
func (m Mask) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// ParseMask parses a decimal, 0x-hex or 0b-binary mask.
func ParseMask(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mask %q: %w", s, err)
	}
	return Mask(v), nil
}

// IOPort holds the generic per-port invert masks.
type IOPort struct {
	InvertIn  Mask `toml:"invert_in"`
	InvertOut Mask `toml:"invert_out"`
}

// Settings is the persisted settings structure.
type Settings struct {
	IOPort        IOPort   `toml:"ioport"`
	ControlInvert Mask     `toml:"control_invert"`
	Sleep         SleepCfg `toml:"sleep"`
}

// SleepCfg configures the idle-timeout sleep scheduler.
type SleepCfg struct {
	Enabled bool     `toml:"enabled"`
	Timeout Duration `toml:"timeout"`
}

// Duration is a time.Duration that encodes as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultSleepTimeout matches the controller's five minute default.
const DefaultSleepTimeout = 5 * time.Minute

// Defaults returns settings with no inversion and the sleep timer enabled.
func Defaults() Settings {
	return Settings{
		Sleep: SleepCfg{Enabled: true, Timeout: Duration{DefaultSleepTimeout}},
	}
}
