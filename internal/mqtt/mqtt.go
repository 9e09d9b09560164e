// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicPrefix is the root of every topic the daemon uses.
const TopicPrefix = "auxio"

// Topics holds the per-device topic names.
type Topics struct {
	Events  string // port events, published
	System  string // lifecycle events, published
	Reply   string // command replies, published
	Command string // command lines, subscribed
	Machine string // machine state, subscribed
}

// NewTopics returns the topics for device id.
func NewTopics(id string) Topics {
	base := TopicPrefix + "/" + id + "/"
	return Topics{
		Events:  base + "events",
		System:  base + "system",
		Reply:   base + "reply",
		Command: base + "command",
		Machine: base + "machine",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishPort sends a port event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishPort(event PortEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishReply sends one command reply line.
	PublishReply(line string) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PortEvent is an interrupt observed on an input port.
type PortEvent struct {
	Timestamp   time.Time
	Logical     int
	Port        int
	Description string
	Level       bool   // raw line level
	Mode        string // armed trigger set, e.g. "rise,fall"
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "SLEEP"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// PortPayload is the JSON body of a port event.
type PortPayload struct {
	Port PortPayloadInner `json:"port"`
}

// PortPayloadInner contains the port event details.
type PortPayloadInner struct {
	Timestamp   string `json:"timestamp"`
	Logical     int    `json:"logical"`
	Number      int    `json:"number"`
	Description string `json:"description"`
	Level       string `json:"level"`
	Mode        string `json:"mode,omitempty"`
}

// FormatPortPayload creates the JSON payload for a port event.
func FormatPortPayload(event PortEvent) ([]byte, error) {
	level := "LOW"
	if event.Level {
		level = "HIGH"
	}
	payload := PortPayload{
		Port: PortPayloadInner{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
			Logical:     event.Logical,
			Number:      event.Port,
			Description: event.Description,
			Level:       level,
			Mode:        event.Mode,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
