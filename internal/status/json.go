package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Sleep         SleepJSON    `json:"sleep"`
	Machine       string       `json:"machine"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Stream        StreamJSON   `json:"stream"`
	Inputs        []PortJSON   `json:"inputs"`
	Outputs       []PortJSON   `json:"outputs"`
	Analog        []PortJSON   `json:"analog,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SleepJSON reports the sleep scheduler.
type SleepJSON struct {
	State  string `json:"state"`
	Cycles uint64 `json:"cycles"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Published uint64 `json:"published"`
	Limited   uint64 `json:"limited"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// StreamJSON reports the command stream.
type StreamJSON struct {
	RxFree    int    `json:"rx_free"`
	Overflows uint64 `json:"overflows"`
	Commands  uint64 `json:"commands"`
}

// PortJSON is one port row.
type PortJSON struct {
	Logical     int    `json:"logical"`
	Number      int    `json:"number"`
	Locator     string `json:"locator"`
	Description string `json:"description"`
	Claimed     bool   `json:"claimed"`
	Inverted    bool   `json:"inverted"`
	Level       string `json:"level"`
	IRQ         string `json:"irq,omitempty"`
	Function    string `json:"function,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Board       string `json:"board"`
	Settings    string `json:"settings"`
	Serial      string `json:"serial,omitempty"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	WSBroker    string `json:"ws_broker,omitempty"`
}

func portsJSON(rows []Port) []PortJSON {
	out := make([]PortJSON, len(rows))
	for i, p := range rows {
		out[i] = PortJSON{
			Logical:     p.Logical,
			Number:      p.Number,
			Locator:     p.Locator,
			Description: p.Description,
			Claimed:     p.Claimed,
			Inverted:    p.Inverted,
			Level:       p.Level,
			IRQ:         p.IRQ,
			Function:    p.Function,
		}
	}
	return out
}

func analogJSON(rows []Port) []PortJSON {
	if len(rows) == 0 {
		return nil
	}
	return portsJSON(rows)
}

// PortsJSON is the port table on its own, without daemon state.
type PortsJSON struct {
	Timestamp string     `json:"timestamp"`
	Inputs    []PortJSON `json:"inputs"`
	Outputs   []PortJSON `json:"outputs"`
	Analog    []PortJSON `json:"analog"`
}

// FormatPortsJSON returns the port tables of snap.
func FormatPortsJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(PortsJSON{
		Timestamp: snap.Now.UTC().Format(time.RFC3339),
		Inputs:    portsJSON(snap.Inputs),
		Outputs:   portsJSON(snap.Outputs),
		Analog:    portsJSON(snap.Analog),
	}, "", "  ")
	return data
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Sleep:         SleepJSON{State: snap.Sleep, Cycles: snap.SleepCycles},
		Machine:       snap.Machine,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Published: snap.Counts.Published,
			Limited:   snap.Counts.Limited,
			Dropped:   snap.Counts.Dropped,
			Failed:    snap.Counts.Failed,
		},
		Stream: StreamJSON{
			RxFree:    snap.RxFree,
			Overflows: snap.RxOverflows,
			Commands:  snap.Commands,
		},
		Inputs:  portsJSON(snap.Inputs),
		Outputs: portsJSON(snap.Outputs),
		Analog:  analogJSON(snap.Analog),
		Config: ConfigJSON{
			Board:       snap.Config.Board,
			Settings:    snap.Config.Settings,
			Serial:      snap.Config.Serial,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			WSBroker:    snap.Config.WSBroker,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
