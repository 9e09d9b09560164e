package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/auxio/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Board:       "/etc/auxio/board.toml",
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(status.Counts{Published: 5, Limited: 2}, "armed", 1, "Idle")
	tr.UpdatePorts([]status.Port{{Logical: 0, Number: 1, Locator: "27", Description: "Door", Level: "HIGH", IRQ: "rise"}}, nil)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Sleep.State != "armed" || sj.Status.Sleep.Cycles != 1 {
		t.Errorf("Sleep: got %+v", sj.Status.Sleep)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Published != 5 || sj.Status.Counts.Limited != 2 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if len(sj.Status.Inputs) != 1 || sj.Status.Inputs[0].Description != "Door" {
		t.Errorf("Inputs: got %+v", sj.Status.Inputs)
	}
	if sj.Status.Config.Board != "/etc/auxio/board.toml" {
		t.Errorf("Config.Board: got %q", sj.Status.Config.Board)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdatePorts(
		[]status.Port{{Logical: 0, Number: 0, Locator: "17", Description: "Probe <1>", Level: "LOW"}},
		[]status.Port{{Logical: 0, Number: 0, Locator: "22", Description: "Coolant", Claimed: true, Level: "HIGH"}},
	)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{"Probe &lt;1&gt;", "Coolant (claimed)", `id="in-0" class="off"`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "mqtt.min.js") {
		t.Error("live script should be omitted without a websocket broker")
	}
	if strings.Contains(page, "<h2>Analog</h2>") {
		t.Error("analog section should be omitted without an analog port")
	}
}

func TestHTMLAnalogSection(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateAnalog([]status.Port{{Direction: "adc", Locator: "MCP3221:0x4d", Description: "Spindle load", Claimed: true, Level: "2048"}})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{"<h2>Analog</h2>", "MCP3221:0x4d", "Spindle load (claimed)", "<td>2048</td>", `href="/ports.json"`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func getPorts(t *testing.T, url string) status.PortsJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var pj status.PortsJSON
	if err := json.NewDecoder(resp.Body).Decode(&pj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return pj
}

func TestPortsEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdatePorts(
		[]status.Port{{Logical: 0, Locator: "17", Description: "Door", Level: "HIGH", IRQ: "rise"}},
		[]status.Port{{Logical: 0, Locator: "22", Description: "Coolant", Level: "LOW"}},
	)
	tr.UpdateAnalog([]status.Port{{Logical: 0, Locator: "MCP3221:0x4d", Description: "E0", Level: "512"}})

	all := getPorts(t, ts.URL+"/ports.json")
	if len(all.Inputs) != 1 || len(all.Outputs) != 1 || len(all.Analog) != 1 {
		t.Fatalf("expected one row per table, got %+v", all)
	}
	if all.Analog[0].Level != "512" || all.Inputs[0].Description != "Door" {
		t.Errorf("unexpected rows %+v", all)
	}

	tests := []struct {
		dir             string
		in, out, analog int
	}{
		{"in", 1, 0, 0},
		{"out", 0, 1, 0},
		{"adc", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			pj := getPorts(t, ts.URL+"/ports.json?dir="+tt.dir)
			if len(pj.Inputs) != tt.in || len(pj.Outputs) != tt.out || len(pj.Analog) != tt.analog {
				t.Errorf("dir=%s: got %d/%d/%d rows", tt.dir, len(pj.Inputs), len(pj.Outputs), len(pj.Analog))
			}
		})
	}
}

func TestPortsEndpointRejectsUnknownDirection(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ports.json?dir=sideways")
	if err != nil {
		t.Fatalf("GET /ports.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `unknown direction "sideways"`) {
		t.Errorf("body: %q", body)
	}
}

func TestHTMLLiveScript(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{WSBroker: "ws://broker:9001", EventsTopic: "auxio/mill/events"})
	ts := httptest.NewServer(New(":0", tr).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	if !strings.Contains(page, "mqtt.min.js") || !strings.Contains(page, "mill") {
		t.Error("expected live script subscribed to the events topic")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Sleep.State != "awake" {
		t.Errorf("expected awake initially, got %q", sj1.Status.Sleep.State)
	}

	tr.Update(status.Counts{}, "armed", 0, "Hold")
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.Sleep.State != "armed" {
		t.Errorf("Sleep: got %q, want armed", sj2.Status.Sleep.State)
	}
	if sj2.Status.Machine != "Hold" {
		t.Errorf("Machine: got %q, want Hold", sj2.Status.Machine)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
