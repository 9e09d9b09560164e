package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/auxio/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"levelClass": func(level string) string {
		switch level {
		case "HIGH":
			return "on"
		case "LOW":
			return "off"
		default:
			return "unknown"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Aux I/O</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.kv th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Aux I/O{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Inputs</h2>
<table>
<tr><th>#</th><th>Port</th><th>Line</th><th>Description</th><th>Level</th><th>IRQ</th><th>Function</th></tr>
{{range .Inputs}}<tr><td>{{.Logical}}</td><td>{{.Number}}</td><td>{{.Locator}}</td><td>{{.Description}}{{if .Claimed}} (claimed){{end}}</td><td id="in-{{.Number}}" class="{{levelClass .Level}}">{{.Level}}{{if .Inverted}} (inv){{end}}</td><td>{{.IRQ}}</td><td>{{.Function}}</td></tr>
{{else}}<tr><td colspan="7">none</td></tr>
{{end}}</table>

<h2>Outputs</h2>
<table>
<tr><th>#</th><th>Port</th><th>Line</th><th>Description</th><th>Level</th></tr>
{{range .Outputs}}<tr><td>{{.Logical}}</td><td>{{.Number}}</td><td>{{.Locator}}</td><td>{{.Description}}{{if .Claimed}} (claimed){{end}}</td><td class="{{levelClass .Level}}">{{.Level}}{{if .Inverted}} (inv){{end}}</td></tr>
{{else}}<tr><td colspan="5">none</td></tr>
{{end}}</table>

{{if .Analog}}<h2>Analog</h2>
<table>
<tr><th>#</th><th>Locator</th><th>Description</th><th>Reading</th></tr>
{{range .Analog}}<tr><td>{{.Logical}}</td><td>{{.Locator}}</td><td>{{.Description}}{{if .Claimed}} (claimed){{end}}</td><td>{{.Level}}</td></tr>
{{end}}</table>
{{end}}
<h2>Machine</h2>
<table class="kv">
<tr><th>State</th><td>{{.Machine}}</td></tr>
<tr><th>Sleep</th><td>{{.Sleep}} ({{.SleepCycles}} cycles)</td></tr>
<tr><th>Rx free</th><td>{{.RxFree}}</td></tr>
<tr><th>Overflows</th><td>{{.RxOverflows}}</td></tr>
<tr><th>Commands</th><td>{{.Commands}}</td></tr>
</table>

<h2>Connectivity</h2>
<table class="kv">
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table class="kv">
<tr><th>Published</th><td>{{.Counts.Published}}</td></tr>
<tr><th>Rate limited</th><td>{{.Counts.Limited}}</td></tr>
<tr><th>Dropped</th><td>{{.Counts.Dropped}}</td></tr>
<tr><th>Failed</th><td>{{.Counts.Failed}}</td></tr>
</table>

<h2>System</h2>
<table class="kv">
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Board</th><td>{{.Config.Board}}</td></tr>
<tr><th>Settings</th><td>{{.Config.Settings}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/ports.json">Ports</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Config.EventsTopic}}";
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.port) {
        var el = document.getElementById("in-" + msg.port.number);
        if (el) {
          el.textContent = msg.port.level;
          el.className = msg.port.level === "HIGH" ? "on" : "off";
        }
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
