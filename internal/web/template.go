package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/hidrosense/internal/status"
	"github.com/sweeney/hidrosense/internal/store"
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
	"actionOrNone": func(s string) string {
		if s == "" {
			return "NONE"
		}
		return s
	},
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>HidroSense</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.none { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.dry { color: #b35900; font-weight: bold; }
</style>
</head>
<body>
<h1>HidroSense</h1>

<h2>Pump</h2>
<table>
<tr><th>Last command</th><td id="pump-action" class="{{if eq (actionOrNone (printf "%s" .Pump.LastAction)) "ON"}}on{{else if eq (actionOrNone (printf "%s" .Pump.LastAction)) "OFF"}}off{{else}}none{{end}}">{{actionOrNone (printf "%s" .Pump.LastAction)}}</td></tr>
<tr><th>Changed</th><td id="pump-changed">{{ts .Pump.ChangedAt}}</td></tr>
<tr><th>Activation below</th><td id="limite">{{.Thresholds.Activation}}%</td></tr>
<tr><th>Deactivation at</th><td id="desligamento">{{if .Thresholds.Deactivation}}{{.Thresholds.Deactivation}}%{{else}}not set{{end}}</td></tr>
</table>

<form id="limite-form">
<label for="limite-input">Activation threshold</label>
<input id="limite-input" name="limite" type="number" min="0" max="100" value="{{.Thresholds.Activation}}">
<label for="desligamento-input">Deactivation threshold</label>
<input id="desligamento-input" name="desligamento" type="number" min="0" max="100" placeholder="unchanged">
<button type="submit">Set</button>
<span id="limite-msg"></span>
</form>

<h2>Latest readings</h2>
<table id="readings">
<tr><th>Captured</th><td><b>Humidity / threshold</b></td></tr>
{{range .Readings}}<tr><th>{{ts .CapturedAt}}</th><td class="{{if lt .Value .Threshold}}dry{{end}}">{{.Value}}% / {{.Threshold}}%</td></tr>
{{else}}<tr><th>-</th><td>no readings yet</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Telegram</th><td>{{if .Config.TelegramConfigured}}configured{{else}}not configured{{end}}</td></tr>
{{if .LastDelivery}}<tr><th>Last alert</th><td>{{.LastDelivery.Action}} at {{ts .LastDelivery.At}} (mqtt {{if .LastDelivery.PublishOK}}ok{{else}}failed{{end}}, telegram {{if .LastDelivery.AlertOK}}ok{{else}}failed{{end}})</td></tr>{{end}}
</table>

<h2>Decisions</h2>
<table>
<tr><th>Evaluations</th><td>{{.Counts.Evaluations}}</td></tr>
<tr><th>Activations</th><td>{{.Counts.Activations}}</td></tr>
<tr><th>Deactivations</th><td>{{.Counts.Deactivations}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Store</th><td>{{.Config.StoreKind}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/umidades">readings</a> · <a href="/metrics">metrics</a></p>
<script>
(function() {
  var actionEl = document.getElementById("pump-action");
  var changedEl = document.getElementById("pump-changed");
  var limiteEl = document.getElementById("limite");
  var offEl = document.getElementById("desligamento");
  var msgEl = document.getElementById("limite-msg");

  function render(s) {
    actionEl.textContent = s.last_action;
    actionEl.className = s.last_action === "ON" ? "on" : s.last_action === "OFF" ? "off" : "none";
    changedEl.textContent = s.changed_at || "-";
    limiteEl.textContent = s.limite + "%";
    offEl.textContent = s.desligamento != null ? s.desligamento + "%" : "not set";
  }

  function poll() {
    fetch("/api/status").then(function(r) { return r.json(); }).then(render).catch(function() {});
  }
  setInterval(poll, 5000);

  document.getElementById("limite-form").addEventListener("submit", function(e) {
    e.preventDefault();
    var req = { limite: document.getElementById("limite-input").value };
    var off = document.getElementById("desligamento-input").value;
    if (off !== "") { req.desligamento = off; }
    fetch("/api/set-limite", {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify(req)
    }).then(function(r) { return r.json(); }).then(function(body) {
      msgEl.textContent = body.message;
      poll();
    }).catch(function() { msgEl.textContent = "request failed"; });
  });
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, readings []store.Reading) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Readings []store.Reading
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Readings: readings,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
