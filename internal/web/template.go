package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/adaptive-light/internal/status"
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
	"stateClass": func(s string) string {
		switch s {
		case "FAULT":
			return "fault"
		case "AUTO", "OFFSET":
			return "on"
		case "":
			return "unknown"
		default:
			return "off"
		}
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Adaptive Light</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Adaptive Light</h1>

<h2>Fixture</h2>
<table>
<tr><th>Status</th><td id="status" class="{{stateClass (printf "%s" .Engine.Status)}}">{{stateOrUnknown (printf "%s" .Engine.Status)}}</td></tr>
<tr><th>Light</th><td>{{if .Engine.LightEnabled}}on{{else}}off{{end}}</td></tr>
<tr><th>Output</th><td id="output">{{.Engine.Output.RampedPercent}}%</td></tr>
<tr><th>Auto / Target</th><td>{{.Engine.Output.AutoPercent}}% / {{.Engine.Output.TargetPercent}}%</td></tr>
<tr><th>Offset</th><td>{{.Engine.Offset}}</td></tr>
</table>

<h2>Presence</h2>
<table>
<tr><th>Present</th><td>{{if .Engine.Present}}yes{{else}}no ({{.Engine.Reason}}){{end}}</td></tr>
<tr><th>Distance</th><td>{{.Engine.DistanceFiltered}}cm ({{.Engine.DistanceStatus}})</td></tr>
<tr><th>Reference</th><td>{{.Engine.ReferenceCm}}cm{{if .Engine.ReferenceFallback}} (fallback){{end}}</td></tr>
<tr><th>Ambient</th><td>{{.Engine.LightFiltered}} ({{.Engine.LightStatus}})</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Light on</th><td>{{.Counts.LightOn}}</td></tr>
<tr><th>Light off</th><td>{{.Counts.LightOff}}</td></tr>
<tr><th>Presence lost</th><td>{{.Counts.PresenceLost}}</td></tr>
<tr><th>Presence restored</th><td>{{.Counts.PresenceRestored}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Session</th><td>{{.Session}}</td></tr>
<tr><th>Encoder</th><td>{{if .Config.Encoder}}enabled, {{.EncoderDropped}} dropped{{else}}disabled{{end}}</td></tr>
<tr><th>Duty errors</th><td>{{.DutyErrors}}</td></tr>
<tr><th>Serial parse errors</th><td>{{.ParseErrors}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
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
	indexTmpl.Execute(w, data)
}
