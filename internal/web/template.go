package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/triac-dimmer/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Dimmer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Dimmer</h1>

<h2>Light</h2>
<table>
<tr><th>Power</th><td id="power" class="{{if .Dimmer.On}}on{{else}}off{{end}}">{{onOff .Dimmer.On}}</td></tr>
<tr><th>Brightness</th><td id="brightness">{{.Dimmer.Brightness}}%</td></tr>
<tr><th>Triac</th><td>{{if .Dimmer.Conducting}}conducting{{else}}blocking{{end}}</td></tr>
</table>

<h2>Zero Cross</h2>
<table>
<tr><th>Accepted / raw</th><td id="zero-cross">{{.Dimmer.Accepted}}/{{.Dimmer.Edges}}</td></tr>
<tr><th>Bypassed</th><td>{{.Dimmer.Bypassed}}</td></tr>
<tr><th>Timer fires</th><td>{{.Dimmer.TimerFires}}</td></tr>
<tr><th>Write errors</th><td>{{.Dimmer.WriteErrors}}</td></tr>
</table>

<h2>Buttons</h2>
<table>
{{range .Buttons}}<tr><th>GPIO {{.Line}}</th><td>{{.Edges}} edges{{if .Sampling}}, sampling{{end}}</td></tr>
{{else}}<tr><td>none</td></tr>
{{end}}</table>

<h2>Event Counts</h2>
<table>
<tr><th>Pressed</th><td>{{.Counts.Pressed}}</td></tr>
<tr><th>Held</th><td>{{.Counts.Held}}</td></tr>
<tr><th>Released</th><td>{{.Counts.Released}}</td></tr>
<tr><th>Toggles</th><td>{{.Counts.Toggles}}</td></tr>
<tr><th>Commands</th><td>{{.Counts.Commands}} ({{.Counts.Rejected}} rejected)</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pins</th><td>button {{.Config.ButtonLine}}, zero-cross {{.Config.ZeroCrossLine}}, triac {{.Config.TriacLine}}</td></tr>
<tr><th>Sampling</th><td>{{.Config.SampleRateHz}}Hz, {{.Config.DebounceMs}}ms window</td></tr>
<tr><th>Half-cycle</th><td>{{.Config.HalfCycleUs}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
