package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-sensor/internal/status"
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
	"stateClass": func(s fmt.Stringer) string {
		switch s.String() {
		case "PRESSED", "LONG_PRESSED":
			return "on"
		case "RELEASED":
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Button Sensor</h1>

<h2>Buttons</h2>
<table>
<tr><th>Name</th><th>Line</th><th>State</th><th>Short</th><th>Double</th><th>Long</th></tr>
{{range .Buttons}}<tr><td><a href="/buttons/{{.Name}}.json">{{.Name}}</a></td><td>{{.Line}}</td><td class="{{stateClass .State}}">{{.State}}</td><td>{{.Counts.Short}}</td><td>{{.Counts.Double}}</td><td>{{.Counts.Long}}</td></tr>
{{else}}<tr><td colspan="6">waiting for first scan</td></tr>
{{end}}</table>

<h2>Tasks</h2>
<table>
<tr><th>Name</th><th>Period</th><th>Runs</th><th>Missed</th></tr>
{{range .Tasks}}<tr><td>{{.Name}}</td><td>{{if eq .Period 0}}disabled{{else}}{{.Period}} ticks{{end}}</td><td>{{.Runs}}</td><td>{{.Missed}}</td></tr>
{{end}}</table>

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
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}} ({{.Config.TickMs}}ms)</td></tr>
<tr><th>Debounce / Long / Gap</th><td>{{.Config.DebounceMs}}ms / {{.Config.LongMs}}ms / {{.Config.DoubleGapMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>GPIO errors</th><td>{{.GPIOErrors}}</td></tr>
<tr><th>Dropped events</th><td>{{.Dropped}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/events.json">Recent events</a></p>
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
