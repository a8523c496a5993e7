package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/status"
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
	"statusClass": func(c logic.StatusCode) string {
		switch c {
		case logic.StatusOK:
			return "ok"
		case logic.StatusOutOfRange, logic.StatusFault:
			return "bad"
		default:
			return "unknown"
		}
	},
	"micros": func(us int64) string {
		if us == 0 {
			return "never"
		}
		return time.UnixMicro(us).UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fridge Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; font-weight: bold; }
.unknown { color: orange; }
.open { color: orange; font-weight: bold; }
.closed { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Fridge Sensor{{if .Config.DeviceID}} ({{.Config.DeviceID}}){{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Door</th><td id="door" class="{{if .State.Door.IsOpen}}open{{else}}closed{{end}}">{{if .State.Door.IsOpen}}OPEN{{else}}CLOSED{{end}}</td></tr>
<tr><th>Alarm</th><td id="alarm">{{.State.Alarm.Phase}}{{if .State.Alarm.BuzzerOn}} (beeping){{end}}</td></tr>
<tr><th>Weight</th><td id="weight">{{printf "%.0f" .State.Baseline}} g</td></tr>
<tr><th>Temperature</th><td id="temperature" class="{{statusClass .State.Temperature.Code}}">{{printf "%.2f" .State.Temperature.LastValue}} &deg;C ({{.State.Temperature.Code}})</td></tr>
<tr><th>Tare offset</th><td>{{.State.TareOffset}}</td></tr>
<tr><th>Ready</th><td>{{if .State.Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Time Sync</h2>
<table>
<tr><th>State</th><td>{{.State.Sync}} ({{.State.SyncMode}})</td></tr>
<tr><th>Clock</th><td class="{{if .State.ClockSynced}}connected{{else}}disconnected{{end}}">{{if .State.ClockSynced}}synchronized{{else}}local{{end}}</td></tr>
<tr><th>Last sync</th><td>{{micros .State.LastSync}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}: {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Door changes</th><td>{{.State.Counts.DoorChange}}</td></tr>
<tr><th>Weight changes</th><td>{{.State.Counts.WeightChange}}</td></tr>
<tr><th>Status reports</th><td>{{.State.Counts.StatusReport}}</td></tr>
<tr><th>Tares</th><td>{{.State.Counts.TareButton}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
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
