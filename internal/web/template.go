package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/status"
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
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "--:--"
		}
		return t.Format("15:04:05")
	},
	"lower": func(c logic.Color) string {
		switch c {
		case logic.ColorGreen:
			return "green"
		case logic.ColorBlue:
			return "blue"
		case logic.ColorYellow:
			return "yellow"
		}
		return ""
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Alarm Clock</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.armed { color: green; font-weight: bold; }
.disarmed { color: #888; }
.alarming { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.ring { display: flex; flex-wrap: wrap; gap: 4px; margin: 1em 0; }
.led { width: 18px; height: 18px; border-radius: 50%; border: 1px solid #ccc; }
.prompt { padding: 0 6px; color: #fff; }
.prompt.green { background: green; }
.prompt.blue { background: blue; }
.prompt.yellow { background: #b8a000; }
form { display: inline; }
</style>
</head>
<body>
<h1>Alarm Clock</h1>

<h2>Clock</h2>
<table>
<tr><th>Time</th><td id="time">{{clock .Clock.Now}}{{if not .Clock.TimeSynced}} (unsynced){{end}}</td></tr>
<tr><th>Mode</th><td id="mode"{{if eq .Mode "ALARMING"}} class="alarming"{{end}}>{{.Mode}}</td></tr>
<tr><th>Alarm</th><td id="alarm" class="{{if .Clock.AlarmActive}}armed{{else}}disarmed{{end}}">{{.Clock.AlarmTime}} {{if .Clock.AlarmActive}}armed{{else}}off{{end}}</td></tr>
{{if .Clock.Phase}}<tr><th>Phase</th><td>{{.Clock.Phase}}</td></tr>{{end}}
{{if .Clock.Prompt}}<tr><th>Press</th><td><span class="prompt {{lower .Clock.Prompt}}">{{.Clock.Prompt}}</span> ({{len .Clock.Remaining}} left)</td></tr>{{end}}
<tr><th>Tone</th><td>{{if .TonePlaying}}playing{{else}}silent{{end}}</td></tr>
<tr><th>Button LEDs</th><td>{{if .ButtonLeds}}on{{else}}off{{end}}</td></tr>
<tr><th>Outputs</th><td>{{if .Suspended}}standby{{else}}on{{end}}</td></tr>
</table>

<h2>LED Ring ({{.Effect}})</h2>
<div class="ring">{{range .Frame}}<span class="led" style="background: {{.Hex}}"></span>{{end}}</div>

<h2>Power</h2>
<table>
<tr><th>Battery</th><td id="battery">{{.Clock.Battery}}</td></tr>
<tr><th>Source</th><td>{{.Clock.Power.Source}}</td></tr>
<tr><th>Voltage</th><td>{{printf "%.2f" .Clock.Power.Volts}}V</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Time source</th><td>{{.Config.TimeSource}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Renders</th><td>{{.Renders}}</td></tr>
<tr><th>Frames</th><td>{{.Frames}}</td></tr>
<tr><th>Sunrise</th><td>{{.Config.SunriseMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>
{{if .Simulate}}
<h2>Simulate</h2>
<p id="simulate">
<form method="post" action="/buttons/green"><button>Green</button></form>
<form method="post" action="/buttons/blue"><button>Blue</button></form>
<form method="post" action="/buttons/yellow"><button>Yellow</button></form>
<form method="post" action="/buttons/green?action=press"><button>Hold green</button></form>
<form method="post" action="/buttons/green?action=release"><button>Release green</button></form>
<form method="post" action="/usb?present=true"><button>USB in</button></form>
<form method="post" action="/usb?present=false"><button>USB out</button></form>
</p>
{{end}}
<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, simulate bool) error {
	// Snapshot has Uptime() and Mode() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Mode     string
		Simulate bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Mode:     snap.Mode(),
		Simulate: simulate,
	}
	return indexTmpl.Execute(w, data)
}
