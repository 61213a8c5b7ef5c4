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
	Mode          string     `json:"mode"`
	Time          string     `json:"time"`
	Alarm         string     `json:"alarm"`
	AlarmActive   bool       `json:"alarm_active"`
	Phase         string     `json:"phase,omitempty"`
	Prompt        string     `json:"prompt,omitempty"`
	Remaining     []string   `json:"remaining,omitempty"`
	Battery       string     `json:"battery"`
	Power         PowerJSON  `json:"power"`
	TimeSynced    bool       `json:"time_synced"`
	Ready         bool       `json:"ready"`
	Suspended     bool       `json:"suspended"`
	TonePlaying   bool       `json:"tone_playing"`
	ButtonLeds    bool       `json:"button_leds"`
	LEDs          LEDsJSON   `json:"leds"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// PowerJSON is the JSON representation of the supply state.
type PowerJSON struct {
	Source  string  `json:"source"`
	Volts   float64 `json:"volts"`
	Percent int     `json:"percent"`
}

// LEDsJSON is the current ring frame with colors as #rrggbb.
type LEDsJSON struct {
	Effect string   `json:"effect"`
	Pixels []string `json:"pixels"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON counts the outputs written since start.
type CountsJSON struct {
	Renders int `json:"renders"`
	Frames  int `json:"frames"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	LedCount     int    `json:"led_count"`
	SunriseMs    int64  `json:"sunrise_ms"`
	AlarmTimeout int64  `json:"alarm_timeout_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	TimeSource   string `json:"time_source"`
}

// Mode returns the rendered mode, or "STARTING" before the first render.
func (s Snapshot) Mode() string {
	if !s.Rendered {
		return "STARTING"
	}
	return string(s.Clock.Mode)
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Clock

	var remaining []string
	for _, r := range c.Remaining {
		remaining = append(remaining, string(r))
	}
	pixels := make([]string, len(snap.Frame))
	for i, px := range snap.Frame {
		pixels[i] = px.Hex()
	}

	clock := ""
	if !c.Now.IsZero() {
		clock = c.Now.Format("15:04")
	}

	return StatusInner{
		Mode:          snap.Mode(),
		Time:          clock,
		Alarm:         c.AlarmTime.String(),
		AlarmActive:   c.AlarmActive,
		Phase:         string(c.Phase),
		Prompt:        string(c.Prompt),
		Remaining:     remaining,
		Battery:       c.Battery,
		Power:         PowerJSON{Source: string(c.Power.Source), Volts: c.Power.Volts, Percent: c.Power.Percent},
		TimeSynced:    c.TimeSynced,
		Ready:         snap.Rendered,
		Suspended:     snap.Suspended,
		TonePlaying:   snap.TonePlaying,
		ButtonLeds:    snap.ButtonLeds,
		LEDs:          LEDsJSON{Effect: string(snap.Effect), Pixels: pixels},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Renders: snap.Renders, Frames: snap.Frames},
		Config: ConfigJSON{
			LedCount:     snap.Config.LedCount,
			SunriseMs:    snap.Config.SunriseMs,
			AlarmTimeout: snap.Config.AlarmTimeout,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			TimeSource:   snap.Config.TimeSource,
		},
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
