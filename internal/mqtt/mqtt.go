// Package mqtt publishes the clock's display state, LED frames and
// lifecycle events to an MQTT broker, with a fake for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// DefaultPrefix roots every topic when none is configured.
const DefaultPrefix = "alarm-clock"

// Topics are the MQTT topics under one prefix.
type Topics struct {
	Display string
	LEDs    string
	System  string
}

// NewTopics derives the topic set from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Display: prefix + "/display",
		LEDs:    prefix + "/leds",
		System:  prefix + "/system",
	}
}

// Publisher publishes clock state to MQTT.
type Publisher interface {
	// PublishDisplay sends the rendered display state. Retained.
	PublishDisplay(snap logic.Snapshot) error

	// PublishFrame sends one LED ring frame.
	PublishFrame(kind logic.EffectKind, frame []lightfx.RGB) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string          // e.g., "SIGTERM", "MQTT_DISCONNECT" (shutdown only)
	Snapshot  *logic.Snapshot // startup and heartbeat carry the current state
	Heartbeat *HeartbeatInfo
	Retained  bool
}

// HeartbeatInfo is the periodic liveness report.
type HeartbeatInfo struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Buffered      int   `json:"buffered"`
}

// DisplayPayload is the MQTT message payload for the display topic.
type DisplayPayload struct {
	Display DisplayState `json:"display"`
}

// DisplayState is what the screen currently shows.
type DisplayState struct {
	Timestamp   string `json:"timestamp"`
	Mode        string `json:"mode"`
	Time        string `json:"time"`
	Alarm       string `json:"alarm"`
	AlarmActive bool   `json:"alarm_active"`
	Phase       string `json:"phase,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Battery     string `json:"battery"`
	TimeSynced  bool   `json:"time_synced"`
}

// NewDisplayState flattens a snapshot for publishing.
func NewDisplayState(snap logic.Snapshot) DisplayState {
	return DisplayState{
		Timestamp:   snap.Now.UTC().Format(time.RFC3339),
		Mode:        string(snap.Mode),
		Time:        snap.Now.Format("15:04"),
		Alarm:       snap.AlarmTime.String(),
		AlarmActive: snap.AlarmActive,
		Phase:       string(snap.Phase),
		Prompt:      string(snap.Prompt),
		Battery:     snap.Battery,
		TimeSynced:  snap.TimeSynced,
	}
}

// FormatDisplayPayload creates the JSON payload for the display topic.
func FormatDisplayPayload(snap logic.Snapshot) ([]byte, error) {
	return json.Marshal(DisplayPayload{Display: NewDisplayState(snap)})
}

// FramePayload is the MQTT message payload for the LED topic.
type FramePayload struct {
	LEDs FrameState `json:"leds"`
}

// FrameState is one LED ring frame with colors as #rrggbb.
type FrameState struct {
	Effect string   `json:"effect"`
	Pixels []string `json:"pixels"`
}

// FormatFramePayload creates the JSON payload for an LED frame.
func FormatFramePayload(kind logic.EffectKind, frame []lightfx.RGB) ([]byte, error) {
	pixels := make([]string, len(frame))
	for i, c := range frame {
		pixels[i] = c.Hex()
	}
	return json.Marshal(FramePayload{LEDs: FrameState{Effect: string(kind), Pixels: pixels}})
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Display   *DisplayState  `json:"display,omitempty"`
	Heartbeat *HeartbeatInfo `json:"heartbeat,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	inner := SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
		Heartbeat: event.Heartbeat,
	}
	if event.Snapshot != nil {
		ds := NewDisplayState(*event.Snapshot)
		inner.Display = &ds
	}
	return json.Marshal(SystemPayload{System: inner})
}
