// Package status provides a thread-safe view of what the alarm clock is
// currently showing. The display and LED ring write to it; HTTP handlers and
// heartbeats read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	LedCount     int
	SunriseMs    int64
	AlarmTimeout int64 // ms
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	TimeSource   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Clock         logic.Snapshot // last rendered
	Rendered      bool
	Suspended     bool
	Effect        logic.EffectKind
	Frame         []lightfx.RGB
	TonePlaying   bool
	ButtonLeds    bool
	Renders       int
	Frames        int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Effect:    logic.EffectOff,
			Config:    cfg,
		},
	}
}

// Render records the snapshot the display was asked to show. It never fails.
func (t *Tracker) Render(snap logic.Snapshot) error {
	snap.Remaining = append([]logic.Color(nil), snap.Remaining...)
	t.mu.Lock()
	t.snap.Clock = snap
	t.snap.Rendered = true
	t.snap.Renders++
	t.mu.Unlock()
	return nil
}

// Show records the frame the LED ring was asked to show. It never fails.
func (t *Tracker) Show(kind logic.EffectKind, frame []lightfx.RGB) error {
	frame = append([]lightfx.RGB(nil), frame...)
	t.mu.Lock()
	t.snap.Effect = kind
	t.snap.Frame = frame
	t.snap.Frames++
	t.mu.Unlock()
	return nil
}

// SetSuspended records whether the outputs are in standby.
func (t *Tracker) SetSuspended(suspended bool) {
	t.mu.Lock()
	t.snap.Suspended = suspended
	t.mu.Unlock()
}

// SetTonePlaying records whether the alarm tone is sounding.
func (t *Tracker) SetTonePlaying(playing bool) {
	t.mu.Lock()
	t.snap.TonePlaying = playing
	t.mu.Unlock()
}

// SetButtonLeds records whether the button LEDs are lit.
func (t *Tracker) SetButtonLeds(on bool) {
	t.mu.Lock()
	t.snap.ButtonLeds = on
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
