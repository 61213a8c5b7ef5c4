// Package logic contains the pure control core of the alarm clock: modes,
// the event and command taxonomies, the transition table and the button
// interaction engine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/alarm-clock/internal/lightfx"
)

var (
	// ErrUnknownColor is returned for button events carrying a color outside
	// green, blue and yellow.
	ErrUnknownColor = errors.New("unknown button color")
	// ErrInvalidEvent is returned for events with an unknown type or an
	// out-of-range payload.
	ErrInvalidEvent = errors.New("invalid event")
)

// Color identifies one of the three physical buttons.
type Color string

const (
	ColorGreen  Color = "GREEN"
	ColorBlue   Color = "BLUE"
	ColorYellow Color = "YELLOW"
)

// Colors lists the buttons in their fixed scan order.
var Colors = [3]Color{ColorGreen, ColorBlue, ColorYellow}

// Valid reports whether c names a real button.
func (c Color) Valid() bool {
	switch c {
	case ColorGreen, ColorBlue, ColorYellow:
		return true
	}
	return false
}

// Mode is the coarse operational state of the device.
type Mode string

const (
	ModeNormal     Mode = "NORMAL"
	ModeSetting    Mode = "SETTING"
	ModeMenu       Mode = "MENU"
	ModeSystemInfo Mode = "SYSTEM_INFO"
	ModeStandby    Mode = "STANDBY"
	ModeAlarming   Mode = "ALARMING"
)

// Modes lists every mode.
var Modes = []Mode{ModeNormal, ModeSetting, ModeMenu, ModeSystemInfo, ModeStandby, ModeAlarming}

// AlarmPhase is the sub-state of ModeAlarming.
type AlarmPhase string

const (
	PhaseNone      AlarmPhase = ""
	PhaseSunrise   AlarmPhase = "SUNRISE"
	PhaseRainbow   AlarmPhase = "RAINBOW"
	PhaseChallenge AlarmPhase = "CHALLENGE"
)

// AlarmTime is the configured wake-up time.
type AlarmTime struct {
	Hour   uint8 `json:"hour"`
	Minute uint8 `json:"minute"`
}

// Valid reports whether the hour and minute are in range.
func (a AlarmTime) Valid() bool {
	return a.Hour < 24 && a.Minute < 60
}

func (a AlarmTime) String() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// Matches reports whether t falls within the alarm minute.
func (a AlarmTime) Matches(t time.Time) bool {
	return t.Hour() == int(a.Hour) && t.Minute() == int(a.Minute)
}

// NextHour returns a with the hour advanced by one, wrapping 23 to 0.
func (a AlarmTime) NextHour() AlarmTime {
	a.Hour = (a.Hour + 1) % 24
	return a
}

// NextMinute returns a with the minute advanced by one. When the minute wraps
// from 59 to 0 the hour is advanced only if carry is set.
func (a AlarmTime) NextMinute(carry bool) AlarmTime {
	a.Minute++
	if a.Minute >= 60 {
		a.Minute = 0
		if carry {
			a = a.NextHour()
		}
	}
	return a
}

// PowerSource tells whether the device runs from its battery or from USB.
type PowerSource string

const (
	PowerBattery PowerSource = "BATTERY"
	PowerUSB     PowerSource = "USB"
)

// Power is the last known supply state.
type Power struct {
	Source  PowerSource `json:"source"`
	Volts   float64     `json:"volts"`
	Percent int         `json:"percent"`
}

// Level buckets the battery percentage for display. USB power reads as
// "CHARGING".
func (p Power) Level() string {
	if p.Source == PowerUSB {
		return "CHARGING"
	}
	pct := p.Percent
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%d%%", pct/20*20)
}

// EventType tags an Event.
type EventType string

const (
	EventButtonPressed     EventType = "BUTTON_PRESSED"
	EventButtonReleased    EventType = "BUTTON_RELEASED"
	EventButtonRepeated    EventType = "BUTTON_REPEATED"
	EventTimeUpdated       EventType = "TIME_UPDATED"
	EventTimeRefreshDue    EventType = "TIME_REFRESH_DUE"
	EventTimeRefreshFailed EventType = "TIME_REFRESH_FAILED"
	EventVoltageMeasured   EventType = "VOLTAGE_MEASURED"
	EventVoltageCheckDue   EventType = "VOLTAGE_CHECK_DUE"
	EventUsbConnected      EventType = "USB_CONNECTED"
	EventUsbDisconnected   EventType = "USB_DISCONNECTED"
	EventAlarmCheckTick    EventType = "ALARM_CHECK_TICK"
	// Nothing in the clock publishes EventAlarmEffectPhaseComplete: the
	// machine ends the sunrise on the frame that reaches t = 1. It is
	// accepted from outside and ends the sunrise early.
	EventAlarmEffectPhaseComplete EventType = "ALARM_EFFECT_PHASE_COMPLETE"
	EventAlarmExpired             EventType = "ALARM_EXPIRED"
)

// EventTypes lists every event type.
var EventTypes = []EventType{
	EventButtonPressed, EventButtonReleased, EventButtonRepeated,
	EventTimeUpdated, EventTimeRefreshDue, EventTimeRefreshFailed,
	EventVoltageMeasured, EventVoltageCheckDue,
	EventUsbConnected, EventUsbDisconnected,
	EventAlarmCheckTick, EventAlarmEffectPhaseComplete, EventAlarmExpired,
}

// Known reports whether t is one of EventTypes.
func (t EventType) Known() bool {
	for _, k := range EventTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Event is an immutable message from a peripheral or the scheduler.
// Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	// Timestamp is when the event was observed.
	Timestamp time.Time
	Color     Color
	Time      time.Time
	Volts     float64
	Percent   int
	Reason    string
}

// Validate checks the payload required by the event type.
func (e Event) Validate() error {
	switch e.Type {
	case EventButtonPressed, EventButtonReleased, EventButtonRepeated:
		if !e.Color.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownColor, e.Color)
		}
	case EventTimeUpdated:
		if e.Time.IsZero() {
			return fmt.Errorf("%w: %s without time", ErrInvalidEvent, e.Type)
		}
	case EventVoltageMeasured:
		if e.Volts < 0 || e.Percent < 0 || e.Percent > 100 {
			return fmt.Errorf("%w: voltage %.2fV %d%%", ErrInvalidEvent, e.Volts, e.Percent)
		}
	case EventTimeRefreshDue, EventTimeRefreshFailed, EventVoltageCheckDue,
		EventUsbConnected, EventUsbDisconnected, EventAlarmCheckTick,
		EventAlarmEffectPhaseComplete, EventAlarmExpired:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// ButtonPressed builds a debounced press accepted at.
func ButtonPressed(c Color, at time.Time) Event {
	return Event{Type: EventButtonPressed, Color: c, Timestamp: at}
}

// ButtonReleased builds a debounced release accepted at.
func ButtonReleased(c Color, at time.Time) Event {
	return Event{Type: EventButtonReleased, Color: c, Timestamp: at}
}

// ButtonRepeated builds a long-press repeat synthesized at.
func ButtonRepeated(c Color, at time.Time) Event {
	return Event{Type: EventButtonRepeated, Color: c, Timestamp: at}
}

// TimeUpdated carries a freshly synchronized wall-clock time.
func TimeUpdated(t time.Time) Event {
	return Event{Type: EventTimeUpdated, Time: t, Timestamp: t}
}

// TimeRefreshFailed reports a failed synchronization attempt.
func TimeRefreshFailed(reason string) Event {
	return Event{Type: EventTimeRefreshFailed, Reason: reason}
}

// VoltageMeasured carries a battery reading.
func VoltageMeasured(volts float64, percent int) Event {
	return Event{Type: EventVoltageMeasured, Volts: volts, Percent: percent}
}

// Signal builds a payload-free event.
func Signal(t EventType) Event {
	return Event{Type: t}
}

// Target is the peripheral kind a Command is addressed to.
type Target string

const (
	TargetDisplay    Target = "DISPLAY"
	TargetLedRing    Target = "LED_RING"
	TargetAudio      Target = "AUDIO"
	TargetPower      Target = "POWER"
	TargetTimeSync   Target = "TIME_SYNC"
	TargetPersist    Target = "PERSIST"
	TargetScheduler  Target = "SCHEDULER"
	TargetButtonLeds Target = "BUTTON_LEDS"
)

// Targets lists every command target.
var Targets = []Target{
	TargetDisplay, TargetLedRing, TargetAudio, TargetPower,
	TargetTimeSync, TargetPersist, TargetScheduler, TargetButtonLeds,
}

// CommandType tags a Command.
type CommandType string

const (
	CommandRender             CommandType = "RENDER"
	CommandSetEffect          CommandType = "SET_EFFECT"
	CommandPlayAlarmTone      CommandType = "PLAY_ALARM_TONE"
	CommandStop               CommandType = "STOP"
	CommandRequestVoltageRead CommandType = "REQUEST_VOLTAGE_READ"
	CommandRequestRefresh     CommandType = "REQUEST_REFRESH"
	CommandSaveAlarmTime      CommandType = "SAVE_ALARM_TIME"
	CommandSuspend            CommandType = "SUSPEND"
	CommandResume             CommandType = "RESUME"
	CommandArmAlarmExpiry     CommandType = "ARM_ALARM_EXPIRY"
	CommandDisarmAlarmExpiry  CommandType = "DISARM_ALARM_EXPIRY"
	CommandArmRefreshRetry    CommandType = "ARM_REFRESH_RETRY"
	CommandDisarmRefreshRetry CommandType = "DISARM_REFRESH_RETRY"
	CommandLedsOn             CommandType = "LEDS_ON"
	CommandLedsOff            CommandType = "LEDS_OFF"
)

// Command is an immutable message to exactly one peripheral.
type Command struct {
	Target Target
	Type   CommandType
	// Snapshot is set for Render.
	Snapshot Snapshot
	// Effect is set for SetEffect.
	Effect Effect
	// AlarmTime is set for SaveAlarmTime.
	AlarmTime AlarmTime
	// After is set for ArmAlarmExpiry and ArmRefreshRetry. On LedsOn it
	// switches the LEDs off again after the delay; zero keeps them on.
	After time.Duration
}

func (c Command) String() string {
	return fmt.Sprintf("%s.%s", c.Target, c.Type)
}

// EffectKind names the LED ring effect.
type EffectKind string

const (
	EffectOff         EffectKind = "OFF"
	EffectAnalogClock EffectKind = "ANALOG_CLOCK"
	EffectSunrise     EffectKind = "SUNRISE"
	EffectRainbow     EffectKind = "RAINBOW"
)

// Effect describes one LED ring frame. Pixels holds the rendered colors,
// one per LED.
type Effect struct {
	Kind     EffectKind
	Hour     int
	Minute   int
	Second   int
	Progress float64
	Phase    int
	Pixels   []lightfx.RGB
}

// Snapshot is the read-only view of SystemState copied into Render commands.
type Snapshot struct {
	Mode        Mode       `json:"mode"`
	Phase       AlarmPhase `json:"phase,omitempty"`
	Prompt      Color      `json:"prompt,omitempty"`
	Remaining   []Color    `json:"remaining,omitempty"`
	AlarmTime   AlarmTime  `json:"alarm_time"`
	AlarmActive bool       `json:"alarm_active"`
	Now         time.Time  `json:"now"`
	TimeSynced  bool       `json:"time_synced"`
	Power       Power      `json:"power"`
	Battery     string     `json:"battery"`
}
