package logic

import "time"

// WallClock tracks current_time between synchronizations. After a sync it
// advances with the local monotonic clock; before the first sync it follows
// the local clock directly.
type WallClock struct {
	base   time.Time
	anchor time.Time
	synced bool
}

// Sync pins the wall clock to t as observed at local time now.
func (w *WallClock) Sync(t, now time.Time) {
	w.base = t
	w.anchor = now
	w.synced = true
}

// Now returns the wall-clock time at local time now.
func (w WallClock) Now(now time.Time) time.Time {
	if !w.synced {
		return now
	}
	return w.base.Add(now.Sub(w.anchor))
}

// Synced reports whether a TimeUpdated event has been applied.
func (w WallClock) Synced() bool {
	return w.synced
}

// AlarmRun is the bookkeeping of a ringing alarm.
type AlarmRun struct {
	Phase AlarmPhase
	// Lighting is the effect on the ring: PhaseSunrise or PhaseRainbow. It
	// keeps running underneath the Challenge phase.
	Lighting AlarmPhase
	// Prompts is the challenge order, drawn when the alarm starts.
	Prompts []Color
	// Next indexes the currently prompted color.
	Next         int
	ToneIssued   bool
	StartedAt    time.Time
	RainbowSince time.Time
	NextFrame    time.Time
}

// Remaining returns the colors still to be pressed, in prompt order.
func (r AlarmRun) Remaining() []Color {
	if r.Next >= len(r.Prompts) {
		return nil
	}
	out := make([]Color, len(r.Prompts)-r.Next)
	copy(out, r.Prompts[r.Next:])
	return out
}

// Prompt returns the currently prompted color, or "" when exhausted.
func (r AlarmRun) Prompt() Color {
	if r.Next >= len(r.Prompts) {
		return ""
	}
	return r.Prompts[r.Next]
}

// ButtonHold is the logical press and release record of one button.
type ButtonHold struct {
	Pressed    bool
	PressedAt  time.Time
	ReleasedAt time.Time
}

// SystemState is the single authoritative state aggregate. It is owned by
// the Machine and never shared by reference.
type SystemState struct {
	Mode        Mode
	Alarm       AlarmRun
	AlarmTime   AlarmTime
	AlarmActive bool
	Clock       WallClock
	Power       Power
	// Buttons is indexed in Colors order.
	Buttons [len(Colors)]ButtonHold
}

// Boot describes the state loaded before the orchestrator starts.
type Boot struct {
	AlarmTime   AlarmTime
	AlarmActive bool
	Standby     bool
}

// NewSystemState builds the boot state. An invalid alarm time falls back to
// 00:00 with the alarm disarmed.
func NewSystemState(b Boot) SystemState {
	s := SystemState{
		Mode:        ModeNormal,
		AlarmTime:   b.AlarmTime,
		AlarmActive: b.AlarmActive,
		Power:       Power{Source: PowerBattery},
	}
	if !s.AlarmTime.Valid() {
		s.AlarmTime = AlarmTime{}
		s.AlarmActive = false
	}
	if b.Standby {
		s.Mode = ModeStandby
	}
	return s
}

// Snapshot copies the fields peripherals need at local time now.
func (s SystemState) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Mode:        s.Mode,
		AlarmTime:   s.AlarmTime,
		AlarmActive: s.AlarmActive,
		Now:         s.Clock.Now(now),
		TimeSynced:  s.Clock.Synced(),
		Power:       s.Power,
		Battery:     s.Power.Level(),
	}
	if s.Mode == ModeAlarming {
		snap.Phase = s.Alarm.Phase
		snap.Prompt = s.Alarm.Prompt()
		snap.Remaining = s.Alarm.Remaining()
	}
	return snap
}
