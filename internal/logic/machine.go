package logic

import (
	"math/rand"
	"time"

	"github.com/sweeney/alarm-clock/internal/lightfx"
)

// rainbowPeriod is one full turn of the color wheel.
const rainbowPeriod = 1280 * time.Millisecond

// Settings are the machine tunables.
type Settings struct {
	SunriseDuration time.Duration
	FrameInterval   time.Duration
	// AlarmTimeout arms the scheduler's expiry timer when an alarm starts.
	// Zero disables auto-stop.
	AlarmTimeout time.Duration
	// RefreshRetry arms a one-shot time refresh after a failed one. Zero
	// waits for the next periodic refresh.
	RefreshRetry time.Duration
	// ButtonLedTimeout is how long the button LEDs stay lit after a press
	// outside of an alarm.
	ButtonLedTimeout time.Duration
	MinuteCarry      bool
	LedCount         int
	ClockBrightness  uint8
	AlarmBrightness  uint8
}

// DefaultSettings returns the stock timings of the device.
func DefaultSettings() Settings {
	return Settings{
		SunriseDuration:  60 * time.Second,
		FrameInterval:    50 * time.Millisecond,
		AlarmTimeout:     5 * time.Minute,
		RefreshRetry:     30 * time.Second,
		ButtonLedTimeout: 10 * time.Second,
		LedCount:         16,
		ClockBrightness:  8,
		AlarmBrightness:  40,
	}
}

type minuteKey struct {
	year, day, hour, minute int
}

func keyOf(t time.Time) minuteKey {
	return minuteKey{year: t.Year(), day: t.YearDay(), hour: t.Hour(), minute: t.Minute()}
}

// Machine applies the transition table to SystemState. It is not safe for
// concurrent use; exactly one goroutine owns it.
type Machine struct {
	settings Settings
	state    SystemState
	rng      *rand.Rand

	lastFired  minuteKey
	fired      bool
	lastRender minuteKey
	lastEffect EffectKind
	retrying   bool
}

// NewMachine builds the machine from the boot state. rng draws the challenge
// order; a nil rng uses a fixed seed.
func NewMachine(s Settings, boot Boot, rng *rand.Rand) *Machine {
	if s.FrameInterval <= 0 {
		s.FrameInterval = DefaultSettings().FrameInterval
	}
	if s.LedCount <= 0 {
		s.LedCount = DefaultSettings().LedCount
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Machine{
		settings: s,
		state:    NewSystemState(boot),
		rng:      rng,
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return m.state.Mode
}

// State returns a copy of the system state.
func (m *Machine) State() SystemState {
	s := m.state
	s.Alarm.Prompts = append([]Color(nil), m.state.Alarm.Prompts...)
	return s
}

// Snapshot returns the render view at local time now.
func (m *Machine) Snapshot(now time.Time) Snapshot {
	return m.state.Snapshot(now)
}

// Button returns the hold state of c.
func (m *Machine) Button(c Color) ButtonHold {
	if i := colorIndex(c); i >= 0 {
		return m.state.Buttons[i]
	}
	return ButtonHold{}
}

func colorIndex(c Color) int {
	for i, k := range Colors {
		if k == c {
			return i
		}
	}
	return -1
}

// Start returns the commands that bring the peripherals in line with the
// boot state.
func (m *Machine) Start(now time.Time) []Command {
	if m.state.Mode == ModeStandby {
		return m.standbyCommands(now)
	}
	return []Command{m.render(now), m.setEffect(m.idleEffect(now))}
}

// Handle applies ev at local time now. Invalid events are rejected with an
// error and leave the state untouched.
func (m *Machine) Handle(ev Event, now time.Time) ([]Command, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var cmds []Command
	switch ev.Type {
	case EventButtonPressed:
		cmds = m.pressed(ev.Color, stamp(ev, now), now)

	case EventButtonReleased:
		hold := &m.state.Buttons[colorIndex(ev.Color)]
		hold.Pressed = false
		hold.ReleasedAt = stamp(ev, now)

	case EventButtonRepeated:
		if m.state.Buttons[colorIndex(ev.Color)].Pressed {
			cmds = m.repeat(ev.Color, now)
		}

	case EventTimeUpdated:
		m.state.Clock.Sync(ev.Time, now)
		if m.retrying {
			m.retrying = false
			cmds = append(cmds, signal(TargetScheduler, CommandDisarmRefreshRetry))
		}
		cmds = append(cmds, m.refresh(now, true)...)

	case EventTimeRefreshDue:
		if m.state.Mode != ModeStandby {
			cmds = append(cmds, signal(TargetTimeSync, CommandRequestRefresh))
		}

	case EventTimeRefreshFailed:
		// Stale time stays on display; one retry is armed until a refresh
		// succeeds.
		if m.state.Mode != ModeStandby && m.settings.RefreshRetry > 0 {
			m.retrying = true
			cmds = append(cmds, Command{
				Target: TargetScheduler,
				Type:   CommandArmRefreshRetry,
				After:  m.settings.RefreshRetry,
			})
		}

	case EventVoltageMeasured:
		m.state.Power.Volts = ev.Volts
		m.state.Power.Percent = ev.Percent
		cmds = m.renderAwake(now)

	case EventVoltageCheckDue:
		if m.state.Mode != ModeStandby {
			cmds = append(cmds, signal(TargetPower, CommandRequestVoltageRead))
		}

	case EventUsbConnected:
		m.state.Power.Source = PowerUSB
		cmds = m.renderAwake(now)

	case EventUsbDisconnected:
		m.state.Power.Source = PowerBattery
		cmds = append(cmds, signal(TargetPower, CommandRequestVoltageRead))
		cmds = append(cmds, m.renderAwake(now)...)

	case EventAlarmCheckTick:
		cmds = m.checkAlarm(now)

	case EventAlarmEffectPhaseComplete:
		cmds = m.completeSunrise(now)

	case EventAlarmExpired:
		if m.state.Mode == ModeAlarming {
			cmds = m.stopAlarm(now, false)
		}
	}

	return append(cmds, m.Advance(now)...), nil
}

// Advance renders the alarm effect frame due at now, if any.
func (m *Machine) Advance(now time.Time) []Command {
	if m.state.Mode == ModeAlarming && !now.Before(m.state.Alarm.NextFrame) {
		return m.frame(now)
	}
	return nil
}

// Deadline returns when Advance next has work to do.
func (m *Machine) Deadline() (time.Time, bool) {
	if m.state.Mode == ModeAlarming {
		return m.state.Alarm.NextFrame, true
	}
	return time.Time{}, false
}

func stamp(ev Event, now time.Time) time.Time {
	if ev.Timestamp.IsZero() {
		return now
	}
	return ev.Timestamp
}

// pressed records a debounced press, applies it and lights the button LEDs
// for a while. During an alarm the LEDs stay on until it stops.
func (m *Machine) pressed(c Color, at, now time.Time) []Command {
	hold := &m.state.Buttons[colorIndex(c)]
	hold.Pressed = true
	hold.PressedAt = at

	alarming := m.state.Mode == ModeAlarming
	cmds := m.press(c, now)
	if !alarming && m.state.Mode != ModeStandby && m.settings.ButtonLedTimeout > 0 {
		cmds = append(cmds, Command{
			Target: TargetButtonLeds,
			Type:   CommandLedsOn,
			After:  m.settings.ButtonLedTimeout,
		})
	}
	return cmds
}

func (m *Machine) press(c Color, now time.Time) []Command {
	switch m.state.Mode {
	case ModeNormal:
		switch c {
		case ColorGreen:
			m.state.AlarmActive = !m.state.AlarmActive
			return []Command{m.render(now), m.setEffect(m.idleEffect(now))}
		case ColorBlue:
			m.state.Mode = ModeSetting
		case ColorYellow:
			m.state.Mode = ModeMenu
		}
		return []Command{m.render(now)}

	case ModeSetting:
		switch c {
		case ColorGreen, ColorYellow:
			return m.repeat(c, now)
		case ColorBlue:
			m.state.Mode = ModeNormal
			return []Command{
				{Target: TargetPersist, Type: CommandSaveAlarmTime, AlarmTime: m.state.AlarmTime},
				m.render(now),
			}
		}

	case ModeMenu:
		switch c {
		case ColorGreen:
			m.state.Mode = ModeSystemInfo
		case ColorBlue:
			return m.enterStandby(now)
		case ColorYellow:
			m.state.Mode = ModeNormal
		}
		return []Command{m.render(now)}

	case ModeSystemInfo:
		m.state.Mode = ModeNormal
		return []Command{m.render(now)}

	case ModeStandby:
		return m.wake(now)

	case ModeAlarming:
		return m.challenge(c, now)
	}
	return nil
}

// repeat increments the alarm time field bound to c while setting. Repeats
// of any other button, or outside Setting, do nothing.
func (m *Machine) repeat(c Color, now time.Time) []Command {
	if m.state.Mode != ModeSetting {
		return nil
	}
	switch c {
	case ColorGreen:
		m.state.AlarmTime = m.state.AlarmTime.NextHour()
	case ColorYellow:
		m.state.AlarmTime = m.state.AlarmTime.NextMinute(m.settings.MinuteCarry)
	default:
		return nil
	}
	return []Command{m.render(now)}
}

func (m *Machine) enterStandby(now time.Time) []Command {
	m.state.Mode = ModeStandby
	return m.standbyCommands(now)
}

func (m *Machine) standbyCommands(now time.Time) []Command {
	m.lastEffect = EffectOff
	// suspending the scheduler drops a pending retry
	m.retrying = false
	return []Command{
		m.render(now),
		signal(TargetAudio, CommandStop),
		signal(TargetButtonLeds, CommandLedsOff),
		signal(TargetScheduler, CommandSuspend),
		signal(TargetDisplay, CommandSuspend),
		signal(TargetLedRing, CommandSuspend),
	}
}

func (m *Machine) wake(now time.Time) []Command {
	m.state.Mode = ModeNormal
	return []Command{
		signal(TargetScheduler, CommandResume),
		signal(TargetDisplay, CommandResume),
		signal(TargetLedRing, CommandResume),
		signal(TargetTimeSync, CommandRequestRefresh),
		signal(TargetPower, CommandRequestVoltageRead),
		m.render(now),
		m.setEffect(m.idleEffect(now)),
	}
}

func (m *Machine) checkAlarm(now time.Time) []Command {
	switch m.state.Mode {
	case ModeStandby, ModeAlarming:
		return nil
	}
	wall := m.state.Clock.Now(now)
	if m.state.Mode == ModeNormal && m.state.AlarmActive && m.state.AlarmTime.Matches(wall) {
		key := keyOf(wall)
		if !m.fired || key != m.lastFired {
			m.fired = true
			m.lastFired = key
			return m.startAlarm(now)
		}
	}
	return m.refresh(now, false)
}

func (m *Machine) startAlarm(now time.Time) []Command {
	prompts := make([]Color, len(Colors))
	for i, p := range m.rng.Perm(len(Colors)) {
		prompts[i] = Colors[p]
	}
	m.state.Mode = ModeAlarming
	m.state.Alarm = AlarmRun{
		Phase:     PhaseSunrise,
		Lighting:  PhaseSunrise,
		Prompts:   prompts,
		StartedAt: now,
		NextFrame: now.Add(m.settings.FrameInterval),
	}
	cmds := []Command{
		m.render(now),
		m.setEffect(m.sunriseEffect(0)),
		signal(TargetButtonLeds, CommandLedsOn),
	}
	if m.settings.AlarmTimeout > 0 {
		cmds = append(cmds, Command{
			Target: TargetScheduler,
			Type:   CommandArmAlarmExpiry,
			After:  m.settings.AlarmTimeout,
		})
	}
	return cmds
}

func (m *Machine) stopAlarm(now time.Time, disarm bool) []Command {
	m.state.Mode = ModeNormal
	m.state.Alarm = AlarmRun{}
	cmds := []Command{signal(TargetAudio, CommandStop), signal(TargetButtonLeds, CommandLedsOff)}
	if disarm {
		cmds = append(cmds, signal(TargetScheduler, CommandDisarmAlarmExpiry))
	}
	return append(cmds, m.setEffect(m.idleEffect(now)), m.render(now))
}

// frame renders the running alarm effect and schedules the next frame.
func (m *Machine) frame(now time.Time) []Command {
	run := &m.state.Alarm
	run.NextFrame = now.Add(m.settings.FrameInterval)

	switch run.Lighting {
	case PhaseSunrise:
		t := 1.0
		if m.settings.SunriseDuration > 0 {
			t = float64(now.Sub(run.StartedAt)) / float64(m.settings.SunriseDuration)
		}
		if t >= 1 {
			return m.completeSunrise(now)
		}
		return []Command{m.setEffect(m.sunriseEffect(t))}
	case PhaseRainbow:
		elapsed := now.Sub(run.RainbowSince) % rainbowPeriod
		return []Command{m.setEffect(m.rainbowEffect(int(elapsed * 256 / rainbowPeriod)))}
	}
	return nil
}

// completeSunrise switches the ring to the rainbow and plays the tone once.
// frame calls it when the sunrise reaches t = 1, which is the engine's own
// phase-complete signal; an AlarmEffectPhaseComplete event from outside
// takes the same path and is a no-op once the rainbow runs.
func (m *Machine) completeSunrise(now time.Time) []Command {
	run := &m.state.Alarm
	if m.state.Mode != ModeAlarming || run.Lighting != PhaseSunrise {
		return nil
	}
	run.Lighting = PhaseRainbow
	run.RainbowSince = now
	run.NextFrame = now.Add(m.settings.FrameInterval)
	if run.Phase == PhaseSunrise {
		run.Phase = PhaseRainbow
	}

	cmds := []Command{m.setEffect(m.sunriseEffect(1)), m.setEffect(m.rainbowEffect(0))}
	if !run.ToneIssued {
		run.ToneIssued = true
		cmds = append(cmds, signal(TargetAudio, CommandPlayAlarmTone))
	}
	return append(cmds, m.render(now))
}

// challenge counts c against the prompted color. The alarm stops once every
// color has been pressed in order.
func (m *Machine) challenge(c Color, now time.Time) []Command {
	run := &m.state.Alarm
	run.Phase = PhaseChallenge
	if c == run.Prompt() {
		run.Next++
	}
	if run.Next >= len(run.Prompts) {
		return m.stopAlarm(now, true)
	}
	return []Command{m.render(now)}
}

// refresh keeps the display minute and the clock hands current outside of
// alarms. force renders even if the minute has not changed.
func (m *Machine) refresh(now time.Time, force bool) []Command {
	var cmds []Command
	switch m.state.Mode {
	case ModeStandby:
		return nil
	case ModeAlarming:
		if force {
			cmds = append(cmds, m.render(now))
		}
		return cmds
	}
	if force || keyOf(m.state.Clock.Now(now)) != m.lastRender {
		cmds = append(cmds, m.render(now))
	}
	eff := m.idleEffect(now)
	if eff.Kind == EffectAnalogClock || eff.Kind != m.lastEffect {
		cmds = append(cmds, m.setEffect(eff))
	}
	return cmds
}

func (m *Machine) renderAwake(now time.Time) []Command {
	if m.state.Mode == ModeStandby {
		return nil
	}
	return []Command{m.render(now)}
}

func (m *Machine) render(now time.Time) Command {
	snap := m.state.Snapshot(now)
	m.lastRender = keyOf(snap.Now)
	return Command{Target: TargetDisplay, Type: CommandRender, Snapshot: snap}
}

func (m *Machine) setEffect(e Effect) Command {
	m.lastEffect = e.Kind
	return Command{Target: TargetLedRing, Type: CommandSetEffect, Effect: e}
}

func (m *Machine) idleEffect(now time.Time) Effect {
	if m.state.AlarmActive {
		return Effect{Kind: EffectOff, Pixels: lightfx.Blank(m.settings.LedCount)}
	}
	wall := m.state.Clock.Now(now)
	return Effect{
		Kind:   EffectAnalogClock,
		Hour:   wall.Hour(),
		Minute: wall.Minute(),
		Second: wall.Second(),
		Pixels: lightfx.AnalogClock(wall.Hour(), wall.Minute(), wall.Second(), m.settings.LedCount, m.settings.ClockBrightness),
	}
}

func (m *Machine) sunriseEffect(t float64) Effect {
	return Effect{
		Kind:     EffectSunrise,
		Progress: t,
		Pixels:   lightfx.SunriseFrame(t, m.settings.LedCount, m.settings.AlarmBrightness),
	}
}

func (m *Machine) rainbowEffect(phase int) Effect {
	return Effect{
		Kind:   EffectRainbow,
		Phase:  phase,
		Pixels: lightfx.Rainbow(phase, m.settings.LedCount, m.settings.AlarmBrightness),
	}
}

func signal(t Target, ct CommandType) Command {
	return Command{Target: t, Type: ct}
}
