package logic

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func newTestMachine(boot Boot) *Machine {
	return NewMachine(DefaultSettings(), boot, rand.New(rand.NewSource(42)))
}

func mustHandle(t *testing.T, m *Machine, ev Event, now time.Time) []Command {
	t.Helper()
	cmds, err := m.Handle(ev, now)
	if err != nil {
		t.Fatalf("Handle(%s): unexpected error: %v", ev.Type, err)
	}
	return cmds
}

// tap presses and releases c starting at at. It returns the commands
// produced and the time after the release.
func tap(t *testing.T, m *Machine, c Color, at time.Time) ([]Command, time.Time) {
	t.Helper()
	var cmds []Command
	cmds = append(cmds, mustHandle(t, m, ButtonPressed(c, at), at)...)
	up := at.Add(100 * time.Millisecond)
	cmds = append(cmds, mustHandle(t, m, ButtonReleased(c, up), up)...)
	return cmds, up.Add(100 * time.Millisecond)
}

func count(cmds []Command, target Target, typ CommandType) int {
	n := 0
	for _, c := range cmds {
		if c.Target == target && c.Type == typ {
			n++
		}
	}
	return n
}

func last(cmds []Command, target Target, typ CommandType) (Command, bool) {
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i].Target == target && cmds[i].Type == typ {
			return cmds[i], true
		}
	}
	return Command{}, false
}

func wallAt(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, second, 0, time.UTC)
}

// startAlarm arms a 12:00 alarm and fires it.
func startAlarm(t *testing.T, m *Machine, at time.Time) time.Time {
	t.Helper()
	m.state.AlarmTime = AlarmTime{Hour: 12}
	m.state.AlarmActive = true
	mustHandle(t, m, TimeUpdated(wallAt(12, 0, 0)), at)
	mustHandle(t, m, Signal(EventAlarmCheckTick), at)
	if m.Mode() != ModeAlarming {
		t.Fatalf("got mode %s, want %s", m.Mode(), ModeAlarming)
	}
	return at
}

func driveTo(t *testing.T, m *Machine, mode Mode, at time.Time) time.Time {
	t.Helper()
	switch mode {
	case ModeSetting:
		_, at = tap(t, m, ColorBlue, at)
	case ModeMenu:
		_, at = tap(t, m, ColorYellow, at)
	case ModeSystemInfo:
		_, at = tap(t, m, ColorYellow, at)
		_, at = tap(t, m, ColorGreen, at)
	case ModeStandby:
		_, at = tap(t, m, ColorYellow, at)
		_, at = tap(t, m, ColorBlue, at)
	case ModeAlarming:
		at = startAlarm(t, m, at)
	}
	if m.Mode() != mode {
		t.Fatalf("driveTo: got mode %s, want %s", m.Mode(), mode)
	}
	return at
}

func TestButtonTransitions(t *testing.T) {
	tests := []struct {
		from  Mode
		color Color
		want  Mode
	}{
		{ModeNormal, ColorGreen, ModeNormal},
		{ModeNormal, ColorBlue, ModeSetting},
		{ModeNormal, ColorYellow, ModeMenu},
		{ModeSetting, ColorGreen, ModeSetting},
		{ModeSetting, ColorYellow, ModeSetting},
		{ModeSetting, ColorBlue, ModeNormal},
		{ModeMenu, ColorGreen, ModeSystemInfo},
		{ModeMenu, ColorBlue, ModeStandby},
		{ModeMenu, ColorYellow, ModeNormal},
		{ModeSystemInfo, ColorGreen, ModeNormal},
		{ModeSystemInfo, ColorBlue, ModeNormal},
		{ModeSystemInfo, ColorYellow, ModeNormal},
		{ModeStandby, ColorGreen, ModeNormal},
		{ModeStandby, ColorBlue, ModeNormal},
		{ModeStandby, ColorYellow, ModeNormal},
		{ModeAlarming, ColorGreen, ModeAlarming},
		{ModeAlarming, ColorBlue, ModeAlarming},
		{ModeAlarming, ColorYellow, ModeAlarming},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.color), func(t *testing.T) {
			m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 7}})
			at := driveTo(t, m, tt.from, t0)
			tap(t, m, tt.color, at)
			if m.Mode() != tt.want {
				t.Errorf("got mode %s, want %s", m.Mode(), tt.want)
			}
		})
	}
}

func TestTransitionTableTotal(t *testing.T) {
	events := []Event{
		ButtonPressed(ColorGreen, t0),
		ButtonReleased(ColorBlue, t0),
		ButtonRepeated(ColorYellow, t0),
		TimeUpdated(wallAt(8, 30, 0)),
		Signal(EventTimeRefreshDue),
		TimeRefreshFailed("timeout"),
		VoltageMeasured(3.9, 75),
		Signal(EventVoltageCheckDue),
		Signal(EventUsbConnected),
		Signal(EventUsbDisconnected),
		Signal(EventAlarmCheckTick),
		Signal(EventAlarmEffectPhaseComplete),
		Signal(EventAlarmExpired),
	}
	if len(events) != len(EventTypes) {
		t.Fatalf("test covers %d event types, want %d", len(events), len(EventTypes))
	}

	for _, mode := range Modes {
		for _, ev := range events {
			m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 7}})
			at := driveTo(t, m, mode, t0)
			ev.Timestamp = at
			if _, err := m.Handle(ev, at); err != nil {
				t.Errorf("%s + %s: unexpected error %v", mode, ev.Type, err)
			}
			if ev.Type == EventButtonPressed {
				// covered by TestButtonTransitions
				continue
			}

			want := mode
			if mode == ModeAlarming && ev.Type == EventAlarmExpired {
				want = ModeNormal
			}
			if m.Mode() != want {
				t.Errorf("%s + %s: got mode %s, want %s", mode, ev.Type, m.Mode(), want)
			}
		}
	}
}

func TestGreenTogglesAlarmActive(t *testing.T) {
	m := newTestMachine(Boot{})
	cmds, at := tap(t, m, ColorGreen, t0)
	if !m.State().AlarmActive {
		t.Fatal("alarm should be armed after green")
	}
	if count(cmds, TargetDisplay, CommandRender) != 1 {
		t.Errorf("expected one render, got %v", cmds)
	}
	eff, ok := last(cmds, TargetLedRing, CommandSetEffect)
	if !ok || eff.Effect.Kind != EffectOff {
		t.Errorf("armed alarm should turn the ring off, got %+v", eff.Effect.Kind)
	}

	cmds, _ = tap(t, m, ColorGreen, at)
	if m.State().AlarmActive {
		t.Fatal("alarm should be disarmed after second green")
	}
	eff, _ = last(cmds, TargetLedRing, CommandSetEffect)
	if eff.Effect.Kind != EffectAnalogClock {
		t.Errorf("got effect %s, want %s", eff.Effect.Kind, EffectAnalogClock)
	}
}

func TestSettingSavePersists(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 6, Minute: 30}})
	at := driveTo(t, m, ModeSetting, t0)
	_, at = tap(t, m, ColorGreen, at)
	_, at = tap(t, m, ColorYellow, at)

	cmds, _ := tap(t, m, ColorBlue, at)
	save, ok := last(cmds, TargetPersist, CommandSaveAlarmTime)
	if !ok {
		t.Fatalf("expected SaveAlarmTime, got %v", cmds)
	}
	want := AlarmTime{Hour: 7, Minute: 31}
	if save.AlarmTime != want {
		t.Errorf("got saved %v, want %v", save.AlarmTime, want)
	}
	if m.Mode() != ModeNormal {
		t.Errorf("got mode %s, want %s", m.Mode(), ModeNormal)
	}
}

func TestAlarmTimeOnlyChangesInSetting(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 6}})
	at := t0
	for _, c := range []Color{ColorGreen, ColorYellow, ColorGreen, ColorYellow} {
		_, at = tap(t, m, c, at)
	}
	if got := m.State().AlarmTime; got != (AlarmTime{Hour: 6}) {
		t.Errorf("alarm time changed outside Setting: %v", got)
	}
}

func TestAlarmFiresAtMatchingMinute(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 7}, AlarmActive: true})
	now := t0

	mustHandle(t, m, TimeUpdated(wallAt(6, 59, 0)), now)
	mustHandle(t, m, Signal(EventAlarmCheckTick), now.Add(time.Second))
	if m.Mode() != ModeNormal {
		t.Fatalf("got mode %s before alarm minute", m.Mode())
	}

	now = now.Add(2 * time.Second)
	mustHandle(t, m, TimeUpdated(wallAt(7, 0, 0)), now)
	cmds := mustHandle(t, m, Signal(EventAlarmCheckTick), now)

	if m.Mode() != ModeAlarming {
		t.Fatalf("got mode %s, want %s", m.Mode(), ModeAlarming)
	}
	if got := m.State().Alarm.Phase; got != PhaseSunrise {
		t.Errorf("got phase %s, want %s", got, PhaseSunrise)
	}
	eff, ok := last(cmds, TargetLedRing, CommandSetEffect)
	if !ok || eff.Effect.Kind != EffectSunrise {
		t.Errorf("expected sunrise effect, got %v", cmds)
	}
	arm, ok := last(cmds, TargetScheduler, CommandArmAlarmExpiry)
	if !ok || arm.After != 5*time.Minute {
		t.Errorf("expected ArmAlarmExpiry(5m), got %v", cmds)
	}
}

func TestAlarmRequiresNormalAndActive(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 7}, AlarmActive: false})
	mustHandle(t, m, TimeUpdated(wallAt(7, 0, 0)), t0)
	mustHandle(t, m, Signal(EventAlarmCheckTick), t0)
	if m.Mode() != ModeNormal {
		t.Fatalf("disarmed alarm fired")
	}

	m = newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 7}, AlarmActive: true})
	at := driveTo(t, m, ModeMenu, t0)
	mustHandle(t, m, TimeUpdated(wallAt(7, 0, 0)), at)
	mustHandle(t, m, Signal(EventAlarmCheckTick), at)
	if m.Mode() != ModeMenu {
		t.Fatalf("alarm fired outside Normal, mode %s", m.Mode())
	}
}

func TestAlarmCheckTickIdempotentWhileAlarming(t *testing.T) {
	m := newTestMachine(Boot{})
	at := startAlarm(t, m, t0)
	started := m.State().Alarm.StartedAt

	for i := 1; i <= 20; i++ {
		now := at.Add(time.Duration(i) * 10 * time.Millisecond)
		cmds := mustHandle(t, m, Signal(EventAlarmCheckTick), now)
		if count(cmds, TargetScheduler, CommandArmAlarmExpiry) != 0 {
			t.Fatalf("tick %d re-armed the alarm", i)
		}
	}
	s := m.State()
	if s.Mode != ModeAlarming || s.Alarm.Phase != PhaseSunrise {
		t.Errorf("got %s/%s, want ALARMING/SUNRISE", s.Mode, s.Alarm.Phase)
	}
	if !s.Alarm.StartedAt.Equal(started) {
		t.Errorf("sunrise restarted: %v -> %v", started, s.Alarm.StartedAt)
	}
}

func TestAlarmFiresOncePerMinute(t *testing.T) {
	m := newTestMachine(Boot{})
	at := startAlarm(t, m, t0)
	mustHandle(t, m, Signal(EventAlarmExpired), at)
	if m.Mode() != ModeNormal {
		t.Fatalf("got mode %s after expiry", m.Mode())
	}

	for i := 1; i <= 10; i++ {
		mustHandle(t, m, Signal(EventAlarmCheckTick), at.Add(time.Duration(i)*3*time.Second))
		if m.Mode() != ModeNormal {
			t.Fatalf("alarm re-fired within the same minute at tick %d", i)
		}
	}

	// same time next day
	next := at.Add(time.Minute)
	mustHandle(t, m, TimeUpdated(wallAt(12, 0, 0).AddDate(0, 0, 1)), next)
	mustHandle(t, m, Signal(EventAlarmCheckTick), next)
	if m.Mode() != ModeAlarming {
		t.Errorf("alarm should fire again the next day, mode %s", m.Mode())
	}
}

func TestChallengeExhaustion(t *testing.T) {
	for seed := int64(0); seed < 30; seed++ {
		m := NewMachine(DefaultSettings(), Boot{}, rand.New(rand.NewSource(seed)))
		at := startAlarm(t, m, t0)

		prompts := m.State().Alarm.Prompts
		seen := map[Color]bool{}
		for _, c := range prompts {
			if seen[c] || !c.Valid() {
				t.Fatalf("seed %d: prompts %v are not a permutation", seed, prompts)
			}
			seen[c] = true
		}
		if len(seen) != 3 {
			t.Fatalf("seed %d: got %d prompts, want 3", seed, len(seen))
		}

		stops := 0
		for i, want := range prompts {
			// every wrong color first
			for _, c := range Colors {
				if c == want {
					continue
				}
				var cmds []Command
				cmds, at = tap(t, m, c, at)
				stops += count(cmds, TargetAudio, CommandStop)
				if got := len(m.State().Alarm.Remaining()); got != 3-i {
					t.Fatalf("seed %d: wrong press changed remaining to %d", seed, got)
				}
			}

			var cmds []Command
			cmds, at = tap(t, m, want, at)
			stops += count(cmds, TargetAudio, CommandStop)
			if i < 2 {
				s := m.State()
				if s.Mode != ModeAlarming || s.Alarm.Phase != PhaseChallenge {
					t.Fatalf("seed %d: got %s/%s mid-challenge", seed, s.Mode, s.Alarm.Phase)
				}
				if got := len(s.Alarm.Remaining()); got != 2-i {
					t.Fatalf("seed %d: got remaining %d, want %d", seed, got, 2-i)
				}
			} else if count(cmds, TargetScheduler, CommandDisarmAlarmExpiry) != 1 {
				t.Errorf("seed %d: expected expiry disarm on completion", seed)
			}
		}

		if m.Mode() != ModeNormal {
			t.Fatalf("seed %d: got mode %s after challenge", seed, m.Mode())
		}
		if stops != 1 {
			t.Errorf("seed %d: got %d audio stops, want 1", seed, stops)
		}
	}
}

func TestChallengeOrderVaries(t *testing.T) {
	orders := map[[3]Color]bool{}
	m := NewMachine(DefaultSettings(), Boot{}, rand.New(rand.NewSource(7)))
	at := t0
	for i := 0; i < 40; i++ {
		at = startAlarm(t, m, at)
		var p [3]Color
		copy(p[:], m.State().Alarm.Prompts)
		orders[p] = true
		mustHandle(t, m, Signal(EventAlarmExpired), at)
		m.fired = false
	}
	if len(orders) < 2 {
		t.Errorf("challenge order never varied: %v", orders)
	}
}

func TestSunriseCompletesIntoRainbow(t *testing.T) {
	m := newTestMachine(Boot{})
	at := startAlarm(t, m, t0)

	tones := 0
	var lastProgress float64
	end := at.Add(61 * time.Second)
	for now := at; now.Before(end); now = now.Add(50 * time.Millisecond) {
		for _, c := range m.Advance(now) {
			if c.Type == CommandPlayAlarmTone {
				tones++
			}
			if c.Type == CommandSetEffect && c.Effect.Kind == EffectSunrise {
				if c.Effect.Progress < lastProgress {
					t.Fatalf("sunrise progress went backwards: %v -> %v", lastProgress, c.Effect.Progress)
				}
				lastProgress = c.Effect.Progress
			}
		}
	}
	if tones != 1 {
		t.Fatalf("got %d tones, want 1", tones)
	}
	s := m.State()
	if s.Alarm.Phase != PhaseRainbow || s.Alarm.Lighting != PhaseRainbow {
		t.Fatalf("got phase %s lighting %s, want RAINBOW", s.Alarm.Phase, s.Alarm.Lighting)
	}

	cmds := mustHandle(t, m, Signal(EventAlarmEffectPhaseComplete), end)
	if count(cmds, TargetAudio, CommandPlayAlarmTone) != 0 {
		t.Error("tone must not repeat")
	}

	cmds = m.Advance(end.Add(time.Second))
	eff, ok := last(cmds, TargetLedRing, CommandSetEffect)
	if !ok || eff.Effect.Kind != EffectRainbow {
		t.Errorf("expected rainbow frames, got %v", cmds)
	}
}

func TestPhaseCompleteEventEndsSunriseEarly(t *testing.T) {
	m := newTestMachine(Boot{})
	at := startAlarm(t, m, t0)

	cmds := mustHandle(t, m, Signal(EventAlarmEffectPhaseComplete), at.Add(time.Second))
	if count(cmds, TargetAudio, CommandPlayAlarmTone) != 1 {
		t.Fatalf("expected the tone, got %v", cmds)
	}
	if got := m.State().Alarm.Phase; got != PhaseRainbow {
		t.Fatalf("got phase %s, want RAINBOW", got)
	}

	// reaching t = 1 later does not end the sunrise a second time
	tones := 0
	for now := at.Add(time.Second); now.Before(at.Add(61 * time.Second)); now = now.Add(50 * time.Millisecond) {
		tones += count(m.Advance(now), TargetAudio, CommandPlayAlarmTone)
	}
	if tones != 0 {
		t.Errorf("got %d extra tones", tones)
	}
}

func TestChallengeDuringSunriseKeepsLighting(t *testing.T) {
	m := newTestMachine(Boot{})
	at := startAlarm(t, m, t0)
	first := m.State().Alarm.Prompts[0]
	_, at = tap(t, m, first, at)

	s := m.State()
	if s.Alarm.Phase != PhaseChallenge || s.Alarm.Lighting != PhaseSunrise {
		t.Fatalf("got %s/%s, want CHALLENGE over SUNRISE", s.Alarm.Phase, s.Alarm.Lighting)
	}

	cmds := m.Advance(at.Add(time.Minute))
	if count(cmds, TargetAudio, CommandPlayAlarmTone) != 1 {
		t.Errorf("tone should play when sunrise completes under challenge, got %v", cmds)
	}
	s = m.State()
	if s.Alarm.Phase != PhaseChallenge || s.Alarm.Lighting != PhaseRainbow {
		t.Errorf("got %s/%s, want CHALLENGE over RAINBOW", s.Alarm.Phase, s.Alarm.Lighting)
	}
}

func TestAlarmExpiredStopsAlarm(t *testing.T) {
	m := newTestMachine(Boot{})
	at := startAlarm(t, m, t0)
	cmds := mustHandle(t, m, Signal(EventAlarmExpired), at)

	if m.Mode() != ModeNormal {
		t.Fatalf("got mode %s, want NORMAL", m.Mode())
	}
	if count(cmds, TargetAudio, CommandStop) != 1 {
		t.Errorf("expected audio stop, got %v", cmds)
	}
	if count(cmds, TargetScheduler, CommandDisarmAlarmExpiry) != 0 {
		t.Errorf("expired timer needs no disarm, got %v", cmds)
	}
	if _, ok := m.Deadline(); ok {
		t.Error("no frames expected after the alarm stopped")
	}
}

func TestStandbyRoundTrip(t *testing.T) {
	m := newTestMachine(Boot{})
	_, at := tap(t, m, ColorYellow, t0)
	cmds, at := tap(t, m, ColorBlue, at)

	if m.Mode() != ModeStandby {
		t.Fatalf("got mode %s, want STANDBY", m.Mode())
	}
	for _, target := range []Target{TargetScheduler, TargetDisplay, TargetLedRing} {
		if count(cmds, target, CommandSuspend) != 1 {
			t.Errorf("expected %s suspend, got %v", target, cmds)
		}
	}

	cmds, _ = tap(t, m, ColorGreen, at)
	if m.Mode() != ModeNormal {
		t.Fatalf("got mode %s, want NORMAL", m.Mode())
	}
	if got := count(cmds, TargetTimeSync, CommandRequestRefresh); got != 1 {
		t.Errorf("got %d refresh requests, want 1", got)
	}
	for _, target := range []Target{TargetScheduler, TargetDisplay, TargetLedRing} {
		if count(cmds, target, CommandResume) != 1 {
			t.Errorf("expected %s resume, got %v", target, cmds)
		}
	}
	if m.State().AlarmActive {
		t.Error("waking button must not toggle the alarm")
	}
}

func TestStandbyQuiet(t *testing.T) {
	m := newTestMachine(Boot{Standby: true})
	for _, ev := range []Event{
		Signal(EventTimeRefreshDue),
		Signal(EventVoltageCheckDue),
		Signal(EventAlarmCheckTick),
		TimeUpdated(wallAt(9, 0, 0)),
		VoltageMeasured(3.7, 50),
	} {
		if cmds := mustHandle(t, m, ev, t0); len(cmds) != 0 {
			t.Errorf("%s in standby: got %v, want nothing", ev.Type, cmds)
		}
	}
	if got := m.State().Power.Percent; got != 50 {
		t.Errorf("voltage not recorded in standby: got %d", got)
	}
}

func TestBootStandbySuspends(t *testing.T) {
	m := newTestMachine(Boot{Standby: true})
	cmds := m.Start(t0)
	if count(cmds, TargetScheduler, CommandSuspend) != 1 {
		t.Errorf("expected scheduler suspend at boot, got %v", cmds)
	}
	if m.Mode() != ModeStandby {
		t.Errorf("got mode %s, want STANDBY", m.Mode())
	}
}

func TestBootEffects(t *testing.T) {
	m := newTestMachine(Boot{})
	eff, _ := last(m.Start(t0), TargetLedRing, CommandSetEffect)
	if eff.Effect.Kind != EffectAnalogClock || len(eff.Effect.Pixels) != 16 {
		t.Errorf("disarmed boot: got %s with %d pixels", eff.Effect.Kind, len(eff.Effect.Pixels))
	}

	m = newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 7}, AlarmActive: true})
	eff, _ = last(m.Start(t0), TargetLedRing, CommandSetEffect)
	if eff.Effect.Kind != EffectOff {
		t.Errorf("armed boot: got %s, want OFF", eff.Effect.Kind)
	}
}

func TestBootInvalidAlarmTimeFallsBack(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 25, Minute: 61}, AlarmActive: true})
	s := m.State()
	if s.AlarmTime != (AlarmTime{}) || s.AlarmActive {
		t.Errorf("got %v active=%v, want 00:00 inactive", s.AlarmTime, s.AlarmActive)
	}
}

func TestLongPressInSetting(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 0}})
	at := driveTo(t, m, ModeSetting, t0)

	cmds := mustHandle(t, m, ButtonPressed(ColorGreen, at), at)
	for i := 1; i <= 5; i++ {
		now := at.Add(time.Second + time.Duration(i)*150*time.Millisecond)
		cmds = append(cmds, mustHandle(t, m, ButtonRepeated(ColorGreen, now), now)...)
	}
	if got := count(cmds, TargetDisplay, CommandRender); got != 6 {
		t.Errorf("got %d renders, want 6", got)
	}
	if got := m.State().AlarmTime.Hour; got != 6 {
		t.Fatalf("got hour %d after press and 5 repeats, want 6", got)
	}

	release := at.Add(2 * time.Second)
	mustHandle(t, m, ButtonReleased(ColorGreen, release), release)
	if cmds := mustHandle(t, m, ButtonRepeated(ColorGreen, release), release); len(cmds) != 0 {
		t.Errorf("repeat after release: got %v", cmds)
	}
	if got := m.State().AlarmTime.Hour; got != 6 {
		t.Errorf("hour changed after release: %d", got)
	}
	if h := m.Button(ColorGreen); h.Pressed || !h.ReleasedAt.Equal(release) {
		t.Errorf("got hold %+v, want released at %v", h, release)
	}
}

func TestLongPressOnlyInSetting(t *testing.T) {
	m := newTestMachine(Boot{})
	cmds := mustHandle(t, m, ButtonPressed(ColorGreen, t0), t0)
	for i := 1; i <= 10; i++ {
		now := t0.Add(time.Duration(i) * 150 * time.Millisecond)
		cmds = append(cmds, mustHandle(t, m, ButtonRepeated(ColorGreen, now), now)...)
	}
	if got := count(cmds, TargetDisplay, CommandRender); got != 1 {
		t.Errorf("held green in Normal: got %d renders, want 1", got)
	}
	if !m.State().AlarmActive {
		t.Error("the press itself should still toggle the alarm")
	}
}

func TestRepeatOfBlueIgnoredInSetting(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 5, Minute: 5}})
	at := driveTo(t, m, ModeSetting, t0)
	m.state.Buttons[colorIndex(ColorBlue)].Pressed = true
	if cmds := mustHandle(t, m, ButtonRepeated(ColorBlue, at), at); len(cmds) != 0 {
		t.Errorf("got %v, want nothing", cmds)
	}
	if m.Mode() != ModeSetting {
		t.Errorf("got mode %s, want SETTING", m.Mode())
	}
}

func TestLatePressReleaseCountsOnce(t *testing.T) {
	m := newTestMachine(Boot{})
	late := t0.Add(10 * time.Second)

	mustHandle(t, m, ButtonPressed(ColorGreen, t0), late)
	mustHandle(t, m, ButtonReleased(ColorGreen, t0.Add(300*time.Millisecond)), late)
	if _, ok := m.Deadline(); ok {
		t.Error("buttons must not leave work for the timer")
	}
	if !m.State().AlarmActive {
		t.Fatal("one press should arm the alarm")
	}
	if h := m.Button(ColorGreen); !h.PressedAt.Equal(t0) {
		t.Errorf("got PressedAt %v, want the event timestamp %v", h.PressedAt, t0)
	}
}

func TestMinuteWrap(t *testing.T) {
	tests := []struct {
		name  string
		carry bool
		want  AlarmTime
	}{
		{"no carry", false, AlarmTime{Hour: 7, Minute: 3}},
		{"carry", true, AlarmTime{Hour: 8, Minute: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.MinuteCarry = tt.carry
			m := NewMachine(s, Boot{AlarmTime: AlarmTime{Hour: 7, Minute: 58}}, nil)
			at := driveTo(t, m, ModeSetting, t0)
			for i := 0; i < 5; i++ {
				_, at = tap(t, m, ColorYellow, at)
			}
			if got := m.State().AlarmTime; got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHourWraps(t *testing.T) {
	m := newTestMachine(Boot{AlarmTime: AlarmTime{Hour: 23, Minute: 15}})
	at := driveTo(t, m, ModeSetting, t0)
	tap(t, m, ColorGreen, at)
	if got := m.State().AlarmTime; got != (AlarmTime{Hour: 0, Minute: 15}) {
		t.Errorf("got %v, want 00:15", got)
	}
}

func TestMalformedEventsDropped(t *testing.T) {
	m := newTestMachine(Boot{})
	before := m.State()

	tests := []struct {
		ev   Event
		want error
	}{
		{ButtonPressed(Color("RED"), t0), ErrUnknownColor},
		{ButtonReleased(Color(""), t0), ErrUnknownColor},
		{ButtonRepeated(Color("PURPLE"), t0), ErrUnknownColor},
		{Event{Type: "BOGUS"}, ErrInvalidEvent},
		{Event{Type: EventTimeUpdated}, ErrInvalidEvent},
		{VoltageMeasured(3.7, 140), ErrInvalidEvent},
		{VoltageMeasured(-1, 10), ErrInvalidEvent},
	}
	for _, tt := range tests {
		cmds, err := m.Handle(tt.ev, t0)
		if !errors.Is(err, tt.want) {
			t.Errorf("%+v: got error %v, want %v", tt.ev, err, tt.want)
		}
		if len(cmds) != 0 {
			t.Errorf("%+v: got commands %v", tt.ev, cmds)
		}
	}
	if _, ok := m.Deadline(); ok {
		t.Error("malformed event scheduled work")
	}
	if after := m.State(); after.Mode != before.Mode || after.Power != before.Power {
		t.Errorf("state changed: %+v -> %+v", before, after)
	}
}

func TestPowerEvents(t *testing.T) {
	m := newTestMachine(Boot{})

	cmds := mustHandle(t, m, Signal(EventVoltageCheckDue), t0)
	if count(cmds, TargetPower, CommandRequestVoltageRead) != 1 {
		t.Errorf("expected voltage read request, got %v", cmds)
	}

	mustHandle(t, m, VoltageMeasured(3.85, 67), t0)
	snap := m.Snapshot(t0)
	if snap.Power.Percent != 67 || snap.Battery != "60%" {
		t.Errorf("got %+v battery %s", snap.Power, snap.Battery)
	}

	mustHandle(t, m, Signal(EventUsbConnected), t0)
	if got := m.Snapshot(t0).Battery; got != "CHARGING" {
		t.Errorf("got battery %s, want CHARGING", got)
	}

	cmds = mustHandle(t, m, Signal(EventUsbDisconnected), t0)
	if m.State().Power.Source != PowerBattery {
		t.Error("expected battery power after USB disconnect")
	}
	if count(cmds, TargetPower, CommandRequestVoltageRead) != 1 {
		t.Errorf("expected immediate voltage read, got %v", cmds)
	}
}

func TestTimeRefreshDue(t *testing.T) {
	m := newTestMachine(Boot{})
	cmds := mustHandle(t, m, Signal(EventTimeRefreshDue), t0)
	if count(cmds, TargetTimeSync, CommandRequestRefresh) != 1 {
		t.Errorf("expected refresh request, got %v", cmds)
	}
}

func TestTimeRefreshFailureArmsRetry(t *testing.T) {
	m := newTestMachine(Boot{})
	mustHandle(t, m, TimeUpdated(wallAt(6, 0, 0)), t0)

	cmds := mustHandle(t, m, TimeRefreshFailed("dns"), t0)
	arm, ok := last(cmds, TargetScheduler, CommandArmRefreshRetry)
	if !ok || arm.After != 30*time.Second {
		t.Fatalf("expected ArmRefreshRetry(30s), got %v", cmds)
	}
	if count(cmds, TargetDisplay, CommandRender) != 0 {
		t.Errorf("stale time stays on display, got %v", cmds)
	}

	// the retry fires as an ordinary refresh
	cmds = mustHandle(t, m, Signal(EventTimeRefreshDue), t0.Add(30*time.Second))
	if count(cmds, TargetTimeSync, CommandRequestRefresh) != 1 {
		t.Errorf("expected refresh request, got %v", cmds)
	}

	// a second failure re-arms
	cmds = mustHandle(t, m, TimeRefreshFailed("timeout"), t0.Add(31*time.Second))
	if count(cmds, TargetScheduler, CommandArmRefreshRetry) != 1 {
		t.Errorf("expected retry re-armed, got %v", cmds)
	}

	cmds = mustHandle(t, m, TimeUpdated(wallAt(6, 1, 0)), t0.Add(time.Minute))
	if count(cmds, TargetScheduler, CommandDisarmRefreshRetry) != 1 {
		t.Errorf("success should disarm the retry, got %v", cmds)
	}
	cmds = mustHandle(t, m, TimeUpdated(wallAt(6, 2, 0)), t0.Add(2*time.Minute))
	if count(cmds, TargetScheduler, CommandDisarmRefreshRetry) != 0 {
		t.Errorf("nothing left to disarm, got %v", cmds)
	}
}

func TestTimeRefreshRetryDisabled(t *testing.T) {
	s := DefaultSettings()
	s.RefreshRetry = 0
	m := NewMachine(s, Boot{}, nil)
	if cmds := mustHandle(t, m, TimeRefreshFailed("dns"), t0); len(cmds) != 0 {
		t.Errorf("got %v, want nothing", cmds)
	}

	m = newTestMachine(Boot{Standby: true})
	if cmds := mustHandle(t, m, TimeRefreshFailed("dns"), t0); len(cmds) != 0 {
		t.Errorf("standby: got %v, want nothing", cmds)
	}
}

func TestButtonLedsFollowPresses(t *testing.T) {
	m := newTestMachine(Boot{})
	cmds, at := tap(t, m, ColorYellow, t0)
	on, ok := last(cmds, TargetButtonLeds, CommandLedsOn)
	if !ok || on.After != 10*time.Second {
		t.Fatalf("expected LedsOn(10s) after a press, got %v", cmds)
	}

	// menu -> standby turns them off instead
	cmds, at = tap(t, m, ColorBlue, at)
	if count(cmds, TargetButtonLeds, CommandLedsOn) != 0 || count(cmds, TargetButtonLeds, CommandLedsOff) != 1 {
		t.Errorf("standby: got %v, want only LedsOff", cmds)
	}

	cmds, _ = tap(t, m, ColorGreen, at)
	if count(cmds, TargetButtonLeds, CommandLedsOn) != 1 {
		t.Errorf("waking press should light the LEDs, got %v", cmds)
	}
}

func TestButtonLedsDuringAlarm(t *testing.T) {
	m := newTestMachine(Boot{})
	m.state.AlarmTime = AlarmTime{Hour: 12}
	m.state.AlarmActive = true
	mustHandle(t, m, TimeUpdated(wallAt(12, 0, 0)), t0)
	cmds := mustHandle(t, m, Signal(EventAlarmCheckTick), t0)
	on, ok := last(cmds, TargetButtonLeds, CommandLedsOn)
	if !ok || on.After != 0 {
		t.Fatalf("expected LedsOn without timeout at alarm start, got %v", cmds)
	}

	at := t0
	var all []Command
	for _, c := range m.State().Alarm.Prompts {
		cmds, at = tap(t, m, c, at)
		all = append(all, cmds...)
	}
	if m.Mode() != ModeNormal {
		t.Fatalf("got mode %s after challenge", m.Mode())
	}
	if count(all, TargetButtonLeds, CommandLedsOn) != 0 {
		t.Errorf("challenge presses must not start a timeout, got %v", all)
	}
	if count(all, TargetButtonLeds, CommandLedsOff) != 1 {
		t.Errorf("expected LedsOff when the alarm stops, got %v", all)
	}

	m = newTestMachine(Boot{})
	at = startAlarm(t, m, t0)
	cmds = mustHandle(t, m, Signal(EventAlarmExpired), at)
	if count(cmds, TargetButtonLeds, CommandLedsOff) != 1 {
		t.Errorf("expiry should turn the LEDs off, got %v", cmds)
	}
}

func TestEventTypeKnown(t *testing.T) {
	for _, et := range EventTypes {
		if !et.Known() {
			t.Errorf("%s should be known", et)
		}
	}
	if EventType("BOGUS").Known() {
		t.Error("BOGUS should not be known")
	}
}

func TestWallClockAdvancesBetweenSyncs(t *testing.T) {
	m := newTestMachine(Boot{})
	if m.Snapshot(t0).TimeSynced {
		t.Fatal("clock should start unsynced")
	}
	mustHandle(t, m, TimeUpdated(wallAt(6, 0, 0)), t0)
	got := m.Snapshot(t0.Add(90 * time.Second)).Now
	if want := wallAt(6, 1, 30); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTickRendersOnMinuteChange(t *testing.T) {
	m := newTestMachine(Boot{AlarmActive: true, AlarmTime: AlarmTime{Hour: 23}})
	mustHandle(t, m, TimeUpdated(wallAt(6, 0, 10)), t0)

	cmds := mustHandle(t, m, Signal(EventAlarmCheckTick), t0.Add(10*time.Second))
	if len(cmds) != 0 {
		t.Errorf("same minute with ring off: got %v", cmds)
	}
	cmds = mustHandle(t, m, Signal(EventAlarmCheckTick), t0.Add(time.Minute))
	if count(cmds, TargetDisplay, CommandRender) != 1 {
		t.Errorf("expected render on new minute, got %v", cmds)
	}
}
