package logic

import "time"

// ActionKind is a logical button action derived from raw edges.
type ActionKind string

const (
	ActionPress   ActionKind = "PRESS"
	ActionRelease ActionKind = "RELEASE"
	ActionRepeat  ActionKind = "REPEAT"
)

// ButtonAction is a debounced press, release, or synthesized repeat.
type ButtonAction struct {
	Color Color
	Kind  ActionKind
	At    time.Time
}

// ButtonState tracks debounce and hold timing for a single button.
type ButtonState struct {
	// Current stable (debounced) level
	Pressed bool
	// Last raw level reported by the peripheral
	Raw bool
	// Time of the last raw edge
	RawSince time.Time
	// When the current stable press was accepted
	PressedAt time.Time
	// When the last stable release was accepted
	ReleasedAt time.Time
	// Next long-press repeat, zero when none is due
	NextRepeat time.Time
}

func (b *ButtonState) pending() bool {
	return b.Raw != b.Pressed
}

// ButtonTiming holds the debounce and long-press thresholds.
type ButtonTiming struct {
	Debounce       time.Duration
	LongPress      time.Duration
	RepeatInterval time.Duration
}

// Repeats reports whether holding c synthesizes repeats. Only the buttons
// that step the alarm time do.
func Repeats(c Color) bool {
	return c == ColorGreen || c == ColorYellow
}

// Debouncer turns raw button edges into logical actions. A level change is
// accepted once the raw signal has been stable for the debounce window;
// bounces inside the window coalesce into nothing.
//
// Samples must be fed in order with Advance called at each sample time, so
// the window is judged on when the line was read rather than when anyone
// gets round to looking at it.
type Debouncer struct {
	timing  ButtonTiming
	buttons map[Color]*ButtonState
}

// NewDebouncer creates a debouncer with all buttons released.
func NewDebouncer(timing ButtonTiming) *Debouncer {
	d := &Debouncer{
		timing:  timing,
		buttons: make(map[Color]*ButtonState, len(Colors)),
	}
	for _, c := range Colors {
		d.buttons[c] = &ButtonState{}
	}
	return d
}

// Raw records a raw edge. Edges repeating the current raw level are ignored.
func (d *Debouncer) Raw(c Color, pressed bool, at time.Time) {
	b, ok := d.buttons[c]
	if !ok || b.Raw == pressed {
		return
	}
	b.Raw = pressed
	b.RawSince = at
}

// Advance settles pending edges and emits due repeats up to now. Repeats are
// only synthesized for buttons where repeatable returns true, and never
// while a release is still being debounced.
func (d *Debouncer) Advance(now time.Time, repeatable func(Color) bool) []ButtonAction {
	var actions []ButtonAction
	for _, c := range Colors {
		b := d.buttons[c]

		if b.pending() {
			settle := b.RawSince.Add(d.timing.Debounce)
			if !now.Before(settle) {
				b.Pressed = b.Raw
				if b.Pressed {
					b.PressedAt = settle
					b.NextRepeat = settle.Add(d.timing.LongPress)
					actions = append(actions, ButtonAction{Color: c, Kind: ActionPress, At: settle})
				} else {
					b.ReleasedAt = settle
					b.NextRepeat = time.Time{}
					actions = append(actions, ButtonAction{Color: c, Kind: ActionRelease, At: settle})
				}
			}
		}

		if !d.repeatDue(b, c, repeatable) || now.Before(b.NextRepeat) {
			continue
		}
		actions = append(actions, ButtonAction{Color: c, Kind: ActionRepeat, At: b.NextRepeat})
		b.NextRepeat = b.NextRepeat.Add(d.timing.RepeatInterval)
		if !b.NextRepeat.After(now) {
			// Missed repeats are dropped rather than replayed in a burst.
			b.NextRepeat = now.Add(d.timing.RepeatInterval)
		}
	}
	return actions
}

func (d *Debouncer) repeatDue(b *ButtonState, c Color, repeatable func(Color) bool) bool {
	if !b.Pressed || b.pending() || b.NextRepeat.IsZero() || d.timing.RepeatInterval <= 0 {
		return false
	}
	return repeatable != nil && repeatable(c)
}

// Deadline returns the earliest time Advance has work to do.
func (d *Debouncer) Deadline(repeatable func(Color) bool) (time.Time, bool) {
	var next time.Time
	found := false
	consider := func(t time.Time) {
		if !found || t.Before(next) {
			next = t
			found = true
		}
	}
	for _, c := range Colors {
		b := d.buttons[c]
		if b.pending() {
			consider(b.RawSince.Add(d.timing.Debounce))
		}
		if d.repeatDue(b, c, repeatable) {
			consider(b.NextRepeat)
		}
	}
	return next, found
}

// State returns a copy of the hold state for c.
func (d *Debouncer) State(c Color) ButtonState {
	if b, ok := d.buttons[c]; ok {
		return *b
	}
	return ButtonState{}
}
