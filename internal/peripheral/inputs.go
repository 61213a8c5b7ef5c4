package peripheral

import (
	"context"
	"time"

	"github.com/sweeney/alarm-clock/internal/gpio"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Inputs polls the GPIO lines, debounces the buttons sample by sample and
// publishes logical button events: ButtonPressed, ButtonReleased and
// ButtonRepeated stamped with the time they settled. USB edges are published
// as UsbConnected or UsbDisconnected without debouncing.
type Inputs struct {
	events   Publisher
	reader   gpio.Reader
	poll     time.Duration
	debounce *logic.Debouncer
	now      func() time.Time

	lastUSB  bool
	failing  bool
	received bool
}

// NewInputs creates the input task. All lines are assumed released and USB
// absent before the first sample, so a line already active at boot yields an
// event.
func NewInputs(events Publisher, reader gpio.Reader, poll time.Duration, timing logic.ButtonTiming) *Inputs {
	return &Inputs{
		events:   events,
		reader:   reader,
		poll:     poll,
		debounce: logic.NewDebouncer(timing),
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (in *Inputs) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "inputs")

	ticker := time.NewTicker(in.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := in.sample(ctx); err != nil {
				return nil
			}
		}
	}
}

// sample reads once, feeds the debouncer and publishes whatever settled. It
// returns an error only when ctx is cancelled mid-publish.
func (in *Inputs) sample(ctx context.Context) error {
	at := in.now()

	levels, err := in.reader.Read()
	if err != nil {
		if !in.failing {
			logger.WarnKV(ctx, "gpio read failed", "error", err)
			in.failing = true
		}
		// held buttons keep their last level and may still repeat
		return in.settle(ctx, at)
	}
	if in.failing {
		logger.Info(ctx, "gpio read recovered")
		in.failing = false
	}

	if !in.received {
		in.received = true
		logger.InfoKV(ctx, "first sample", "green", levels.Green, "blue", levels.Blue, "yellow", levels.Yellow, "usb", levels.USB)
	}

	for _, c := range logic.Colors {
		in.debounce.Raw(c, levels.Button(c), at)
	}
	if err := in.settle(ctx, at); err != nil {
		return err
	}

	if in.lastUSB != levels.USB {
		in.lastUSB = levels.USB
		ev := logic.Signal(logic.EventUsbDisconnected)
		if levels.USB {
			ev = logic.Signal(logic.EventUsbConnected)
		}
		ev.Timestamp = at
		if err := in.events.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (in *Inputs) settle(ctx context.Context, at time.Time) error {
	for _, a := range in.debounce.Advance(at, logic.Repeats) {
		var ev logic.Event
		switch a.Kind {
		case logic.ActionPress:
			ev = logic.ButtonPressed(a.Color, a.At)
		case logic.ActionRelease:
			ev = logic.ButtonReleased(a.Color, a.At)
		case logic.ActionRepeat:
			ev = logic.ButtonRepeated(a.Color, a.At)
		default:
			continue
		}
		if err := in.events.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
