package peripheral

import (
	"context"
	"time"

	"github.com/sweeney/alarm-clock/internal/gpio"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// LedObserver is told when the button LEDs switch.
type LedObserver interface {
	SetButtonLeds(on bool)
}

// ButtonLeds drives the single line that lights all three buttons.
//
// LedsOn with a delay lights them and switches them off once the delay
// passes; a later LedsOn with a delay restarts it. LedsOn without a delay
// keeps them lit until LedsOff.
type ButtonLeds struct {
	commands <-chan logic.Command
	light    gpio.Light
	observer LedObserver

	on     bool
	timer  *time.Timer
	timerC <-chan time.Time
}

// ButtonLedsOption configures ButtonLeds.
type ButtonLedsOption func(*ButtonLeds)

// WithLedObserver reports LED state to o.
func WithLedObserver(o LedObserver) ButtonLedsOption {
	return func(b *ButtonLeds) {
		b.observer = o
	}
}

// NewButtonLeds creates the button LED task.
func NewButtonLeds(commands <-chan logic.Command, light gpio.Light, opts ...ButtonLedsOption) *ButtonLeds {
	b := &ButtonLeds{commands: commands, light: light}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run consumes commands until ctx is cancelled. The LEDs are switched off on
// exit.
func (b *ButtonLeds) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "button-leds")
	defer func() {
		b.disarm()
		b.set(ctx, false)
	}()

	commands := b.commands
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.timerC:
			b.timer, b.timerC = nil, nil
			b.set(ctx, false)
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			b.apply(ctx, cmd)
		}
	}
}

func (b *ButtonLeds) apply(ctx context.Context, cmd logic.Command) {
	switch cmd.Type {
	case logic.CommandLedsOn:
		b.disarm()
		if cmd.After > 0 {
			b.timer = time.NewTimer(cmd.After)
			b.timerC = b.timer.C
		}
		b.set(ctx, true)
	case logic.CommandLedsOff:
		b.disarm()
		b.set(ctx, false)
	default:
		logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
	}
}

func (b *ButtonLeds) disarm() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer, b.timerC = nil, nil
}

func (b *ButtonLeds) set(ctx context.Context, on bool) {
	if on == b.on {
		return
	}
	if err := b.light.Set(on); err != nil {
		logger.WarnKV(ctx, "button LEDs write failed", "on", on, "error", err)
		return
	}
	b.on = on
	if b.observer != nil {
		b.observer.SetButtonLeds(on)
	}
}
