package peripheral

import (
	"context"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Strip shows one frame of the LED ring.
type Strip interface {
	Show(kind logic.EffectKind, frame []lightfx.RGB) error
}

// LedRing pushes effect frames to its strips. Suspend blanks the ring and
// drops frames until Resume.
type LedRing struct {
	commands <-chan logic.Command
	count    int
	sinks    []Strip

	suspended bool
}

// NewLedRing creates a ring of count LEDs.
func NewLedRing(commands <-chan logic.Command, count int, sinks ...Strip) *LedRing {
	return &LedRing{commands: commands, count: count, sinks: sinks}
}

// Run consumes commands until ctx is cancelled. The ring is blanked on exit.
func (r *LedRing) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "ledring")
	defer r.show(ctx, logic.EffectOff, lightfx.Blank(r.count))

	for {
		cmd, ok := next(ctx, r.commands)
		if !ok {
			return nil
		}
		r.apply(ctx, cmd)
	}
}

func (r *LedRing) apply(ctx context.Context, cmd logic.Command) {
	switch cmd.Type {
	case logic.CommandSetEffect:
		if r.suspended {
			return
		}
		frame := cmd.Effect.Pixels
		if len(frame) == 0 {
			frame = lightfx.Blank(r.count)
		}
		r.show(ctx, cmd.Effect.Kind, frame)
	case logic.CommandSuspend:
		if r.suspended {
			return
		}
		r.show(ctx, logic.EffectOff, lightfx.Blank(r.count))
		r.suspended = true
		r.notify(true)
		logger.Info(ctx, "suspended")
	case logic.CommandResume:
		if !r.suspended {
			return
		}
		r.suspended = false
		r.notify(false)
		logger.Info(ctx, "resumed")
	default:
		logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
	}
}

func (r *LedRing) show(ctx context.Context, kind logic.EffectKind, frame []lightfx.RGB) {
	for _, s := range r.sinks {
		if err := s.Show(kind, frame); err != nil {
			logger.WarnKV(ctx, "show failed", "effect", kind, "error", err)
		}
	}
}

func (r *LedRing) notify(suspended bool) {
	for _, s := range r.sinks {
		if sp, ok := s.(Suspender); ok {
			sp.SetSuspended(suspended)
		}
	}
}
