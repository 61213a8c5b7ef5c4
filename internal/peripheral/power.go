package peripheral

import (
	"context"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/power"
)

// PowerMonitor answers RequestVoltageRead with a VoltageMeasured event.
// A failed read is logged and leaves the last reading in place.
type PowerMonitor struct {
	events   Publisher
	commands <-chan logic.Command
	source   power.VoltageSource
	curve    power.Curve
}

// NewPowerMonitor creates the power task.
func NewPowerMonitor(events Publisher, commands <-chan logic.Command, source power.VoltageSource, curve power.Curve) *PowerMonitor {
	return &PowerMonitor{events: events, commands: commands, source: source, curve: curve}
}

// Run consumes commands until ctx is cancelled.
func (p *PowerMonitor) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "power")

	for {
		cmd, ok := next(ctx, p.commands)
		if !ok {
			return nil
		}
		if cmd.Type != logic.CommandRequestVoltageRead {
			logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
			continue
		}
		p.read(ctx)
	}
}

func (p *PowerMonitor) read(ctx context.Context) {
	volts, err := p.source.Volts()
	if err != nil {
		logger.WarnKV(ctx, "voltage read failed", "error", err)
		return
	}
	pct := p.curve.Percent(volts)
	logger.DebugKV(ctx, "voltage measured", "volts", volts, "percent", pct)

	// requests arriving while the reading is queued are already answered by it
	err = p.events.PublishServing(ctx, logic.VoltageMeasured(volts, pct), p.commands, func(logic.Command) {})
	if err != nil && ctx.Err() == nil {
		logger.WarnKV(ctx, "publish failed", "error", err)
	}
}
