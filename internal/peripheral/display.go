package peripheral

import (
	"context"
	"time"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Renderer draws a snapshot. The status tracker and the MQTT display
// publisher are both renderers.
type Renderer interface {
	Render(snap logic.Snapshot) error
}

// Display shows the latest snapshot on every renderer. It redraws the last
// snapshot every refresh period while awake; Suspend stops that refresh.
type Display struct {
	commands <-chan logic.Command
	refresh  time.Duration
	sinks    []Renderer

	last      logic.Snapshot
	have      bool
	suspended bool
	ticker    *time.Ticker
}

// NewDisplay creates a Display. A non-positive refresh disables redraws.
func NewDisplay(commands <-chan logic.Command, refresh time.Duration, sinks ...Renderer) *Display {
	return &Display{commands: commands, refresh: refresh, sinks: sinks}
}

// Run consumes commands until ctx is cancelled.
func (d *Display) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "display")
	d.startRefresh()
	defer d.stopRefresh()

	for {
		var tick <-chan time.Time
		if d.ticker != nil {
			tick = d.ticker.C
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-d.commands:
			if !ok {
				d.commands = nil
				continue
			}
			d.apply(ctx, cmd)
		case <-tick:
			if d.have {
				d.draw(ctx)
			}
		}
	}
}

func (d *Display) apply(ctx context.Context, cmd logic.Command) {
	switch cmd.Type {
	case logic.CommandRender:
		d.last = cmd.Snapshot
		d.have = true
		if !d.suspended {
			d.draw(ctx)
		}
	case logic.CommandSuspend:
		if d.suspended {
			return
		}
		d.suspended = true
		d.stopRefresh()
		d.notify(true)
		logger.Info(ctx, "suspended")
	case logic.CommandResume:
		if !d.suspended {
			return
		}
		d.suspended = false
		d.startRefresh()
		d.notify(false)
		logger.Info(ctx, "resumed")
	default:
		logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
	}
}

func (d *Display) draw(ctx context.Context) {
	for _, s := range d.sinks {
		if err := s.Render(d.last); err != nil {
			logger.WarnKV(ctx, "render failed", "error", err)
		}
	}
}

func (d *Display) notify(suspended bool) {
	for _, s := range d.sinks {
		if sp, ok := s.(Suspender); ok {
			sp.SetSuspended(suspended)
		}
	}
}

func (d *Display) startRefresh() {
	if d.refresh > 0 && d.ticker == nil {
		d.ticker = time.NewTicker(d.refresh)
	}
}

func (d *Display) stopRefresh() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}
