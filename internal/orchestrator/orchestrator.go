// Package orchestrator runs the state machine: it is the single consumer of
// the event queue and the single producer of peripheral commands.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/alarm-clock/internal/bus"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/metrics"
)

// Dispatcher delivers a command to its target's queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd logic.Command) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics records events, commands and transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithQueueDepth reports the event backlog to metrics after every event.
func WithQueueDepth(depth func() int) Option {
	return func(o *Orchestrator) { o.depth = depth }
}

// Orchestrator owns a logic.Machine and feeds it events and timer wakeups.
type Orchestrator struct {
	machine *logic.Machine
	events  <-chan logic.Event
	out     Dispatcher
	now     func() time.Time
	metrics *metrics.Metrics
	depth   func() int
}

// New creates an orchestrator.
func New(m *logic.Machine, events <-chan logic.Event, out Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		machine: m,
		events:  events,
		out:     out,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes events until ctx is cancelled or the event channel closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "orchestrator")

	o.metrics.SetMode(o.machine.Mode())
	logger.InfoKV(ctx, "starting", "mode", o.machine.Mode())
	if err := o.dispatch(ctx, o.machine.Start(o.now())); err != nil {
		return nil
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var wake <-chan time.Time
		if at, ok := o.machine.Deadline(); ok {
			d := at.Sub(o.now())
			if d < 0 {
				d = 0
			}
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-o.events:
			if !ok {
				return nil
			}
			if err := o.handle(ctx, ev); err != nil {
				return nil
			}
		case <-wake:
			from := o.machine.Mode()
			if err := o.dispatch(ctx, o.machine.Advance(o.now())); err != nil {
				return nil
			}
			o.noteTransition(ctx, from)
		}
	}
}

// handle applies one event. The only error returned is context
// cancellation while dispatching.
func (o *Orchestrator) handle(ctx context.Context, ev logic.Event) error {
	if o.depth != nil {
		o.metrics.QueueDepth(o.depth())
	}

	from := o.machine.Mode()
	cmds, err := o.machine.Handle(ev, o.now())
	if err != nil {
		o.metrics.Dropped(ev.Type)
		logger.WarnKV(ctx, "event dropped", "type", ev.Type, "color", ev.Color, "error", err)
		return nil
	}
	o.metrics.Event(ev.Type)

	switch ev.Type {
	case logic.EventTimeRefreshFailed:
		logger.WarnKV(ctx, "time refresh failed", "reason", ev.Reason)
	case logic.EventTimeUpdated:
		logger.DebugKV(ctx, "time updated", "time", ev.Time)
	case logic.EventButtonPressed, logic.EventButtonReleased, logic.EventButtonRepeated:
		logger.DebugKV(ctx, "button", "type", ev.Type, "color", ev.Color)
	}

	if err := o.dispatch(ctx, cmds); err != nil {
		return err
	}
	o.noteTransition(ctx, from)
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, cmds []logic.Command) error {
	for _, cmd := range cmds {
		err := o.out.Dispatch(ctx, cmd)
		switch {
		case err == nil:
			o.metrics.Command(cmd)
		case errors.Is(err, bus.ErrNoRoute):
			logger.DebugKV(ctx, "command not routed", "command", cmd.String())
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.ErrorKV(ctx, "dispatch failed", "command", cmd.String(), "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) noteTransition(ctx context.Context, from logic.Mode) {
	to := o.machine.Mode()
	if to == from {
		return
	}
	o.metrics.Transition(from, to)
	if to == logic.ModeAlarming {
		s := o.machine.State()
		logger.InfoKV(ctx, "alarm started", "alarm_time", s.AlarmTime.String(), "prompts", s.Alarm.Prompts)
		return
	}
	logger.InfoKV(ctx, "mode changed", "from", from, "to", to)
}
