// Package scheduler is the single source of time-driven events: the time
// refresh, power check and alarm check timers, plus the one-shot alarm
// expiry and time refresh retry timers.
package scheduler

import (
	"context"
	"time"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Publisher delivers events while continuing to serve commands.
type Publisher interface {
	PublishServing(ctx context.Context, ev logic.Event, in <-chan logic.Command, serve func(logic.Command)) error
}

// Config holds the timer periods.
type Config struct {
	TimeRefresh time.Duration
	PowerCheck  time.Duration
	AlarmCheck  time.Duration
	// StartSuspended skips the boot refresh and leaves the timers stopped
	// until a Resume command arrives.
	StartSuspended bool
}

// Scheduler owns the timers. Suspend stops them, Resume restarts every
// period from zero without firing immediately.
type Scheduler struct {
	cfg      Config
	events   Publisher
	commands <-chan logic.Command

	suspended bool
	refresh   *time.Ticker
	power     *time.Ticker
	alarm     *time.Ticker
	expiry    oneShot
	retry     oneShot
}

// New creates a scheduler emitting into events and obeying commands.
func New(cfg Config, events Publisher, commands <-chan logic.Command) *Scheduler {
	return &Scheduler{cfg: cfg, events: events, commands: commands}
}

// Run drives the timers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "scheduler")
	defer s.stopAll()

	if s.cfg.StartSuspended {
		s.suspended = true
		logger.Info(ctx, "starting suspended")
	} else {
		s.startTickers()
		s.emit(ctx, logic.Signal(logic.EventTimeRefreshDue))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-s.commands:
			if !ok {
				s.commands = nil
				continue
			}
			s.apply(ctx, cmd)
		case <-tickC(s.refresh):
			s.emit(ctx, logic.Signal(logic.EventTimeRefreshDue))
		case <-tickC(s.power):
			s.emit(ctx, logic.Signal(logic.EventVoltageCheckDue))
		case <-tickC(s.alarm):
			s.emit(ctx, logic.Signal(logic.EventAlarmCheckTick))
		case <-s.expiry.c:
			s.expiry.fired()
			logger.Info(ctx, "alarm expired")
			s.emit(ctx, logic.Signal(logic.EventAlarmExpired))
		case <-s.retry.c:
			s.retry.fired()
			logger.Info(ctx, "retrying time refresh")
			s.emit(ctx, logic.Signal(logic.EventTimeRefreshDue))
		}
	}
}

func (s *Scheduler) emit(ctx context.Context, ev logic.Event) {
	ev.Timestamp = time.Now()
	err := s.events.PublishServing(ctx, ev, s.commands, func(cmd logic.Command) {
		s.apply(ctx, cmd)
	})
	if err != nil && ctx.Err() == nil {
		logger.WarnKV(ctx, "publish failed", "event", ev.Type, "error", err)
	}
}

func (s *Scheduler) apply(ctx context.Context, cmd logic.Command) {
	switch cmd.Type {
	case logic.CommandSuspend:
		if s.suspended {
			return
		}
		s.suspended = true
		s.stopAll()
		logger.Info(ctx, "timers suspended")
	case logic.CommandResume:
		if !s.suspended {
			return
		}
		s.suspended = false
		s.startTickers()
		logger.Info(ctx, "timers resumed")
	case logic.CommandArmAlarmExpiry:
		if s.suspended || cmd.After <= 0 {
			return
		}
		s.expiry.arm(cmd.After)
	case logic.CommandDisarmAlarmExpiry:
		s.expiry.stop()
	case logic.CommandArmRefreshRetry:
		if s.suspended || cmd.After <= 0 {
			return
		}
		s.retry.arm(cmd.After)
	case logic.CommandDisarmRefreshRetry:
		s.retry.stop()
	default:
		logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
	}
}

func (s *Scheduler) startTickers() {
	s.refresh = newTicker(s.cfg.TimeRefresh)
	s.power = newTicker(s.cfg.PowerCheck)
	s.alarm = newTicker(s.cfg.AlarmCheck)
}

func (s *Scheduler) stopAll() {
	for _, t := range []*time.Ticker{s.refresh, s.power, s.alarm} {
		if t != nil {
			t.Stop()
		}
	}
	s.refresh, s.power, s.alarm = nil, nil, nil
	s.expiry.stop()
	s.retry.stop()
}

// oneShot is a timer whose channel is nil while disarmed.
type oneShot struct {
	t *time.Timer
	c <-chan time.Time
}

// arm (re)starts the timer.
func (o *oneShot) arm(d time.Duration) {
	o.stop()
	o.t = time.NewTimer(d)
	o.c = o.t.C
}

func (o *oneShot) stop() {
	if o.t != nil {
		o.t.Stop()
	}
	o.fired()
}

func (o *oneShot) fired() {
	o.t = nil
	o.c = nil
}

// newTicker returns nil for a non-positive period, which disables the timer.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		return nil
	}
	return time.NewTicker(d)
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
