package peripheral

import (
	"context"
	"time"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/timesync"
)

type fetchResult struct {
	at  time.Time
	err error
}

// TimeSync answers RequestRefresh with TimeUpdated or TimeRefreshFailed.
// The fetch runs on its own goroutine so the command queue keeps draining
// while the network is slow; requests arriving during a fetch are coalesced
// into it.
type TimeSync struct {
	events   Publisher
	commands <-chan logic.Command
	source   timesync.Source
}

// NewTimeSync creates the time sync task.
func NewTimeSync(events Publisher, commands <-chan logic.Command, source timesync.Source) *TimeSync {
	return &TimeSync{events: events, commands: commands, source: source}
}

// Run consumes commands until ctx is cancelled.
func (s *TimeSync) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "timesync")

	results := make(chan fetchResult, 1)
	inflight := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-s.commands:
			if !ok {
				s.commands = nil
				continue
			}
			if cmd.Type != logic.CommandRequestRefresh {
				logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
				continue
			}
			if inflight {
				logger.DebugKV(ctx, "refresh already in flight")
				continue
			}
			inflight = true
			go func() {
				at, err := s.source.Now(ctx)
				results <- fetchResult{at: at, err: err}
			}()
		case res := <-results:
			inflight = false
			s.report(ctx, res)
		}
	}
}

func (s *TimeSync) report(ctx context.Context, res fetchResult) {
	var ev logic.Event
	if res.err != nil {
		ev = logic.TimeRefreshFailed(res.err.Error())
	} else {
		logger.DebugKV(ctx, "time fetched", "time", res.at)
		ev = logic.TimeUpdated(res.at)
	}

	err := s.events.PublishServing(ctx, ev, s.commands, func(cmd logic.Command) {
		logger.DebugKV(ctx, "refresh coalesced while publishing", "command", cmd.String())
	})
	if err != nil && ctx.Err() == nil {
		logger.WarnKV(ctx, "publish failed", "error", err)
	}
}
