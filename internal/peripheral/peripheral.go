// Package peripheral runs the tasks at the edge of the clock: Display,
// LedRing, Audio, ButtonLeds, PowerMonitor, TimeSync, Persist and Inputs.
// Each task consumes its own command queue, publishes events, or both, and
// returns from Run when its context is cancelled.
package peripheral

import (
	"context"

	"github.com/sweeney/alarm-clock/internal/logic"
)

// Publisher delivers events to the orchestrator. Tasks that also consume
// commands publish through PublishServing so they keep draining their own
// queue while the event queue is full.
type Publisher interface {
	Publish(ctx context.Context, ev logic.Event) error
	PublishServing(ctx context.Context, ev logic.Event, in <-chan logic.Command, serve func(logic.Command)) error
}

// Suspender is implemented by sinks that want to know when the outputs go
// into standby.
type Suspender interface {
	SetSuspended(suspended bool)
}

// next receives one command, reporting false when ctx is done. A closed
// queue blocks until ctx is done.
func next(ctx context.Context, in <-chan logic.Command) (logic.Command, bool) {
	for {
		select {
		case <-ctx.Done():
			return logic.Command{}, false
		case cmd, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			return cmd, true
		}
	}
}
