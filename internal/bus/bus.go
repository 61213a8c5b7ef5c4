// Package bus carries Events to the orchestrator and Commands to the
// peripherals over bounded channels. A full queue blocks the sender until
// capacity frees up or its context is cancelled; nothing is dropped.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/alarm-clock/internal/logic"
)

// ErrNoRoute is returned when a command is addressed to a target without a
// registered queue.
var ErrNoRoute = errors.New("no route for target")

// EventQueue is the bounded multi-producer queue feeding the orchestrator.
type EventQueue struct {
	ch chan logic.Event
}

// NewEventQueue creates an event queue holding up to capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &EventQueue{ch: make(chan logic.Event, capacity)}
}

// Publish enqueues ev, blocking while the queue is full.
func (q *EventQueue) Publish(ctx context.Context, ev logic.Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishServing enqueues ev like Publish, but keeps handing commands from in
// to serve while it waits. Peripherals that both emit events and consume
// commands use it so that a full event queue never stops them draining their
// command queue. serve must not publish.
func (q *EventQueue) PublishServing(ctx context.Context, ev logic.Event, in <-chan logic.Command, serve func(logic.Command)) error {
	for {
		select {
		case q.ch <- ev:
			return nil
		case cmd, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			serve(cmd)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Events is the consumer side of the queue.
func (q *EventQueue) Events() <-chan logic.Event {
	return q.ch
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	return len(q.ch)
}

// Router holds one bounded command queue per target.
type Router struct {
	queues map[logic.Target]chan logic.Command
}

// NewRouter creates a queue of the given capacity for each target.
func NewRouter(capacity int, targets ...logic.Target) *Router {
	if capacity < 1 {
		capacity = 1
	}
	r := &Router{queues: make(map[logic.Target]chan logic.Command, len(targets))}
	for _, t := range targets {
		r.queues[t] = make(chan logic.Command, capacity)
	}
	return r
}

// Dispatch enqueues cmd on its target's queue, blocking while that queue is
// full. Other targets are unaffected.
func (r *Router) Dispatch(ctx context.Context, cmd logic.Command) error {
	q, ok := r.queues[cmd.Target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoute, cmd.Target)
	}
	select {
	case q <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commands returns the consumer side of target's queue, or nil if the target
// is not routed.
func (r *Router) Commands(target logic.Target) <-chan logic.Command {
	return r.queues[target]
}

// Len returns the number of commands queued for target.
func (r *Router) Len(target logic.Target) int {
	return len(r.queues[target])
}
