package main

import (
	"context"
	"time"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/mqtt"
	"github.com/sweeney/alarm-clock/internal/status"
)

// connectionPoll is how often the status page's MQTT indicator is refreshed.
const connectionPoll = 5 * time.Second

// telemetry publishes system events and mirrors the connection state into
// the tracker.
type telemetry struct {
	pub      mqtt.Publisher
	conn     mqtt.ConnectionStatus
	buffered func() int
	tracker  *status.Tracker
	start    time.Time
}

func (t *telemetry) publish(ctx context.Context, ev mqtt.SystemEvent) {
	if err := t.pub.PublishSystem(ev); err != nil {
		logger.WarnKV(ctx, "publishing system event", "event", ev.Event, "error", err)
	}
}

func (t *telemetry) syncConnection() {
	t.tracker.SetMQTTConnected(t.conn.IsConnected())
}

// heartbeatEvent carries the last rendered state, uptime and the number of
// messages waiting for the broker.
func (t *telemetry) heartbeatEvent(now time.Time) mqtt.SystemEvent {
	ev := mqtt.SystemEvent{
		Timestamp: now,
		Event:     mqtt.EventHeartbeat,
		Heartbeat: &mqtt.HeartbeatInfo{
			UptimeSeconds: int64(now.Sub(t.start).Seconds()),
		},
	}
	if t.buffered != nil {
		ev.Heartbeat.Buffered = t.buffered()
	}
	if snap := t.tracker.Snapshot(); snap.Rendered {
		ev.Snapshot = snapshotPtr(snap.Clock)
	}
	return ev
}

// heartbeat publishes a HEARTBEAT every interval. A zero interval disables
// the heartbeat but the connection indicator is still refreshed.
type heartbeat struct {
	tel      *telemetry
	interval time.Duration
	now      func() time.Time
}

func (h *heartbeat) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "heartbeat")
	now := h.now
	if now == nil {
		now = time.Now
	}

	var beat <-chan time.Time
	if h.interval > 0 {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		beat = t.C
	}
	poll := time.NewTicker(connectionPoll)
	defer poll.Stop()

	h.tel.syncConnection()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			h.tel.syncConnection()
		case <-beat:
			h.tel.syncConnection()
			h.tel.publish(ctx, h.tel.heartbeatEvent(now()))
		}
	}
}
