package peripheral

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logic"
)

type task interface {
	Run(ctx context.Context) error
}

// start runs tk until the test ends.
func start(t *testing.T, tk task) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tk.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func nextEvent(t *testing.T, events <-chan logic.Event) logic.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return logic.Event{}
	}
}

func noEvent(t *testing.T, events <-chan logic.Event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(wait):
	}
}

// sink records renders, frames and suspension.
type sink struct {
	mu        sync.Mutex
	snaps     []logic.Snapshot
	kinds     []logic.EffectKind
	frames    [][]lightfx.RGB
	suspended []bool
}

func (s *sink) Render(snap logic.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *sink) Show(kind logic.EffectKind, frame []lightfx.RGB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *sink) SetSuspended(suspended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = append(s.suspended, suspended)
}

func (s *sink) renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func (s *sink) shown() []logic.EffectKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logic.EffectKind(nil), s.kinds...)
}

func (s *sink) suspensions() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.suspended...)
}
