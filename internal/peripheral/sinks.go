package peripheral

import (
	"sync"
	"time"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// DisplayPublisher is the display half of mqtt.Publisher.
type DisplayPublisher interface {
	PublishDisplay(snap logic.Snapshot) error
}

// FramePublisher is the LED half of mqtt.Publisher.
type FramePublisher interface {
	PublishFrame(kind logic.EffectKind, frame []lightfx.RGB) error
}

// PublishedDisplay renders by publishing the snapshot.
type PublishedDisplay struct {
	Publisher DisplayPublisher
}

// Render publishes snap.
func (p PublishedDisplay) Render(snap logic.Snapshot) error {
	return p.Publisher.PublishDisplay(snap)
}

// PublishedStrip publishes frames, at most one per Interval while the effect
// kind stays the same. A change of kind is always published.
type PublishedStrip struct {
	publisher FramePublisher
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastKind logic.EffectKind
	lastAt   time.Time
}

// NewPublishedStrip creates a throttled frame publisher.
func NewPublishedStrip(p FramePublisher, interval time.Duration) *PublishedStrip {
	return &PublishedStrip{publisher: p, interval: interval, now: time.Now}
}

// Show publishes frame unless it is throttled.
func (s *PublishedStrip) Show(kind logic.EffectKind, frame []lightfx.RGB) error {
	now := s.now()

	s.mu.Lock()
	if kind == s.lastKind && !s.lastAt.IsZero() && now.Sub(s.lastAt) < s.interval {
		s.mu.Unlock()
		return nil
	}
	s.lastKind = kind
	s.lastAt = now
	s.mu.Unlock()

	return s.publisher.PublishFrame(kind, frame)
}
