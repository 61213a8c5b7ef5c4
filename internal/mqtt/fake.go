package mqtt

import (
	"sync"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Frame is one recorded LED frame.
type Frame struct {
	Kind   logic.EffectKind
	Pixels []lightfx.RGB
}

// FakePublisher records published messages for test assertions.
// Safe for concurrent use; read recordings through the accessor methods
// while publishers may still be running.
type FakePublisher struct {
	mu sync.Mutex

	// Displays contains every published display snapshot.
	Displays []logic.Snapshot

	// DisplayPayloads contains the JSON payloads for the display topic.
	DisplayPayloads [][]byte

	// Frames contains every published LED frame.
	Frames []Frame

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishDisplay and PublishFrame.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishDisplay records the snapshot.
func (f *FakePublisher) PublishDisplay(snap logic.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatDisplayPayload(snap)
	if err != nil {
		return err
	}
	f.Displays = append(f.Displays, snap)
	f.DisplayPayloads = append(f.DisplayPayloads, payload)
	return nil
}

// PublishFrame records the frame.
func (f *FakePublisher) PublishFrame(kind logic.EffectKind, frame []lightfx.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Frames = append(f.Frames, Frame{Kind: kind, Pixels: append([]lightfx.RGB(nil), frame...)})
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// DisplaySnapshots returns a copy of the recorded snapshots.
func (f *FakePublisher) DisplaySnapshots() []logic.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Snapshot(nil), f.Displays...)
}

// RecordedFrames returns a copy of the recorded frames.
func (f *FakePublisher) RecordedFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.Frames...)
}

// RecordedSystemEvents returns a copy of the recorded system events.
func (f *FakePublisher) RecordedSystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Displays = nil
	f.DisplayPayloads = nil
	f.Frames = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
