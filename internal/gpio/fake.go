package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/alarm-clock/internal/logic"
)

// FakeReader is a test double that returns scripted GPIO values. It is also
// the input source in simulate mode, where SetButton drives it live.
// Safe for concurrent use.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []Levels

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Levels) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (Levels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Levels{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Levels{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Set replaces the script with a single sample held until the next Set.
func (f *FakeReader) Set(l Levels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = []Levels{l}
	f.index = 0
}

// Current returns the sample the next Read would return.
func (f *FakeReader) Current() Levels {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Samples) == 0 {
		return Levels{}
	}
	return f.Samples[f.index]
}

// SetButton holds or releases one button, keeping the other lines as they are.
func (f *FakeReader) SetButton(c logic.Color, down bool) error {
	l, err := f.Current().WithButton(c, down)
	if err != nil {
		return err
	}
	f.Set(l)
	return nil
}

// SetUSB sets the USB sense line.
func (f *FakeReader) SetUSB(present bool) {
	l := f.Current()
	l.USB = present
	f.Set(l)
}

// IsClosed reports whether Close was called.
func (f *FakeReader) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}

// FakeLight records every level written to it. Safe for concurrent use.
type FakeLight struct {
	mu      sync.Mutex
	history []bool
	closed  bool

	// SetError, if set, is returned by Set.
	SetError error
}

// Set records on.
func (f *FakeLight) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.history = append(f.history, on)
	return nil
}

// On reports the last level written.
func (f *FakeLight) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history) > 0 && f.history[len(f.history)-1]
}

// History returns every level written so far.
func (f *FakeLight) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// IsClosed reports whether Close was called.
func (f *FakeLight) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close marks the light as closed.
func (f *FakeLight) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
