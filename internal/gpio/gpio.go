// Package gpio drives the clock's GPIO lines: three push buttons and the USB
// power sense line as inputs, and the button LEDs as an output.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing and simulation without hardware.
package gpio

import (
	"fmt"

	"github.com/sweeney/alarm-clock/internal/logic"
)

// DefaultChip is the GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Levels is one sample of the input lines, already in logical form:
// true means the button is held or USB power is present.
type Levels struct {
	Green  bool
	Blue   bool
	Yellow bool
	USB    bool
}

// Button returns the level of the button with color c.
func (l Levels) Button(c logic.Color) bool {
	switch c {
	case logic.ColorGreen:
		return l.Green
	case logic.ColorBlue:
		return l.Blue
	case logic.ColorYellow:
		return l.Yellow
	}
	return false
}

// WithButton returns a copy of l with the button c set to down.
func (l Levels) WithButton(c logic.Color, down bool) (Levels, error) {
	switch c {
	case logic.ColorGreen:
		l.Green = down
	case logic.ColorBlue:
		l.Blue = down
	case logic.ColorYellow:
		l.Yellow = down
	default:
		return l, fmt.Errorf("%w: %q", logic.ErrUnknownColor, c)
	}
	return l, nil
}

// Pins maps each input to a BCM line offset on Chip.
type Pins struct {
	Chip   string
	Green  int
	Blue   int
	Yellow int
	USB    int
	Leds   int
}

// Reader reads GPIO input states.
type Reader interface {
	// Read returns the logical input levels.
	// Buttons are wired active-low: raw 0 = pressed.
	Read() (Levels, error)

	// Close releases GPIO resources.
	Close() error
}

// Light switches an output line, such as the shared button LED supply.
type Light interface {
	Set(on bool) error
	Close() error
}
