//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip    *gpiocdev.Chip
	buttons *gpiocdev.Lines
	usb     *gpiocdev.Line
}

// NewRealReader requests the button and USB sense lines described by pins.
func NewRealReader(pins Pins) (*RealReader, error) {
	name := pins.Chip
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}

	// Buttons short to ground, so they idle high on the pull-up and read
	// active-low. The kernel performs the inversion.
	offsets := []int{pins.Green, pins.Blue, pins.Yellow}
	buttons, err := chip.RequestLines(offsets, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button pins %v: %w", offsets, err)
	}

	usb, err := chip.RequestLine(pins.USB, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		buttons.Close()
		chip.Close()
		return nil, fmt.Errorf("request USB pin %d: %w", pins.USB, err)
	}

	return &RealReader{
		chip:    chip,
		buttons: buttons,
		usb:     usb,
	}, nil
}

// Read returns the logical input levels.
func (r *RealReader) Read() (Levels, error) {
	vals := make([]int, 3)
	if err := r.buttons.Values(vals); err != nil {
		return Levels{}, fmt.Errorf("read button pins: %w", err)
	}

	usbRaw, err := r.usb.Value()
	if err != nil {
		return Levels{}, fmt.Errorf("read USB pin: %w", err)
	}

	return Levels{
		Green:  vals[0] == 1,
		Blue:   vals[1] == 1,
		Yellow: vals[2] == 1,
		USB:    usbRaw == 1,
	}, nil
}

// Close releases GPIO resources.
// Lines are returned to input with pull-down (the Pi boot default) before
// closing so the pins are in a known state across reboot.
func (r *RealReader) Close() error {
	var errs []error

	if r.buttons != nil {
		if err := r.buttons.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pins: %w", err))
		}
		if err := r.buttons.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pins: %w", err))
		}
	}
	if r.usb != nil {
		if err := r.usb.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure USB pin: %w", err))
		}
		if err := r.usb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close USB pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLight drives an output line high to switch the LEDs on.
type RealLight struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealLight requests the LED line on pins.Chip as an output, initially off.
func NewRealLight(pins Pins) (*RealLight, error) {
	name := pins.Chip
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	line, err := chip.RequestLine(pins.Leds, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", pins.Leds, err)
	}
	return &RealLight{chip: chip, line: line}, nil
}

// Set drives the line.
func (l *RealLight) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set LED pin: %w", err)
	}
	return nil
}

// Close switches the LEDs off and releases the line.
func (l *RealLight) Close() error {
	var errs []error
	if l.line != nil {
		if err := l.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear LED pin: %w", err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LED pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
