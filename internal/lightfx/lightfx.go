// Package lightfx computes LED ring frames. Every function is pure: the same
// arguments always produce the same colors.
package lightfx

import (
	"fmt"
	"math"
)

// RGB is a single LED color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex formats c as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

var (
	Black     = RGB{}
	DeepRed   = RGB{R: 139}
	WarmWhite = RGB{R: 255, G: 250, B: 244}

	HourHand   = RGB{R: 255}
	MinuteHand = RGB{G: 255}
	SecondHand = RGB{B: 255}
)

// Mix adds two colors channel by channel, saturating at 255.
func Mix(a, b RGB) RGB {
	return RGB{R: addSat(a.R, b.R), G: addSat(a.G, b.G), B: addSat(a.B, b.B)}
}

func addSat(a, b uint8) uint8 {
	s := uint16(a) + uint16(b)
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// Lerp interpolates from a to b; t is clamped to [0,1].
func Lerp(a, b RGB, t float64) RGB {
	t = clamp01(t)
	return RGB{
		R: lerp8(a.R, b.R, t),
		G: lerp8(a.G, b.G, t),
		B: lerp8(a.B, b.B, t),
	}
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// Scale dims c to level/255.
func Scale(c RGB, level uint8) RGB {
	return RGB{
		R: uint8(uint16(c.R) * uint16(level) / 255),
		G: uint8(uint16(c.G) * uint16(level) / 255),
		B: uint8(uint16(c.B) * uint16(level) / 255),
	}
}

// Wheel maps a position on the color wheel to a color. The wheel runs
// red to green to blue and back to red.
func Wheel(pos uint8) RGB {
	p := 255 - pos
	switch {
	case p < 85:
		return RGB{R: 255 - p*3, B: p * 3}
	case p < 170:
		p -= 85
		return RGB{G: p * 3, B: 255 - p*3}
	default:
		p -= 170
		return RGB{R: p * 3, G: 255 - p*3}
	}
}

func clamp01(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// LitCount is the number of LEDs lit at sunrise progress t on a ring of n.
// It grows monotonically from 1 at t=0 to n.
func LitCount(t float64, n int) int {
	if n <= 0 {
		return 0
	}
	lit := int(math.Floor(clamp01(t)*float64(n))) + 1
	if lit > n {
		lit = n
	}
	return lit
}

// Sunrise returns the color of LED i at progress t on a ring of n. LED i
// lights up at t = i/n in deep red and warms toward white, reaching it at
// t = 1 together with every other LED.
func Sunrise(i int, t float64, n int) RGB {
	if i < 0 || i >= n {
		return Black
	}
	t = clamp01(t)
	if i >= LitCount(t, n) {
		return Black
	}
	start := float64(i) / float64(n)
	return Lerp(DeepRed, WarmWhite, (t-start)/(1-start))
}

// SunriseFrame renders the whole ring at progress t. Brightness rises
// linearly from 0 to max with t.
func SunriseFrame(t float64, n int, max uint8) []RGB {
	t = clamp01(t)
	level := uint8(math.Round(t * float64(max)))
	frame := make([]RGB, n)
	for i := range frame {
		frame[i] = Scale(Sunrise(i, t, n), level)
	}
	return frame
}

// Rainbow renders a wheel spread evenly across n LEDs, rotated by phase.
func Rainbow(phase int, n int, level uint8) []RGB {
	frame := make([]RGB, n)
	for i := range frame {
		frame[i] = Scale(Wheel(uint8(i*256/n+phase)), level)
	}
	return frame
}

// HandIndex maps value v out of max onto a ring of n LEDs. Zero sits at
// n/2+1, which is the top of the mounted ring.
func HandIndex(v, max, n int) int {
	if n <= 0 || max <= 0 {
		return 0
	}
	v %= max
	if v < 0 {
		v += max
	}
	return (v*n/max + n/2 + 1) % n
}

// AnalogClock renders hour, minute and second hands. Hands that land on the
// same LED are mixed.
func AnalogClock(hour, minute, second, n int, level uint8) []RGB {
	frame := make([]RGB, n)
	if n <= 0 {
		return frame
	}
	hi := HandIndex(hour%12, 12, n)
	mi := HandIndex(minute, 60, n)
	si := HandIndex(second, 60, n)
	frame[hi] = Mix(frame[hi], HourHand)
	frame[mi] = Mix(frame[mi], MinuteHand)
	frame[si] = Mix(frame[si], SecondHand)
	for i := range frame {
		frame[i] = Scale(frame[i], level)
	}
	return frame
}

// Blank returns an all-off frame.
func Blank(n int) []RGB {
	if n < 0 {
		n = 0
	}
	return make([]RGB, n)
}
