package lightfx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMixSaturates(t *testing.T) {
	t.Parallel()

	require.Equal(t, RGB{R: 255, G: 255}, Mix(HourHand, MinuteHand))
	require.Equal(t, RGB{R: 255, G: 30, B: 10}, Mix(RGB{R: 200, G: 10}, RGB{R: 100, G: 20, B: 10}))
}

func TestSunriseDeterministic(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 12, 16, 24} {
		for _, p := range []float64{0, 0.1, 0.33, 0.5, 0.99, 1} {
			first := SunriseFrame(p, n, 200)
			for i := 0; i < 5; i++ {
				require.Equal(t, first, SunriseFrame(p, n, 200), "n=%d t=%v", n, p)
			}
		}
	}
}

func TestSunriseProgressiveFill(t *testing.T) {
	t.Parallel()

	const n = 16
	prev := 0
	for step := 0; step <= 100; step++ {
		p := float64(step) / 100
		lit := 0
		for i := 0; i < n; i++ {
			if Sunrise(i, p, n) != Black {
				lit++
			}
		}
		require.Equal(t, LitCount(p, n), lit, "t=%v", p)
		require.GreaterOrEqual(t, lit, prev)
		prev = lit
	}
	require.Equal(t, n, prev)
}

func TestSunriseEndpoints(t *testing.T) {
	t.Parallel()

	require.Equal(t, DeepRed, Sunrise(0, 0, 16))
	require.Equal(t, Black, Sunrise(1, 0, 16))
	for i := 0; i < 16; i++ {
		require.Equal(t, WarmWhite, Sunrise(i, 1, 16))
	}
	require.Equal(t, Black, Sunrise(-1, 0.5, 16))
	require.Equal(t, Black, Sunrise(16, 0.5, 16))
}

func TestSunriseLitLedsWarmUp(t *testing.T) {
	t.Parallel()

	a := Sunrise(0, 0.2, 16)
	b := Sunrise(0, 0.6, 16)
	require.Greater(t, b.G, a.G)
	require.Greater(t, b.B, a.B)
}

func TestSunriseFrameBrightness(t *testing.T) {
	t.Parallel()

	require.Equal(t, Blank(16), SunriseFrame(0, 16, 100))
	full := SunriseFrame(1, 16, 255)
	for _, c := range full {
		require.Equal(t, WarmWhite, c)
	}
}

func TestWheel(t *testing.T) {
	t.Parallel()

	require.Equal(t, RGB{R: 255}, Wheel(0))
	require.Equal(t, RGB{G: 255}, Wheel(85))
	require.Equal(t, RGB{B: 255}, Wheel(170))
}

func TestRainbowRotates(t *testing.T) {
	t.Parallel()

	a := Rainbow(0, 16, 255)
	b := Rainbow(16, 16, 255)
	require.Len(t, a, 16)
	require.Equal(t, a[1], b[0])
	require.Equal(t, a, Rainbow(256, 16, 255))
}

func TestHandIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v, max, n, want int
	}{
		{0, 60, 16, 9},
		{15, 60, 16, 13},
		{30, 60, 16, 1},
		{45, 60, 16, 5},
		{0, 12, 16, 9},
		{6, 12, 16, 1},
		{12, 12, 16, 9},
		{59, 60, 16, 8},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, HandIndex(tt.v, tt.max, tt.n), "v=%d max=%d", tt.v, tt.max)
	}
}

func TestAnalogClockMixesHands(t *testing.T) {
	t.Parallel()

	// 12:00:00, all three hands on the same LED
	frame := AnalogClock(12, 0, 0, 16, 255)
	require.Equal(t, RGB{R: 255, G: 255, B: 255}, frame[9])
	lit := 0
	for _, c := range frame {
		if c != Black {
			lit++
		}
	}
	require.Equal(t, 1, lit)

	// 03:20:40, three distinct LEDs
	frame = AnalogClock(3, 20, 40, 16, 255)
	require.Equal(t, HourHand, frame[HandIndex(3, 12, 16)])
	require.Equal(t, MinuteHand, frame[HandIndex(20, 60, 16)])
	require.Equal(t, SecondHand, frame[HandIndex(40, 60, 16)])
}

func TestAnalogClockHourZeroIsTwelve(t *testing.T) {
	t.Parallel()

	require.Equal(t, AnalogClock(12, 5, 10, 16, 50), AnalogClock(0, 5, 10, 16, 50))
	require.Equal(t, AnalogClock(13, 5, 10, 16, 50), AnalogClock(1, 5, 10, 16, 50))
}

func TestScale(t *testing.T) {
	t.Parallel()

	require.Equal(t, RGB{R: 255, G: 100}, Scale(RGB{R: 255, G: 100}, 255))
	require.Equal(t, Black, Scale(WarmWhite, 0))
	require.Equal(t, "#8b0000", DeepRed.Hex())
}
