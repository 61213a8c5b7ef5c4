// Package power reads the battery voltage and maps it to a charge percentage.
package power

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// VoltageSource returns the battery voltage in volts.
type VoltageSource interface {
	Volts() (float64, error)
}

// FixedSource always reports the same voltage. It stands in on hosts
// without a battery gauge.
type FixedSource float64

// Volts returns the fixed voltage.
func (f FixedSource) Volts() (float64, error) {
	return float64(f), nil
}

// SysfsSource reads a sysfs attribute such as an IIO ADC raw value or a
// power_supply voltage_now, multiplied by Scale. power_supply reports
// microvolts, so a Scale of 1e-6 yields volts.
type SysfsSource struct {
	Path  string
	Scale float64
}

// Volts reads and scales the attribute.
func (s SysfsSource) Volts() (float64, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.Path, err)
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	scale := s.Scale
	if scale == 0 {
		scale = 1
	}
	return raw * scale, nil
}

// Curve maps a voltage linearly between Empty and Full volts.
type Curve struct {
	Empty float64
	Full  float64
}

// Percent returns the charge in 0..100.
func (c Curve) Percent(volts float64) int {
	if c.Full <= c.Empty {
		return 0
	}
	p := (volts - c.Empty) / (c.Full - c.Empty) * 100
	return int(math.Round(math.Max(0, math.Min(100, p))))
}
