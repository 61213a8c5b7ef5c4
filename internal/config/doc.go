// Package config loads the alarm clock settings from a YAML file, overlays
// ALARM_CLOCK_* environment variables and validates the result.
package config
