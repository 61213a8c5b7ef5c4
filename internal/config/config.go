package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/alarm-clock/internal/logger"
)

const (
	// DefaultConfigFilename is read when no --config path is given.
	DefaultConfigFilename = "alarm-clock.yaml"
	// DefaultStateFilename holds the persisted alarm time.
	DefaultStateFilename = "alarm-clock-state.bin"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ALARM_CLOCK_"
)

var (
	errInvalidDuration = errors.New("duration out of range")
	errInvalidPins     = errors.New("invalid gpio pins")
	errInvalidURL      = errors.New("invalid url")
	errInvalidLevel    = errors.New("unknown log level")
	errInvalidRange    = errors.New("value out of range")
)

// Pins are GPIO line offsets on the chip.
type Pins struct {
	Chip   string `yaml:"chip" env:"CHIP"`
	Green  int    `yaml:"green" env:"GREEN"`
	Blue   int    `yaml:"blue" env:"BLUE"`
	Yellow int    `yaml:"yellow" env:"YELLOW"`
	USB    int    `yaml:"usb" env:"USB"`
	Leds   int    `yaml:"leds" env:"LEDS"`
}

// MQTT configures the telemetry publisher. An empty broker disables it.
type MQTT struct {
	Broker   string `yaml:"broker" env:"BROKER"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	Prefix   string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	QoS      byte   `yaml:"qos" env:"QOS"`
}

// TimeAPI configures network time. An empty URL uses the system clock.
type TimeAPI struct {
	URL        string        `yaml:"url" env:"URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries uint64        `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// Power configures the battery voltage source. An empty sysfs path reads
// FixedVolts.
type Power struct {
	Sysfs      string  `yaml:"sysfs" env:"SYSFS"`
	Scale      float64 `yaml:"scale" env:"SCALE"`
	FixedVolts float64 `yaml:"fixed_volts" env:"FIXED_VOLTS"`
	EmptyVolts float64 `yaml:"empty_volts" env:"EMPTY_VOLTS"`
	FullVolts  float64 `yaml:"full_volts" env:"FULL_VOLTS"`
}

// Audio configures the alarm tone player. An empty command only logs.
type Audio struct {
	Command string   `yaml:"command" env:"COMMAND"`
	Args    []string `yaml:"args" env:"ARGS"`
}

// Config holds every tunable of the alarm clock.
type Config struct {
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	StateFile   string `yaml:"state_file" env:"STATE_FILE"`
	BootStandby bool   `yaml:"boot_standby" env:"BOOT_STANDBY"`
	MinuteCarry bool   `yaml:"minute_carry" env:"MINUTE_CARRY"`

	Debounce        time.Duration `yaml:"debounce" env:"DEBOUNCE"`
	LongPress       time.Duration `yaml:"long_press" env:"LONG_PRESS"`
	RepeatInterval  time.Duration `yaml:"repeat_interval" env:"REPEAT_INTERVAL"`
	SunriseDuration time.Duration `yaml:"sunrise_duration" env:"SUNRISE_DURATION"`
	FrameInterval   time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
	AlarmTimeout    time.Duration `yaml:"alarm_timeout" env:"ALARM_TIMEOUT"`
	// ButtonLedTimeout is how long the button LEDs stay lit after a press
	// outside an alarm. Zero never lights them for presses.
	ButtonLedTimeout time.Duration `yaml:"button_led_timeout" env:"BUTTON_LED_TIMEOUT"`

	TimeRefreshInterval time.Duration `yaml:"time_refresh_interval" env:"TIME_REFRESH_INTERVAL"`
	// TimeRefreshRetry is the delay before retrying a failed refresh. Zero
	// waits for the next interval instead.
	TimeRefreshRetry   time.Duration `yaml:"time_refresh_retry" env:"TIME_REFRESH_RETRY"`
	PowerCheckInterval time.Duration `yaml:"power_check_interval" env:"POWER_CHECK_INTERVAL"`
	AlarmCheckInterval time.Duration `yaml:"alarm_check_interval" env:"ALARM_CHECK_INTERVAL"`
	DisplayRefresh     time.Duration `yaml:"display_refresh" env:"DISPLAY_REFRESH"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`

	LedCount        int   `yaml:"led_count" env:"LED_COUNT"`
	ClockBrightness uint8 `yaml:"clock_brightness" env:"CLOCK_BRIGHTNESS"`
	AlarmBrightness uint8 `yaml:"alarm_brightness" env:"ALARM_BRIGHTNESS"`

	EventQueue   int `yaml:"event_queue" env:"EVENT_QUEUE"`
	CommandQueue int `yaml:"command_queue" env:"COMMAND_QUEUE"`

	GPIOPoll time.Duration `yaml:"gpio_poll" env:"GPIO_POLL"`
	HTTPAddr string        `yaml:"http_addr" env:"HTTP_ADDR"`

	Pins    Pins    `yaml:"pins" envPrefix:"PIN_"`
	MQTT    MQTT    `yaml:"mqtt" envPrefix:"MQTT_"`
	TimeAPI TimeAPI `yaml:"time_api" envPrefix:"TIME_API_"`
	Power   Power   `yaml:"power" envPrefix:"POWER_"`
	Audio   Audio   `yaml:"audio" envPrefix:"AUDIO_"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		LogLevel:            "info",
		StateFile:           DefaultStateFilename,
		Debounce:            80 * time.Millisecond,
		LongPress:           time.Second,
		RepeatInterval:      150 * time.Millisecond,
		SunriseDuration:     60 * time.Second,
		FrameInterval:       50 * time.Millisecond,
		AlarmTimeout:        5 * time.Minute,
		ButtonLedTimeout:    10 * time.Second,
		TimeRefreshInterval: 6 * time.Hour,
		TimeRefreshRetry:    30 * time.Second,
		PowerCheckInterval:  10 * time.Second,
		AlarmCheckInterval:  3740 * time.Millisecond,
		DisplayRefresh:      30 * time.Second,
		HeartbeatInterval:   15 * time.Minute,
		LedCount:            16,
		ClockBrightness:     8,
		AlarmBrightness:     40,
		EventQueue:          10,
		CommandQueue:        8,
		GPIOPoll:            10 * time.Millisecond,
		HTTPAddr:            ":8080",
		Pins: Pins{
			Chip:   "gpiochip0",
			Green:  20,
			Blue:   21,
			Yellow: 22,
			USB:    19,
			Leds:   26,
		},
		MQTT: MQTT{
			Broker:   "tcp://192.168.1.200:1883",
			ClientID: "alarm-clock",
			Prefix:   "alarm-clock",
			QoS:      1,
		},
		TimeAPI: TimeAPI{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			RetryDelay: 30 * time.Second,
		},
		Power: Power{
			Scale:      1,
			FixedVolts: 4.2,
			EmptyVolts: 3.0,
			FullVolts:  4.2,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field constraints.
func Validate(cfg *Config) error {
	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errInvalidLevel, cfg.LogLevel)
	}
	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	positive := map[string]time.Duration{
		"long_press":            cfg.LongPress,
		"repeat_interval":       cfg.RepeatInterval,
		"sunrise_duration":      cfg.SunriseDuration,
		"frame_interval":        cfg.FrameInterval,
		"time_refresh_interval": cfg.TimeRefreshInterval,
		"power_check_interval":  cfg.PowerCheckInterval,
		"alarm_check_interval":  cfg.AlarmCheckInterval,
		"gpio_poll":             cfg.GPIOPoll,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", errInvalidDuration, name, d)
		}
	}
	nonNegative := map[string]time.Duration{
		"debounce":           cfg.Debounce,
		"alarm_timeout":      cfg.AlarmTimeout,
		"button_led_timeout": cfg.ButtonLedTimeout,
		"time_refresh_retry": cfg.TimeRefreshRetry,
		"display_refresh":    cfg.DisplayRefresh,
		"heartbeat_interval": cfg.HeartbeatInterval,
	}
	for name, d := range nonNegative {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", errInvalidDuration, name, d)
		}
	}
	if cfg.Debounce >= cfg.LongPress {
		return fmt.Errorf("%w: debounce %v must be shorter than long_press %v", errInvalidDuration, cfg.Debounce, cfg.LongPress)
	}

	if cfg.LedCount < 1 || cfg.LedCount > 256 {
		return fmt.Errorf("%w: led_count %d", errInvalidRange, cfg.LedCount)
	}
	if cfg.EventQueue < 1 || cfg.CommandQueue < 1 {
		return fmt.Errorf("%w: queue sizes must be at least 1", errInvalidRange)
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos %d", errInvalidRange, cfg.MQTT.QoS)
	}
	if cfg.Power.FullVolts <= cfg.Power.EmptyVolts {
		return fmt.Errorf("%w: full_volts %.2f must exceed empty_volts %.2f", errInvalidRange, cfg.Power.FullVolts, cfg.Power.EmptyVolts)
	}
	if cfg.Power.Scale <= 0 {
		cfg.Power.Scale = 1
	}

	if err := validatePins(cfg.Pins); err != nil {
		return err
	}

	for name, raw := range map[string]string{"mqtt.broker": cfg.MQTT.Broker, "time_api.url": cfg.TimeAPI.URL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s %q", errInvalidURL, name, raw)
		}
	}
	return nil
}

func validatePins(p Pins) error {
	if p.Chip == "" {
		return fmt.Errorf("%w: chip must be set", errInvalidPins)
	}
	seen := make(map[int]string, 5)
	for name, pin := range map[string]int{"green": p.Green, "blue": p.Blue, "yellow": p.Yellow, "usb": p.USB, "leds": p.Leds} {
		if pin < 0 {
			return fmt.Errorf("%w: %s pin %d", errInvalidPins, name, pin)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("%w: %s and %s share pin %d", errInvalidPins, name, other, pin)
		}
		seen[pin] = name
	}
	return nil
}
