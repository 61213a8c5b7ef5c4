package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/alarm-clock/internal/bus"
	"github.com/sweeney/alarm-clock/internal/config"
	"github.com/sweeney/alarm-clock/internal/gpio"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/metrics"
	"github.com/sweeney/alarm-clock/internal/mqtt"
	"github.com/sweeney/alarm-clock/internal/orchestrator"
	"github.com/sweeney/alarm-clock/internal/peripheral"
	"github.com/sweeney/alarm-clock/internal/power"
	"github.com/sweeney/alarm-clock/internal/scheduler"
	"github.com/sweeney/alarm-clock/internal/status"
	"github.com/sweeney/alarm-clock/internal/store"
	"github.com/sweeney/alarm-clock/internal/timesync"
	"github.com/sweeney/alarm-clock/internal/web"
)

// runner is anything run under the errgroup.
type runner interface {
	Run(ctx context.Context) error
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if opts.stateFile != "" {
		cfg.StateFile = opts.stateFile
	}
	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}
	defer logger.Sync()

	ctx = logger.WithName(ctx, "alarm-clock")

	repo := store.NewFileRepository(cfg.StateFile)
	boot, loadErr := store.LoadBoot(ctx, repo, cfg.BootStandby)
	if opts.printState {
		printState(out, repo.Path(), boot, loadErr)
		return nil
	}
	switch {
	case errors.Is(loadErr, store.ErrNotFound):
		logger.InfoKV(ctx, "no saved alarm, starting disarmed", "path", repo.Path())
	case loadErr != nil:
		logger.WarnKV(ctx, "saved alarm unreadable, starting disarmed", "path", repo.Path(), "error", loadErr)
	default:
		logger.InfoKV(ctx, "loaded alarm", "alarm", boot.AlarmTime.String())
	}

	reader, sim, err := openReader(cfg, opts.simulate)
	if err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.WarnKV(ctx, "closing gpio", "error", err)
		}
	}()

	light, err := openLight(cfg, opts.simulate)
	if err != nil {
		return fmt.Errorf("open button LEDs: %w", err)
	}
	defer func() {
		if err := light.Close(); err != nil {
			logger.WarnKV(ctx, "closing button LEDs", "error", err)
		}
	}()

	start := time.Now()
	tracker := status.NewTracker(start, trackerConfig(cfg))
	m := metrics.New()

	var pub *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		pub, err = mqtt.NewRealPublisher(ctx, mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Prefix:     cfg.MQTT.Prefix,
			QoS:        cfg.MQTT.QoS,
			MaxRetries: 5,
			RetryDelay: time.Second,
		})
		if err != nil {
			logger.WarnKV(ctx, "mqtt unavailable, continuing without telemetry", "broker", cfg.MQTT.Broker, "error", err)
			pub = nil
		}
	}

	events := bus.NewEventQueue(cfg.EventQueue)
	router := bus.NewRouter(cfg.CommandQueue, logic.Targets...)

	rng := rand.New(rand.NewSource(start.UnixNano())) //nolint:gosec
	machine := logic.NewMachine(settingsFrom(cfg), boot, rng)

	tasks := []runner{
		orchestrator.New(machine, events.Events(), router,
			orchestrator.WithMetrics(m),
			orchestrator.WithQueueDepth(events.Len),
		),
		scheduler.New(scheduler.Config{
			TimeRefresh:    cfg.TimeRefreshInterval,
			PowerCheck:     cfg.PowerCheckInterval,
			AlarmCheck:     cfg.AlarmCheckInterval,
			StartSuspended: boot.Standby,
		}, events, router.Commands(logic.TargetScheduler)),
		peripheral.NewInputs(events, reader, cfg.GPIOPoll, buttonTiming(cfg)),
		peripheral.NewPowerMonitor(events, router.Commands(logic.TargetPower), voltageSource(cfg),
			power.Curve{Empty: cfg.Power.EmptyVolts, Full: cfg.Power.FullVolts}),
		peripheral.NewTimeSync(events, router.Commands(logic.TargetTimeSync), timeSource(cfg)),
		peripheral.NewPersist(router.Commands(logic.TargetPersist), repo),
		peripheral.NewAudio(router.Commands(logic.TargetAudio), player(cfg), peripheral.WithToneObserver(tracker)),
		peripheral.NewButtonLeds(router.Commands(logic.TargetButtonLeds), light, peripheral.WithLedObserver(tracker)),
	}

	displaySinks := []peripheral.Renderer{tracker}
	stripSinks := []peripheral.Strip{tracker}
	if pub != nil {
		displaySinks = append(displaySinks, peripheral.PublishedDisplay{Publisher: pub})
		stripSinks = append(stripSinks, peripheral.NewPublishedStrip(pub, time.Second))
	}
	tasks = append(tasks,
		peripheral.NewDisplay(router.Commands(logic.TargetDisplay), cfg.DisplayRefresh, displaySinks...),
		peripheral.NewLedRing(router.Commands(logic.TargetLedRing), cfg.LedCount, stripSinks...),
	)

	if cfg.HTTPAddr != "" {
		webOpts := []web.Option{web.WithMetrics(m.Handler())}
		if sim != nil {
			webOpts = append(webOpts, web.WithSimulator(sim))
		}
		tasks = append(tasks, web.New(cfg.HTTPAddr, tracker, webOpts...))
		logger.InfoKV(ctx, "status page", "addr", cfg.HTTPAddr, "simulate", sim != nil)
	}

	var tel *telemetry
	if pub != nil {
		tel = &telemetry{pub: pub, conn: pub, buffered: pub.Buffered, tracker: tracker, start: start}
		tel.publish(ctx, mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     mqtt.EventStartup,
			Snapshot:  snapshotPtr(machine.Snapshot(time.Now())),
			Retained:  true,
		})
		tasks = append(tasks, &heartbeat{tel: tel, interval: cfg.HeartbeatInterval})
	}

	logger.InfoKV(ctx, "alarm clock starting",
		"mode", machine.Mode(),
		"alarm", boot.AlarmTime.String(),
		"armed", boot.AlarmActive,
		"leds", cfg.LedCount,
		"mqtt", pub != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error { return t.Run(gctx) })
	}
	runErr := g.Wait()

	reason := shutdownReason(ctx)
	if runErr != nil {
		reason = "ERROR"
	}
	logger.InfoKV(ctx, "shutting down", "reason", reason)

	if pub != nil {
		tel.publish(ctx, mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     mqtt.EventShutdown,
			Reason:    reason,
			Retained:  true,
		})
		if err := pub.Close(); err != nil {
			logger.WarnKV(ctx, "closing mqtt", "error", err)
		}
	}
	return runErr
}

// openReader opens the GPIO lines, or an idle simulated reader that the web
// server drives.
func openReader(cfg *config.Config, simulate bool) (gpio.Reader, *gpio.FakeReader, error) {
	if simulate {
		fake := gpio.NewFakeReader([]gpio.Levels{{}})
		return fake, fake, nil
	}
	r, err := gpio.NewRealReader(pinsFrom(cfg))
	if err != nil {
		return nil, nil, err
	}
	return r, nil, nil
}

// openLight opens the button LED line. In simulate mode the LEDs only show
// on the status page.
func openLight(cfg *config.Config, simulate bool) (gpio.Light, error) {
	if simulate {
		return &gpio.FakeLight{}, nil
	}
	l, err := gpio.NewRealLight(pinsFrom(cfg))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func pinsFrom(cfg *config.Config) gpio.Pins {
	return gpio.Pins{
		Chip:   cfg.Pins.Chip,
		Green:  cfg.Pins.Green,
		Blue:   cfg.Pins.Blue,
		Yellow: cfg.Pins.Yellow,
		USB:    cfg.Pins.USB,
		Leds:   cfg.Pins.Leds,
	}
}

func buttonTiming(cfg *config.Config) logic.ButtonTiming {
	return logic.ButtonTiming{
		Debounce:       cfg.Debounce,
		LongPress:      cfg.LongPress,
		RepeatInterval: cfg.RepeatInterval,
	}
}

func settingsFrom(cfg *config.Config) logic.Settings {
	return logic.Settings{
		SunriseDuration:  cfg.SunriseDuration,
		FrameInterval:    cfg.FrameInterval,
		AlarmTimeout:     cfg.AlarmTimeout,
		RefreshRetry:     cfg.TimeRefreshRetry,
		ButtonLedTimeout: cfg.ButtonLedTimeout,
		MinuteCarry:      cfg.MinuteCarry,
		LedCount:         cfg.LedCount,
		ClockBrightness:  cfg.ClockBrightness,
		AlarmBrightness:  cfg.AlarmBrightness,
	}
}

func trackerConfig(cfg *config.Config) status.Config {
	src := "system"
	if cfg.TimeAPI.URL != "" {
		src = cfg.TimeAPI.URL
	}
	return status.Config{
		LedCount:     cfg.LedCount,
		SunriseMs:    cfg.SunriseDuration.Milliseconds(),
		AlarmTimeout: cfg.AlarmTimeout.Milliseconds(),
		HeartbeatMs:  cfg.HeartbeatInterval.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTPAddr,
		TimeSource:   src,
	}
}

func voltageSource(cfg *config.Config) power.VoltageSource {
	if cfg.Power.Sysfs == "" {
		return power.FixedSource(cfg.Power.FixedVolts)
	}
	return power.SysfsSource{Path: cfg.Power.Sysfs, Scale: cfg.Power.Scale}
}

func timeSource(cfg *config.Config) timesync.Source {
	if cfg.TimeAPI.URL == "" {
		return timesync.SystemSource{}
	}
	return timesync.NewHTTPSource(timesync.HTTPOptions{
		URL:        cfg.TimeAPI.URL,
		Timeout:    cfg.TimeAPI.Timeout,
		MaxRetries: cfg.TimeAPI.MaxRetries,
		RetryDelay: cfg.TimeAPI.RetryDelay,
	})
}

func player(cfg *config.Config) peripheral.Player {
	if cfg.Audio.Command == "" {
		return peripheral.LogPlayer{}
	}
	return peripheral.ExecPlayer{Command: cfg.Audio.Command, Args: cfg.Audio.Args}
}

func snapshotPtr(s logic.Snapshot) *logic.Snapshot {
	return &s
}
