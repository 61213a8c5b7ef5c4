package peripheral

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// Player plays the alarm tone once, returning early when ctx is cancelled.
type Player interface {
	Play(ctx context.Context) error
}

// ExecPlayer plays the tone by running an external command such as aplay.
type ExecPlayer struct {
	Command string
	Args    []string
}

// Play runs the command to completion or until ctx is cancelled.
func (p ExecPlayer) Play(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run %s: %w", p.Command, err)
	}
	return nil
}

// LogPlayer stands in for a speaker: it logs and holds the tone until
// cancelled.
type LogPlayer struct{}

// Play logs and waits for ctx.
func (LogPlayer) Play(ctx context.Context) error {
	logger.Info(ctx, "beep")
	<-ctx.Done()
	return nil
}

// ToneObserver is told when the tone starts and stops.
type ToneObserver interface {
	SetTonePlaying(playing bool)
}

// Audio plays the alarm tone once on PlayAlarmTone. Stop cuts it short.
type Audio struct {
	commands <-chan logic.Command
	player   Player
	observer ToneObserver

	cancel context.CancelFunc
	done   chan struct{}
}

// AudioOption configures Audio.
type AudioOption func(*Audio)

// WithToneObserver reports tone state to o.
func WithToneObserver(o ToneObserver) AudioOption {
	return func(a *Audio) {
		a.observer = o
	}
}

// NewAudio creates the audio task.
func NewAudio(commands <-chan logic.Command, player Player, opts ...AudioOption) *Audio {
	a := &Audio{commands: commands, player: player}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run consumes commands until ctx is cancelled. A playing tone is stopped on
// exit.
func (a *Audio) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "audio")
	defer a.stop(ctx)

	commands := a.commands
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.done:
			a.finish(ctx, "alarm tone finished")
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			switch cmd.Type {
			case logic.CommandPlayAlarmTone:
				a.start(ctx)
			case logic.CommandStop:
				a.stop(ctx)
			default:
				logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
			}
		}
	}
}

// Playing reports whether the tone is sounding. Only safe from the Run
// goroutine or after Run returns.
func (a *Audio) Playing() bool {
	return a.cancel != nil
}

func (a *Audio) start(ctx context.Context) {
	if a.cancel != nil {
		return
	}
	toneCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.play(toneCtx, a.done)

	a.observe(true)
	logger.Info(ctx, "alarm tone started")
}

func (a *Audio) stop(ctx context.Context) {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
	a.finish(ctx, "alarm tone stopped")
}

func (a *Audio) finish(ctx context.Context, msg string) {
	a.cancel()
	a.cancel = nil
	a.done = nil

	a.observe(false)
	logger.Info(ctx, msg)
}

func (a *Audio) play(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	err := a.player.Play(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		logger.WarnKV(ctx, "tone playback failed", "error", err)
	}
}

func (a *Audio) observe(playing bool) {
	if a.observer != nil {
		a.observer.SetTonePlaying(playing)
	}
}
