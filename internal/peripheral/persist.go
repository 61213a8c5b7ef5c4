package peripheral

import (
	"context"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/store"
)

// Persist writes the alarm time on SaveAlarmTime. Failures are logged; the
// in-memory alarm stays authoritative.
type Persist struct {
	commands <-chan logic.Command
	repo     store.Repository
}

// NewPersist creates the persistence task.
func NewPersist(commands <-chan logic.Command, repo store.Repository) *Persist {
	return &Persist{commands: commands, repo: repo}
}

// Run consumes commands until ctx is cancelled.
func (p *Persist) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "persist")

	for {
		cmd, ok := next(ctx, p.commands)
		if !ok {
			return nil
		}
		if cmd.Type != logic.CommandSaveAlarmTime {
			logger.WarnKV(ctx, "unexpected command", "command", cmd.String())
			continue
		}
		if err := p.repo.Save(ctx, cmd.AlarmTime); err != nil {
			logger.ErrorKV(ctx, "save alarm time failed", "alarm", cmd.AlarmTime.String(), "error", err)
			continue
		}
		logger.InfoKV(ctx, "alarm time saved", "alarm", cmd.AlarmTime.String())
	}
}
