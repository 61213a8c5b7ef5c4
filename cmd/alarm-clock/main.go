// Command alarm-clock runs the alarm clock: GPIO buttons in, display state,
// LED ring frames and the alarm tone out, with MQTT telemetry and an HTTP
// status page on the side.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweeney/alarm-clock/internal/config"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

// options are the command-line overrides.
type options struct {
	configPath string
	stateFile  string
	simulate   bool
	printState bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "alarm-clock",
		Short: "Run the alarm clock.",
		Long: `Runs the alarm clock on a Raspberry Pi class host.

Buttons and the USB sense line are read from the GPIO character device, or
from a simulator driven over HTTP with --simulate. Settings come from a YAML
file overlaid with ALARM_CLOCK_* environment variables.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext(context.Background())
			defer stop()

			return run(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	cmd.Flags().StringVarP(&opts.stateFile, "state-file", "s", "", "path of the persisted alarm time (overrides config)")
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "use simulated GPIO inputs instead of hardware")
	cmd.Flags().BoolVar(&opts.printState, "print-state", false, "print the persisted alarm time and exit")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Errorf(context.Background(), "fatal: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// signalCause records which signal stopped the process.
type signalCause struct {
	sig os.Signal
}

func (s signalCause) Error() string {
	return "received " + s.sig.String()
}

// notifyContext is cancelled on SIGINT or SIGTERM, with the signal as the
// cancellation cause.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-sigCh:
			cancel(signalCause{sig: s})
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel(nil)
	}
}

// shutdownReason names what stopped ctx for the SHUTDOWN event.
func shutdownReason(ctx context.Context) string {
	var sc signalCause
	if errors.As(context.Cause(ctx), &sc) {
		switch sc.sig {
		case syscall.SIGINT:
			return "SIGINT"
		case syscall.SIGTERM:
			return "SIGTERM"
		}
		return sc.sig.String()
	}
	if ctx.Err() != nil {
		return "CANCELLED"
	}
	return "EXIT"
}

// printState writes the persisted alarm time, or why none was loaded.
func printState(w io.Writer, path string, boot logic.Boot, loadErr error) {
	if loadErr != nil {
		fmt.Fprintf(w, "state file: %s\nalarm: %s disarmed (%v)\n", path, boot.AlarmTime, loadErr)
		return
	}
	fmt.Fprintf(w, "state file: %s\nalarm: %s armed\n", path, boot.AlarmTime)
}
