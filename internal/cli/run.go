package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ac-freeman/open-accountability/internal/config"
	"github.com/ac-freeman/open-accountability/internal/controller"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring agent",
	Long: `Run the agent in the foreground. This is what the systemd unit executes.

On first start the machine is paired with an account (browser or terminal
login). The agent then monitors until it receives SIGINT or SIGTERM and signs
the device off: gracefully when stopped by an operator, preserving its
tamper-exit token when the host is shutting down.

Example:
  open-accountability run
  open-accountability run --pairing terminal`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("pairing", "", "Pairing mode override (web, terminal)")
	runCmd.Flags().String("record", "", "Device record path override")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if mode, _ := cmd.Flags().GetString("pairing"); mode != "" {
		cfg.Pairing.Mode = mode
	}
	if record, _ := cmd.Flags().GetString("record"); record != "" {
		cfg.Device.RecordPath = record
	}
	if err := cfg.ValidateForRun(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := controller.NewLogger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctrl, err := controller.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to start agent")
		return err
	}
	ctrl.SetLogFlushFunc(logger.Flush)

	if err := ctrl.Run(ctx); err != nil {
		logger.WithError(err).Error("Agent exited with error")
		return err
	}
	return nil
}
