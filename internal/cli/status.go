package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ac-freeman/open-accountability/internal/config"
	"github.com/ac-freeman/open-accountability/internal/device"
	"github.com/ac-freeman/open-accountability/internal/events"
	"github.com/ac-freeman/open-accountability/internal/tamper"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device and service status",
	Long: `Show the stored device record with secrets redacted, whether the
systemd unit passes the tamper check, and the most recent monitoring cycles
when the cycle journal is enabled.

Examples:
  open-accountability status
  open-accountability status --cycles 10`,
	Args: cobra.NoArgs,
	RunE: checkStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Int("cycles", 5, "Number of recent cycles to show")
}

func checkStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	n, _ := cmd.Flags().GetInt("cycles")
	return printStatus(cmd.OutOrStdout(), cfg, n)
}

func printStatus(w io.Writer, cfg *config.Config, cycles int) error {
	store := device.NewStore(cfg.Device.RecordPath)
	fmt.Fprintf(w, "Device record: %s\n", store.Path())

	if !store.Exists() {
		fmt.Fprintln(w, "  not paired")
	} else if id, err := store.Load(); err != nil {
		fmt.Fprintf(w, "  unreadable: %v\n", err)
	} else {
		r := id.Redacted()
		fmt.Fprintf(w, "  Name:              %s\n", r.Name)
		fmt.Fprintf(w, "  UUID:              %s\n", valueOr(r.UUID, "(unregistered)"))
		fmt.Fprintf(w, "  Refresh token:     %s\n", valueOr(r.RefreshToken, "(none)"))
		fmt.Fprintf(w, "  Tamper-exit token: %s\n", valueOr(r.TamperExitToken, "(none)"))
	}

	guard := tamper.NewGuard(cfg.Service.UnitPath, nil, nil)
	fmt.Fprintf(w, "\nService unit: %s\n", guard.UnitPath())
	if err := guard.Check(); err != nil {
		fmt.Fprintf(w, "  TAMPERED: %v\n", err)
	} else {
		fmt.Fprintln(w, "  ok")
	}

	if cfg.Events.JournalDir == "" {
		return nil
	}

	path := filepath.Join(cfg.Events.JournalDir, events.DefaultFilename)
	fmt.Fprintf(w, "\nRecent cycles (%s):\n", path)
	history, err := events.ReadCycles(path)
	if err != nil {
		fmt.Fprintf(w, "  unavailable: %v\n", err)
		return nil
	}
	if len(history) == 0 {
		fmt.Fprintln(w, "  none")
		return nil
	}
	for _, c := range events.Last(history, cycles) {
		status := "posted"
		if c.Error != "" {
			status = "error: " + c.Error
		}
		fmt.Fprintf(w, "  #%-4d %s  %-8s displays=%d keywords=%d  %s\n",
			c.Cycle,
			c.StartedAt.Local().Format(time.DateTime),
			c.Duration.Round(time.Second),
			c.Analyzed,
			len(c.Report),
			status)
	}
	if failed := events.Failed(history); len(failed) > 0 {
		fmt.Fprintf(w, "  %d of %d recorded cycles failed\n", len(failed), len(history))
	}
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
