package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatsearch/internal/output"
	"github.com/Aman-CERP/chatsearch/internal/preflight"
)

// errDoctorFailed is returned when a required check fails.
var errDoctorFailed = errors.New("system check failed")

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure chatsearch can operate correctly.

Checks:
  - Configuration is valid
  - Bot token and owner are set (warnings only)
  - Data and log directories are writable
  - Disk space under the data directory (100MB minimum)
  - File descriptor limit (1024 minimum, 4096 recommended)
  - Search daemon state`,
		Example: `  chatsearch doctor
  chatsearch doctor --verbose
  chatsearch doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// doctorReport is the JSON form of a doctor run.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		result := preflight.CheckResult{
			Name:     "config",
			Status:   preflight.StatusFail,
			Message:  err.Error(),
			Required: true,
		}
		return reportDoctor(cmd, []preflight.CheckResult{result}, verbose, jsonOutput)
	}

	results := preflight.New(cfg).RunAll(cmd.Context())
	return reportDoctor(cmd, results, verbose, jsonOutput)
}

func reportDoctor(cmd *cobra.Command, results []preflight.CheckResult, verbose, jsonOutput bool) error {
	if jsonOutput {
		report := doctorReport{Status: preflight.SummaryStatus(results), Checks: results}
		if err := output.New(cmd.OutOrStdout()).JSON(report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		preflight.PrintResults(cmd.OutOrStdout(), results, verbose)
	}

	if preflight.HasCriticalFailures(results) {
		return errDoctorFailed
	}
	return nil
}
