package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatsearch/internal/daemon"
	"github.com/Aman-CERP/chatsearch/internal/output"
	"github.com/Aman-CERP/chatsearch/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and index status",
		Long: `Show whether the search daemon is running, its activity counters
and the message count of every chat index it serves.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, noColor || ui.DetectNoColor())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput, noColor bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := collectStatus(ctx, daemonConfig(cfg))
	if err != nil {
		return err
	}

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
	if jsonOutput {
		return r.RenderJSON(info)
	}
	if err := r.Render(info); err != nil {
		return err
	}
	if info.DaemonStatus != "running" {
		out := output.New(cmd.OutOrStdout())
		out.Newline()
		out.Status("💡", "Run 'chatsearch daemon start' to start it")
	}
	return nil
}

func collectStatus(ctx context.Context, dc daemon.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{DaemonStatus: "stopped", SocketPath: dc.SocketPath}

	client := daemon.NewClient(dc)
	if !client.IsRunning() {
		if pid, ok := daemon.RunningPID(dc.PIDPath); ok {
			// Process alive but socket gone: report it rather than "stopped".
			info.DaemonStatus = "unresponsive"
			info.PID = pid
		}
		return info, nil
	}

	st, err := client.Status(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to get status: %w", err)
	}

	info.DaemonStatus = "running"
	info.PID = st.PID
	info.Uptime = st.Uptime
	info.Backend = st.Backend
	info.StartedAt = st.Stats.StartedAt
	info.DocumentsAdded = st.Stats.DocumentsAdded
	info.DuplicatesSeen = st.Stats.DuplicatesSeen
	info.IngestFailures = st.Stats.IngestFailures
	info.QueriesServed = st.Stats.QueriesServed
	info.QueryFailures = st.Stats.QueryFailures
	info.Indexes = make(map[string]int, len(st.Indexes))
	for _, ix := range st.Indexes {
		info.Indexes[ix.Name] = ix.Documents
	}
	return info, nil
}
