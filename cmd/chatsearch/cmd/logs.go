package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatsearch/internal/logging"
	"github.com/Aman-CERP/chatsearch/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	chatID  int64
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View chatsearch logs",
		Long: `Show the last lines of the chatsearch log file, or follow it.

Defaults to logging.file from the configuration.`,
		Example: `  chatsearch logs                      # last 50 lines
  chatsearch logs -f --level warn      # follow warnings and errors
  chatsearch logs --chat=-1001234567890
  chatsearch logs --filter "search_(completed|failed)"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Keep lines matching this regex")
	cmd.Flags().Int64Var(&opts.chatID, "chat", 0, "Keep entries about this chat id")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default logging.file)")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path := opts.file
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Logging.File
	}
	if opts.level != "" && !logging.ValidLevel(opts.level) {
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", opts.level)
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		Channel: opts.chatID,
		NoColor: opts.noColor || !ui.IsTTY(cmd.OutOrStdout()),
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n---\n", path)

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return followLog(ctx, viewer, path, stderr)
}

func followLog(ctx context.Context, viewer *logging.Viewer, path string, stderr io.Writer) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case e := <-entries:
			viewer.Print([]logging.LogEntry{e})
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(stderr, "\n---\nStopped.")
			return nil
		}
	}
}
