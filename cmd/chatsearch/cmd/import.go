package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatsearch/internal/importer"
	"github.com/Aman-CERP/chatsearch/internal/output"
	"github.com/Aman-CERP/chatsearch/internal/ui"
)

// importOptions holds CLI flags for import.
type importOptions struct {
	chatID   int64
	timezone string
	workers  int
	noTUI    bool
	noColor  bool
	local    bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <export-dir>",
		Short: "Import a Telegram Desktop HTML export",
		Long: `Import the history of a chat from a Telegram Desktop export
(messages.html, messages2.html, ...) into the chat's index.

Messages already indexed are skipped, so an import can be repeated.
Export times without a UTC offset are read in --tz.`,
		Example: `  chatsearch import --chat=-1001234567890 ~/Downloads/ChatExport_2024-03-01
  chatsearch import --chat=-1001234567890 ./export --tz Asia/Shanghai --no-tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().Int64Var(&opts.chatID, "chat", 0, "Chat id to import into (required)")
	cmd.Flags().StringVar(&opts.timezone, "tz", "Local", "Time zone of the export")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 8, "Export files parsed concurrently")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the store directly (bypass daemon)")
	_ = cmd.MarkFlagRequired("chat")

	return cmd
}

func runImport(cmd *cobra.Command, dir string, opts importOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("unknown time zone %q: %w", opts.timezone, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, _, cleanup, err := connect(cfg, opts.local)
	if err != nil {
		return err
	}
	defer cleanup()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(opts.noColor),
		ui.WithTitle(filepath.Base(dir)),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	im := importer.New(b, importer.Options{
		Workers:  opts.workers,
		Location: loc,
		OnProgress: func(p importer.Progress) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Files:  p.Files,
				Done:   p.Done,
				Failed: p.Failed,
				Total:  p.Total,
			})
		},
	})

	summary, err := im.ImportDir(ctx, opts.chatID, dir)
	if err != nil {
		_ = renderer.Stop()
		slog.Error("import_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return err
	}

	renderer.Complete(ui.CompletionStats{
		ChannelID: opts.chatID,
		Files:     summary.Files,
		Messages:  summary.Messages,
		Failed:    summary.Failed,
		Duration:  summary.Duration,
	})
	if err := renderer.Stop(); err != nil {
		return err
	}

	slog.Info("import_complete",
		slog.Int64("channel_id", opts.chatID),
		slog.Int("messages", summary.Messages),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))

	if summary.Failed > 0 {
		output.New(cmd.ErrOrStderr()).Warningf("%d messages could not be indexed, see the log for details", summary.Failed)
	}
	return nil
}
