package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/chatsearch/internal/daemon"
	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/output"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

func newBotCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot.

With --remote the bot sends every message and query to the search
daemon instead of opening the index store itself. Without it, 'bot'
behaves like 'run --no-socket'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !remote {
				return runAll(ctx, cmd, false)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cleanup, err := setupServiceLogging(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			client := daemon.NewClient(daemonConfig(cfg))
			if !client.IsRunning() {
				return cserrors.New(cserrors.ErrCodeDaemonUnavailable, "search daemon is not running", nil).
					WithDetail("socket", cfg.Daemon.SocketPath).
					WithSuggestion("Start it with 'chatsearch daemon start'")
			}

			out := output.New(cmd.OutOrStdout())
			prom := telemetry.NewPrometheus()
			g, ctx := errgroup.WithContext(ctx)
			startMetrics(ctx, g, cfg, prom, out)
			if err := runBot(ctx, g, cfg, client, prom, out); err != nil {
				return err
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Use the search daemon instead of a local store")
	return cmd
}
