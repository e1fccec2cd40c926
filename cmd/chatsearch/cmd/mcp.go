package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatsearch/internal/logging"
	"github.com/Aman-CERP/chatsearch/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve chat search to AI clients over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
search_messages and list_chats tools.

stdout carries the protocol, so logs go to the log file only.`,
		Example: `  # Claude Desktop / any MCP client
  {"command": "chatsearch", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			cleanup, err := logging.SetupStdioMode(cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer cleanup()

			b, metrics, closeBackend, err := connect(cfg, local)
			if err != nil {
				return err
			}
			defer closeBackend()

			opts := []mcp.Option{mcp.WithLogger(slog.Default())}
			if metrics != nil {
				opts = append(opts, mcp.WithMetrics(metrics))
			}
			srv, err := mcp.NewServer(b, opts...)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Open the store directly (bypass daemon)")
	return cmd
}
