package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/chatsearch/internal/channels"
	"github.com/Aman-CERP/chatsearch/internal/config"
	"github.com/Aman-CERP/chatsearch/internal/daemon"
	"github.com/Aman-CERP/chatsearch/internal/gateway"
	"github.com/Aman-CERP/chatsearch/internal/output"
	"github.com/Aman-CERP/chatsearch/internal/pagination"
	"github.com/Aman-CERP/chatsearch/internal/render"
	"github.com/Aman-CERP/chatsearch/internal/telegram"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
	"github.com/Aman-CERP/chatsearch/internal/watcher"
)

func newRunCmd() *cobra.Command {
	var noSocket bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot with an in-process search engine",
		Long: `Run the Telegram bot, the search engine and (optionally) the metrics
endpoint in one process.

The daemon socket is served as well, so 'chatsearch search' and
'chatsearch mcp' can query the same indexes while the bot runs.
Changes to bot.enabled_chats in the config file are picked up live.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAll(ctx, cmd, !noSocket)
		},
	}

	cmd.Flags().BoolVar(&noSocket, "no-socket", false, "Do not serve the daemon socket")
	return cmd
}

func runAll(ctx context.Context, cmd *cobra.Command, serveSocket bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupServiceLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	prom := telemetry.NewPrometheus()
	eng, err := openEngine(cfg, prom)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	out := output.New(cmd.OutOrStdout())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if serveSocket {
		dc := daemonConfig(cfg)
		g.Go(func() error {
			return daemon.Serve(ctx, dc, eng.service, cfg.Store.Backend)
		})
		out.Statusf("", "Socket: %s", dc.SocketPath)
	}
	startMetrics(ctx, g, cfg, prom, out)

	if err := runBot(ctx, g, cfg, eng.service, prom, out); err != nil {
		// Stop the socket and metrics servers before the engine closes.
		cancel()
		_ = g.Wait()
		return err
	}
	return g.Wait()
}

// startMetrics serves Prometheus metrics when an address is configured.
func startMetrics(ctx context.Context, g *errgroup.Group, cfg *config.Config, prom *telemetry.Prometheus, out *output.Writer) {
	if cfg.Telemetry.MetricsAddr == "" {
		return
	}
	addr := cfg.Telemetry.MetricsAddr
	g.Go(func() error {
		return prom.Serve(ctx, addr)
	})
	out.Statusf("", "Metrics: http://%s/metrics", addr)
}

// runBot wires the registry, the gateway and the Telegram transport into g.
func runBot(ctx context.Context, g *errgroup.Group, cfg *config.Config, searcher gateway.Searcher, prom *telemetry.Prometheus, out *output.Writer) error {
	registry := channels.NewMemoryRegistry(cfg.Bot.EnabledChats...)
	registry.OnChange(prom.SetEnabledChannels)

	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Bot.Token,
		Proxy:       cfg.Bot.Proxy,
		PollTimeout: cfg.PollTimeout(),
		RateLimit:   cfg.Bot.RateLimit,
	})
	if err != nil {
		return err
	}

	codec := pagination.NewCodec(cfg.Search.SigningKey)
	gw, err := gateway.New(searcher, bot, registry, gateway.Config{
		OwnerID:     cfg.Bot.OwnerID,
		PageSize:    cfg.Search.PageSize,
		Workers:     cfg.Bot.Workers,
		CallTimeout: cfg.StoreTimeout(),
	},
		gateway.WithCodec(codec),
		gateway.WithRenderer(render.New(codec)),
		gateway.WithMetrics(prom),
		gateway.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}

	if err := watchEnabledChats(ctx, g, registry); err != nil {
		slog.Warn("config_watch_disabled", slog.String("error", err.Error()))
	}

	g.Go(func() error {
		defer gw.Wait()
		return bot.Run(ctx, gw.Dispatch)
	})

	out.Successf("Bot @%s is running (%d chats enabled)", bot.Username(), len(registry.List()))
	out.Status("", "Press Ctrl+C to stop")
	return nil
}

// watchEnabledChats merges bot.enabled_chats into registry whenever the
// config file changes. Chats enabled at runtime with /enable are kept.
func watchEnabledChats(ctx context.Context, g *errgroup.Group, registry *channels.MemoryRegistry) error {
	path := watchedConfigPath()
	w, err := watcher.New(path, watcher.Options{}, func() {
		cfg, err := config.LoadFile(path)
		if err != nil {
			slog.Warn("config_reload_failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		added := registry.Merge(cfg.Bot.EnabledChats)
		slog.Info("config_reloaded", slog.String("path", path), slog.Int("chats_added", added))
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	g.Go(func() error {
		return w.Run(ctx)
	})
	return nil
}
