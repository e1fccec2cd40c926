package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/chatsearch/internal/daemon"
	"github.com/Aman-CERP/chatsearch/internal/output"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the search daemon",
		Long: `The search daemon owns the index store and serves it over a Unix
socket. The bot ('chatsearch bot --remote'), the CLI and the MCP server
use it when it is running, so the store is opened by one process only.`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the search daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemonStart(ctx, cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the search daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dc := daemonConfig(cfg)

	client := daemon.NewClient(dc)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
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

		out.Status("", "Starting daemon in foreground...")
		out.Statusf("", "Socket: %s", dc.SocketPath)
		out.Statusf("", "Logs: %s", cfg.Logging.File)
		out.Status("", "Press Ctrl+C to stop")
		out.Newline()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return daemon.Serve(ctx, dc, eng.service, cfg.Store.Backend)
		})
		startMetrics(ctx, g, cfg, prom, out)
		return g.Wait()
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"daemon", "start", "--foreground"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if debugMode {
		args = append(args, "--debug")
	}
	bgCmd := exec.Command(execPath, args...)
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice if it dies before the socket comes up.
	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for range 50 {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return errors.New("daemon process exited unexpectedly with code 0")
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}

		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bgCmd.Process.Pid)
			return nil
		}
	}

	return errors.New("daemon failed to start within timeout")
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pid, running := daemon.RunningPID(cfg.Daemon.PIDPath)
	if !running {
		out.Status("", "Daemon is not running")
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if _, running := daemon.RunningPID(cfg.Daemon.PIDPath); !running {
			out.Successf("Daemon stopped (was pid: %d)", pid)
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	slog.Warn("daemon_killed", slog.Int("pid", pid))
	out.Success("Daemon killed")
	return nil
}
