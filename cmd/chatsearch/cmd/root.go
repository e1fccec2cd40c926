// Package cmd provides the CLI commands for chatsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatsearch/internal/config"
	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/logging"
	"github.com/Aman-CERP/chatsearch/internal/profiling"
	"github.com/Aman-CERP/chatsearch/pkg/version"
)

// Global flags.
var (
	configPath     string
	debugMode      bool
	loggingCleanup func()

	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the chatsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatsearch",
		Short: "Full-text search for chat groups",
		Long: `chatsearch indexes the messages of Telegram groups and answers
/search commands with paginated, newest-first results.

Run everything in one process with 'chatsearch run', or split the
search daemon ('chatsearch daemon start') from the bot ('chatsearch bot --remote').`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("chatsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./chatsearch.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.chatsearch/logs/")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts the requested profiles and installs a
// debug file logger when --debug is set. Long-running commands replace the
// logger with the configured one.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profiler = s
	}

	if !debugMode {
		return nil
	}
	cfg := logging.DebugConfig()
	cfg.WriteToStderr = false
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Debug("debug_logging_enabled", slog.String("log_file", cfg.FilePath))
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	if profiler != nil {
		err := profiler.Stop()
		profiler = nil
		if err != nil {
			return fmt.Errorf("failed to write profiles: %w", err)
		}
	}
	return nil
}

// Execute runs the root command and prints failures for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, cserrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads the effective configuration. --debug forces the debug level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cserrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Check the file with 'chatsearch config show'")
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupServiceLogging replaces the default logger for long-running commands.
func setupServiceLogging(cfg *config.Config) (func(), error) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	cleanup, err := logging.SetupDefault(cfg.LoggingConfig(true))
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cleanup, nil
}

// watchedConfigPath returns the highest-precedence config file that exists.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat("chatsearch.yaml"); err == nil {
		return "chatsearch.yaml"
	}
	return config.GetUserConfigPath()
}
