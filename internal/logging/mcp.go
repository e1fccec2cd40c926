package logging

import (
	"log/slog"
)

// SetupStdioMode initializes logging for the MCP stdio server.
//
// stdout carries JSON-RPC frames exclusively, so logs go to the file only.
func SetupStdioMode(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	cleanup, err := SetupDefault(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("stdio_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
