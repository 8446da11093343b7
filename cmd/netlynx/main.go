package main

import (
	"os"
	"strings"

	"netlynx/internal/banner"
	"netlynx/internal/config"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	dbPath   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "netlynx",
		Short: "Classify browser NetLog captures by source",
		Long: `NetLynx groups the events of Chromium NetLog captures by the source that
emitted them and works out what each source was doing: its type, a one line
description, whether it is still active and whether it ended in error.

Captures can be tailed while the browser writes them, streamed over a
websocket, or loaded from a finished export.`,
		Version:       banner.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, fatal); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path; overrides DB_PATH")

	rootCmd.AddCommand(newServeCmd(), newLoadCmd(), newDumpCmd())

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, *pterm.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = dbPath
	}

	logger := pterm.DefaultLogger.WithLevel(parseLevel(cfg.LogLevel))
	logger.Debug("Log level set", logger.Args("level", cfg.LogLevel))
	return cfg, logger, nil
}

// parseLevel maps LOG_LEVEL to pterm. Unknown values fall back to info.
func parseLevel(level string) pterm.LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "info":
		return pterm.LogLevelInfo
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "fatal":
		return pterm.LogLevelFatal
	default:
		return pterm.LogLevelInfo
	}
}
