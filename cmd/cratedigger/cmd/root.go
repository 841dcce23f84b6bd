package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/solatis/cratedigger/internal/core/config"
)

// Default config file name searched in the home directory.
const defaultConfigName = ".cratedigger.yaml"

var (
	configFile string
	envFile    string
	dbURL      string
	logLevel   string
	logFormat  string
)

// Set by the root PersistentPreRunE for every subcommand.
var (
	cfg    *config.ServiceConfig
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cratedigger",
	Short: "cratedigger rule-based track selection",
	Long: `cratedigger filters a track collection through prioritized rule expressions
and reports one ranked candidate list per rule.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $HOME/"+defaultConfigName+" if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (ignored if missing)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...), overrides CD_DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads the dotenv file, configuration and logger.
// Environment from the dotenv file never overrides variables already set.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	logger, err = newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if envFile != "" {
		path, err := expandPath(envFile)
		if err != nil {
			return err
		}
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	path, err := resolveConfigFile(configFile)
	if err != nil {
		return err
	}
	cfg, err = config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	return nil
}

// resolveConfigFile expands an explicit path, or falls back to the default
// file in the home directory when it exists.
func resolveConfigFile(path string) (string, error) {
	if path != "" {
		return expandPath(path)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", nil
	}
	candidate := filepath.Join(home, defaultConfigName)
	if _, err := os.Stat(candidate); err != nil {
		return "", nil
	}
	return candidate, nil
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return expanded, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be json or text", format)
	}
}
