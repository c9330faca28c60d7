package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/config"
	"github.com/agentic-research/stencil/internal/session"
)

// Version is set at build time.
var Version = "dev"

var (
	configDir string
	logLevel  string

	cfg    config.Config
	logger hclog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Config directory (default ~/.agentic-research/stencil)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

var rootCmd = &cobra.Command{
	Use:           "stencil",
	Short:         "Stencil: template instantiation and propagation for scene documents",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir := configDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home dir: %w", err)
			}
			dir = filepath.Join(home, ".agentic-research", "stencil")
		}
		var err error
		cfg, _, err = config.Load(dir)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger = newLogger(cfg.LogLevel)
		logger.Debug("configuration loaded", "dir", dir, "journal", cfg.Journal, "repair", cfg.Repair)
		return nil
	},
}

func newLogger(level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "stencil",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

func openSession(ctx context.Context, path string) (*session.Session, error) {
	return session.Open(ctx, path, cfg, logger)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
