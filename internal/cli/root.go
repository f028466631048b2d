// Package cli wires the quill commands: account management, the terminal
// client, and the local dev server.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/registry"
	"github.com/quillchat/quill/internal/secret"
	"github.com/quillchat/quill/internal/storage/sqlite"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "quill",
	Short:         "A terminal client that mirrors chat server state live",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a quill.yaml config file")
	rootCmd.AddCommand(accountsCmd, runCmd, serveCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quill:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgPath)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// openRegistry loads the account set from disk. The returned closer releases
// the database handle.
func openRegistry(ctx context.Context, cfg config.Config, log zerolog.Logger) (*registry.Registry, func() error, error) {
	store, err := sqlite.NewStore(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	key, err := secret.LoadOrCreateKey(cfg.Secrets.KeyPath)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	reg, err := registry.New(ctx, store, key, log)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return reg, store.Close, nil
}
