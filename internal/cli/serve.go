package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quillchat/quill/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the in-memory dev server",
	Long:  "Runs a small reference chat server for local development. State is not persisted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.NewApp(cfg.Server, log).Run(ctx)
	},
}
