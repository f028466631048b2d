package cli

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quillchat/quill/internal/api"
	"github.com/quillchat/quill/internal/client"
	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/mirror"
	"github.com/quillchat/quill/internal/registry"
)

var runCmd = &cobra.Command{
	Use:   "run [account-id]",
	Short: "Open the terminal client for an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		reg, closeStore, err := openRegistry(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		accountID, err := pickAccount(reg, args)
		if err != nil {
			return err
		}

		cache := mirror.NewCache(accountLoader(reg, cfg.Sync, log), log)
		defer cache.Close()

		store, err := cache.GetOrLoad(cmd.Context(), accountID)
		if err != nil {
			return fmt.Errorf("load account %d: %w", accountID, err)
		}

		_, err = tea.NewProgram(client.NewApp(store), tea.WithAltScreen()).Run()
		return err
	},
}

// accountLoader builds the cache's construction path: resolve the account,
// unseal its credential, dial the server, and start the live store.
func accountLoader(reg *registry.Registry, sync config.SyncConfig, log zerolog.Logger) mirror.LoadFunc {
	return func(ctx context.Context, accountID int64) (*mirror.LiveStore, error) {
		account, err := reg.Get(accountID)
		if err != nil {
			return nil, err
		}
		apiKey, err := reg.APIKey(account)
		if err != nil {
			return nil, fmt.Errorf("unseal credential for account %d: %w", accountID, err)
		}
		conn, err := api.NewClient(account.ServerURL, account.Email, apiKey)
		if err != nil {
			return nil, err
		}
		return mirror.StartLive(ctx, account, conn, mirror.Options{
			PollTimeout:    sync.PollTimeout,
			BackoffInitial: sync.BackoffInitial,
			BackoffMax:     sync.BackoffMax,
			Log:            log,
		})
	}
}

func pickAccount(reg *registry.Registry, args []string) (int64, error) {
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("account id %q is not a number", args[0])
		}
		return id, nil
	}

	accounts := reg.List()
	switch len(accounts) {
	case 0:
		return 0, fmt.Errorf("no accounts configured; add one with `quill accounts add`")
	case 1:
		return accounts[0].ID, nil
	default:
		return 0, fmt.Errorf("multiple accounts configured; pass an account id (see `quill accounts list`)")
	}
}
