package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quillchat/quill/internal/registry"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage configured chat accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, closeStore, err := openRegistry(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer closeStore()

		accounts := reg.List()
		if len(accounts) == 0 {
			fmt.Println("No accounts configured. Add one with `quill accounts add`.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tSERVER")
		for _, account := range accounts {
			fmt.Fprintf(w, "%d\t%s\t%s\n", account.ID, account.Email, account.ServerURL)
		}
		return w.Flush()
	},
}

var (
	addServerURL string
	addEmail     string
	addAPIKey    string
)

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a chat account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(addServerURL) == "" || strings.TrimSpace(addEmail) == "" || addAPIKey == "" {
			return fmt.Errorf("--server, --email, and --api-key are all required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, closeStore, err := openRegistry(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer closeStore()

		account, err := reg.Insert(cmd.Context(), registry.InsertParams{
			ServerURL: strings.TrimSpace(addServerURL),
			Email:     strings.TrimSpace(addEmail),
			APIKey:    addAPIKey,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added account %d (%s on %s)\n", account.ID, account.Email, account.ServerURL)
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().StringVar(&addServerURL, "server", "", "chat server base URL")
	accountsAddCmd.Flags().StringVar(&addEmail, "email", "", "account email")
	accountsAddCmd.Flags().StringVar(&addAPIKey, "api-key", "", "account API key")
	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd)
}
