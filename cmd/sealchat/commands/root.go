package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sealchat/internal/app"
)

var (
	home     string
	secret   string
	relayURL string

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "sealchat",
		Short: "End-to-end encrypted messaging CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".sealchat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			wire, err = app.NewWire(app.Config{
				Home:     home,
				RelayURL: relayURL,
			})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.sealchat)")
	root.PersistentFlags().StringVarP(&secret, "secret", "s", "", "account secret protecting the keys")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")

	root.AddCommand(initCmd(), rotateCmd(), fingerprintCmd(), lockCmd(), sendCmd(), historyCmd())
	return root.Execute()
}
