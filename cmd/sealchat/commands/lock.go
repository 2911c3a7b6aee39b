package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Wipe the locally stored key material",
		Long: "Wipes in-memory keys and removes the encrypted profile.\n" +
			"The published public key stays in the directory; running init\n" +
			"with the same account ID and secret restores the same pair.",
		RunE: func(cmd *cobra.Command, args []string) error {
			wire.Keys.ClearKeys()
			if err := wire.Keystore.Remove(); err != nil {
				return err
			}
			fmt.Println("Locked.")
			return nil
		},
	}
}
