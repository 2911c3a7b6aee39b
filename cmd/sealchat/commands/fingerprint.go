package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the key fingerprint for out-of-band verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("secret required (-s)")
			}
			profile, err := wire.Keystore.Load(secret)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", profile.Fingerprint)
			return nil
		},
	}
}
