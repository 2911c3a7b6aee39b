package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sealchat/internal/crypto"
)

func rotateCmd() *cobra.Command {
	var newSecret string

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Re-key the account and replace the published record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("secret required (-s)")
			}
			if newSecret == "" {
				return fmt.Errorf("--new-secret required")
			}
			profile, err := wire.Keystore.Load(secret)
			if err != nil {
				return err
			}

			pair, _, err := wire.Keys.RotateKeys(cmd.Context(), profile.UserID, newSecret)
			if err != nil {
				return err
			}

			profile.KeyPair = pair
			profile.Fingerprint = crypto.Fingerprint(pair.Public)
			if err := wire.Keystore.Save(newSecret, profile); err != nil {
				return err
			}
			fmt.Printf("Keys rotated.\nFingerprint: %s\n", profile.Fingerprint)
			return nil
		},
	}
	cmd.Flags().StringVar(&newSecret, "new-secret", "", "replacement account secret")
	return cmd
}
