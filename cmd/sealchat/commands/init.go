package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/store/local"
)

func initCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Derive account keys and publish the public half",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("secret required (-s)")
			}
			if wire.Keystore.Exists() {
				return fmt.Errorf("profile already exists; use rotate to re-key or lock to wipe")
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			self := domain.UserID(userID)

			pair, _, err := wire.Keys.InitializeKeys(cmd.Context(), self, secret)
			if errors.Is(err, domain.ErrKeyRecordExists) {
				// Already published; re-derive and verify against the
				// directory instead.
				pair, _, err = wire.Keys.DeriveKeys(cmd.Context(), self, secret)
			}
			if err != nil {
				return err
			}
			fp := crypto.Fingerprint(pair.Public)

			profile := local.Profile{
				UserID:      self,
				KeyPair:     pair,
				Fingerprint: fp,
				CreatedAt:   time.Now().UTC(),
			}
			if err := wire.Keystore.Save(secret, profile); err != nil {
				return err
			}
			fmt.Printf("Keys published for %s.\nFingerprint: %s\n", self, fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "account ID (default: generate)")
	return cmd
}
