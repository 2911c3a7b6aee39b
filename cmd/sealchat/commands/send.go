package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sealchat/internal/domain"
)

// send <peer> <message>: encrypt and send a direct message to <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a direct message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("secret required (-s)")
			}
			if relayURL == "" {
				return fmt.Errorf("no relay configured. use --relay")
			}
			profile, err := wire.Keystore.Load(secret)
			if err != nil {
				return err
			}
			if _, _, err := wire.Keys.DeriveKeys(cmd.Context(), profile.UserID, secret); err != nil {
				return err
			}
			defer wire.Keys.ClearKeys()

			msgs := wire.Messenger(profile.UserID)
			sent, err := msgs.Send(cmd.Context(), domain.UserID(args[0]), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("sent %s (conversation %s)\n", sent.ID, sent.ConversationID)
			return nil
		},
	}
}
