package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sealchat/internal/domain"
)

// history <conversation>: fetch and decrypt a conversation.
func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Fetch and decrypt a conversation",
		Args:  cobra.ExactArgs(1),
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
			history, err := msgs.History(cmd.Context(), domain.ConversationID(args[0]), limit)
			if err != nil {
				return err
			}
			for _, m := range history {
				switch {
				case m.Deleted:
					fmt.Printf("%4d  %-12s  [deleted]\n", m.SequenceNumber, m.SenderName)
				case m.DecryptionError:
					fmt.Printf("%4d  %-12s  [undecryptable]\n", m.SequenceNumber, m.SenderName)
				default:
					marker := ""
					if m.Edited {
						marker = " (edited)"
					}
					fmt.Printf("%4d  %-12s  %s%s\n", m.SequenceNumber, m.SenderName, m.Content, marker)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to fetch")
	return cmd
}
