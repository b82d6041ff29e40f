package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"ocw-node/keystore"
)

func newKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage signing identities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate an ed25519 seed for keystore.seeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, id, err := keystore.Generate()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key type:   %s\nseed:       %s\npublic key: %s\n",
				keystore.KeyType, hex.EncodeToString(seed), id)
			return nil
		},
	})
	return cmd
}
