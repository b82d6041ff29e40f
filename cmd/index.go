package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ocw-node/config"
	"ocw-node/db"
	"ocw-node/indexing"
	"ocw-node/models"
	"ocw-node/repository"
)

func newIndexCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the node-local reconciliation index",
	}
	cmd.AddCommand(newIndexGetCommand(root))
	return cmd
}

func newIndexGetCommand(root *rootOptions) *cobra.Command {
	var height uint32

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the record stored for a block height",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.LevelDB.Path == "" {
				return fmt.Errorf("leveldb.path is empty: the index only lives in a running node's memory")
			}
			ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
			if err != nil {
				return fmt.Errorf("open leveldb: %w", err)
			}
			defer ldb.Close()

			h := models.BlockNumber(height)
			rec, err := repository.NewIndexRepository(ldb).GetRecord(indexing.DeriveKey(h))
			if err != nil {
				return fmt.Errorf("height %d: %w", h, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"height": h,
				"key":    fmt.Sprintf("%x", indexing.DeriveKey(h)),
				"tag":    string(rec.Tag),
				"value":  rec.Value,
			})
		},
	}
	cmd.Flags().Uint32Var(&height, "height", 0, "block height")
	if err := cmd.MarkFlagRequired("height"); err != nil {
		panic(err)
	}
	return cmd
}
