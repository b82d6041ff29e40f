package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ocw-node/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ocw-node",
		Short:         "Off-chain price worker node",
		Long:          "A dev node that authors blocks and runs the off-chain price reconciliation worker once per block.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to the YAML config")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newIndexCommand(opts))
	cmd.AddCommand(newKeyCommand())

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
