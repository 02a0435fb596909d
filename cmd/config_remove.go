package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/config"
)

var configRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Remove a config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		out := cmd.OutOrStdout()

		if active, _ := store.Current(); label == active {
			ok, err := confirm(fmt.Sprintf("Config %q is currently active. Remove it anyway", label))
			if err != nil || !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		switched, err := store.Remove(label)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Removed configuration %q\n", label)
		if switched {
			fmt.Fprintf(out, "Active config is now %q\n", config.DefaultLabel)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configRemoveCmd)
}
