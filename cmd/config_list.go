package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available configs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := store.List()
		if err != nil {
			return fmt.Errorf("cannot read configs directory: %w", err)
		}
		if len(profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No configs yet. Run `mangarack config init`.")
			return nil
		}

		rows := make([][]string, 0, len(profiles))
		for _, p := range profiles {
			active := ""
			if p.Active {
				active = "yes"
			}
			rows = append(rows, []string{p.Label, p.Path, active})
		}
		return printTable(cmd.OutOrStdout(), []string{"Label", "Path", "Active"}, rows)
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
}
