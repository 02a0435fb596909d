package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective config and manage config profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, used, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Loaded config from:\n  %s\n\n", used)
		return printTable(cmd.OutOrStdout(), []string{"Key", "Value"}, cfg.Rows())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
