package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/config"
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the Default config and make it active",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		path := store.PathOf(config.DefaultLabel)
		fmt.Fprintf(out, "Configuration file: %s\n\n", path)
		if err := printTable(out, []string{"Key", "Value"}, config.DefaultConfig().Rows()); err != nil {
			return err
		}

		ok, err := confirm(fmt.Sprintf("Create %s config", config.DefaultLabel))
		if err != nil || !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}

		path, created, err := store.Init()
		if err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}
		if !created {
			fmt.Fprintf(out, "Configuration already exists at %s.\nUse `mangarack config reset` to recreate it.\n", path)
		} else {
			fmt.Fprintln(out, "Config created at:", path)
		}
		fmt.Fprintf(out, "This config is now active (label: %s).\n", config.DefaultLabel)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
