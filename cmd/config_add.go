package cmd

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var flagFrom string

var configAddCmd = &cobra.Command{
	Use:   "add [label]",
	Short: "Create a new config with default values, or import one with --from",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 1 {
			label = args[0]
		} else {
			prompt := promptui.Prompt{
				Label: "Label for new config",
				Validate: func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("label cannot be empty")
					}
					return nil
				},
			}
			v, err := prompt.Run()
			if err != nil {
				return fmt.Errorf("input cancelled")
			}
			label = strings.TrimSpace(v)
		}

		if flagFrom != "" {
			if err := store.Add(label, flagFrom); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s as config %q\n", flagFrom, label)
			return nil
		}

		path, err := store.Create(label)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created new config: %s\n", path)
		return nil
	},
}

func init() {
	configAddCmd.Flags().StringVar(&flagFrom, "from", "", "import an existing YAML file")
	configCmd.AddCommand(configAddCmd)
}
