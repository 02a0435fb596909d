package cmd

import (
	"errors"

	"github.com/manifoldco/promptui"
)

var flagYes bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "answer yes to confirmation prompts")
}

// confirm asks a yes/no question on the terminal. A declined prompt is not
// an error.
func confirm(label string) (bool, error) {
	if flagYes {
		return true, nil
	}

	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
