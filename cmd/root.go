package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/config"
)

var (
	flagIgnoreConfig bool
	flagDebug        bool
	flagOutput       string
	flagHeadless     bool
	flagBrowserBin   string
	flagControlURL   string
)

// store is the profile store every command reads. Tests point it at a
// temporary directory.
var store = config.DefaultStore()

var rootCmd = &cobra.Command{
	Use:           "mangarack",
	Short:         "Track manga series, archive their chapters as CBZ and serve the library",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVar(&flagIgnoreConfig, "ignore-config", false, "ignore config and use only CLI flags")
	pf.StringVarP(&flagOutput, "output", "o", "", "library root folder")
	pf.BoolVar(&flagHeadless, "headless", true, "run the browser without a window")
	pf.StringVar(&flagBrowserBin, "browser-bin", "", "path to a Chrome/Chromium binary")
	pf.StringVar(&flagControlURL, "control-url", "", "DevTools websocket URL of an already running browser")
}

// loadConfig merges the active profile, MANGARACK_* variables and the
// persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	opts := config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
		Output:       flagOutput,
		BrowserBin:   flagBrowserBin,
		ControlURL:   flagControlURL,
	}
	if cmd.Flags().Changed("headless") {
		h := flagHeadless
		opts.Headless = &h
	}
	return config.LoadMerged(store, opts)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
