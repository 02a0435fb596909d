package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/library"
	"github.com/brogergvhs/mangarack/internal/ui"
)

func init() {
	createCmd := &cobra.Command{
		Use:   "create <url>...",
		Short: "Start tracking series by their page URL",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCreate,
	}

	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, urls []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := ui.NewLogger(cfg.Debug)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := newScrapeEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer env.Close()

	layout := library.New(cfg.Output)
	out := cmd.OutOrStdout()

	for _, url := range urls {
		timer := ui.NewTimer()
		fmt.Fprintf(out, "Awaiting %s\n", url)

		s, err := env.scrape(ctx, url)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Fetching %s\n", s.series.Title)

		added, err := layout.Track(*s.series)
		_ = s.Close()
		if err != nil {
			return fmt.Errorf("track %s: %w", url, err)
		}

		if added {
			fmt.Fprintf(out, "Finished %s (%s)\n", s.series.Title, timer)
		} else {
			fmt.Fprintf(out, "Canceled %s (%s)\n", s.series.Title, timer)
		}
	}
	return nil
}
