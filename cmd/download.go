package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/downloader"
	"github.com/brogergvhs/mangarack/internal/library"
	"github.com/brogergvhs/mangarack/internal/providers"
	"github.com/brogergvhs/mangarack/internal/ui"
	"github.com/brogergvhs/mangarack/internal/util"
)

var (
	// selection
	flagURL     string
	flagChapter string
	flagRange   string
	flagList    string

	flagDryRun bool
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download new chapters of every tracked series into CBZ archives",
		Long: "Download walks the provider indexes of the library, re-reads each tracked series " +
			"and archives every chapter that is not on disk yet. Chapters the series no longer " +
			"lists are renamed to .cbz.del.",
		Args: cobra.NoArgs,
		RunE: runDownload,
	}

	f := downloadCmd.Flags()
	f.StringVar(&flagURL, "url", "", "only download the tracked series at this URL")
	f.StringVar(&flagChapter, "chapter", "", "download a single chapter by number or name (e.g. 5 or 28.5)")
	f.StringVar(&flagRange, "range", "", "download chapters in a number range (e.g. 5-12)")
	f.StringVar(&flagList, "list", "", "download specific chapter numbers (e.g. 1,3,5)")
	f.BoolVar(&flagDryRun, "dry-run", false, "show what would be downloaded, don't download")

	rootCmd.AddCommand(downloadCmd)
}

// trackedSeries is one provider index entry.
type trackedSeries struct {
	provider string
	url      string
	title    string
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, usedPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := ui.NewLogger(cfg.Debug)
	log.Debugf("Config file: %s\n", usedPath)

	layout := library.New(cfg.Output)
	tracked, err := listTracked(layout, cfg.Providers, flagURL)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		if flagURL != "" {
			return fmt.Errorf("%s is not tracked, add it with `mangarack create %s`", flagURL, flagURL)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing tracked yet. Add a series with `mangarack create <url>`.")
		return nil
	}

	ctx, stop := util.HandleInterrupt(cmd.Context(), layout.Root, log)
	defer stop()

	env, err := newScrapeEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()
	pm := ui.NewProgressManager(out)
	stats := &ui.Stats{}
	pipeline := downloader.New(layout, downloader.Options{
		Observer: ui.NewDownloadObserver(pm, out, stats),
		Log:      log,
	})

	sel := providers.Selection{Chapter: flagChapter, Range: flagRange, List: flagList}
	timer := ui.NewTimer()

	var failures []error
	for _, t := range tracked {
		if err := downloadSeries(ctx, env, layout, pipeline, sel, t, out); err != nil {
			log.Errorf("%s: %v\n", t.url, err)
			failures = append(failures, fmt.Errorf("%s: %w", t.url, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	pm.Close()

	if ctx.Err() != nil {
		util.RemoveTempArchives(layout.Root, log)
	}

	if !flagDryRun {
		fmt.Fprintln(out)
		stats.Summary(out, timer.Elapsed())
	}
	return errors.Join(failures...)
}

// downloadSeries re-reads one tracked series and acquires its selected
// chapters. A changed title or URL aborts the series before anything is
// written.
func downloadSeries(ctx context.Context, env *scrapeEnv, layout library.Layout, p *downloader.Pipeline, sel providers.Selection, t trackedSeries, out io.Writer) error {
	timer := ui.NewTimer()
	fmt.Fprintf(out, "Awaiting %s\n", t.url)

	s, err := env.scrape(ctx, t.url)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := library.CheckSeries(t.url, t.title, *s.series); err != nil {
		return err
	}

	keep, err := sel.Filter(s.series.Chapters)
	if err != nil {
		return err
	}

	if flagDryRun {
		printSelection(out, s.series, keep)
		return nil
	}

	fmt.Fprintf(out, "Fetching %s\n", s.series.Title)
	if err := layout.WriteSeriesMeta(*s.series); err != nil {
		return fmt.Errorf("series meta: %w", err)
	}
	if err := p.AcquireSelected(ctx, s.series, s.source, keep); err != nil {
		return err
	}

	fmt.Fprintf(out, "Finished %s (%s)\n", s.series.Title, timer)
	return nil
}

func printSelection(out io.Writer, series *providers.Series, keep func(providers.Chapter) bool) {
	fmt.Fprintf(out, "Dry-run: %s\n", series.Title)
	n := 0
	for _, ch := range series.Chapters {
		if !keep(ch) {
			continue
		}
		n++
		fmt.Fprintf(out, "%3d) %s\n     %s\n", n, ch.Name, ch.URL)
	}
	fmt.Fprintf(out, "%d of %d chapters selected.\n\n", n, len(series.Chapters))
}

// listTracked reads the provider indexes allowed by enabled, optionally
// narrowed to one series URL, in a stable order.
func listTracked(layout library.Layout, enabled []string, onlyURL string) ([]trackedSeries, error) {
	names, err := layout.Providers()
	if err != nil {
		return nil, err
	}

	var out []trackedSeries
	for _, name := range names {
		if !providers.Enabled(enabled, name) {
			continue
		}

		idx, err := layout.ReadProviderIndex(name)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		for url, title := range idx {
			if onlyURL != "" && url != onlyURL {
				continue
			}
			out = append(out, trackedSeries{provider: name, url: url, title: title})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].provider != out[j].provider {
			return out[i].provider < out[j].provider
		}
		return out[i].title < out[j].title
	})
	return out, nil
}
