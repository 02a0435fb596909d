package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Inspect the tracked series and their archives",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

func init() {
	libraryCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked series per provider",
		Args:  cobra.NoArgs,
		RunE:  runLibraryList,
	})
	libraryCmd.AddCommand(&cobra.Command{
		Use:   "show <provider> <series>",
		Short: "Show the chapters of a series and which are on disk",
		Args:  cobra.ExactArgs(2),
		RunE:  runLibraryShow,
	})

	rootCmd.AddCommand(libraryCmd)
}

func runLibraryList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	layout := library.New(cfg.Output)

	names, err := layout.Providers()
	if err != nil {
		return err
	}

	var rows [][]string
	for _, provider := range names {
		idx, err := layout.ReadProviderIndex(provider)
		if err != nil {
			return fmt.Errorf("provider %s: %w", provider, err)
		}

		urls := make([]string, 0, len(idx))
		for u := range idx {
			urls = append(urls, u)
		}
		sort.Slice(urls, func(i, j int) bool { return idx[urls[i]] < idx[urls[j]] })

		for _, u := range urls {
			rows = append(rows, []string{provider, idx[u], u})
		}
	}

	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No series tracked in %s.\n", layout.Root)
		return nil
	}
	return printTable(cmd.OutOrStdout(), []string{"Provider", "Series", "URL"}, rows)
}

func runLibraryShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	view, ok, err := library.New(cfg.Output).View(args[0], args[1], nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("series %q of %s is not tracked", args[1], args[0])
	}

	yes := color.New(color.FgGreen).Sprint("yes")
	gone := color.New(color.FgYellow).Sprint("removed")

	rows := make([][]string, 0, len(view.Chapters))
	for _, ch := range view.Chapters {
		vol := "-"
		if ch.Volume != nil {
			vol = strconv.FormatFloat(*ch.Volume, 'f', -1, 64)
		}
		dl := ""
		if ch.Downloaded {
			dl = yes
		}
		state := ""
		if !ch.Exists {
			state = gone
		}
		rows = append(rows, []string{vol, strconv.FormatFloat(ch.Number, 'f', -1, 64), ch.Title, dl, state})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", view.Title, view.URL)
	return printTable(cmd.OutOrStdout(), []string{"Vol", "No", "Title", "Archived", "Source"}, rows)
}
