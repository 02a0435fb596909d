package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/mangarack/internal/fsx"
	"github.com/brogergvhs/mangarack/internal/imagecache"
	"github.com/brogergvhs/mangarack/internal/library"
	"github.com/brogergvhs/mangarack/internal/ui"
)

var (
	flagServer string
	flagDest   string
)

func init() {
	readCmd := &cobra.Command{
		Use:   "read <provider> <series> <chapter>",
		Short: "Read a chapter page by page into a folder",
		Long: "Read walks the pages of one chapter through the page cache, from the local " +
			"library or from a running `mangarack serve` (--server), and writes each page to --dest.",
		Args: cobra.ExactArgs(3),
		RunE: runRead,
	}
	readCmd.Flags().StringVar(&flagServer, "server", "", "base URL of a running server, e.g. http://127.0.0.1:7783")
	readCmd.Flags().StringVar(&flagDest, "dest", "", "folder for the pages (default: ./<chapter>)")

	rootCmd.AddCommand(readCmd)
}

// chapterSource is a page fetcher plus the page names it serves, in order.
type chapterSource struct {
	names []string
	fetch imagecache.Fetcher
	close func() error
}

func runRead(cmd *cobra.Command, args []string) error {
	provider, series, chapter := args[0], args[1], args[2]

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := ui.NewLogger(cfg.Debug)

	procs, err := imagecache.NewProcessors(cfg.ImageProcessors)
	if err != nil {
		return err
	}

	var src *chapterSource
	if flagServer != "" {
		client, err := newHTTPClient(cfg, log)
		if err != nil {
			return err
		}
		src, err = remoteChapter(cmd.Context(), client, flagServer, provider, series, chapter)
		if err != nil {
			return err
		}
	} else {
		src, err = localChapter(library.New(cfg.Output), provider, series, chapter)
		if err != nil {
			return err
		}
	}
	defer func() { _ = src.close() }()

	dest := flagDest
	if dest == "" {
		dest = library.SafeName(chapter)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dest, err)
	}

	cache := imagecache.New(src.names, src.fetch, procs.For(provider))
	defer cache.Close()

	rows, err := readPages(cmd.Context(), cache, dest)
	if err != nil {
		return err
	}
	return printTable(cmd.OutOrStdout(), []string{"#", "Page", "Type", "Size"}, rows)
}

// readPages requests every page in order, which keeps the next page
// prefetched while the current one is written.
func readPages(ctx context.Context, cache *imagecache.Cache, dest string) ([][]string, error) {
	rows := make([][]string, 0, cache.Len())
	for n := 1; n <= cache.Len(); n++ {
		img, err := cache.Get(ctx, n)
		if err != nil {
			return rows, fmt.Errorf("page %d: %w", n, err)
		}

		if err := fsx.WriteFileAtomic(filepath.Join(dest, library.SafeName(img.Name)), img.Data); err != nil {
			return rows, err
		}
		rows = append(rows, []string{strconv.Itoa(n), img.Name, img.ContentType, ui.Human(int64(len(img.Data)))})
	}
	return rows, nil
}

func localChapter(layout library.Layout, provider, series, chapter string) (*chapterSource, error) {
	final := layout.ChapterPath(provider, series, chapter)

	path := ""
	for _, candidate := range []string{final, library.DeletedPath(final)} {
		if ok, _ := fsx.Exists(candidate); ok {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, fmt.Errorf("chapter %q of %q is not in the library", chapter, series)
	}

	a, err := imagecache.OpenArchive(path)
	if err != nil {
		return nil, err
	}

	names := a.Names()
	if meta, ok, err := library.ReadChapterMeta(final); err == nil && ok {
		names = pageNames(meta)
	}
	return &chapterSource{names: names, fetch: a, close: a.Close}, nil
}

func remoteChapter(ctx context.Context, client *http.Client, server, provider, series, chapter string) (*chapterSource, error) {
	base := strings.TrimRight(server, "/") + "/api/library/" +
		url.PathEscape(provider) + "/" + url.PathEscape(series) + "/" + url.PathEscape(chapter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: HTTP %d: %s", base, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var meta library.ChapterMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode chapter: %w", err)
	}

	return &chapterSource{
		names: pageNames(&meta),
		fetch: imagecache.HTTPFetcher{Client: client, Base: base},
		close: func() error { return nil },
	}, nil
}

func pageNames(meta *library.ChapterMeta) []string {
	out := make([]string, 0, len(meta.Pages))
	for _, p := range meta.Pages {
		out = append(out, p.Name)
	}
	return out
}
