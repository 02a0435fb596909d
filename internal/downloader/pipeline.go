// Package downloader turns chapter page streams into committed CBZ archives
// and keeps a series directory in line with the chapters its source lists.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brogergvhs/mangarack/internal/fsx"
	"github.com/brogergvhs/mangarack/internal/library"
	"github.com/brogergvhs/mangarack/internal/providers"
)

// ErrArchiveWrite wraps failures while building or committing an archive.
// Errors from the page source are returned unchanged.
var ErrArchiveWrite = errors.New("archive write failed")

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any) {}

// Observer receives chapter lifecycle events. Calls happen on the goroutine
// running the acquisition.
type Observer interface {
	ChapterStarted(ch providers.Chapter)
	PageAdded(ch providers.Chapter, page int, bytes int64)
	ChapterSkipped(ch providers.Chapter)
	ChapterFinished(ch providers.Chapter, pages int, bytes int64, elapsed time.Duration)
	ChapterFailed(ch providers.Chapter, err error)
}

type NopObserver struct{}

func (NopObserver) ChapterStarted(providers.Chapter) {}
func (NopObserver) PageAdded(providers.Chapter, int, int64) {}
func (NopObserver) ChapterSkipped(providers.Chapter) {}
func (NopObserver) ChapterFinished(providers.Chapter, int, int64, time.Duration) {}
func (NopObserver) ChapterFailed(providers.Chapter, error) {}

type Options struct {
	Observer Observer
	Log      Logger
}

type Pipeline struct {
	layout library.Layout
	obs    Observer
	log    Logger
	rename func(src, dst string) error
	now    func() time.Time
}

func New(layout library.Layout, opts Options) *Pipeline {
	p := &Pipeline{
		layout: layout,
		obs:    opts.Observer,
		log:    opts.Log,
		rename: fsx.Rename,
		now:    time.Now,
	}
	if p.obs == nil {
		p.obs = NopObserver{}
	}
	if p.log == nil {
		p.log = nopLogger{}
	}
	return p
}

// AcquireSeries acquires every chapter of series in order, then reconciles
// the series directory.
func (p *Pipeline) AcquireSeries(ctx context.Context, series *providers.Series, src providers.Source) error {
	return p.AcquireSelected(ctx, series, src, nil)
}

// AcquireSelected is AcquireSeries limited to the chapters keep accepts.
// Reconciliation still uses the full chapter list. A nil keep accepts all.
// The first failing chapter stops the run; archives committed before it stay.
func (p *Pipeline) AcquireSelected(ctx context.Context, series *providers.Series, src providers.Source, keep func(providers.Chapter) bool) error {
	for _, ch := range series.Chapters {
		if keep != nil && !keep(ch) {
			continue
		}
		if _, err := p.AcquireChapter(ctx, series, ch, src); err != nil {
			return fmt.Errorf("%s: %w", ch.Name, err)
		}
	}

	_, err := p.Reconcile(series)
	return err
}

// AcquireChapter writes the archive for ch unless it already exists. It
// reports whether a new archive was committed.
//
// The archive is written to <final>.tmp, finalized, its sidecar written, and
// only then renamed to its final path. Any failure removes the temp file
// and puts the sidecar back as it was.
func (p *Pipeline) AcquireChapter(ctx context.Context, series *providers.Series, ch providers.Chapter, src providers.Source) (committed bool, err error) {
	final := p.layout.ChapterPath(series.ProviderName, series.Title, ch.Name)

	exists, err := fsx.Exists(final)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	if exists {
		p.obs.ChapterSkipped(ch)
		return false, nil
	}

	start := p.now()
	p.obs.ChapterStarted(ch)
	defer func() {
		if err != nil {
			p.obs.ChapterFailed(ch, err)
		}
	}()

	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}

	it, err := src.Iterator(ctx, ch)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil {
			p.log.Warnf("close iterator for %s: %v\n", ch.Name, cerr)
		}
	}()

	tmp := library.TempPath(final)
	sidecar := library.SidecarPath(final)
	aw, err := createArchive(tmp)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}

	// A soft-deleted archive of the same name shares the sidecar path, so a
	// failed attempt puts back what was there.
	var restore func()
	defer func() {
		if committed {
			return
		}
		aw.discard()
		if rerr := os.Remove(tmp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			p.log.Warnf("remove %s: %v\n", tmp, rerr)
		}
		if restore != nil {
			restore()
		}
	}()

	for {
		ok, err := it.Move(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}

		data, err := it.Current(ctx)
		if err != nil {
			return false, err
		}

		written := aw.bytes
		page, err := aw.add(data, func(n int64) {
			p.obs.PageAdded(ch, len(aw.pages)+1, written+n)
		})
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
		}
		p.log.Debugf("%s: %s %dx%d\n", ch.Name, page.Name, page.Width, page.Height)
		p.obs.PageAdded(ch, len(aw.pages), aw.bytes)
	}

	if err := aw.finish(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}

	meta := library.ChapterMeta{
		Number: ch.Number,
		Volume: ch.Volume,
		Title:  ch.Title,
		Pages:  aw.pages,
	}
	if meta.Pages == nil {
		meta.Pages = []library.PageMeta{}
	}
	restore, err = p.sidecarRestorer(sidecar)
	if err != nil {
		return false, fmt.Errorf("%w: sidecar: %w", ErrArchiveWrite, err)
	}
	if err := fsx.WriteJSON(sidecar, meta); err != nil {
		return false, fmt.Errorf("%w: sidecar: %w", ErrArchiveWrite, err)
	}

	if err := p.rename(tmp, final); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrArchiveWrite, err)
	}
	committed = true
	_ = fsx.SyncDir(dir)

	p.obs.ChapterFinished(ch, len(aw.pages), aw.bytes, p.now().Sub(start))
	return true, nil
}

// sidecarRestorer captures the current sidecar at path and returns a func
// that puts it back, or removes the file when there was none.
func (p *Pipeline) sidecarRestorer(path string) (func(), error) {
	prev, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return func() {
			if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				p.log.Warnf("remove %s: %v\n", path, rerr)
			}
		}, nil
	case err != nil:
		return nil, err
	}
	return func() {
		if werr := fsx.WriteFileAtomic(path, prev); werr != nil {
			p.log.Warnf("restore %s: %v\n", path, werr)
		}
	}, nil
}

// Reconcile soft-deletes archives in the series directory that the series
// no longer lists, by renaming X.cbz to X.cbz.del. Nothing is ever removed.
// It returns the archive names it renamed.
func (p *Pipeline) Reconcile(series *providers.Series) ([]string, error) {
	dir := p.layout.SeriesDir(series.ProviderName, series.Title)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	expected := make(map[string]bool, len(series.Chapters))
	for _, ch := range series.Chapters {
		expected[library.SafeName(ch.Name)+library.ExtArchive] = true
	}

	var renamed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, library.ExtArchive) || expected[name] {
			continue
		}

		path := filepath.Join(dir, name)
		if err := p.rename(path, library.DeletedPath(path)); err != nil {
			return renamed, fmt.Errorf("soft delete %s: %w", name, err)
		}
		p.log.Debugf("soft deleted %s\n", path)
		renamed = append(renamed, name)
	}

	return renamed, nil
}
