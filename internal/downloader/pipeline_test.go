package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/mangarack/internal/library"
	"github.com/brogergvhs/mangarack/internal/providers"
)

func pngPage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func jpegPage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func gifPage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{color.Black, color.White}), nil))
	return buf.Bytes()
}

type fakeIterator struct {
	pages  [][]byte
	failAt int // 1-based page whose Current fails, 0 for none
	err    error
	pos    int
	closed *int
}

func (it *fakeIterator) Move(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if it.pos >= len(it.pages) {
		return false, nil
	}
	it.pos++
	return it.pos <= len(it.pages), nil
}

func (it *fakeIterator) Current(context.Context) ([]byte, error) {
	if it.pos == it.failAt {
		return nil, it.err
	}
	return it.pages[it.pos-1], nil
}

func (it *fakeIterator) Close() error {
	*it.closed++
	return nil
}

type fakeSource struct {
	pages  map[string][][]byte
	failAt map[string]int
	err    error
	opened []string
	closed int
}

func (s *fakeSource) Iterator(_ context.Context, ch providers.Chapter) (providers.ChapterIterator, error) {
	s.opened = append(s.opened, ch.Name)
	return &fakeIterator{
		pages:  s.pages[ch.Name],
		failAt: s.failAt[ch.Name],
		err:    s.err,
		closed: &s.closed,
	}, nil
}

func testSeries(names ...string) *providers.Series {
	s := &providers.Series{ProviderName: "example.test", Title: "Series", URL: "https://example.test/s"}
	for i, n := range names {
		s.Chapters = append(s.Chapters, providers.Chapter{Number: float64(i + 1), Title: "Chapter " + n, Name: n})
	}
	return s
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func TestAcquireChapter_WritesStoredArchiveAndSidecar(t *testing.T) {
	root := t.TempDir()
	layout := library.New(root)
	p := New(layout, Options{})

	series := testSeries("c1")
	src := &fakeSource{pages: map[string][][]byte{
		"c1": {pngPage(t, 10, 20), jpegPage(t, 30, 40), gifPage(t, 5, 6)},
	}}

	committed, err := p.AcquireChapter(context.Background(), series, series.Chapters[0], src)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, 1, src.closed)

	final := layout.ChapterPath("example.test", "Series", "c1")
	assert.Equal(t, []string{"c1.cbz", "c1.cbz.json"}, dirNames(t, filepath.Dir(final)))

	zr, err := zip.OpenReader(final)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Store, f.Method)
	}
	assert.Equal(t, []string{"001.png", "002.jpg", "003.gif"}, names)

	meta, ok, err := library.ReadChapterMeta(final)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, meta.Number)
	assert.Nil(t, meta.Volume)
	assert.Equal(t, "Chapter c1", meta.Title)
	assert.Equal(t, []library.PageMeta{
		{Name: "001.png", Width: 10, Height: 20},
		{Name: "002.jpg", Width: 30, Height: 40},
		{Name: "003.gif", Width: 5, Height: 6},
	}, meta.Pages)
}

func TestAcquireChapter_ExistingArchiveIsSkipped(t *testing.T) {
	root := t.TempDir()
	layout := library.New(root)
	p := New(layout, Options{})
	series := testSeries("c1")

	final := layout.ChapterPath("example.test", "Series", "c1")
	require.NoError(t, os.MkdirAll(filepath.Dir(final), 0o755))
	require.NoError(t, os.WriteFile(final, []byte("old"), 0o644))

	src := &fakeSource{}
	committed, err := p.AcquireChapter(context.Background(), series, series.Chapters[0], src)
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Empty(t, src.opened)

	b, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
	assert.Equal(t, []string{"c1.cbz"}, dirNames(t, filepath.Dir(final)))
}

func TestAcquireChapter_FailedCommitLeavesNoArchive(t *testing.T) {
	root := t.TempDir()
	layout := library.New(root)
	p := New(layout, Options{})
	p.rename = func(string, string) error { return errors.New("power cut") }

	series := testSeries("c1")
	src := &fakeSource{pages: map[string][][]byte{"c1": {pngPage(t, 1, 1)}}}

	_, err := p.AcquireChapter(context.Background(), series, series.Chapters[0], src)
	require.ErrorIs(t, err, ErrArchiveWrite)

	assert.Empty(t, dirNames(t, layout.SeriesDir("example.test", "Series")))
	assert.Equal(t, 1, src.closed)
}

func TestAcquireChapter_FailedCommitRestoresSoftDeletedSidecar(t *testing.T) {
	layout := library.New(t.TempDir())
	p := New(layout, Options{})
	p.rename = func(string, string) error { return errors.New("power cut") }

	series := testSeries("c1")
	final := layout.ChapterPath("example.test", "Series", "c1")
	require.NoError(t, os.MkdirAll(filepath.Dir(final), 0o755))
	require.NoError(t, os.WriteFile(library.DeletedPath(final), []byte("old archive"), 0o644))
	require.NoError(t, os.WriteFile(library.SidecarPath(final), []byte(`{"number":1}`), 0o644))

	src := &fakeSource{pages: map[string][][]byte{"c1": {pngPage(t, 1, 1)}}}
	_, err := p.AcquireChapter(context.Background(), series, series.Chapters[0], src)
	require.ErrorIs(t, err, ErrArchiveWrite)

	assert.Equal(t, []string{"c1.cbz.del", "c1.cbz.json"}, dirNames(t, filepath.Dir(final)))
	b, err := os.ReadFile(library.SidecarPath(final))
	require.NoError(t, err)
	assert.Equal(t, `{"number":1}`, string(b))
}

func TestAcquireChapter_SourceErrorPassesThrough(t *testing.T) {
	root := t.TempDir()
	layout := library.New(root)
	p := New(layout, Options{})

	errBrowser := errors.New("navigation failed")
	series := testSeries("c1")
	src := &fakeSource{
		pages:  map[string][][]byte{"c1": {pngPage(t, 1, 1), pngPage(t, 1, 1)}},
		failAt: map[string]int{"c1": 2},
		err:    errBrowser,
	}

	_, err := p.AcquireChapter(context.Background(), series, series.Chapters[0], src)
	require.ErrorIs(t, err, errBrowser)
	assert.NotErrorIs(t, err, ErrArchiveWrite)
	assert.Empty(t, dirNames(t, layout.SeriesDir("example.test", "Series")))
	assert.Equal(t, 1, src.closed)
}

func TestAcquireChapter_UndecodablePage(t *testing.T) {
	layout := library.New(t.TempDir())
	p := New(layout, Options{})

	series := testSeries("c1")
	src := &fakeSource{pages: map[string][][]byte{"c1": {[]byte("not an image")}}}

	_, err := p.AcquireChapter(context.Background(), series, series.Chapters[0], src)
	require.ErrorIs(t, err, ErrArchiveWrite)
	assert.Empty(t, dirNames(t, layout.SeriesDir("example.test", "Series")))
}

func TestAcquireChapter_Canceled(t *testing.T) {
	layout := library.New(t.TempDir())
	p := New(layout, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	series := testSeries("c1")
	src := &fakeSource{pages: map[string][][]byte{"c1": {pngPage(t, 1, 1)}}}

	_, err := p.AcquireChapter(ctx, series, series.Chapters[0], src)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirNames(t, layout.SeriesDir("example.test", "Series")))
}

func TestAcquireSeries_TwoChaptersThenIdempotent(t *testing.T) {
	root := t.TempDir()
	layout := library.New(root)
	obs := &recordingObserver{}
	p := New(layout, Options{Observer: obs})

	series := testSeries("c1", "c2")
	src := &fakeSource{pages: map[string][][]byte{
		"c1": {pngPage(t, 2, 2)},
		"c2": {pngPage(t, 3, 3), pngPage(t, 4, 4)},
	}}

	require.NoError(t, p.AcquireSeries(context.Background(), series, src))
	assert.Equal(t, []string{"c1", "c2"}, src.opened)
	assert.Equal(t, []string{"start c1", "done c1", "start c2", "done c2"}, obs.events)

	dir := layout.SeriesDir("example.test", "Series")
	assert.Equal(t, []string{"c1.cbz", "c1.cbz.json", "c2.cbz", "c2.cbz.json"}, dirNames(t, dir))

	require.NoError(t, p.AcquireSeries(context.Background(), series, src))
	assert.Equal(t, []string{"c1", "c2"}, src.opened, "second run opens nothing")
	assert.Equal(t, []string{"c1.cbz", "c1.cbz.json", "c2.cbz", "c2.cbz.json"}, dirNames(t, dir))
}

func TestAcquireSeries_FirstFailureStopsRun(t *testing.T) {
	layout := library.New(t.TempDir())
	p := New(layout, Options{})

	errSource := errors.New("boom")
	series := testSeries("c1", "c2", "c3")
	src := &fakeSource{
		pages: map[string][][]byte{
			"c1": {pngPage(t, 1, 1)},
			"c2": {pngPage(t, 1, 1)},
			"c3": {pngPage(t, 1, 1)},
		},
		failAt: map[string]int{"c2": 1},
		err:    errSource,
	}

	err := p.AcquireSeries(context.Background(), series, src)
	require.ErrorIs(t, err, errSource)
	assert.Equal(t, []string{"c1", "c2"}, src.opened)
	assert.Equal(t, []string{"c1.cbz", "c1.cbz.json"}, dirNames(t, layout.SeriesDir("example.test", "Series")))
}

func TestAcquireSelected_ReconcilesAgainstFullList(t *testing.T) {
	layout := library.New(t.TempDir())
	p := New(layout, Options{})

	series := testSeries("c1", "c2")
	dir := layout.SeriesDir("example.test", "Series")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c1.cbz"), nil, 0o644))

	src := &fakeSource{pages: map[string][][]byte{"c2": {pngPage(t, 1, 1)}}}
	keep := func(ch providers.Chapter) bool { return ch.Name == "c2" }

	require.NoError(t, p.AcquireSelected(context.Background(), series, src, keep))
	assert.Equal(t, []string{"c2"}, src.opened)
	assert.Equal(t, []string{"c1.cbz", "c2.cbz", "c2.cbz.json"}, dirNames(t, dir))
}

func TestReconcile_SoftDeletesOrphans(t *testing.T) {
	layout := library.New(t.TempDir())
	p := New(layout, Options{})

	series := testSeries("keep")
	dir := layout.SeriesDir("example.test", "Series")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"keep.cbz", "gone.cbz", "gone.cbz.json", "old.cbz.del", "notes.txt", "c9.cbz.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	renamed, err := p.Reconcile(series)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.cbz"}, renamed)
	assert.Equal(t,
		[]string{"c9.cbz.tmp", "gone.cbz.del", "gone.cbz.json", "keep.cbz", "notes.txt", "old.cbz.del"},
		dirNames(t, dir))

	b, err := os.ReadFile(filepath.Join(dir, "gone.cbz.del"))
	require.NoError(t, err)
	assert.Equal(t, "gone.cbz", string(b))
}

func TestReconcile_MissingDirectory(t *testing.T) {
	p := New(library.New(t.TempDir()), Options{})
	renamed, err := p.Reconcile(testSeries("c1"))
	require.NoError(t, err)
	assert.Empty(t, renamed)
}

type recordingObserver struct {
	NopObserver
	events []string
}

func (o *recordingObserver) ChapterStarted(ch providers.Chapter) {
	o.events = append(o.events, "start "+ch.Name)
}

func (o *recordingObserver) ChapterFinished(ch providers.Chapter, _ int, _ int64, _ time.Duration) {
	o.events = append(o.events, "done "+ch.Name)
}
