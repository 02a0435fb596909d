package generic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/mangarack/internal/providers"
)

// site is a fake set of rendered documents and response bodies.
type site struct {
	mu      sync.Mutex
	html    map[string]string
	bodies  map[string][]byte
	fetches []string
	tabs    []*fakePage
}

type fakePage struct {
	site     *site
	url      string
	referers []string
	closed   bool
}

func (s *site) open(url string) *fakePage {
	p := &fakePage{site: s, url: url}
	s.mu.Lock()
	s.tabs = append(s.tabs, p)
	s.mu.Unlock()
	return p
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Navigate(_ context.Context, target, previousURL string) error {
	p.referers = append(p.referers, previousURL)
	p.url = target
	return nil
}

func (p *fakePage) Snapshot(_ context.Context, fn func(*goquery.Document) error) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.site.html[p.url]))
	if err != nil {
		return err
	}
	return fn(doc)
}

func (p *fakePage) Buffer(_ context.Context, target string) ([]byte, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.fetches = append(p.site.fetches, target)

	b, ok := p.site.bodies[target]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (p *fakePage) OpenTab(_ context.Context, target string) (providers.Page, error) {
	child := p.site.open(target)
	child.referers = append(child.referers, p.url)
	return child, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

const seriesHTML = `<html><head>
<meta property="og:title" content="Test Series">
<title>ignored</title></head><body>
<a href="/">Home</a>
<a href="/u/someone">ch 1 by someone</a>
<a href="/series/test/chapter-2">Chapter 2</a>
<a href="/series/test/chapter-1">Chapter 1</a>
<a href="/series/test/chapter-10-5">Chapter 10.5</a>
<a href="/series/test/chapter-1">Start reading</a>
</body></html>`

const chapterHTML = `<html><body>
<img src="/img/logo.png">
<div data-index="2"><img src="https://cdn.test/p/b.jpg"></div>
<div data-index="1"><img srcset="https://cdn.test/p/a-400x600.jpg 400w, https://cdn.test/p/a-800x1200.jpg 800w"></div>
<div data-index="3" style="background-image: url('https://cdn.test/p/c.png')"></div>
</body></html>`

func newSite() *site {
	return &site{
		html: map[string]string{
			"https://www.example.test/series/test":            seriesHTML,
			"https://www.example.test/series/test/chapter-1":  chapterHTML,
			"https://www.example.test/series/test/chapter-2":  `<html><body><p>nothing</p></body></html>`,
		},
		bodies: map[string][]byte{
			"https://cdn.test/p/a-800x1200.jpg": []byte("A"),
			"https://cdn.test/p/b.jpg":          []byte("B"),
			"https://cdn.test/p/c.png":          []byte("C"),
		},
	}
}

func TestSeries(t *testing.T) {
	s := newSite()
	page := s.open("https://www.example.test/series/test")

	series, src, err := New(Options{}).Series(context.Background(), page, page.URL())
	require.NoError(t, err)
	require.NotNil(t, src)

	assert.Equal(t, "example.test", series.ProviderName)
	assert.Equal(t, "Test Series", series.Title)
	require.Len(t, series.Chapters, 3)

	assert.Equal(t, 1.0, series.Chapters[0].Number)
	assert.Equal(t, "Test Series #001", series.Chapters[0].Name)
	assert.Equal(t, "https://www.example.test/series/test/chapter-1", series.Chapters[0].URL)
	assert.Equal(t, 2.0, series.Chapters[1].Number)
	assert.Equal(t, 10.5, series.Chapters[2].Number)
	assert.Equal(t, "Chapter 10.5", series.Chapters[2].Title)
}

func TestSeries_NavigatesWhenElsewhere(t *testing.T) {
	s := newSite()
	page := s.open("about:blank")

	series, _, err := New(Options{}).Series(context.Background(), page, "https://www.example.test/series/test")
	require.NoError(t, err)
	assert.Equal(t, "Test Series", series.Title)
	assert.Equal(t, []string{""}, page.referers)
}

func TestSeries_NoChapters(t *testing.T) {
	s := newSite()
	s.html["https://x.test/s"] = `<html><head><title>X</title></head><body></body></html>`
	page := s.open("https://x.test/s")

	_, _, err := New(Options{}).Series(context.Background(), page, page.URL())
	assert.ErrorIs(t, err, ErrNoChapters)
}

func TestIterator_YieldsPagesInOrder(t *testing.T) {
	s := newSite()
	page := s.open("https://www.example.test/series/test")
	ctx := context.Background()

	series, src, err := New(Options{}).Series(ctx, page, page.URL())
	require.NoError(t, err)

	it, err := src.Iterator(ctx, series.Chapters[0])
	require.NoError(t, err)

	var got []string
	for {
		ok, err := it.Move(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		b, err := it.Current(ctx)
		require.NoError(t, err)
		again, err := it.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, b, again)
		got = append(got, string(b))
	}
	require.NoError(t, it.Close())

	assert.Equal(t, []string{"A", "B", "C"}, got)
	assert.Len(t, s.fetches, 3, "repeated Current must not refetch")

	tab := s.tabs[len(s.tabs)-1]
	assert.True(t, tab.closed)
	assert.Equal(t, page.URL(), tab.referers[0], "chapter tab uses the series page as referer")
	assert.Equal(t, "https://www.example.test/series/test/chapter-1", tab.referers[1])

	ok, err := it.Move(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIterator_NoPagesClosesTab(t *testing.T) {
	s := newSite()
	page := s.open("https://www.example.test/series/test")
	ctx := context.Background()

	series, src, err := New(Options{}).Series(ctx, page, page.URL())
	require.NoError(t, err)

	_, err = src.Iterator(ctx, series.Chapters[1])
	assert.ErrorIs(t, err, ErrNoPages)
	assert.True(t, s.tabs[len(s.tabs)-1].closed)
}

func TestIterator_CurrentBeforeMove(t *testing.T) {
	it := &pageIterator{pos: -1, cached: -1}
	_, err := it.Current(context.Background())
	assert.Error(t, err)
}

func TestProviderName(t *testing.T) {
	assert.Equal(t, "example.test", ProviderName("https://WWW.Example.test/a"))
	assert.Equal(t, Name, ProviderName("::"))
}

func TestMatch(t *testing.T) {
	s := New(Options{})
	assert.True(t, s.Match("https://a.test/x"))
	assert.False(t, s.Match("file:///tmp/x"))
	assert.False(t, s.Match("not a url"))
}
