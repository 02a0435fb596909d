package generic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/brogergvhs/mangarack/internal/providers"
)

const Name = "generic"

var (
	ErrNoChapters = errors.New("no chapters found")
	ErrNoPages    = errors.New("no usable page images found")
)

type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

type Options struct {
	// AllowExt limits page images by extension. Empty means common image types.
	AllowExt []string
	// RequestInterval is the minimum spacing between page requests.
	RequestInterval time.Duration
	// ProbeScripts enables guessing XHR image endpoints from inline scripts.
	// The requests go through Client.
	ProbeScripts bool
	Client       *http.Client
	Log          Logger
}

type Scraper struct {
	allowExt []string
	probe    bool
	client   *http.Client
	limiter  *rate.Limiter
	log      Logger
}

func New(opts Options) *Scraper {
	s := &Scraper{
		allowExt: opts.AllowExt,
		probe:    opts.ProbeScripts && opts.Client != nil,
		client:   opts.Client,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		log:      opts.Log,
	}
	if opts.RequestInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.RequestInterval), 1)
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	return s
}

func (s *Scraper) Name() string { return Name }

func (s *Scraper) Match(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ProviderName is the host of raw without a leading "www.".
func ProviderName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Name
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return Name
	}
	return host
}

func (s *Scraper) Series(ctx context.Context, page providers.Page, seriesURL string) (*providers.Series, providers.Source, error) {
	if page.URL() != seriesURL {
		if err := page.Navigate(ctx, seriesURL, ""); err != nil {
			return nil, nil, err
		}
	}

	series := &providers.Series{
		ProviderName: ProviderName(seriesURL),
		URL:          seriesURL,
	}

	err := page.Snapshot(ctx, func(doc *goquery.Document) error {
		series.Title = seriesTitle(doc)
		if series.Title == "" {
			return fmt.Errorf("no title on %s", seriesURL)
		}
		series.Chapters = s.chapters(doc, page.URL(), series.Title)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(series.Chapters) == 0 {
		return nil, nil, fmt.Errorf("%w on %s", ErrNoChapters, seriesURL)
	}

	return series, &source{scraper: s, page: page}, nil
}

func seriesTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// chapters lists chapter links in ascending volume/number order. Links that
// resolve to a chapter already seen are dropped, first occurrence wins.
func (s *Scraper) chapters(doc *goquery.Document, base, title string) []providers.Chapter {
	var out []providers.Chapter
	seenURL := map[string]bool{}
	seenName := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := strings.Join(strings.Fields(a.Text()), " ")

		n, ok := parseChapterLink(strings.ToLower(strings.TrimSpace(href)), text)
		if !ok {
			return
		}

		target := resolveURL(base, href)
		name := providers.ChapterName(title, n.number, n.volume)
		if seenURL[target] || seenName[name] {
			return
		}
		seenURL[target] = true
		seenName[name] = true

		if text == "" {
			text = "Chapter " + strconv.FormatFloat(n.number, 'f', -1, 64)
		}

		out = append(out, providers.Chapter{
			Number: n.number,
			Volume: n.volume,
			Title:  text,
			Name:   name,
			URL:    target,
		})
	})

	slices.SortStableFunc(out, func(a, b providers.Chapter) int {
		av, bv := volumeOf(a), volumeOf(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		case a.Number < b.Number:
			return -1
		case a.Number > b.Number:
			return 1
		}
		return 0
	})

	s.log.Debugf("found %d chapters on %s\n", len(out), base)
	return out
}

func volumeOf(c providers.Chapter) float64 {
	if c.Volume == nil {
		return -1
	}
	return *c.Volume
}

type source struct {
	scraper *Scraper
	page    providers.Page
}

// Iterator opens the chapter in a sibling tab and resolves its page list
// up front. Pages are then loaded one by one in that tab.
func (src *source) Iterator(ctx context.Context, ch providers.Chapter) (providers.ChapterIterator, error) {
	tab, err := src.page.OpenTab(ctx, ch.URL)
	if err != nil {
		return nil, err
	}

	urls, err := src.scraper.pageURLs(ctx, tab)
	if err != nil {
		_ = tab.Close()
		return nil, err
	}
	src.scraper.log.Debugf("%s: %d pages\n", ch.Name, len(urls))

	return &pageIterator{
		tab:        tab,
		chapterURL: tab.URL(),
		urls:       urls,
		pos:        -1,
		cached:     -1,
		limiter:    src.scraper.limiter,
	}, nil
}

func (s *Scraper) pageURLs(ctx context.Context, tab providers.Page) ([]string, error) {
	base := tab.URL()
	c := newPageCollector(s.allowExt)

	var candidates []string
	err := tab.Snapshot(ctx, func(doc *goquery.Document) error {
		body, err := doc.Html()
		if err != nil {
			return err
		}

		n := c.scanDocument(doc.Selection, base)
		s.log.Debugf("dom: +%d candidates\n", n)

		scanEmbeddedState(doc, body, base, c)
		n = c.scanText(body)
		s.log.Debugf("loose urls: +%d candidates\n", n)

		if s.probe {
			candidates = endpointCandidates(doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(candidates) > 0 {
		s.probeEndpoints(ctx, base, candidates, c)
	}

	pages := c.pages()
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoPages, base)
	}
	return pages, nil
}

type pageIterator struct {
	tab        providers.Page
	chapterURL string
	urls       []string
	pos        int
	cached     int
	buf        []byte
	limiter    *rate.Limiter
}

func (it *pageIterator) Move(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if it.pos >= len(it.urls) {
		return false, nil
	}
	it.pos++
	return it.pos < len(it.urls), nil
}

func (it *pageIterator) Current(ctx context.Context) ([]byte, error) {
	if it.pos < 0 || it.pos >= len(it.urls) {
		return nil, errors.New("iterator is not positioned on a page")
	}
	if it.cached == it.pos {
		return it.buf, nil
	}

	if err := it.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := it.urls[it.pos]
	if err := it.tab.Navigate(ctx, target, it.chapterURL); err != nil {
		return nil, err
	}

	b, err := it.tab.Buffer(ctx, it.tab.URL())
	if err != nil {
		return nil, err
	}

	it.buf, it.cached = b, it.pos
	return b, nil
}

func (it *pageIterator) Close() error {
	it.buf = nil
	return it.tab.Close()
}
