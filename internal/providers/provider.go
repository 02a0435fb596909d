// Package providers defines what a content source looks like to the rest of
// mangarack: a scraped Series, its Chapters, and a Source that hands out one
// page iterator per chapter.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoScraper = errors.New("no scraper matches url")

type Chapter struct {
	Number float64
	Volume *float64
	Title  string
	// Name is the archive base name. It is stable for a given chapter.
	Name string
	URL  string
}

type Series struct {
	ProviderName string
	Title        string
	URL          string
	Chapters     []Chapter
}

// ChapterIterator yields the pages of one chapter in reading order.
// Current may be called more than once for the same position.
type ChapterIterator interface {
	Move(ctx context.Context) (bool, error)
	Current(ctx context.Context) ([]byte, error)
	Close() error
}

type Source interface {
	Iterator(ctx context.Context, ch Chapter) (ChapterIterator, error)
}

// Page is a rendered browser tab.
type Page interface {
	URL() string
	Navigate(ctx context.Context, target, previousURL string) error
	Snapshot(ctx context.Context, fn func(doc *goquery.Document) error) error
	Buffer(ctx context.Context, target string) ([]byte, error)
	OpenTab(ctx context.Context, target string) (Page, error)
	Close() error
}

type Scraper interface {
	Name() string
	Match(url string) bool
	// Series reads the series at url using page, which may already show it.
	Series(ctx context.Context, page Page, url string) (*Series, Source, error)
}

type Registry struct {
	mu       sync.RWMutex
	scrapers []Scraper
}

func NewRegistry(scrapers ...Scraper) *Registry {
	return &Registry{scrapers: scrapers}
}

func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers = append(r.scrapers, s)
}

// Lookup returns the first registered scraper that accepts url.
func (r *Registry) Lookup(url string) (Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.scrapers {
		if s.Match(url) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoScraper, url)
}

// Enabled reports whether name is in the allow list. An empty list allows all.
func Enabled(allow []string, name string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if strings.EqualFold(strings.TrimSpace(a), name) {
			return true
		}
	}
	return false
}

const maxSeriesInName = 150

// ChapterName is the canonical archive base name of a chapter:
// "<series> V<vol> #<number>" with the volume part omitted when unknown.
// Whole parts are zero padded so names sort in reading order.
// Long series titles are shortened so the volume and number always survive
// the file name limit.
func ChapterName(series string, number float64, volume *float64) string {
	series = strings.TrimSpace(series)
	if len(series) > maxSeriesInName {
		cut := maxSeriesInName
		for cut > 0 && !utf8.RuneStart(series[cut]) {
			cut--
		}
		series = strings.TrimSpace(series[:cut])
	}

	var b strings.Builder
	b.WriteString(series)
	if volume != nil {
		b.WriteString(" V")
		b.WriteString(padNumber(*volume, 2))
	}
	b.WriteString(" #")
	b.WriteString(padNumber(number, 3))
	return b.String()
}

func padNumber(n float64, width int) string {
	s := strconv.FormatFloat(n, 'f', -1, 64)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) < width {
		whole = strings.Repeat("0", width-len(whole)) + whole
	}
	if hasFrac {
		return whole + "." + frac
	}
	return whole
}
