package library

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/brogergvhs/mangarack/internal/fsx"
	"github.com/brogergvhs/mangarack/internal/providers"
)

// ErrSeriesPropertyChanged means a tracked series came back from its source
// with a different title or URL. Its archives cannot be trusted to belong to
// the same directory any more.
var ErrSeriesPropertyChanged = errors.New("series property changed")

type PageMeta struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ChapterMeta is the sidecar written next to every committed archive.
type ChapterMeta struct {
	Number float64    `json:"number"`
	Volume *float64   `json:"volume,omitempty"`
	Title  string     `json:"title"`
	Pages  []PageMeta `json:"pages"`
}

type SeriesChapter struct {
	Number float64  `json:"number"`
	Volume *float64 `json:"volume,omitempty"`
	Title  string   `json:"title"`
	Name   string   `json:"name"`
}

type SeriesMeta struct {
	ProviderName string          `json:"providerName"`
	Title        string          `json:"title"`
	URL          string          `json:"url"`
	Chapters     []SeriesChapter `json:"chapters"`
}

// ProviderIndex maps the URL of every tracked series to its title.
type ProviderIndex map[string]string

func (l Layout) ReadProviderIndex(provider string) (ProviderIndex, error) {
	idx := ProviderIndex{}
	if _, err := fsx.ReadJSON(l.ProviderIndexPath(provider), &idx); err != nil {
		return nil, err
	}
	if idx == nil {
		idx = ProviderIndex{}
	}
	return idx, nil
}

func (l Layout) WriteProviderIndex(provider string, idx ProviderIndex) error {
	return fsx.WriteJSON(l.ProviderIndexPath(provider), idx)
}

// Track records s in its provider index. It reports false when the URL was
// already tracked, in which case nothing is written.
func (l Layout) Track(s providers.Series) (bool, error) {
	idx, err := l.ReadProviderIndex(s.ProviderName)
	if err != nil {
		return false, err
	}
	if _, ok := idx[s.URL]; ok {
		return false, nil
	}

	if err := l.WriteSeriesMeta(s); err != nil {
		return false, err
	}

	idx[s.URL] = s.Title
	return true, l.WriteProviderIndex(s.ProviderName, idx)
}

// Providers lists the provider names that have an index file under the root.
func (l Layout) Providers() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ExtJSON) || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ExtJSON))
	}

	sort.Strings(out)
	return out, nil
}

func NewSeriesMeta(s providers.Series) SeriesMeta {
	m := SeriesMeta{
		ProviderName: s.ProviderName,
		Title:        s.Title,
		URL:          s.URL,
		Chapters:     make([]SeriesChapter, 0, len(s.Chapters)),
	}
	for _, ch := range s.Chapters {
		m.Chapters = append(m.Chapters, SeriesChapter{
			Number: ch.Number,
			Volume: ch.Volume,
			Title:  ch.Title,
			Name:   ch.Name,
		})
	}
	return m
}

func (l Layout) WriteSeriesMeta(s providers.Series) error {
	return fsx.WriteJSON(l.SeriesMetaPath(s.ProviderName, s.Title), NewSeriesMeta(s))
}

func (l Layout) ReadSeriesMeta(provider, title string) (*SeriesMeta, bool, error) {
	var m SeriesMeta
	ok, err := fsx.ReadJSON(l.SeriesMetaPath(provider, title), &m)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &m, true, nil
}

// ReadChapterMeta reads the sidecar of the archive at path.
func ReadChapterMeta(archive string) (*ChapterMeta, bool, error) {
	var m ChapterMeta
	ok, err := fsx.ReadJSON(SidecarPath(archive), &m)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &m, true, nil
}

// CheckSeries compares a freshly scraped series with what the provider index
// recorded for url.
func CheckSeries(url, recordedTitle string, s providers.Series) error {
	if s.Title != recordedTitle {
		return fmt.Errorf("%w: title of %s is %q, recorded %q", ErrSeriesPropertyChanged, url, s.Title, recordedTitle)
	}
	if s.URL != url {
		return fmt.Errorf("%w: url of %s is now %s", ErrSeriesPropertyChanged, url, s.URL)
	}
	return nil
}
