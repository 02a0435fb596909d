package library

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type ChapterView struct {
	Number     float64  `json:"number"`
	Volume     *float64 `json:"volume,omitempty"`
	Title      string   `json:"title"`
	Name       string   `json:"name"`
	Downloaded bool     `json:"downloaded"`
	Exists     bool     `json:"exists"`
}

type SeriesView struct {
	ProviderName string        `json:"providerName"`
	Title        string        `json:"title"`
	URL          string        `json:"url"`
	Chapters     []ChapterView `json:"chapters"`
}

// Order compares two chapters the way slices.SortFunc expects.
type Order func(a, b ChapterView) int

// ByVolumeAndNumber puts the latest chapter first: descending volume, then
// descending number. Chapters without a volume come after those with one.
func ByVolumeAndNumber(a, b ChapterView) int {
	switch {
	case a.Volume != nil && b.Volume == nil:
		return -1
	case a.Volume == nil && b.Volume != nil:
		return 1
	case a.Volume != nil && *a.Volume != *b.Volume:
		return descending(*a.Volume, *b.Volume)
	}
	return descending(a.Number, b.Number)
}

func descending(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// View joins the series metadata with what is actually on disk. The second
// return is false when the series has no metadata file.
func (l Layout) View(provider, title string, order Order) (*SeriesView, bool, error) {
	meta, ok, err := l.ReadSeriesMeta(provider, title)
	if err != nil || !ok {
		return nil, ok, err
	}
	if order == nil {
		order = ByVolumeAndNumber
	}

	dir := l.SeriesDir(provider, title)
	files, err := listFiles(dir)
	if err != nil {
		return nil, false, err
	}

	view := &SeriesView{
		ProviderName: meta.ProviderName,
		Title:        meta.Title,
		URL:          meta.URL,
		Chapters:     make([]ChapterView, 0, len(meta.Chapters)),
	}

	known := make(map[string]bool, len(meta.Chapters))
	for _, ch := range meta.Chapters {
		archive := SafeName(ch.Name) + ExtArchive
		known[archive] = true
		view.Chapters = append(view.Chapters, ChapterView{
			Number:     ch.Number,
			Volume:     ch.Volume,
			Title:      ch.Title,
			Name:       ch.Name,
			Downloaded: files[archive],
			Exists:     true,
		})
	}

	for name := range files {
		archive, ok := orphanArchive(name)
		if !ok || known[archive] {
			continue
		}

		// An archive whose sidecar is missing was never committed.
		cm, ok, err := ReadChapterMeta(filepath.Join(dir, archive))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}

		known[archive] = true
		view.Chapters = append(view.Chapters, ChapterView{
			Number:     cm.Number,
			Volume:     cm.Volume,
			Title:      cm.Title,
			Name:       strings.TrimSuffix(archive, ExtArchive),
			Downloaded: true,
		})
	}

	sortViews(view.Chapters, order)
	return view, true, nil
}

func sortViews(chs []ChapterView, order Order) {
	slices.SortStableFunc(chs, order)
}

// orphanArchive maps a directory entry that may hold an archive not listed in
// the series metadata to its archive file name.
func orphanArchive(name string) (string, bool) {
	switch {
	case strings.HasSuffix(name, ExtArchive):
		return name, true
	case strings.HasSuffix(name, ExtArchive+ExtDeleted):
		return strings.TrimSuffix(name, ExtDeleted), true
	}
	return "", false
}

func listFiles(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, err
	}

	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			out[e.Name()] = true
		}
	}
	return out, nil
}
