package server

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brogergvhs/mangarack/internal/fsx"
	"github.com/brogergvhs/mangarack/internal/imagecache"
	"github.com/brogergvhs/mangarack/internal/library"
)

type seriesEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) listLibrary(w http.ResponseWriter, _ *http.Request) {
	names, err := s.layout.Providers()
	if err != nil {
		s.fail(w, err)
		return
	}

	out := make(map[string][]seriesEntry, len(names))
	for _, provider := range names {
		idx, err := s.layout.ReadProviderIndex(provider)
		if err != nil {
			s.fail(w, err)
			return
		}

		entries := make([]seriesEntry, 0, len(idx))
		for u, title := range idx {
			entries = append(entries, seriesEntry{Title: title, URL: u})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Title < entries[j].Title })
		out[provider] = entries
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	view, ok, err := s.layout.View(param(r, "provider"), param(r, "series"), s.order)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "series not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getChapter(w http.ResponseWriter, r *http.Request) {
	archive, ok, err := s.archivePath(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "chapter not found")
		return
	}

	meta, ok, err := library.ReadChapterMeta(archive)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "chapter metadata not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	archive, ok, err := s.archivePath(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "chapter not found")
		return
	}

	provider := param(r, "provider")
	ch, err := s.chapters.acquire(archive, func() imagecache.Processor { return s.procs.For(provider) })
	if err != nil {
		s.fail(w, err)
		return
	}
	defer s.chapters.release(ch)

	// A page is addressed by its 1-based number or by its entry name.
	page := param(r, "page")
	number, err := strconv.Atoi(page)
	if err != nil {
		n, ok := ch.cache.Number(page)
		if !ok {
			writeError(w, http.StatusNotFound, "page not found")
			return
		}
		number = n
	}

	img, err := ch.cache.Get(r.Context(), number)
	switch {
	case errors.Is(err, imagecache.ErrPageOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, imagecache.ErrFetchFailed):
		s.log.Errorf("%s page %d: %v\n", archive, number, err)
		writeError(w, http.StatusBadGateway, "page unavailable")
		return
	case err != nil:
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(img.Data)
}

// archivePath finds the archive of the requested chapter. Soft-deleted
// archives stay readable.
func (s *Server) archivePath(r *http.Request) (string, bool, error) {
	final := s.layout.ChapterPath(param(r, "provider"), param(r, "series"), param(r, "chapter"))

	for _, candidate := range []string{final, library.DeletedPath(final)} {
		ok, err := fsx.Exists(candidate)
		if err != nil {
			return "", false, err
		}
		if ok {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Errorf("%v\n", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
