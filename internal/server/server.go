// Package server exposes the library over HTTP: tracked series, the
// reconciliation view of each series, chapter sidecars and page images.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brogergvhs/mangarack/internal/imagecache"
	"github.com/brogergvhs/mangarack/internal/library"
)

const requestTimeout = 60 * time.Second

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any) {}
func (nopLogger) Errorf(string, ...any) {}

type Options struct {
	Addr         string
	Layout       library.Layout
	Order        library.Order
	Processors   *imagecache.Processors
	OpenChapters int
	Log          Logger
}

type Server struct {
	layout   library.Layout
	order    library.Order
	procs    *imagecache.Processors
	chapters *chapterPool
	log      Logger

	router     chi.Router
	httpServer *http.Server
}

func New(opts Options) *Server {
	s := &Server{
		layout:   opts.Layout,
		order:    opts.Order,
		procs:    opts.Processors,
		chapters: newChapterPool(opts.OpenChapters),
		log:      opts.Log,
	}
	if s.order == nil {
		s.order = library.ByVolumeAndNumber
	}
	if s.log == nil {
		s.log = nopLogger{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(chimw.CleanPath)

	r.Route("/api/library", func(r chi.Router) {
		r.Get("/", s.listLibrary)
		r.Get("/{provider}/{series}", s.getSeries)
		r.Get("/{provider}/{series}/{chapter}", s.getChapter)
		r.Get("/{provider}/{series}/{chapter}/{page}", s.getPage)
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	s.log.Infof("serving library %s on %s\n", s.layout.Root, s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// every open chapter.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.chapters.closeAll()
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugf("[%s] %s %s %d %s\n", chimw.GetReqID(r.Context()), r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}
