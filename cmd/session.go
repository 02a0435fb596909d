package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/brogergvhs/mangarack/internal/browser"
	"github.com/brogergvhs/mangarack/internal/config"
	"github.com/brogergvhs/mangarack/internal/providers"
	"github.com/brogergvhs/mangarack/internal/providers/generic"
	"github.com/brogergvhs/mangarack/internal/ui"
	"github.com/brogergvhs/mangarack/internal/util"
)

// scrapeEnv is the browser plus the scrapers a command drives it with.
type scrapeEnv struct {
	browser  *browser.Browser
	registry *providers.Registry
	log      *ui.Logger
}

func newHTTPClient(cfg *config.Config, log *ui.Logger) (*http.Client, error) {
	return util.NewHTTPClient(util.HTTPClientOptions{
		Timeout:          30 * time.Second,
		UserAgent:        util.PickUserAgent(cfg.Browser.UserAgent),
		Cookie:           cfg.Cookie,
		CookieFile:       cfg.CookieFile,
		CloudflareBypass: cfg.CloudflareBypass,
		Retries:          2,
		DebugLogger:      log,
	})
}

func newScrapeEnv(ctx context.Context, cfg *config.Config, log *ui.Logger) (*scrapeEnv, error) {
	client, err := newHTTPClient(cfg, log)
	if err != nil {
		return nil, err
	}

	b, err := browser.Launch(ctx, browser.Config{
		Bin:        cfg.Browser.Bin,
		ControlURL: cfg.Browser.ControlURL,
		Headless:   cfg.Browser.Headless,
		Options: browser.Options{
			UserAgent:       cfg.Browser.UserAgent,
			ViewportWidth:   cfg.Browser.ViewportWidth,
			ViewportHeight:  cfg.Browser.ViewportHeight,
			NavigateRetries: cfg.Browser.NavigateRetries,
			WaitTimeout:     cfg.Browser.WaitTimeout,
		},
	}, log)
	if err != nil {
		return nil, err
	}

	reg := providers.NewRegistry(generic.New(generic.Options{
		AllowExt:        cfg.AllowExt,
		RequestInterval: cfg.RequestInterval,
		ProbeScripts:    cfg.ProbeScripts,
		Client:          client,
		Log:             log,
	}))

	return &scrapeEnv{browser: b, registry: reg, log: log}, nil
}

// scraped is a series together with the tab it was read from. Close the
// tab once the source is no longer needed.
type scraped struct {
	series *providers.Series
	source providers.Source
	page   providers.Page
}

func (s *scraped) Close() error {
	return s.page.Close()
}

func (e *scrapeEnv) scrape(ctx context.Context, url string) (*scraped, error) {
	scr, err := e.registry.Lookup(url)
	if err != nil {
		return nil, err
	}

	sess, err := e.browser.Open(ctx, url, "")
	if err != nil {
		return nil, err
	}
	page := providers.FromSession(sess)

	series, src, err := scr.Series(ctx, page, url)
	if err != nil {
		return nil, errors.Join(err, page.Close())
	}
	return &scraped{series: series, source: src, page: page}, nil
}

func (e *scrapeEnv) Close() {
	if err := e.browser.Close(); err != nil {
		e.log.Debugf("close browser: %v\n", err)
	}
}
