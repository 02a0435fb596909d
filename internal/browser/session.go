// Package browser drives rendered browser tabs for sources that only serve
// their content to a real page. A Session owns one tab; the RequestWaiter
// inside it turns asynchronous network completions into ordered waits.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

const blankURL = "about:blank"

type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

// Options are applied to every tab the browser opens.
type Options struct {
	UserAgent       string
	ViewportWidth   int
	ViewportHeight  int
	NavigateRetries int
	WaitTimeout     time.Duration
}

// tab is the slice of a browser page a Session needs. The rod-backed
// implementation lives in rod.go.
type tab interface {
	Emulate(userAgent string, width, height int) error
	SetReferer(referer string) error
	Navigate(url string) error
	Reload() error
	URL() (string, error)
	HTML() (string, error)
	Body(requestID string) ([]byte, error)
	Close() error
}

// opener creates tabs whose finished requests are reported to onFinish.
type opener interface {
	newTab(ctx context.Context, opts Options, onFinish func(url string, resp *Response)) (tab, error)
}

type Session struct {
	id     string
	opener opener
	tab    tab
	waiter *RequestWaiter
	opts   Options
	log    Logger
}

func open(ctx context.Context, o opener, opts Options, log Logger, target, previousURL string) (*Session, error) {
	if log == nil {
		log = nopLogger{}
	}

	s := &Session{
		id:     uuid.NewString(),
		opener: o,
		waiter: NewRequestWaiter(),
		opts:   opts,
		log:    log,
	}

	t, err := o.newTab(ctx, opts, s.waiter.Finish)
	if err != nil {
		return nil, err
	}
	s.tab = t

	if err := t.Emulate(opts.UserAgent, opts.ViewportWidth, opts.ViewportHeight); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("emulate: %w", err)
	}

	if err := s.Navigate(ctx, target, previousURL); err != nil {
		_ = t.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) ID() string { return s.id }

// URL returns the tab's current location, or an empty string if the tab
// cannot report it.
func (s *Session) URL() string {
	u, err := s.tab.URL()
	if err != nil {
		return ""
	}
	return u
}

// Navigate loads target and waits for its document response. A missing or
// non-200 response reloads the page, up to NavigateRetries attempts in total.
func (s *Session) Navigate(ctx context.Context, target, previousURL string) error {
	referer := previousURL
	if referer == "" {
		cur, err := s.tab.URL()
		if err != nil {
			return fmt.Errorf("current url: %w", err)
		}
		referer = cur
	}
	if referer != "" && referer != blankURL {
		if err := s.tab.SetReferer(referer); err != nil {
			return fmt.Errorf("set referer: %w", err)
		}
	}

	retries := max(1, s.opts.NavigateRetries)
	var lastErr error

	for attempt := 1; attempt <= retries; attempt++ {
		var err error
		if attempt == 1 {
			s.waiter.Reset()
			err = s.tab.Navigate(target)
		} else {
			err = s.Reload()
		}

		if err == nil {
			err = s.awaitDocument(ctx)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		s.log.Debugf("[%s] navigate %s: attempt %d/%d: %v\n", s.id[:8], target, attempt, retries, err)
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrNavigationFailed, target, retries, lastErr)
}

// Reload re-issues the current navigation with the same URL and referer.
func (s *Session) Reload() error {
	s.waiter.Reset()
	return s.tab.Reload()
}

func (s *Session) awaitDocument(ctx context.Context) error {
	cur, err := s.tab.URL()
	if err != nil {
		return err
	}

	resp, err := s.wait(ctx, cur)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("no response for %s", cur)
	}
	if !resp.OK() {
		return fmt.Errorf("status %d for %s", resp.Status, cur)
	}

	return nil
}

func (s *Session) wait(ctx context.Context, target string) (*Response, error) {
	if s.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WaitTimeout)
		defer cancel()
	}
	return s.waiter.Wait(ctx, target)
}

// Buffer waits for the request to target to finish in the current
// navigation and returns its body.
func (s *Session) Buffer(ctx context.Context, target string) ([]byte, error) {
	resp, err := s.wait(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, target, err)
	}
	if !resp.OK() {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, target, status)
	}

	b, err := s.tab.Body(resp.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: body: %w", ErrFetchFailed, target, err)
	}

	return b, nil
}

// Snapshot hands fn a parsed copy of the rendered document. The copy is
// detached from the tab: querying it runs no scripts and issues no requests.
func (s *Session) Snapshot(ctx context.Context, fn func(doc *goquery.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	html, err := s.tab.HTML()
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if cur, err := s.tab.URL(); err == nil {
		doc.Url, _ = url.Parse(cur)
	}

	return fn(doc)
}

// OpenTab opens target in a sibling tab of the same browser, using this
// tab's location as referer.
func (s *Session) OpenTab(ctx context.Context, target string) (*Session, error) {
	return open(ctx, s.opener, s.opts, s.log, target, s.URL())
}

func (s *Session) Close() error {
	s.waiter.Reset()
	return s.tab.Close()
}
