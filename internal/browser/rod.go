package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const defaultWaitTimeout = 60 * time.Second

// Config selects the Chrome instance to drive. With ControlURL empty a local
// browser is launched (Bin, or the launcher's managed download).
type Config struct {
	Bin        string
	ControlURL string
	Headless   bool
	Options
}

// Browser is one Chrome process shared by every tab it opens.
type Browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
	opts     Options
	log      Logger
}

func Launch(ctx context.Context, cfg Config, log Logger) (*Browser, error) {
	if log == nil {
		log = nopLogger{}
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}

	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	log.Debugf("Browser connected (%s)\n", controlURL)

	return &Browser{rod: b, launcher: l, opts: cfg.Options, log: log}, nil
}

// Open creates a tab and navigates it to target.
func (b *Browser) Open(ctx context.Context, target, previousURL string) (*Session, error) {
	return open(ctx, b, b.opts, b.log, target, previousURL)
}

func (b *Browser) Close() error {
	err := b.rod.Close()
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

func (b *Browser) newTab(ctx context.Context, opts Options, onFinish func(string, *Response)) (tab, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{URL: blankURL})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	evCtx, stop := context.WithCancel(ctx)
	t := &rodTab{
		page:     page,
		timeout:  opts.WaitTimeout,
		onFinish: onFinish,
		urls:     make(map[proto.NetworkRequestID]string),
		statuses: make(map[proto.NetworkRequestID]int),
		stop:     stop,
	}

	// Callbacks run on a single goroutine, in CDP event order.
	go page.Context(evCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			t.urls[e.RequestID] = e.Request.URL
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil {
				t.statuses[e.RequestID] = e.Response.Status
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			t.finish(e.RequestID, true)
		},
		func(e *proto.NetworkLoadingFailed) {
			t.finish(e.RequestID, false)
		},
	)()

	return t, nil
}

type rodTab struct {
	page     *rod.Page
	timeout  time.Duration
	onFinish func(string, *Response)

	urls     map[proto.NetworkRequestID]string
	statuses map[proto.NetworkRequestID]int

	stopOnce sync.Once
	stop     context.CancelFunc
}

func (t *rodTab) finish(id proto.NetworkRequestID, loaded bool) {
	u, ok := t.urls[id]
	if !ok {
		return
	}

	status := 0
	if loaded {
		status = t.statuses[id]
	}

	delete(t.urls, id)
	delete(t.statuses, id)

	t.onFinish(u, &Response{URL: u, Status: status, RequestID: string(id)})
}

func (t *rodTab) Emulate(userAgent string, width, height int) error {
	if userAgent != "" {
		if err := t.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			return err
		}
	}
	if width > 0 && height > 0 {
		return t.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             width,
			Height:            height,
			DeviceScaleFactor: 1,
		})
	}
	return nil
}

func (t *rodTab) SetReferer(referer string) error {
	_, err := t.page.SetExtraHeaders([]string{"Referer", referer})
	return err
}

func (t *rodTab) Navigate(target string) error {
	return awaitLoad(t.page.Timeout(t.timeout), func() error { return t.page.Navigate(target) })
}

func (t *rodTab) Reload() error {
	return awaitLoad(t.page.Timeout(t.timeout), func() error { return (proto.PageReload{}).Call(t.page) })
}

// timedPage is a page carrying a deadline from rod.Page.Timeout.
type timedPage interface {
	WaitNavigation(name proto.PageLifecycleEventName) func()
	CancelTimeout() *rod.Page
}

// awaitLoad runs action and waits for DOMContentLoaded on the timed page,
// releasing its deadline on every path.
func awaitLoad(timed timedPage, action func() error) error {
	defer timed.CancelTimeout()

	wait := timed.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := action(); err != nil {
		return err
	}
	wait()
	return nil
}

func (t *rodTab) URL() (string, error) {
	info, err := t.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (t *rodTab) HTML() (string, error) {
	return t.page.HTML()
}

func (t *rodTab) Body(requestID string) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: proto.NetworkRequestID(requestID)}.Call(t.page)
	if err != nil {
		return nil, err
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}

func (t *rodTab) Close() error {
	t.stopOnce.Do(t.stop)
	return t.page.Close()
}
