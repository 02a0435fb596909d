package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTab plays back scripted document statuses. Each navigation or reload
// consumes the next status; finish events are delivered from a goroutine so
// they race the waiter the way real CDP events do.
type fakeTab struct {
	mu sync.Mutex

	onFinish func(string, *Response)
	statuses []int
	bodies   map[string][]byte
	html     string
	redirect map[string]string

	url       string
	referers  []string
	navigates int
	reloads   int
	emulated  []any
	closed    bool
}

func (f *fakeTab) Emulate(ua string, w, h int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emulated = []any{ua, w, h}
	return nil
}

func (f *fakeTab) SetReferer(referer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.referers = append(f.referers, referer)
	return nil
}

func (f *fakeTab) Navigate(target string) error {
	f.mu.Lock()
	f.navigates++
	if to, ok := f.redirect[target]; ok {
		target = to
	}
	f.url = target
	f.mu.Unlock()
	f.deliver()
	return nil
}

func (f *fakeTab) Reload() error {
	f.mu.Lock()
	f.reloads++
	f.mu.Unlock()
	f.deliver()
	return nil
}

func (f *fakeTab) deliver() {
	f.mu.Lock()
	attempt := f.navigates + f.reloads - 1
	u := f.url
	status := -1
	if attempt < len(f.statuses) {
		status = f.statuses[attempt]
	}
	f.mu.Unlock()

	if status < 0 {
		return
	}
	go func() {
		time.Sleep(time.Millisecond)
		f.onFinish(u, &Response{URL: u, Status: status, RequestID: u})
		for name := range f.bodies {
			f.onFinish(name, &Response{URL: name, Status: 200, RequestID: name})
		}
	}()
}

func (f *fakeTab) URL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.url == "" {
		return blankURL, nil
	}
	return f.url, nil
}

func (f *fakeTab) HTML() (string, error) { return f.html, nil }

func (f *fakeTab) Body(id string) ([]byte, error) {
	b, ok := f.bodies[id]
	if !ok {
		return nil, errors.New("no body")
	}
	return b, nil
}

func (f *fakeTab) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeOpener struct {
	tabs    []*fakeTab
	created []*fakeTab
}

func (o *fakeOpener) newTab(_ context.Context, _ Options, onFinish func(string, *Response)) (tab, error) {
	t := o.tabs[len(o.created)]
	t.onFinish = onFinish
	o.created = append(o.created, t)
	return t, nil
}

func testOptions(retries int) Options {
	return Options{
		UserAgent:       "test-agent",
		ViewportWidth:   1280,
		ViewportHeight:  900,
		NavigateRetries: retries,
		WaitTimeout:     100 * time.Millisecond,
	}
}

func TestOpen_FirstAttemptSucceeds(t *testing.T) {
	ft := &fakeTab{statuses: []int{200}}
	s, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(3), nil, "https://host.test/series/1", "")
	require.NoError(t, err)

	assert.Equal(t, 1, ft.navigates)
	assert.Equal(t, 0, ft.reloads)
	assert.Equal(t, []any{"test-agent", 1280, 900}, ft.emulated)
	assert.Empty(t, ft.referers, "about:blank must not be sent as referer")
	assert.Equal(t, "https://host.test/series/1", s.URL())
	assert.NotEmpty(t, s.ID())
}

func TestNavigate_SucceedsOnRetryAndStops(t *testing.T) {
	ft := &fakeTab{statuses: []int{503, 0, 200, 200}}
	_, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(5), nil, "https://host.test/c/1", "https://host.test/series/1")
	require.NoError(t, err)

	assert.Equal(t, 1, ft.navigates)
	assert.Equal(t, 2, ft.reloads, "success on attempt 3 must not reload again")
	assert.Equal(t, []string{"https://host.test/series/1"}, ft.referers)
}

func TestNavigate_ExhaustsRetries(t *testing.T) {
	ft := &fakeTab{statuses: []int{500, 500, 500, 500, 500}}
	_, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(3), nil, "https://host.test/c/1", "")

	require.ErrorIs(t, err, ErrNavigationFailed)
	assert.Equal(t, 3, ft.navigates+ft.reloads)
	assert.True(t, ft.closed)
}

func TestNavigate_MissingResponseTimesOutAndRetries(t *testing.T) {
	// -1 delivers nothing: the first wait times out, the reload succeeds.
	ft := &fakeTab{statuses: []int{-1, 200}}
	_, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(2), nil, "https://host.test/c/1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, ft.reloads)
}

func TestNavigate_FollowsRedirectedURL(t *testing.T) {
	ft := &fakeTab{
		statuses: []int{200},
		redirect: map[string]string{"https://host.test/old": "https://host.test/new"},
	}
	s, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(1), nil, "https://host.test/old", "")
	require.NoError(t, err)
	assert.Equal(t, "https://host.test/new", s.URL())
}

func TestNavigate_UsesCurrentLocationAsReferer(t *testing.T) {
	ft := &fakeTab{statuses: []int{200, 200}}
	s, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(1), nil, "https://host.test/a", "")
	require.NoError(t, err)

	require.NoError(t, s.Navigate(context.Background(), "https://host.test/b", ""))
	assert.Equal(t, []string{"https://host.test/a"}, ft.referers)
}

func TestNavigate_CanceledContext(t *testing.T) {
	ft := &fakeTab{statuses: []int{-1, -1, -1}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := open(ctx, &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(3), nil, "https://host.test/a", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ft.navigates+ft.reloads)
}

func TestBuffer(t *testing.T) {
	ft := &fakeTab{
		statuses: []int{200},
		bodies:   map[string][]byte{"https://img.test/001.png": []byte("png-bytes")},
	}
	s, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(1), nil, "https://host.test/c/1", "")
	require.NoError(t, err)

	b, err := s.Buffer(context.Background(), "https://img.test/001.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))

	_, err = s.Buffer(context.Background(), "https://img.test/never.png")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuffer_NonSuccessStatus(t *testing.T) {
	ft := &fakeTab{statuses: []int{200}}
	s, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(1), nil, "https://host.test/c/1", "")
	require.NoError(t, err)

	s.waiter.Finish("https://img.test/404.png", &Response{Status: 404, RequestID: "x"})
	_, err = s.Buffer(context.Background(), "https://img.test/404.png")
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestSnapshot(t *testing.T) {
	ft := &fakeTab{
		statuses: []int{200},
		html:     `<html><body><h1>Series</h1><script>document.body.innerHTML=""</script><a href="/c/2">Ch. 2</a></body></html>`,
	}
	s, err := open(context.Background(), &fakeOpener{tabs: []*fakeTab{ft}}, testOptions(1), nil, "https://host.test/series", "")
	require.NoError(t, err)

	var title, href string
	err = s.Snapshot(context.Background(), func(doc *goquery.Document) error {
		title = doc.Find("h1").Text()
		href, _ = doc.Find("a").Attr("href")
		require.NotNil(t, doc.Url)
		assert.Equal(t, "host.test", doc.Url.Host)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Series", title)
	assert.Equal(t, "/c/2", href)
}

func TestOpenTab_UsesCurrentURLAsReferer(t *testing.T) {
	first := &fakeTab{statuses: []int{200}}
	second := &fakeTab{statuses: []int{200}}
	o := &fakeOpener{tabs: []*fakeTab{first, second}}

	s, err := open(context.Background(), o, testOptions(1), nil, "https://host.test/series", "")
	require.NoError(t, err)

	child, err := s.OpenTab(context.Background(), "https://host.test/c/1")
	require.NoError(t, err)
	defer child.Close()

	assert.Equal(t, []string{"https://host.test/series"}, second.referers)
	assert.NotEqual(t, s.ID(), child.ID())
	assert.Len(t, o.created, 2)
}
