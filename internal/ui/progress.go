package ui

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/brogergvhs/mangarack/internal/providers"
)

// ProgressManager owns the bar container for one command run.
type ProgressManager struct {
	p *mpb.Progress
}

func NewProgressManager(out io.Writer) *ProgressManager {
	p := mpb.New(
		mpb.WithWidth(52),
		mpb.WithOutput(out),
		mpb.WithRefreshRate(120*time.Millisecond),
	)
	return &ProgressManager{p: p}
}

// Close waits for every registered bar to complete or abort.
func (pm *ProgressManager) Close() {
	pm.p.Wait()
}

// Register adds a bar whose total grows with each page, since iterators do
// not announce a page count up front.
func (pm *ProgressManager) Register(prefix string) *ProgressHandle {
	h := &ProgressHandle{prefix: prefix, timer: NewTimer()}

	h.bar = pm.p.New(
		0,
		mpb.BarStyle().Rbound("]"),
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(prefix+"  "),
		),
		mpb.AppendDecorators(
			decor.CurrentNoUnit("%d pages", decor.WCSyncWidth),
			decor.Any(func(_ decor.Statistics) string {
				return " | " + Human(h.bytes.Load())
			}),
			decor.Any(func(_ decor.Statistics) string {
				return " | " + h.timer.String()
			}),
		),
	)
	return h
}

type ProgressHandle struct {
	prefix string
	bar    *mpb.Bar
	timer  *Timer

	bytes atomic.Int64
	final atomic.Bool
}

func (h *ProgressHandle) Update(pages int, bytes int64) {
	if h.final.Load() {
		return
	}

	h.bytes.Store(bytes)
	h.bar.SetTotal(int64(pages)+1, false)
	h.bar.SetCurrent(int64(pages))
}

func (h *ProgressHandle) MarkDone() {
	if h.final.Swap(true) {
		return
	}
	h.bar.SetTotal(-1, true)
}

func (h *ProgressHandle) Abort() {
	if h.final.Swap(true) {
		return
	}
	h.bar.Abort(true)
}

// DownloadObserver renders acquisition events as bars plus one status line
// per chapter, and accumulates run totals.
type DownloadObserver struct {
	pm    *ProgressManager
	out   io.Writer
	stats *Stats

	mu      sync.Mutex
	handles map[string]*ProgressHandle
	bytes   map[string]int64
}

func NewDownloadObserver(pm *ProgressManager, out io.Writer, stats *Stats) *DownloadObserver {
	return &DownloadObserver{
		pm:      pm,
		out:     out,
		stats:   stats,
		handles: make(map[string]*ProgressHandle),
		bytes:   make(map[string]int64),
	}
}

func (o *DownloadObserver) ChapterStarted(ch providers.Chapter) {
	o.printf("Fetching %s\n", ch.Name)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pm != nil {
		o.handles[ch.Name] = o.pm.Register(ch.Name)
	}
	o.bytes[ch.Name] = 0
}

func (o *DownloadObserver) PageAdded(ch providers.Chapter, page int, bytes int64) {
	o.mu.Lock()
	o.bytes[ch.Name] += bytes
	total := o.bytes[ch.Name]
	h := o.handles[ch.Name]
	o.mu.Unlock()

	if h != nil {
		h.Update(page, total)
	}
}

func (o *DownloadObserver) ChapterSkipped(ch providers.Chapter) {
	o.stats.Skipped.Add(1)
}

func (o *DownloadObserver) ChapterFinished(ch providers.Chapter, pages int, bytes int64, elapsed time.Duration) {
	if h := o.take(ch.Name); h != nil {
		h.MarkDone()
	}

	o.stats.Chapters.Add(1)
	o.stats.Pages.Add(int64(pages))
	o.stats.Bytes.Add(bytes)
	o.printf("Finished %s (%s)\n", ch.Name, formatElapsed(elapsed))
}

func (o *DownloadObserver) ChapterFailed(ch providers.Chapter, err error) {
	if h := o.take(ch.Name); h != nil {
		h.Abort()
	}

	o.stats.Failed.Add(1)
	o.printf("Canceled %s: %v\n", ch.Name, err)
}

func (o *DownloadObserver) take(name string) *ProgressHandle {
	o.mu.Lock()
	defer o.mu.Unlock()

	h := o.handles[name]
	delete(o.handles, name)
	delete(o.bytes, name)
	return h
}

func (o *DownloadObserver) printf(format string, args ...any) {
	if o.out != nil {
		_, _ = fmt.Fprintf(o.out, format, args...)
	}
}
