package ui

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

type Stats struct {
	Chapters atomic.Int64
	Pages    atomic.Int64
	Bytes    atomic.Int64
	Skipped  atomic.Int64
	Failed   atomic.Int64
}

// Summary writes the end-of-run block printed by the download command.
func (s *Stats) Summary(w io.Writer, elapsed time.Duration) {
	_, _ = fmt.Fprintln(w, "Download Summary:")
	_, _ = fmt.Fprintf(w, "Chapters: %d (skipped %d, failed %d)\n", s.Chapters.Load(), s.Skipped.Load(), s.Failed.Load())
	_, _ = fmt.Fprintf(w, "Pages:    %d\n", s.Pages.Load())
	_, _ = fmt.Fprintf(w, "Data:     %s\n", Human(s.Bytes.Load()))
	_, _ = fmt.Fprintf(w, "Time:     %s\n", formatElapsed(elapsed))
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) String() string {
	return formatElapsed(t.Elapsed())
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// Human renders a byte count with binary units.
func Human(n int64) string {
	const unit = 1 << 10
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}
