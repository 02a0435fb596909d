package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

var (
	debugTag = color.New(color.FgHiBlack)
	infoTag  = color.New(color.FgBlue)
	warnTag  = color.New(color.FgYellow)
	errorTag = color.New(color.FgRed, color.Bold)
)

// Logger prints level-prefixed lines. Format strings carry their own
// trailing newline.
type Logger struct {
	Debug bool

	mu  sync.Mutex
	out io.Writer
}

func NewLogger(debug bool) *Logger {
	return &Logger{Debug: debug, out: color.Error}
}

// SetOutput redirects log lines, e.g. into a test buffer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.Debug {
		l.print(debugTag, "[DEBUG]", format, args)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.print(infoTag, "[INFO]", format, args)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.print(warnTag, "[WARN]", format, args)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.print(errorTag, "[ERROR]", format, args)
}

func (l *Logger) print(tag *color.Color, prefix, format string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintf(l.out, tag.Sprint(prefix)+" "+format, args...)
}
