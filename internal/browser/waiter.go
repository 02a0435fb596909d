package browser

import (
	"context"
	"sync"
)

// Response is what the tab recorded for a finished request. Status is zero
// when the request failed before a response arrived.
type Response struct {
	URL       string
	Status    int
	RequestID string
}

// OK reports whether the response exists and carries HTTP 200.
func (r *Response) OK() bool {
	return r != nil && r.Status == 200
}

type entryState int

const (
	entryPending entryState = iota
	entryFinished
)

type waitEntry struct {
	state entryState
	done  chan struct{}
	resp  *Response
	err   error
}

// RequestWaiter pairs finished requests with the consumers waiting for them,
// keyed by URL. A finish event may arrive before or after a consumer starts
// waiting; both orders resolve the consumer exactly once. Reset starts a new
// epoch and releases consumers still parked on the old one.
type RequestWaiter struct {
	mu      sync.Mutex
	entries map[string]*waitEntry
}

func NewRequestWaiter() *RequestWaiter {
	return &RequestWaiter{entries: make(map[string]*waitEntry)}
}

// Finish records the completion of url and releases everyone parked on it.
// A repeated finish for the same url within one epoch replaces the stored
// response for later waiters.
func (w *RequestWaiter) Finish(url string, resp *Response) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[url]
	if !ok {
		done := make(chan struct{})
		close(done)
		w.entries[url] = &waitEntry{state: entryFinished, done: done, resp: resp}
		return
	}

	e.resp = resp
	if e.state == entryPending {
		e.state = entryFinished
		close(e.done)
	}
}

// Wait blocks until url finishes in the current epoch, the epoch is reset, or
// ctx is done. Concurrent waiters on one url share a single pending entry.
func (w *RequestWaiter) Wait(ctx context.Context, url string) (*Response, error) {
	w.mu.Lock()
	e, ok := w.entries[url]
	if !ok {
		e = &waitEntry{state: entryPending, done: make(chan struct{})}
		w.entries[url] = e
	}
	w.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return e.resp, e.err
}

// Reset clears every record. Consumers parked on a pending entry get
// ErrStaleRequest instead of a response from the next navigation.
func (w *RequestWaiter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.entries {
		if e.state == entryPending {
			e.state = entryFinished
			e.err = ErrStaleRequest
			close(e.done)
		}
	}
	w.entries = make(map[string]*waitEntry)
}

// Len returns the number of URLs recorded in the current epoch.
func (w *RequestWaiter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
