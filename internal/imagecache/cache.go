// Package imagecache holds the pages around a reader's position. Reading
// page i keeps at most pages i-1, i and i+1 in memory, fetches each page
// once no matter how many readers wait for it, and warms the neighbours in
// the background.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrFetchFailed    = errors.New("image fetch failed")
	ErrPageOutOfRange = errors.New("page out of range")
)

type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// call is one fetch of one page. done is closed once img or err is set.
type call struct {
	done chan struct{}
	img  *Image
	err  error
}

func (c *call) resolved() bool {
	select {
	case <-c.done:
		return c.err == nil
	default:
		return false
	}
}

// Cache is a window over the pages of one chapter. A nil slot is empty; a
// slot holding an unfinished call is pending; a finished one is resolved.
type Cache struct {
	names []string
	fetch Fetcher
	proc  Processor

	mu      sync.Mutex
	slots   []*call
	current int

	ctx    context.Context
	cancel context.CancelFunc
}

func New(names []string, f Fetcher, p Processor) *Cache {
	if p == nil {
		p = Sniff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		names:   names,
		fetch:   f,
		proc:    p,
		slots:   make([]*call, len(names)),
		current: -1,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Cache) Len() int { return len(c.names) }

// Number returns the 1-based page number of the entry called name.
func (c *Cache) Number(name string) (int, bool) {
	for i, n := range c.names {
		if n == name {
			return i + 1, true
		}
	}
	return 0, false
}

// Get returns page number (1-based).
func (c *Cache) Get(ctx context.Context, number int) (*Image, error) {
	idx := number - 1
	if idx < 0 || idx >= len(c.names) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, number, len(c.names))
	}

	c.mu.Lock()
	c.current = idx
	c.evictOutside(idx)

	cl := c.slots[idx]
	fresh := cl == nil
	switch {
	case fresh:
		cl = c.start(idx)
	case cl.resolved():
		c.prefetch(idx)
		c.mu.Unlock()
		return cl.img, nil
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if cl.err != nil {
		return nil, cl.err
	}

	if fresh {
		c.mu.Lock()
		if c.current == idx {
			c.prefetch(idx)
		}
		c.mu.Unlock()
	}

	return cl.img, nil
}

// Close stops fetches still in flight.
func (c *Cache) Close() {
	c.cancel()
}

// evictOutside empties every slot farther than one page from idx. Fetches
// still running for those slots finish into nothing. Caller holds mu.
func (c *Cache) evictOutside(idx int) {
	for i := range c.slots {
		if i < idx-1 || i > idx+1 {
			c.slots[i] = nil
		}
	}
}

// prefetch starts fetches for the empty neighbours of idx. Caller holds mu.
func (c *Cache) prefetch(idx int) {
	for _, n := range [...]int{idx - 1, idx + 1} {
		if n >= 0 && n < len(c.slots) && c.slots[n] == nil {
			c.start(n)
		}
	}
}

// start stores a pending call in slot idx and runs it. Caller holds mu.
func (c *Cache) start(idx int) *call {
	cl := &call{done: make(chan struct{})}
	c.slots[idx] = cl

	go func() {
		img, err := c.load(idx)

		c.mu.Lock()
		cl.img, cl.err = img, err
		if err != nil && c.slots[idx] == cl {
			c.slots[idx] = nil
		}
		c.mu.Unlock()

		close(cl.done)
	}()

	return cl
}

func (c *Cache) load(idx int) (*Image, error) {
	name := c.names[idx]

	data, err := c.fetch.Fetch(c.ctx, name)
	if err != nil {
		if errors.Is(err, ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, name, err)
	}

	img, err := c.proc.Process(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, name, err)
	}
	return img, nil
}

// resident lists the indices of non-empty slots.
func (c *Cache) resident() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []int
	for i, s := range c.slots {
		if s != nil {
			out = append(out, i)
		}
	}
	return out
}
