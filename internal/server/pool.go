package server

import (
	"container/list"
	"strings"
	"sync"

	"github.com/brogergvhs/mangarack/internal/imagecache"
	"github.com/brogergvhs/mangarack/internal/library"
)

const defaultOpenChapters = 4

// openChapter is an archive being read, with the page window over it.
type openChapter struct {
	path    string
	archive *imagecache.ArchiveFetcher
	cache   *imagecache.Cache
	elem    *list.Element
	refs    int
	evicted bool
}

func (c *openChapter) close() {
	c.cache.Close()
	_ = c.archive.Close()
}

// chapterPool keeps the most recently read chapters open. Chapters dropped
// from the pool are closed once no request is using them.
type chapterPool struct {
	mu    sync.Mutex
	limit int
	lru   *list.List
	byKey map[string]*openChapter

	open func(path string) (*imagecache.ArchiveFetcher, error)
}

func newChapterPool(limit int) *chapterPool {
	if limit <= 0 {
		limit = defaultOpenChapters
	}
	return &chapterPool{
		limit: limit,
		lru:   list.New(),
		byKey: map[string]*openChapter{},
		open:  imagecache.OpenArchive,
	}
}

// hit takes a reference on an already open chapter. Caller holds mu.
func (p *chapterPool) hit(path string) (*openChapter, bool) {
	c, ok := p.byKey[path]
	if !ok {
		return nil, false
	}
	c.refs++
	p.lru.MoveToFront(c.elem)
	return c, true
}

// acquire opens the archive without holding mu so slow disks only stall
// requests for that chapter.
func (p *chapterPool) acquire(path string, processor func() imagecache.Processor) (*openChapter, error) {
	p.mu.Lock()
	c, ok := p.hit(path)
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	a, err := p.open(path)
	if err != nil {
		return nil, err
	}

	names := a.Names()
	if meta, ok, err := library.ReadChapterMeta(trimDeleted(path)); err == nil && ok {
		names = make([]string, 0, len(meta.Pages))
		for _, pg := range meta.Pages {
			names = append(names, pg.Name)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another request opened it meanwhile.
	if c, ok := p.hit(path); ok {
		_ = a.Close()
		return c, nil
	}

	c = &openChapter{
		path:    path,
		archive: a,
		cache:   imagecache.New(names, a, processor()),
		refs:    1,
	}
	c.elem = p.lru.PushFront(c)
	p.byKey[path] = c

	for p.lru.Len() > p.limit {
		oldest := p.lru.Back().Value.(*openChapter)
		p.drop(oldest)
	}
	return c, nil
}

func (p *chapterPool) release(c *openChapter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.refs--
	if c.evicted && c.refs == 0 {
		c.close()
	}
}

// drop removes c from the pool. Caller holds mu.
func (p *chapterPool) drop(c *openChapter) {
	p.lru.Remove(c.elem)
	delete(p.byKey, c.path)
	c.evicted = true
	if c.refs == 0 {
		c.close()
	}
}

func (p *chapterPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.lru.Len() > 0 {
		p.drop(p.lru.Back().Value.(*openChapter))
	}
}

func (p *chapterPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}

func trimDeleted(path string) string {
	return strings.TrimSuffix(path, library.ExtDeleted)
}
