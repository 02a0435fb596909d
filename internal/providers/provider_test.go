package providers

import (
	"context"
	"strings"
)

type stubScraper struct {
	name   string
	prefix string
}

func (s stubScraper) Name() string { return s.name }

func (s stubScraper) Match(url string) bool { return strings.HasPrefix(url, s.prefix) }

func (s stubScraper) Series(context.Context, Page, string) (*Series, Source, error) {
	return nil, nil, nil
}
