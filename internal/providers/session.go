package providers

import (
	"context"

	"github.com/brogergvhs/mangarack/internal/browser"
)

type sessionPage struct {
	*browser.Session
}

// FromSession adapts a browser session to Page.
func FromSession(s *browser.Session) Page {
	return sessionPage{s}
}

func (p sessionPage) OpenTab(ctx context.Context, target string) (Page, error) {
	s, err := p.Session.OpenTab(ctx, target)
	if err != nil {
		return nil, err
	}
	return sessionPage{s}, nil
}
