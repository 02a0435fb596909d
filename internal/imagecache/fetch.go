package imagecache

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// HTTPFetcher loads pages from GET <Base>/<escaped name>.
type HTTPFetcher struct {
	Client *http.Client
	Base   string
}

func (f HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	target := strings.TrimRight(f.Base, "/") + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrFetchFailed, target, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, target, err)
	}
	return b, nil
}

// ArchiveFetcher reads pages straight from a committed CBZ.
type ArchiveFetcher struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File
}

func OpenArchive(path string) (*ArchiveFetcher, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files[f.Name] = f
		}
	}
	return &ArchiveFetcher{zr: zr, files: files}, nil
}

// Names lists the entries in page order.
func (a *ArchiveFetcher) Names() []string {
	out := make([]string, 0, len(a.files))
	for name := range a.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (a *ArchiveFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: no entry %q", ErrFetchFailed, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, name, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, name, err)
	}
	return b, nil
}

func (a *ArchiveFetcher) Close() error {
	return a.zr.Close()
}
