package downloader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/brogergvhs/mangarack/internal/library"
)

// archiveWriter streams pages into a stored (uncompressed) zip. Entries are
// named by position: 001.jpg, 002.png, ...
type archiveWriter struct {
	f     *os.File
	zw    *zip.Writer
	pages []library.PageMeta
	bytes int64
}

func createArchive(path string) (*archiveWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &archiveWriter{f: f, zw: zip.NewWriter(f)}, nil
}

// add appends one page. progress receives the running byte count of the
// entry being written.
func (a *archiveWriter) add(data []byte, progress func(done int64)) (library.PageMeta, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return library.PageMeta{}, fmt.Errorf("page %d: %w", len(a.pages)+1, err)
	}

	page := library.PageMeta{
		Name:   fmt.Sprintf("%03d.%s", len(a.pages)+1, extension(format)),
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     page.Name,
		Method:   zip.Store,
		Modified: time.Now(),
	})
	if err != nil {
		return library.PageMeta{}, err
	}

	n, err := copyWithProgress(w, bytes.NewReader(data), progress)
	a.bytes += n
	if err != nil {
		return library.PageMeta{}, err
	}

	a.pages = append(a.pages, page)
	return page, nil
}

// finish writes the central directory and flushes the file to disk.
func (a *archiveWriter) finish() error {
	if err := a.zw.Close(); err != nil {
		_ = a.f.Close()
		return err
	}
	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		return err
	}
	return a.f.Close()
}

func (a *archiveWriter) discard() {
	_ = a.f.Close()
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func copyWithProgress(dst io.Writer, src io.Reader, progress func(done int64)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				total += int64(nw)
				if progress != nil {
					progress(total)
				}
			}
			if ew != nil {
				return total, ew
			}
			if nw != nr {
				return total, io.ErrShortWrite
			}
		}
		if er == io.EOF {
			return total, nil
		}
		if er != nil {
			return total, er
		}
	}
}
