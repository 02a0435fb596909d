// Package library owns the on-disk layout of acquired series:
//
//	<root>/<provider>.json                    tracked series {url: title}
//	<root>/<provider>/<title>.json            series metadata
//	<root>/<provider>/<title>/<chapter>.cbz   committed archive
//	<root>/<provider>/<title>/<chapter>.cbz.json  page sidecar
//	<root>/<provider>/<title>/<chapter>.cbz.tmp   archive being written
//	<root>/<provider>/<title>/<chapter>.cbz.del   soft-deleted orphan
package library

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	ExtArchive = ".cbz"
	ExtTemp    = ".tmp"
	ExtJSON    = ".json"
	ExtDeleted = ".del"
)

// maxNameBytes leaves room under the 255 byte NAME_MAX for the ".cbz.json"
// style suffixes and the hidden temp names of fsx.WriteFileAtomic.
const maxNameBytes = 200

type Layout struct {
	Root string
}

func New(root string) Layout {
	if root == "" {
		root = "."
	}
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) ProviderIndexPath(provider string) string {
	return filepath.Join(l.Root, SafeName(provider)+ExtJSON)
}

func (l Layout) ProviderDir(provider string) string {
	return filepath.Join(l.Root, SafeName(provider))
}

func (l Layout) SeriesDir(provider, title string) string {
	return filepath.Join(l.ProviderDir(provider), SafeName(title))
}

func (l Layout) SeriesMetaPath(provider, title string) string {
	return filepath.Join(l.ProviderDir(provider), SafeName(title)+ExtJSON)
}

func (l Layout) ChapterPath(provider, title, name string) string {
	return filepath.Join(l.SeriesDir(provider, title), SafeName(name)+ExtArchive)
}

// TempPath is where an archive is written before it is committed.
func TempPath(archive string) string { return archive + ExtTemp }

// SidecarPath is the metadata file that accompanies a committed archive.
func SidecarPath(archive string) string { return archive + ExtJSON }

// DeletedPath is the soft-delete name of an orphaned archive.
func DeletedPath(archive string) string { return archive + ExtDeleted }

// SafeName turns a title into a single path element: NFC-normalized,
// without separators, reserved punctuation or control characters, and
// without the trailing dots and spaces some filesystems reject.
func SafeName(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
		case strings.ContainsRune(`/\?<>:*|"`, r):
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimRight(b.String(), ". ")
	if out == "" || out == "." || out == ".." {
		return "_"
	}

	if len(out) > maxNameBytes {
		// A shortened name carries a hash of the full one so names that
		// only differ past the cut stay distinct.
		h := fnv.New32a()
		_, _ = h.Write([]byte(out))
		tail := fmt.Sprintf("~%08x", h.Sum32())

		cut := maxNameBytes - len(tail)
		for cut > 0 && !utf8Start(out[cut]) {
			cut--
		}
		out = out[:cut] + tail
	}

	return out
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
