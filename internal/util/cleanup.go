package util

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/brogergvhs/mangarack/internal/library"
)

type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// HandleInterrupt returns a context canceled by the first SIGINT or SIGTERM,
// letting in-flight chapters discard their temporary archives. A second
// signal sweeps stray temporaries under root and exits immediately. Call
// stop once the command is done.
func HandleInterrupt(parent context.Context, root string, log Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sig:
		case <-done:
			return
		}
		log.Infof("Interrupt received. Finishing current step...\n")
		cancel()

		select {
		case <-sig:
		case <-done:
			return
		}
		log.Infof("Interrupt received again. Cleaning up...\n")
		RemoveTempArchives(root, log)
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sig)
		close(done)
		cancel()
	}
}

// RemoveTempArchives deletes every uncommitted archive under root and
// returns the removed paths.
func RemoveTempArchives(root string, log Logger) []string {
	suffix := library.ExtArchive + library.ExtTemp

	var removed []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}

		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			log.Errorf("Error cleaning up %s: %v\n", path, rerr)
			return nil
		}
		log.Infof("Removed %s\n", path)
		removed = append(removed, path)
		return nil
	})
	if err != nil {
		log.Errorf("Error walking %s: %v\n", root, err)
	}

	return removed
}
