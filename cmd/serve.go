package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brogergvhs/mangarack/internal/imagecache"
	"github.com/brogergvhs/mangarack/internal/library"
	"github.com/brogergvhs/mangarack/internal/server"
	"github.com/brogergvhs/mangarack/internal/ui"
)

var flagAddr string

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the library over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from config, 127.0.0.1:7783)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	log := ui.NewLogger(cfg.Debug)

	procs, err := imagecache.NewProcessors(cfg.ImageProcessors)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Addr:         cfg.Server.Addr,
		Layout:       library.New(cfg.Output),
		Processors:   procs,
		OpenChapters: cfg.Server.OpenChapters,
		Log:          log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infof("shutting down\n")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
