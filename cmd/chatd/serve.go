package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatcore/internal/config"
	"chatcore/internal/download"
	"chatcore/internal/httpapi"
	"chatcore/internal/registry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *globalOpts) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat session over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (defaults CHATD_ADDR)")
	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	log := newLogger(cfg.LogLevel, false, os.Stderr)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	if err := a.restore(ctx); err != nil {
		// The server still starts; /readyz stays 503 until a switch succeeds.
		log.Warn().Err(err).Msg("startup model")
	}

	dl := download.New(a.reg.Dir(),
		download.WithBaseContext(ctx),
		download.WithLogger(log.With().Str("component", "download").Logger()),
		download.OnComplete(func(string) {
			if _, err := a.mgr.RefreshModels(); err != nil {
				log.Warn().Err(err).Msg("refresh models")
			}
		}),
	)
	w, err := registry.NewWatcher(a.reg, log.With().Str("component", "registry").Logger(), a.mgr.SetModels)
	if err != nil {
		log.Warn().Err(err).Msg("model directory watch disabled")
	} else {
		defer w.Close()
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(a.mgr, dl),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", a.reg.Dir()).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	dl.Wait()
	return nil
}
