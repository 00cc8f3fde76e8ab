package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/api"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/xlog"
)

// runServe serves the API until ctx is cancelled,
// then drains the requests and closes the live session
func runServe(ctx context.Context, cfg *config.Config) error {
	mgr, closeStore, err := newManager(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.KV(xlog.ERROR, "status", "close_manager", "err", err.Error())
		}
	}()

	ln, err := net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.HTTP.Listen)
	}
	return serve(ctx, ln, api.New(mgr, api.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...)).Handler(),
		cfg.HTTP.ShutdownTimeout.Duration())
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "address", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	logger.KV(xlog.INFO, "status", "shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "failed to shutdown server")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}
	return nil
}
