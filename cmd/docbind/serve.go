package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reoring/docbind/internal/config"
	"github.com/reoring/docbind/internal/httpapi"
	"github.com/reoring/docbind/store"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *command {
	return &command{
		name:  "serve",
		usage: "serve [-addr host:port]",
		flags: func(fs *flag.FlagSet, cfg *config.CLI) {
			fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (env DOCBIND_ADDR)")
		},
		run: func(ctx context.Context, e *env, _ []string) error {
			ln, err := net.Listen("tcp", e.cfg.Addr)
			if err != nil {
				return err
			}
			return serve(ctx, ln, newRouter(e.store, prometheus.NewRegistry(), e.log), e.log)
		},
	}
}

// newRouter serves the store API with every store call instrumented, and the
// collected metrics under /metrics.
func newRouter(st store.Store, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	reg.MustRegister(collectors.NewGoCollector())
	instrumented := store.Instrument(st, store.NewMetrics(reg))

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpapi.New(instrumented, log).Register(r)
	return r
}

// serve runs an HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	log.Info("docbind: serving", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
