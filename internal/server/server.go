// Package server serves the rendered site during development, with live
// reload and an optional Prometheus metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// Server serves the output directory.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	hub    *reloadHub
	srv    *http.Server
	msrv   *http.Server
	addr   string
	banner bool
}

// New builds a server listening on addr (e.g. ":1313").
func New(cfg *config.Config, addr string, log *slog.Logger) *Server {
	s := &Server{cfg: cfg, log: log, hub: newReloadHub(), addr: addr}

	mux := http.NewServeMux()
	mux.Handle("/_livereload", s.hub)
	mux.HandleFunc("/", s.serveSite)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// WithMetrics exposes the registry on the configured metrics address.
func (s *Server) WithMetrics(reg *prom.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	s.msrv = &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// NotifyReload tells connected browsers to refresh. Called after rebuilds.
func (s *Server) NotifyReload() { s.hub.Notify() }

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		s.log.Info("serving site", slog.String("addr", s.addr), logfields.Path(s.cfg.OutputDir))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if s.msrv != nil {
		go func() {
			s.log.Info("serving metrics", slog.String("addr", s.msrv.Addr))
			if err := s.msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if s.msrv != nil {
		_ = s.msrv.Shutdown(shutdownCtx)
	}
	return nil
}

// serveSite serves files from the output directory, appending the live
// reload script to HTML responses.
func (s *Server) serveSite(w http.ResponseWriter, r *http.Request) {
	upath := path.Clean("/" + r.URL.Path)
	rel := strings.TrimPrefix(upath, "/")
	if rel == "" {
		rel = "index.html"
	}

	abs := filepath.Join(s.cfg.OutputDir, filepath.FromSlash(rel))
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		abs = filepath.Join(abs, "index.html")
	}

	if strings.HasSuffix(abs, ".html") {
		data, err := os.ReadFile(abs) // #nosec G304 - constrained to the output directory
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
		_, _ = w.Write([]byte(reloadScript))
		return
	}

	http.ServeFile(w, r, abs)
}
