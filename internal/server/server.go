// Package server exposes the resolver and the streaming proxy over HTTP.
//
//	GET /resolve?url=<page>|u64=<b64url>[&referer=&ua=&debug=1&exhaustive=1]
//	GET|HEAD|OPTIONS /proxy?url=<media>|u64=<b64url>[&referer=&origin=&ua=&rewrite=0]
//	GET /healthz
//	GET /stats
//	GET /metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"vidgate/internal/cache"
	"vidgate/internal/httputil"
	"vidgate/internal/logging"
	"vidgate/internal/metrics"
	"vidgate/internal/proxy"
	"vidgate/internal/resolve"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Config wires a Server. Resolver and Proxy are required.
type Config struct {
	Resolver *resolve.Resolver
	Proxy    *proxy.Proxy
	Cache    *cache.Cache
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
}

// Server is the HTTP surface.
type Server struct {
	resolver *resolve.Resolver
	proxy    *proxy.Proxy
	cache    *cache.Cache
	metrics  *metrics.Metrics
	log      *logrus.Entry
	started  time.Time
	handler  http.Handler
}

// New creates a Server and builds its handler chain.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	s := &Server{
		resolver: cfg.Resolver,
		proxy:    cfg.Proxy,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		log:      logging.Component(cfg.Logger, "server"),
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/resolve", s.handleResolve)
	mux.Handle("/proxy", s.proxy)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handler = withRequestID(withAccessLog(s.log, withRecover(s.log, mux)))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// ctx only triggers the shutdown; requests in flight keep their
		// contexts while Shutdown drains them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	proxy.SetCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	q := r.URL.Query()
	target, err := httputil.RequestTarget(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &resolve.Result{
			URLs:    []resolve.Resolved{},
			Message: err.Error(),
			Reason:  resolve.ReasonInvalidInput,
		})
		return
	}

	res := s.resolver.Resolve(r.Context(), target, resolve.Options{
		Referer:    strings.TrimSpace(q.Get("referer")),
		UserAgent:  strings.TrimSpace(q.Get("ua")),
		Debug:      flag(q.Get("debug")),
		Exhaustive: flag(q.Get("exhaustive")),
	})
	if res.Reason == resolve.ReasonCancelled && r.Context().Err() != nil {
		// The client is gone; there is nobody to answer.
		return
	}
	writeJSON(w, res.Reason.HTTPStatus(), res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Cache          cache.Stats `json:"cache"`
	TotalSizeHuman string      `json:"totalSizeHuman"`
	MaxSizeHuman   string      `json:"maxSizeHuman"`
	Uptime         string      `json:"uptime"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var st cache.Stats
	if s.cache != nil {
		st = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Cache:          st,
		TotalSizeHuman: humanize.IBytes(uint64(st.TotalSize)),
		MaxSizeHuman:   humanize.IBytes(uint64(st.MaxSize)),
		Uptime:         time.Since(s.started).Round(time.Second).String(),
	})
}

func flag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
