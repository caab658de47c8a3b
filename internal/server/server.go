// Package server exposes the price store over HTTP: public query
// endpoints for rate series, OHLC bars and the symbol directory, plus
// admin endpoints for ingestion and maintenance guarded by a host
// allowlist.
package server

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ondra-novak/mmbot-prices/internal/ingest"
	"github.com/ondra-novak/mmbot-prices/internal/rates"
	"github.com/ondra-novak/mmbot-prices/internal/rollup"
	"github.com/ondra-novak/mmbot-prices/internal/store"
)

// Server wires the HTTP API to the store, the ingestion collector and
// the rollup tiers.
type Server struct {
	st    *store.Store
	col   *ingest.Collector
	raw   rates.Source
	daily *rollup.Daily
	total *rollup.Total

	uploadHost string
	docRoot    string
	srv        *http.Server
}

// New creates a Server. uploadHost is the allowlist substring for admin
// requests; docRoot is the static file directory.
func New(st *store.Store, col *ingest.Collector, daily *rollup.Daily, total *rollup.Total, uploadHost, docRoot string) *Server {
	return &Server{
		st:         st,
		col:        col,
		raw:        rates.StoreSource(st),
		daily:      daily,
		total:      total,
		uploadHost: uploadHost,
		docRoot:    docRoot,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLog)

	r.Get("/minute", s.handleMinute)
	r.Get("/daily", s.handleDaily)
	r.Get("/ohlc", s.handleOHLC)
	r.Get("/symbols", s.handleSymbols)
	r.Get("/history/{time}", s.handleHistory)

	r.Post("/import", s.admin(s.handleImport))
	r.Post("/collector", s.admin(s.handleCollectAll))
	r.Post("/collector/commit", s.admin(s.handleCommit))
	r.Post("/collector/{feed}", s.admin(s.handleFeed))
	r.Get("/clean", s.admin(s.handleCleanDryRun))
	r.Post("/clean", s.admin(s.handleCleanStore))
	r.Post("/compact", s.admin(s.handleCompact))

	r.Get("/", s.handleStatic)
	r.Get("/{file}", s.handleStatic)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Router()}
	log.Printf("[INFO] http server listening on %s", addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// admin wraps a handler with the host-allowlist check.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Host, s.uploadHost) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if name == "" {
		name = "index.html"
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.docRoot, name))
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[INFO] %s %s %s %.3f ms", r.Method, r.Host, r.URL.Path,
			float64(time.Since(start).Microseconds())*0.001)
	})
}
