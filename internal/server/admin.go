package server

import (
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ondra-novak/mmbot-prices/internal/cleaner"
	"github.com/ondra-novak/mmbot-prices/internal/feed"
)

// parsers maps the /collector/{feed} subpath to its adapter.
var parsers = map[string]feed.Parser{
	"cryptowatch": feed.Cryptowatch{},
	"ftx":         feed.FTX{},
	"bitfinex":    feed.Bitfinex{},
	"binance":     feed.Binance{},
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := s.col.Import(body)
	if err != nil {
		log.Printf("[ERROR] import failed after %d rows: %v", rows, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("[INFO] imported %d rows", rows)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCollectAll(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, ts, err := s.col.CollectAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("[INFO] combined collection: %d entries (timestamp: %d)", n, ts)
	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, "ok")
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	parser, ok := parsers[chi.URLParam(r, "feed")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A malformed payload fails only this feed's contribution; the
	// accumulator keeps whatever other feeds already delivered.
	if _, err := s.col.Accumulate(parser, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	n, ts, err := s.col.Commit()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("[INFO] collector commit: %d entries (timestamp: %d)", n, ts)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCleanDryRun(w http.ResponseWriter, r *http.Request) {
	s.runClean(w, cleaner.ModeDryRun)
}

func (s *Server) handleCleanStore(w http.ResponseWriter, r *http.Request) {
	s.runClean(w, cleaner.ModeStore)
}

func (s *Server) runClean(w http.ResponseWriter, mode cleaner.Mode) {
	w.Header().Set("Content-Type", "text/plain")
	flagged, err := cleaner.Run(s.st, mode, w)
	if err != nil {
		// The report already streamed; the error can only be logged.
		log.Printf("[ERROR] clean pass: %v", err)
		return
	}
	log.Printf("[INFO] clean pass finished: %d records flagged (store=%v)",
		flagged, mode == cleaner.ModeStore)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, "Started\r\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if err := s.st.Compact(); err != nil {
		log.Printf("[ERROR] compact: %v", err)
		io.WriteString(w, "Failed\r\n")
		return
	}
	io.WriteString(w, "Finished\r\n")
}
