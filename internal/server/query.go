package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ondra-novak/mmbot-prices/internal/ohlc"
	"github.com/ondra-novak/mmbot-prices/internal/rates"
	"github.com/ondra-novak/mmbot-prices/internal/rollup"
)

// queryUint parses an optional numeric query parameter; absent means 0.
func queryUint(r *http.Request, name string) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", name, err)
	}
	return n, nil
}

type rateQuery struct {
	asset    string
	currency string
	from, to uint64
}

func parseRateQuery(r *http.Request) (rateQuery, error) {
	q := rateQuery{
		asset:    r.URL.Query().Get("asset"),
		currency: r.URL.Query().Get("currency"),
	}
	if q.asset == "" || q.currency == "" {
		return q, fmt.Errorf("asset and currency are required")
	}
	var err error
	if q.from, err = queryUint(r, "from"); err != nil {
		return q, err
	}
	if q.to, err = queryUint(r, "to"); err != nil {
		return q, err
	}
	return q, nil
}

// streamRates writes a lazily resolved series as a JSON array of
// [time, rate] pairs.
func (s *Server) streamRates(w http.ResponseWriter, r *http.Request, src rates.Source, timeMult uint64) {
	q, err := parseRateQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cur, err := rates.Resolve(src, q.asset, q.currency, q.from, q.to, timeMult)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cur.Close()

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, "[")
	comma := false
	for cur.Next() {
		if comma {
			io.WriteString(w, ",\r\n")
		} else {
			comma = true
		}
		fmt.Fprintf(w, "[%d, %g]", cur.Time(), cur.Rate())
	}
	io.WriteString(w, "]")
	if err := cur.Err(); err != nil {
		// Headers are already out; the truncated array is all we can
		// deliver.
		log.Printf("[WARN] %s %s/%s: %v", r.URL.Path, q.asset, q.currency, err)
	}
}

func (s *Server) handleMinute(w http.ResponseWriter, r *http.Request) {
	s.streamRates(w, r, s.raw, 1)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	s.streamRates(w, r, s.daily, rollup.DaySeconds)
}

func (s *Server) handleOHLC(w http.ResponseWriter, r *http.Request) {
	q, err := parseRateQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tfrm, err := queryUint(r, "tfrm")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if tfrm < 1 {
		tfrm = 1
	}
	frame := tfrm * 60

	cur, err := rates.Resolve(s.raw, q.asset, q.currency, q.from, q.to, 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cur.Close()

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, "[")
	comma := false
	bins := ohlc.Bin(cur, frame)
	for bins.Next() {
		bar := bins.Bar()
		if comma {
			io.WriteString(w, ",\n")
		} else {
			comma = true
		}
		fmt.Fprintf(w, "[%d, %g, %g, %g, %g]", bar.Time, bar.Open, bar.High, bar.Low, bar.Close)
	}
	io.WriteString(w, "]")
	if err := bins.Err(); err != nil {
		log.Printf("[WARN] /ohlc %s/%s: %v", q.asset, q.currency, err)
	}
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	list, err := s.total.Scan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, "{")
	comma := false
	for _, entry := range list {
		if comma {
			io.WriteString(w, ",\r\n")
		} else {
			comma = true
		}
		sum := entry.Summary
		if entry.Symbol == "usd" {
			// usd is the quote side of every stored price; report it
			// as covering all of history.
			sum = rollup.Summary{FirstDay: 0, LastDay: 999999, Days: 999999}
		}
		fmt.Fprintf(w, "%q:[%d,%d,%d]", entry.Symbol, sum.FirstDay, sum.LastDay, sum.Days)
	}
	io.WriteString(w, "}")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	at, err := strconv.ParseUint(chi.URLParam(r, "time"), 10, 64)
	if err != nil {
		http.Error(w, "bad time", http.StatusBadRequest)
		return
	}

	divider := 1.0
	if currency := r.URL.Query().Get("currency"); currency != "" {
		price, ok, err := s.st.Get(currency, at)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			// The divisor is mandatory; without it the snapshot
			// cannot be rebased.
			http.Error(w, "currency has no price at this time", http.StatusNotFound)
			return
		}
		divider = price
	}

	symbols, err := s.st.Symbols()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, "{")
	comma := false
	for _, symbol := range symbols {
		price, ok, err := s.st.Get(symbol, at)
		if err != nil {
			log.Printf("[WARN] /history lookup %s@%d: %v", symbol, at, err)
			break
		}
		if !ok {
			continue
		}
		if comma {
			io.WriteString(w, ",\r\n")
		} else {
			comma = true
		}
		fmt.Fprintf(w, "%q:%g", symbol, price/divider)
	}
	io.WriteString(w, "}")
}
