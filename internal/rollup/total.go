package rollup

import (
	"sync"

	"github.com/ondra-novak/mmbot-prices/internal/rates"
)

// Summary is the total tier's value: the day span a symbol's history
// covers and how many of those days hold data.
type Summary struct {
	FirstDay uint64
	LastDay  uint64
	Days     uint64
}

// SymbolSummary pairs a symbol with its summary for directory scans.
type SymbolSummary struct {
	Symbol  string
	Summary Summary
}

type totalEntry struct {
	summary Summary
	present bool
	dirty   bool
}

// Total is the symbol directory tier, built atop the daily tier: per
// symbol it reduces the full daily prefix into a Summary. Any change to
// a symbol's daily output marks its summary dirty.
type Total struct {
	daily  *Daily
	reduce func(it rates.Iter) (Summary, bool)

	mu    sync.Mutex
	cache map[string]*totalEntry
	// gen counts invalidations per symbol, so a recompute can detect a
	// write that landed while it ran.
	gen map[string]uint64
}

// NewTotal creates the total tier and subscribes it to daily-tier
// changes.
func NewTotal(d *Daily) *Total {
	t := &Total{
		daily:  d,
		reduce: summarize,
		cache:  make(map[string]*totalEntry),
		gen:    make(map[string]uint64),
	}
	d.OnChange(t.invalidate)
	return t
}

// summarize folds a daily prefix into (first, last, count); absent for a
// symbol with no data.
func summarize(it rates.Iter) (Summary, bool) {
	defer it.Close()
	var s Summary
	found := false
	for it.Next() {
		day := it.Time()
		if !found {
			s.FirstDay = day
			found = true
		}
		s.LastDay = day
		s.Days++
	}
	if !found || it.Err() != nil {
		return Summary{}, false
	}
	return s, true
}

func (t *Total) invalidate(symbol string) {
	t.mu.Lock()
	t.gen[symbol]++
	if e, ok := t.cache[symbol]; ok {
		e.dirty = true
	}
	t.mu.Unlock()
}

// Lookup returns the symbol's summary, recomputing it when stale. The
// second result is false for a symbol with no history.
func (t *Total) Lookup(symbol string) (Summary, bool, error) {
	t.mu.Lock()
	e, ok := t.cache[symbol]
	if ok && !e.dirty {
		s, present := e.summary, e.present
		t.mu.Unlock()
		return s, present, nil
	}
	gen := t.gen[symbol]
	t.mu.Unlock()

	// Recompute outside the total lock; the daily tier serializes its
	// own refresh.
	it, err := t.daily.Prefix(symbol)
	if err != nil {
		return Summary{}, false, err
	}
	s, present := t.reduce(it)

	t.mu.Lock()
	// A write that landed during the recompute keeps the entry dirty so
	// the next lookup rescans.
	t.cache[symbol] = &totalEntry{summary: s, present: present, dirty: t.gen[symbol] != gen}
	t.mu.Unlock()
	return s, present, nil
}

// Scan walks the whole symbol directory in symbol order, skipping
// symbols without data.
func (t *Total) Scan() ([]SymbolSummary, error) {
	symbols, err := t.daily.Symbols()
	if err != nil {
		return nil, err
	}
	out := make([]SymbolSummary, 0, len(symbols))
	for _, symbol := range symbols {
		s, present, err := t.Lookup(symbol)
		if err != nil {
			return nil, err
		}
		if present {
			out = append(out, SymbolSummary{Symbol: symbol, Summary: s})
		}
	}
	return out, nil
}
