// Package cleaner scans the whole price store for isolated anomalous
// ticks and optionally rewrites them.
package cleaner

import (
	"fmt"
	"io"
	"math"

	"github.com/ondra-novak/mmbot-prices/internal/store"
)

// Mode selects whether flagged records are rewritten.
type Mode int

const (
	// ModeDryRun reports findings without touching the store.
	ModeDryRun Mode = iota
	// ModeStore reports findings and persists corrections, flushed in
	// batches at symbol boundaries.
	ModeStore
)

// Run performs one ordered forward pass over the store, keeping a
// 3-slot sliding window (a, b, c) per symbol. Once the window is full,
// the middle value b is compared against the geometric mean of its
// neighbors; b is flagged when the neighbors agree with each other but
// not with b. In store mode the record at b's timestamp is rewritten to
// that mean. The window keeps advancing over the originally scanned
// values; corrections never feed back into later comparisons within the
// same pass.
//
// The report stream mirrors both modes: a header line per symbol and one
// "<symbol> <ts> <a> <b> <c>" line per finding. Run returns the number
// of flagged records.
func Run(st *store.Store, mode Mode, w io.Writer) (int, error) {
	it, err := st.Scan()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var (
		batch   store.Batch
		symbol  string
		started bool
		a, b, c float64
		chkTime uint64 // timestamp of b, lagging one record behind
		flagged int
	)

	for it.Next() {
		if !started || it.Symbol() != symbol {
			if mode == ModeStore {
				if err := st.Commit(&batch); err != nil {
					return flagged, fmt.Errorf("flush %s: %w", symbol, err)
				}
			}
			symbol = it.Symbol()
			started = true
			a, b, c = 0, 0, 0
			chkTime = 0
			fmt.Fprintf(w, "# Checking symbol: %s\r\n", symbol)
		}

		a, b, c = b, c, it.Price()
		tm := it.Time()
		if a != 0 {
			mid := math.Sqrt(a * c)
			dev1 := math.Abs(mid-b) / b
			dev2 := math.Abs(a-c) / b
			if dev2*3 < dev1 && dev1 > 0.005 {
				fmt.Fprintf(w, "%s %d %g %g %g\r\n", symbol, chkTime, a, b, c)
				flagged++
				if mode == ModeStore {
					batch.Set(symbol, chkTime, mid)
				}
			}
		}
		chkTime = tm
	}
	if err := it.Err(); err != nil {
		return flagged, fmt.Errorf("clean scan: %w", err)
	}
	if mode == ModeStore {
		if err := st.Commit(&batch); err != nil {
			return flagged, fmt.Errorf("final flush: %w", err)
		}
	}
	return flagged, nil
}
