package cleaner

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ondra-novak/mmbot-prices/internal/store"
)

func seed(t *testing.T, ticks map[string]map[uint64]float64) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "prices.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var b store.Batch
	for symbol, series := range ticks {
		for ts, price := range series {
			b.Set(symbol, ts, price)
		}
	}
	if err := st.Commit(&b); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

func spikeSeries() map[uint64]float64 {
	// 150 between 100 and 101: mid ~ 100.5, dev1 ~ 0.33, dev2 ~ 0.007.
	return map[uint64]float64{60: 100, 120: 150, 180: 101}
}

func TestDryRunReportsWithoutWriting(t *testing.T) {
	st := seed(t, map[string]map[uint64]float64{"btc": spikeSeries()})

	var report strings.Builder
	flagged, err := Run(st, ModeDryRun, &report)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged record, got %d", flagged)
	}
	if !strings.Contains(report.String(), "# Checking symbol: btc") {
		t.Errorf("missing symbol header in report: %q", report.String())
	}
	if !strings.Contains(report.String(), "btc 120 100 150 101") {
		t.Errorf("missing finding line in report: %q", report.String())
	}

	price, ok, _ := st.Get("btc", 120)
	if !ok || price != 150 {
		t.Errorf("dry-run must not rewrite, got %g (ok=%v)", price, ok)
	}
}

func TestStoreModeRewritesMiddle(t *testing.T) {
	st := seed(t, map[string]map[uint64]float64{"btc": spikeSeries()})

	var report strings.Builder
	flagged, err := Run(st, ModeStore, &report)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged record, got %d", flagged)
	}

	price, ok, _ := st.Get("btc", 120)
	if !ok {
		t.Fatal("record vanished")
	}
	want := math.Sqrt(100 * 101)
	if math.Abs(price-want) > 1e-9 {
		t.Errorf("expected rewrite to %g, got %g", want, price)
	}

	// Neighbors stay untouched.
	if price, _, _ := st.Get("btc", 60); price != 100 {
		t.Errorf("left neighbor changed: %g", price)
	}
	if price, _, _ := st.Get("btc", 180); price != 101 {
		t.Errorf("right neighbor changed: %g", price)
	}
}

func TestWindowResetsAtSymbolBoundary(t *testing.T) {
	// The last two values of "aaa" and the first of "bbb" would form a
	// flaggable window if the boundary reset were missing.
	st := seed(t, map[string]map[uint64]float64{
		"aaa": {60: 100, 120: 150},
		"bbb": {60: 101, 120: 102, 180: 103},
	})

	var report strings.Builder
	flagged, err := Run(st, ModeStore, &report)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if flagged != 0 {
		t.Errorf("expected no findings across the boundary, got %d: %q", flagged, report.String())
	}
}

func TestCorrectionsDoNotFeedBack(t *testing.T) {
	// After rewriting the spike at 120, the window for the next check
	// still contains the original 150, so the run must not cascade into
	// flagging the smooth tail.
	st := seed(t, map[string]map[uint64]float64{
		"btc": {60: 100, 120: 150, 180: 101, 240: 101.5, 300: 102},
	})

	var report strings.Builder
	flagged, err := Run(st, ModeStore, &report)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if flagged != 1 {
		t.Errorf("expected only the original spike flagged, got %d: %q", flagged, report.String())
	}
}

func TestSmoothSeriesUnflagged(t *testing.T) {
	st := seed(t, map[string]map[uint64]float64{
		"btc": {60: 100, 120: 100.2, 180: 100.4, 240: 100.6},
	})
	var report strings.Builder
	flagged, err := Run(st, ModeDryRun, &report)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if flagged != 0 {
		t.Errorf("expected no findings, got %d: %q", flagged, report.String())
	}
}
