package rollup

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ondra-novak/mmbot-prices/internal/rates"
	"github.com/ondra-novak/mmbot-prices/internal/store"
)

func openTiers(t *testing.T) (*store.Store, *Daily, *Total) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "prices.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	daily := NewDaily(st)
	total := NewTotal(daily)
	st.AddCommitHook(daily.Invalidate)
	return st, daily, total
}

func write(t *testing.T, st *store.Store, symbol string, ts uint64, price float64) {
	t.Helper()
	var b store.Batch
	b.Set(symbol, ts, price)
	if err := st.Commit(&b); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func rangeDays(t *testing.T, daily *Daily, symbol string, from, to uint64) []rates.Point {
	t.Helper()
	it, err := daily.Range(symbol, from, to)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	defer it.Close()
	var pts []rates.Point
	for it.Next() {
		pts = append(pts, rates.Point{Time: it.Time(), Rate: it.Price()})
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return pts
}

func TestDailyMean(t *testing.T) {
	st, daily, _ := openTiers(t)
	write(t, st, "btc", 10, 100)
	write(t, st, "btc", 20, 200)
	write(t, st, "btc", DaySeconds+10, 300)

	pts := rangeDays(t, daily, "btc", 0, 10)
	if len(pts) != 2 {
		t.Fatalf("expected 2 days, got %v", pts)
	}
	if pts[0].Time != 0 || math.Abs(pts[0].Rate-150) > 1e-9 {
		t.Errorf("day 0: expected mean 150, got %+v", pts[0])
	}
	if pts[1].Time != 1 || math.Abs(pts[1].Rate-300) > 1e-9 {
		t.Errorf("day 1: expected 300, got %+v", pts[1])
	}
}

func TestDailyRangeBounds(t *testing.T) {
	st, daily, _ := openTiers(t)
	write(t, st, "btc", 10, 1)
	write(t, st, "btc", DaySeconds+10, 2)
	write(t, st, "btc", 5*DaySeconds+10, 3)

	pts := rangeDays(t, daily, "btc", 1, 5)
	if len(pts) != 1 || pts[0].Time != 1 {
		t.Errorf("expected only day 1 within [1,5), got %v", pts)
	}
}

func TestDailyInvalidation(t *testing.T) {
	st, daily, _ := openTiers(t)
	write(t, st, "btc", 10, 100)

	pts := rangeDays(t, daily, "btc", 0, 10)
	if len(pts) != 1 || pts[0].Rate != 100 {
		t.Fatalf("expected initial mean 100, got %v", pts)
	}

	// A write into an already materialized day must show up on the
	// next query.
	write(t, st, "btc", 20, 300)
	pts = rangeDays(t, daily, "btc", 0, 10)
	if len(pts) != 1 || math.Abs(pts[0].Rate-200) > 1e-9 {
		t.Errorf("expected recomputed mean 200, got %v", pts)
	}

	// A write into a brand new day extends the materialized day list.
	write(t, st, "btc", 3*DaySeconds+10, 500)
	pts = rangeDays(t, daily, "btc", 0, 10)
	if len(pts) != 2 || pts[1].Time != 3 || pts[1].Rate != 500 {
		t.Errorf("expected new day 3, got %v", pts)
	}
}

func TestTotalSummary(t *testing.T) {
	st, _, total := openTiers(t)
	write(t, st, "btc", 10, 1)
	write(t, st, "btc", DaySeconds+10, 2)
	write(t, st, "btc", 5*DaySeconds+10, 3)

	sum, ok, err := total.Lookup("btc")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	want := Summary{FirstDay: 0, LastDay: 5, Days: 3}
	if sum != want {
		t.Errorf("expected %+v, got %+v", want, sum)
	}
}

func TestTotalAbsentAndInvalidation(t *testing.T) {
	st, _, total := openTiers(t)

	if _, ok, err := total.Lookup("nosuch"); err != nil || ok {
		t.Errorf("expected absent for unknown symbol, ok=%v err=%v", ok, err)
	}

	write(t, st, "eth", 10, 1)
	sum, ok, _ := total.Lookup("eth")
	if !ok || sum.Days != 1 {
		t.Fatalf("expected 1 day, got %+v (ok=%v)", sum, ok)
	}

	// New day invalidates the cached summary through the daily tier.
	write(t, st, "eth", 7*DaySeconds, 2)
	sum, ok, _ = total.Lookup("eth")
	if !ok || sum.LastDay != 7 || sum.Days != 2 {
		t.Errorf("expected refreshed summary through day 7, got %+v", sum)
	}
}

func TestTotalWriteDuringRecompute(t *testing.T) {
	st, _, total := openTiers(t)
	write(t, st, "btc", 10, 1)

	// Land a write in the window between the daily prefix scan and the
	// summary landing in the cache.
	inner := total.reduce
	injected := false
	total.reduce = func(it rates.Iter) (Summary, bool) {
		if !injected {
			injected = true
			write(t, st, "btc", 7*DaySeconds, 2)
		}
		return inner(it)
	}
	if _, _, err := total.Lookup("btc"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	total.reduce = inner

	// The concurrent write must not be masked by the stale summary.
	sum, ok, err := total.Lookup("btc")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if sum.LastDay != 7 || sum.Days != 2 {
		t.Errorf("expected summary through day 7, got %+v", sum)
	}
}

func TestScanDirectory(t *testing.T) {
	st, _, total := openTiers(t)
	write(t, st, "eth", 10, 1)
	write(t, st, "btc", 10, 2)

	list, err := total.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(list) != 2 || list[0].Symbol != "btc" || list[1].Symbol != "eth" {
		t.Errorf("expected sorted [btc eth], got %v", list)
	}
}
