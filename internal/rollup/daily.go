package rollup

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ondra-novak/mmbot-prices/internal/rates"
	"github.com/ondra-novak/mmbot-prices/internal/store"
)

// Daily aggregates raw ticks into one mean price per (symbol, UTC day).
// A symbol is materialized lazily on its first query; afterwards only
// days invalidated by new writes are rescanned. Day indexes are the
// tier's time unit, so consumers resolve against it with a multiplier
// of DaySeconds.
type Daily struct {
	st     *store.Store
	probe  func(symbol string, day uint64) (from, to uint64)
	reduce func(it rates.Iter) (float64, bool)

	mu       sync.Mutex
	symbols  map[string]*symbolDays
	onChange []func(symbol string)
}

type symbolDays struct {
	days  []uint64 // sorted day indexes holding data
	mean  map[uint64]float64
	dirty map[uint64]struct{}
}

// NewDaily creates the daily tier over the raw store.
func NewDaily(st *store.Store) *Daily {
	return &Daily{
		st: st,
		probe: func(symbol string, day uint64) (uint64, uint64) {
			return day * DaySeconds, (day + 1) * DaySeconds
		},
		reduce:  meanPrice,
		symbols: make(map[string]*symbolDays),
	}
}

// meanPrice folds a scanned range into its arithmetic mean; absent for
// an empty range.
func meanPrice(it rates.Iter) (float64, bool) {
	defer it.Close()
	sum := 0.0
	count := 0
	for it.Next() {
		sum += it.Price()
		count++
	}
	if count == 0 || it.Err() != nil {
		return 0, false
	}
	return sum / float64(count), true
}

// Invalidate marks the day holding a freshly written tick dirty. Wired
// as a store commit hook.
func (d *Daily) Invalidate(symbol string, ts uint64) {
	day := ts / DaySeconds
	d.mu.Lock()
	if sd, ok := d.symbols[symbol]; ok {
		sd.dirty[day] = struct{}{}
	}
	subs := d.onChange
	d.mu.Unlock()

	for _, fn := range subs {
		fn(symbol)
	}
}

// OnChange subscribes a downstream tier to symbol-level changes. Must be
// called before traffic starts.
func (d *Daily) OnChange(fn func(symbol string)) {
	d.onChange = append(d.onChange, fn)
}

// Range emits (dayIndex, meanPrice) for the symbol's days within the
// half-open interval [fromDay, toDay).
func (d *Daily) Range(symbol string, fromDay, toDay uint64) (rates.Iter, error) {
	sd, err := d.refresh(symbol)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(sd.days), func(i int) bool { return sd.days[i] >= fromDay })
	hi := sort.Search(len(sd.days), func(i int) bool { return sd.days[i] >= toDay })
	pts := make([]point, 0, hi-lo)
	for _, day := range sd.days[lo:hi] {
		pts = append(pts, point{time: day, price: sd.mean[day]})
	}
	return &sliceIter{pts: pts}, nil
}

// Prefix emits every (dayIndex, meanPrice) of one symbol.
func (d *Daily) Prefix(symbol string) (rates.Iter, error) {
	sd, err := d.refresh(symbol)
	if err != nil {
		return nil, err
	}
	pts := make([]point, 0, len(sd.days))
	for _, day := range sd.days {
		pts = append(pts, point{time: day, price: sd.mean[day]})
	}
	return &sliceIter{pts: pts}, nil
}

// Symbols lists the symbols of the underlying store.
func (d *Daily) Symbols() ([]string, error) {
	return d.st.Symbols()
}

// refresh materializes the symbol if needed and recomputes its dirty
// days.
func (d *Daily) refresh(symbol string) (*symbolDays, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sd, ok := d.symbols[symbol]
	if !ok {
		var err error
		sd, err = d.build(symbol)
		if err != nil {
			return nil, err
		}
		d.symbols[symbol] = sd
		return sd, nil
	}

	for day := range sd.dirty {
		if err := d.recompute(symbol, sd, day); err != nil {
			return nil, err
		}
		delete(sd.dirty, day)
	}
	return sd, nil
}

// build enumerates the symbol's days from one prefix scan, then reduces
// each day's range.
func (d *Daily) build(symbol string) (*symbolDays, error) {
	it, err := d.st.Prefix(symbol)
	if err != nil {
		return nil, err
	}
	var days []uint64
	for it.Next() {
		day := it.Time() / DaySeconds
		if len(days) == 0 || days[len(days)-1] != day {
			days = append(days, day)
		}
	}
	if err := it.Err(); err != nil {
		it.Close()
		return nil, fmt.Errorf("build daily %s: %w", symbol, err)
	}
	it.Close()

	sd := &symbolDays{
		mean:  make(map[uint64]float64, len(days)),
		dirty: make(map[uint64]struct{}),
	}
	for _, day := range days {
		if err := d.recompute(symbol, sd, day); err != nil {
			return nil, err
		}
	}
	return sd, nil
}

// recompute probes one day's raw range and replaces (or drops) its
// cached mean.
func (d *Daily) recompute(symbol string, sd *symbolDays, day uint64) error {
	from, to := d.probe(symbol, day)
	it, err := d.st.Range(symbol, from, to)
	if err != nil {
		return fmt.Errorf("recompute daily %s/%d: %w", symbol, day, err)
	}
	mean, ok := d.reduce(it)

	i := sort.Search(len(sd.days), func(i int) bool { return sd.days[i] >= day })
	present := i < len(sd.days) && sd.days[i] == day
	switch {
	case ok && present:
		sd.mean[day] = mean
	case ok && !present:
		sd.days = append(sd.days, 0)
		copy(sd.days[i+1:], sd.days[i:])
		sd.days[i] = day
		sd.mean[day] = mean
	case !ok && present:
		sd.days = append(sd.days[:i], sd.days[i+1:]...)
		delete(sd.mean, day)
	}
	return nil
}

var _ rates.Source = (*Daily)(nil)
