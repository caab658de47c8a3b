package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ondra-novak/mmbot-prices/internal/feed"
	"github.com/ondra-novak/mmbot-prices/internal/store"
)

type entry struct {
	sum   float64
	count uint64
}

// Collector merges quotes from independently polled exchange feeds into
// one averaged price per symbol and commits them as a single batch per
// collection cycle. All accumulator access is serialized by one lock.
type Collector struct {
	st *store.Store

	mu  sync.Mutex
	acc map[string]entry
}

// New creates a Collector with an empty accumulator.
func New(st *store.Store) *Collector {
	return &Collector{st: st, acc: make(map[string]entry)}
}

// Accumulate parses one feed payload and merges its quotes into the
// running averages. It does not commit; feeds may be polled on
// independent schedules and a failed feed leaves the others' quotes in
// place. The caller is responsible for committing (and thereby clearing)
// the previous cycle before the first Accumulate of a new one; repeated
// accumulation of an already-committed cycle skews the averages.
func (c *Collector) Accumulate(p feed.Parser, payload []byte) (int, error) {
	quotes, err := p.Parse(payload)
	if err != nil {
		return 0, fmt.Errorf("accumulate %s: %w", p.Name(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(quotes)
	return len(quotes), nil
}

// CollectAll consumes the combined two-feed payload (cryptowatch result
// followed by ftx result), replacing whatever the accumulator holds, and
// commits the cycle atomically.
func (c *Collector) CollectAll(payload []byte) (int, uint64, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil {
		return 0, 0, fmt.Errorf("combined payload: %w", err)
	}
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("combined payload: want 2 feed results, got %d", len(parts))
	}
	cw, err := feed.Cryptowatch{}.Parse(parts[0])
	if err != nil {
		return 0, 0, err
	}
	fx, err := feed.FTX{}.Parse(parts[1])
	if err != nil {
		return 0, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc = make(map[string]entry)
	c.merge(cw)
	c.merge(fx)
	return c.commitLocked()
}

// Commit flushes the accumulator as one batched write at the current
// collection timestamp and clears it. On a store failure the accumulator
// is left intact and the error propagates.
func (c *Collector) Commit() (int, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitLocked()
}

func (c *Collector) commitLocked() (int, uint64, error) {
	ts := CollectionTimestamp(time.Now())
	var batch store.Batch
	for symbol, e := range c.acc {
		count := e.count
		if count < 1 {
			count = 1
		}
		batch.Set(symbol, ts, e.sum/float64(count))
	}
	n := batch.Len()
	if err := c.st.Commit(&batch); err != nil {
		return 0, 0, fmt.Errorf("commit cycle: %w", err)
	}
	c.acc = make(map[string]entry)
	log.Printf("[INFO] committed %d entries (timestamp: %d)", n, ts)
	return n, ts, nil
}

func (c *Collector) merge(quotes []feed.Quote) {
	for _, q := range quotes {
		e := c.acc[q.Symbol]
		e.sum += q.Price
		e.count++
		c.acc[q.Symbol] = e
	}
}

// Pending reports how many symbols the accumulator currently holds.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acc)
}

// CollectionTimestamp rounds t to the nearest minute boundary.
func CollectionTimestamp(t time.Time) uint64 {
	return uint64((t.Unix()+30)/60) * 60
}
