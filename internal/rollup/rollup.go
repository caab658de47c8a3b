// Package rollup derives cached aggregates over ranges of raw price
// ticks. Each tier supplies a probe, mapping a query key to the scan
// range of its underlying series, and a reduce, folding the scanned
// sequence into one value (or absent when the range is empty). Reduced
// values are cached per key; a write into the underlying range marks the
// key dirty and the next query recomputes it. Tiers stack: the total
// tier reduces the daily tier's output, so a raw write ripples through
// both caches.
package rollup

import "github.com/ondra-novak/mmbot-prices/internal/rates"

// DaySeconds is the width of the daily tier's buckets.
const DaySeconds = 86400

type point struct {
	time  uint64
	price float64
}

// sliceIter replays materialized tier entries as an ordered sequence.
type sliceIter struct {
	pts []point
	i   int
}

func (it *sliceIter) Next() bool {
	if it.i >= len(it.pts) {
		return false
	}
	it.i++
	return true
}

func (it *sliceIter) Time() uint64   { return it.pts[it.i-1].time }
func (it *sliceIter) Price() float64 { return it.pts[it.i-1].price }
func (it *sliceIter) Err() error     { return nil }
func (it *sliceIter) Close() error   { return nil }

var _ rates.Iter = (*sliceIter)(nil)
