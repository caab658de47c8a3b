// Package rates derives asset/currency pair rates from two USD-quoted
// price series stored on a shared time grid.
package rates

import (
	"fmt"
	"math"

	"github.com/ondra-novak/mmbot-prices/internal/store"
)

// Iter is an ordered, finite price sequence with strictly increasing
// timestamps.
type Iter interface {
	Next() bool
	Time() uint64
	Price() float64
	Err() error
	Close() error
}

// Source provides ordered per-symbol price ranges. The raw store and the
// daily rollup tier both qualify.
type Source interface {
	Range(symbol string, from, to uint64) (Iter, error)
}

// Point is one resolved (time, rate) sample.
type Point struct {
	Time uint64
	Rate float64
}

// Resolve returns a lazy cursor over the asset/currency rate within
// [from, to). A `to` of 0 means unbounded. Output timestamps are
// multiplied by timeMult to convert the source's time unit back to
// seconds (1 for raw ticks, 86400 for the daily tier).
//
// Three cases: asset "usd" emits reciprocals of the currency series,
// currency "usd" emits the asset series unchanged, and the general case
// merge-joins both series on exact timestamp equality. A timestamp
// present in only one series yields no point. A divisor of exactly zero
// skips the point.
func Resolve(src Source, asset, currency string, from, to uint64, timeMult uint64) (*Cursor, error) {
	if to == 0 {
		to = math.MaxUint64 - 1
	}
	switch {
	case asset == "usd":
		it, err := src.Range(currency, from, to)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", asset, currency, err)
		}
		return &Cursor{a: it, recip: true, mult: timeMult}, nil
	case currency == "usd":
		it, err := src.Range(asset, from, to)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", asset, currency, err)
		}
		return &Cursor{a: it, mult: timeMult}, nil
	default:
		ia, err := src.Range(asset, from, to)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", asset, currency, err)
		}
		ib, err := src.Range(currency, from, to)
		if err != nil {
			ia.Close()
			return nil, fmt.Errorf("resolve %s/%s: %w", asset, currency, err)
		}
		return &Cursor{a: ia, b: ib, mult: timeMult}, nil
	}
}

// StoreSource adapts the raw price store to the Source interface.
func StoreSource(st *store.Store) Source { return storeSource{st} }

type storeSource struct{ st *store.Store }

func (s storeSource) Range(symbol string, from, to uint64) (Iter, error) {
	return s.st.Range(symbol, from, to)
}

// Cursor lazily produces resolved rate points.
type Cursor struct {
	a, b         Iter // b is nil in the single-series cases
	recip        bool
	mult         uint64
	heldA, heldB bool
	pt           Point
	err          error
}

// Next advances to the following point, returning false when either
// input is exhausted or on error.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.b == nil {
		return c.nextSingle()
	}
	return c.nextJoin()
}

func (c *Cursor) nextSingle() bool {
	for c.a.Next() {
		v := c.a.Price()
		if c.recip {
			if v == 0 {
				continue
			}
			v = 1.0 / v
		}
		c.pt = Point{Time: c.a.Time() * c.mult, Rate: v}
		return true
	}
	c.err = c.a.Err()
	return false
}

// nextJoin advances whichever cursor holds the smaller timestamp and
// emits a quotient on equality.
func (c *Cursor) nextJoin() bool {
	for {
		if !c.heldA {
			if !c.a.Next() {
				c.err = firstErr(c.a.Err(), c.b.Err())
				return false
			}
		}
		if !c.heldB {
			if !c.b.Next() {
				c.err = firstErr(c.a.Err(), c.b.Err())
				return false
			}
		}
		c.heldA, c.heldB = false, false

		ta, tb := c.a.Time(), c.b.Time()
		switch {
		case ta < tb:
			c.heldB = true
		case ta > tb:
			c.heldA = true
		default:
			div := c.b.Price()
			if div == 0 {
				continue
			}
			c.pt = Point{Time: ta * c.mult, Rate: c.a.Price() / div}
			return true
		}
	}
}

// Time returns the timestamp of the current point.
func (c *Cursor) Time() uint64 { return c.pt.Time }

// Rate returns the rate of the current point.
func (c *Cursor) Rate() float64 { return c.pt.Rate }

// Point returns the current point.
func (c *Cursor) Point() Point { return c.pt }

// Err reports the first error hit by either input.
func (c *Cursor) Err() error { return c.err }

// Close releases both inputs.
func (c *Cursor) Close() error {
	err := c.a.Close()
	if c.b != nil {
		if e := c.b.Close(); err == nil {
			err = e
		}
	}
	return err
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
