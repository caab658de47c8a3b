// Package ohlc buckets a rate series into fixed-width open/high/low/
// close bars in a single forward pass.
package ohlc

// Input is a resolved rate cursor; rates.Cursor satisfies it.
type Input interface {
	Next() bool
	Time() uint64
	Rate() float64
	Err() error
}

// Bar summarizes one time frame. Time is the frame start in seconds.
type Bar struct {
	Time                   uint64
	Open, High, Low, Close float64
}

// Binner emits a bar per frame as the input is consumed; the open bar is
// flushed when the frame changes and once more after input exhaustion.
// It composes directly on a rates cursor without materializing the
// series.
type Binner struct {
	in    Input
	frame uint64
	// hasBar distinguishes "no bar open yet" from a bar in frame 0,
	// which is a legitimate frame index for the first points.
	hasBar bool
	idx    uint64
	cur    Bar
	out    Bar
	done   bool
}

// Bin creates a Binner with the given frame width in seconds.
func Bin(in Input, frame uint64) *Binner {
	if frame == 0 {
		frame = 1
	}
	return &Binner{in: in, frame: frame}
}

// Next advances to the following completed bar.
func (b *Binner) Next() bool {
	if b.done {
		return false
	}
	for b.in.Next() {
		t, v := b.in.Time(), b.in.Rate()
		f := t / b.frame
		if !b.hasBar {
			b.hasBar = true
			b.idx = f
			b.cur = Bar{Open: v, High: v, Low: v, Close: v}
			continue
		}
		if f != b.idx {
			b.out = b.cur
			b.out.Time = b.idx * b.frame
			b.idx = f
			b.cur = Bar{Open: v, High: v, Low: v, Close: v}
			return true
		}
		b.cur.Close = v
		if v > b.cur.High {
			b.cur.High = v
		}
		if v < b.cur.Low {
			b.cur.Low = v
		}
	}
	b.done = true
	if b.hasBar {
		b.out = b.cur
		b.out.Time = b.idx * b.frame
		b.hasBar = false
		return true
	}
	return false
}

// Bar returns the bar completed by the last Next.
func (b *Binner) Bar() Bar { return b.out }

// Err reports the input's error, if any.
func (b *Binner) Err() error { return b.in.Err() }
