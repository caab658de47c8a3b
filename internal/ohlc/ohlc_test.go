package ohlc

import "testing"

type tick struct {
	t uint64
	v float64
}

type sliceInput struct {
	ticks []tick
	i     int
}

func (s *sliceInput) Next() bool {
	if s.i >= len(s.ticks) {
		return false
	}
	s.i++
	return true
}

func (s *sliceInput) Time() uint64  { return s.ticks[s.i-1].t }
func (s *sliceInput) Rate() float64 { return s.ticks[s.i-1].v }
func (s *sliceInput) Err() error    { return nil }

func bars(b *Binner) []Bar {
	var out []Bar
	for b.Next() {
		out = append(out, b.Bar())
	}
	return out
}

func TestBinFrames(t *testing.T) {
	in := &sliceInput{ticks: []tick{{0, 100}, {30, 110}, {61, 90}}}
	got := bars(Bin(in, 60))
	want := []Bar{
		{Time: 0, Open: 100, High: 110, Low: 100, Close: 110},
		{Time: 60, Open: 90, High: 90, Low: 90, Close: 90},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d bars, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bar %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestFirstFrameIndexZeroIsEmitted(t *testing.T) {
	// The very first frame can legitimately compute to index 0; it must
	// not be swallowed by a "no bar open" sentinel.
	in := &sliceInput{ticks: []tick{{5, 50}, {10, 55}}}
	got := bars(Bin(in, 60))
	if len(got) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(got))
	}
	want := Bar{Time: 0, Open: 50, High: 55, Low: 50, Close: 55}
	if got[0] != want {
		t.Errorf("expected %+v, got %+v", want, got[0])
	}
}

func TestHighLowTracking(t *testing.T) {
	in := &sliceInput{ticks: []tick{{0, 100}, {10, 80}, {20, 120}, {30, 95}}}
	got := bars(Bin(in, 60))
	if len(got) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(got))
	}
	want := Bar{Time: 0, Open: 100, High: 120, Low: 80, Close: 95}
	if got[0] != want {
		t.Errorf("expected %+v, got %+v", want, got[0])
	}
}

func TestEmptyInput(t *testing.T) {
	if got := bars(Bin(&sliceInput{}, 60)); got != nil {
		t.Errorf("expected no bars for empty input, got %v", got)
	}
}

func TestGapSkipsFrames(t *testing.T) {
	// A gap between frames must not emit bars for the empty frames.
	in := &sliceInput{ticks: []tick{{0, 100}, {300, 200}}}
	got := bars(Bin(in, 60))
	if len(got) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(got))
	}
	if got[0].Time != 0 || got[1].Time != 300 {
		t.Errorf("expected bars at 0 and 300, got %+v", got)
	}
}
