package schedule

import (
	"errors"
	"math"
	"testing"

	"pulsegen-core/request"
)

var testOpt = Options{TimeTolerance: 1e-12}

func play(ch int, width float64) *request.Play {
	return &request.Play{
		ElementCommon: request.DefaultCommon(),
		ChannelID:     ch,
		Amplitude:     0.5,
		ShapeID:       0,
		Width:         width,
	}
}

func fixed(el request.Element, d float64) request.Element {
	el.Common().Duration = &d
	return el
}

func resolveOK(t *testing.T, el request.Element) *Arranged {
	t.Helper()
	a, err := Resolve(el, testOpt)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return a
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestStackSumsChildren(t *testing.T) {
	// Three pulses on one channel with an after-margin of 5 ns on all but
	// the last: total is the sum of durations plus (n-1) spacings.
	children := []request.Element{play(0, 10e-9), play(0, 20e-9), play(0, 30e-9)}
	for _, c := range children[:2] {
		c.Common().MarginAfter = 5e-9
	}
	stack := &request.Stack{ElementCommon: request.DefaultCommon(), Children: children, Direction: request.Forwards}
	a := resolveOK(t, stack)
	approx(t, "stack duration", a.Duration, 60e-9+2*5e-9)
}

func TestStackForwardOffsets(t *testing.T) {
	stack := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      []request.Element{play(0, 10e-9), play(0, 20e-9), play(0, 30e-9)},
		Direction:     request.Forwards,
	}
	a := resolveOK(t, stack)
	want := []float64{0, 10e-9, 30e-9}
	for i, w := range want {
		approx(t, "child offset", a.Children[i].Time, w)
	}
}

// On one channel, packing from either end yields the same times; with two
// channels the idle gaps move to the opposite end.
func TestStackBackwardOffsets(t *testing.T) {
	children := func() []request.Element {
		return []request.Element{
			play(0, 10e-9),
			play(1, 20e-9),
			&request.Barrier{ElementCommon: request.DefaultCommon()},
			play(0, 20e-9),
			play(1, 10e-9),
		}
	}
	forward := resolveOK(t, &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      children(),
		Direction:     request.Forwards,
	})
	for i, w := range []float64{0, 0, 20e-9, 20e-9, 20e-9} {
		approx(t, "forward time", forward.Children[i].Time, w)
	}
	backward := resolveOK(t, &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      children(),
		Direction:     request.Backwards,
	})
	approx(t, "backward total", backward.Duration, 40e-9)
	for i, w := range []float64{10e-9, 0, 20e-9, 20e-9, 30e-9} {
		approx(t, "backward time", backward.Children[i].Time, w)
	}
}

// Two channels pack in parallel; a shared element spans both.
//
//	ch0 --[10]--[  20  ]--[20]--
//	ch1 --[  20  ]^^^^^^--[10]--
func TestStackPerChannelPacking(t *testing.T) {
	stack := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children: []request.Element{
			play(0, 10e-9),
			play(1, 20e-9),
			&request.SwapPhase{ElementCommon: request.DefaultCommon(), ChannelID1: 0, ChannelID2: 1},
			play(0, 20e-9),
			play(1, 10e-9),
		},
		Direction: request.Forwards,
	}
	a := resolveOK(t, stack)
	approx(t, "total", a.Duration, 40e-9)
	approx(t, "ch0 first", a.Children[0].Time, 0)
	approx(t, "ch1 first", a.Children[1].Time, 0)
	approx(t, "swap", a.Children[2].Time, 20e-9)
	approx(t, "ch0 second", a.Children[3].Time, 20e-9)
	approx(t, "ch1 second", a.Children[4].Time, 20e-9)
}

func TestBarrierZeroDuration(t *testing.T) {
	for _, ids := range [][]int{nil, {0}, {0, 1}} {
		b := &request.Barrier{ElementCommon: request.DefaultCommon(), ChannelIDs: ids}
		a := resolveOK(t, b)
		if a.Duration != 0 {
			t.Errorf("barrier with ids %v: duration %v, want 0", ids, a.Duration)
		}
	}
}

func TestBarrierSynchronizesChannels(t *testing.T) {
	// ch0 runs 30 ns, ch1 runs 10 ns; after the barrier both resume at
	// 30 ns.
	stack := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children: []request.Element{
			play(0, 30e-9),
			play(1, 10e-9),
			&request.Barrier{ElementCommon: request.DefaultCommon()},
			play(0, 5e-9),
			play(1, 5e-9),
		},
		Direction: request.Forwards,
	}
	a := resolveOK(t, stack)
	approx(t, "post-barrier ch0", a.Children[3].Time, 30e-9)
	approx(t, "post-barrier ch1", a.Children[4].Time, 30e-9)
}

func TestRepeatDuration(t *testing.T) {
	rep := &request.Repeat{
		ElementCommon: request.DefaultCommon(),
		Child:         play(0, 10e-9),
		Count:         3,
		Spacing:       5e-9,
	}
	a := resolveOK(t, rep)
	approx(t, "repeat duration", a.Duration, 3*10e-9+2*5e-9)
	approx(t, "second instance", a.Children[1].Time, 15e-9)

	one := &request.Repeat{ElementCommon: request.DefaultCommon(), Child: play(0, 10e-9), Count: 1}
	a = resolveOK(t, one)
	approx(t, "single repeat", a.Duration, 10e-9)
}

func TestAbsoluteDuration(t *testing.T) {
	abs := &request.Absolute{
		ElementCommon: request.DefaultCommon(),
		Children: []request.AbsoluteEntry{
			{Time: 0, Element: play(0, 10e-9)},
			{Time: 25e-9, Element: play(0, 10e-9)},
		},
	}
	a := resolveOK(t, abs)
	approx(t, "absolute duration", a.Duration, 35e-9)
	approx(t, "second child", a.Children[1].Time, 25e-9)
}

func TestGridStarPartition(t *testing.T) {
	// Columns *, 2*: remaining space splits R/3, 2R/3. A stretch child in
	// each column reveals the resolved widths.
	left := play(0, 1e-9)
	left.Alignment = request.AlignStretch
	left.Flexible = true
	right := play(1, 1e-9)
	right.Alignment = request.AlignStretch
	right.Flexible = true
	grid := fixed(&request.Grid{
		ElementCommon: request.DefaultCommon(),
		Columns:       []request.GridLength{request.GridStarLength(1), request.GridStarLength(2)},
		Children: []request.GridEntry{
			{Column: 0, Span: 1, Element: left},
			{Column: 1, Span: 1, Element: right},
		},
	}, 30e-9)
	a := resolveOK(t, grid)
	approx(t, "star 1 width", a.Children[0].Duration, 10e-9)
	approx(t, "star 2 width", a.Children[1].Duration, 20e-9)
	approx(t, "star 2 offset", a.Children[1].Time, 10e-9)
}

func TestGridAutoColumn(t *testing.T) {
	grid := &request.Grid{
		ElementCommon: request.DefaultCommon(),
		Columns: []request.GridLength{
			request.GridFixedLength(5e-9),
			request.GridAutoLength(),
		},
		Children: []request.GridEntry{
			{Column: 1, Span: 1, Element: play(0, 20e-9)},
		},
	}
	a := resolveOK(t, grid)
	approx(t, "grid natural", a.Duration, 25e-9)
	approx(t, "auto column child", a.Children[0].Time, 5e-9)
}

func TestGridColumnOutOfRange(t *testing.T) {
	grid := &request.Grid{
		ElementCommon: request.DefaultCommon(),
		Columns:       []request.GridLength{request.GridStarLength(1)},
		Children: []request.GridEntry{
			{Column: 2, Span: 1, Element: play(0, 1e-9)},
		},
	}
	_, err := Resolve(grid, testOpt)
	var le *LayoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected LayoutError, got %v", err)
	}
}

func TestOversizeRejected(t *testing.T) {
	// Content needs 20 ns inside a 10 ns cap.
	inner := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      []request.Element{play(0, 20e-9)},
	}
	inner.MaxDuration = 10e-9
	_, err := Resolve(inner, testOpt)
	var le *LayoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected LayoutError, got %v", err)
	}
}

func TestOversizeAllowed(t *testing.T) {
	inner := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      []request.Element{play(0, 20e-9)},
	}
	inner.MaxDuration = 10e-9
	opt := Options{TimeTolerance: 1e-12, AllowOversize: true}
	a, err := Resolve(inner, opt)
	if err != nil {
		t.Fatalf("Resolve with oversize allowed: %v", err)
	}
	approx(t, "clamped duration", a.Duration, 10e-9)
}

func TestOverConstrained(t *testing.T) {
	p := play(0, 10e-9)
	p.MinDuration = 20e-9
	p.MaxDuration = 10e-9
	_, err := Resolve(p, testOpt)
	var le *LayoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected LayoutError, got %v", err)
	}
}

func TestLayoutErrorCarriesPath(t *testing.T) {
	bad := play(0, 20e-9)
	bad.MinDuration = 5
	bad.MaxDuration = 1
	stack := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      []request.Element{play(0, 1e-9), bad},
	}
	_, err := Resolve(stack, testOpt)
	var le *LayoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected LayoutError, got %v", err)
	}
	if le.Path != "schedule/1" {
		t.Errorf("path = %q, want schedule/1", le.Path)
	}
}

func TestStretchChildAbsorbsExcess(t *testing.T) {
	stretchy := play(0, 10e-9)
	stretchy.Alignment = request.AlignStretch
	stretchy.Flexible = true
	stack := fixed(&request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      []request.Element{play(0, 10e-9), stretchy},
		Direction:     request.Forwards,
	}, 50e-9)
	a := resolveOK(t, stack)
	approx(t, "stretch child duration", a.Children[1].Duration, 40e-9)
}

func TestFixedDurationStackAnchorsEnd(t *testing.T) {
	// Default direction is backwards: a single child in a long fixed
	// stack lands at the end.
	stack := fixed(&request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      []request.Element{play(0, 20e-9)},
	}, 100e-9)
	a := resolveOK(t, stack)
	approx(t, "stack duration", a.Duration, 100e-9)
	approx(t, "child start", a.Children[0].Time, 80e-9)
}

func TestMarginsConsumeAllocation(t *testing.T) {
	p := play(0, 10e-9)
	p.MarginBefore = 2e-9
	p.MarginAfter = 3e-9
	a := resolveOK(t, p)
	approx(t, "inner time", a.Time, 2e-9)
	approx(t, "inner duration", a.Duration, 10e-9)
}
