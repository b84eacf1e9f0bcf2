// core/quant/quant.go
// Tolerance-aware time arithmetic and sample-grid alignment.
//
// All schedule times are float64 seconds. Comparing them exactly is wrong
// once a deep tree has compounded rounding error, so every comparison in the
// scheduler goes through the epsilon helpers here. Pulse start times are
// quantized onto a channel's alignment grid of 2^alignLevel samples; the
// fractional remainder feeds envelope evaluation so sub-sample placement
// stays accurate.
package quant

import "math"

// ApproxEq reports whether a and b are equal within tol.
func ApproxEq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// Less reports whether a is smaller than b by more than tol.
func Less(a, b, tol float64) bool {
	return a < b-tol
}

// Clamp limits v to [lo, hi]. hi may be +Inf.
func Clamp(v, lo, hi float64) float64 {
	return math.Max(math.Min(v, hi), lo)
}

// AlignedIndex is a pulse start position on a channel's sample grid.
type AlignedIndex struct {
	// Start is the first integer sample index covered by the pulse.
	Start int
	// Offset is Start minus the aligned fractional index, in samples.
	// Always in [0, 1).
	Offset float64
}

// Align quantizes time t (seconds) to the grid of 2^alignLevel samples at
// sampleRate, rounding the pulse start up onto the grid. alignLevel is
// typically negative (sub-sample grid) or zero (whole samples).
func Align(t, sampleRate float64, alignLevel int) AlignedIndex {
	grid := math.Exp2(float64(alignLevel))
	x := t * sampleRate / grid
	// The product accumulates rounding error, so a time that lies exactly
	// on the grid can land an ulp past an integer and ceil one grid step
	// too far. Snap near-integers before rounding up.
	if r := math.Round(x); math.Abs(x-r) <= alignSnapTol*(1+math.Abs(x)) {
		x = r
	}
	frac := math.Ceil(x) * grid
	start := math.Ceil(frac)
	return AlignedIndex{
		Start:  int(start),
		Offset: start - frac,
	}
}

// alignSnapTol is the relative slack for treating a fractional grid index
// as exactly on the grid.
const alignSnapTol = 1e-9

// WrapPhase folds a phase in cycles into [0, 1) and snaps values within tol
// of a whole cycle to zero.
func WrapPhase(p, tol float64) float64 {
	p -= math.Floor(p)
	if p <= tol || 1-p <= tol {
		return 0
	}
	return p
}
