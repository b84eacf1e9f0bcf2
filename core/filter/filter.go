// core/filter/filter.go
// Post-synthesis conditioning: IQ calibration, an IIR biquad cascade, and
// FIR convolution, all operating in place on a channel's complex buffer.
// Any stage producing a non-finite sample fails the whole channel.
package filter

import (
	"fmt"
	"math"
	"math/cmplx"

	"pulsegen-core/request"
)

// FilterError reports which conditioning stage produced a bad sample.
type FilterError struct {
	Stage string
	Index int
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s produced a non-finite sample at index %d", e.Stage, e.Index)
}

// ApplyIq applies the 2x2 calibration transform plus offsets to every
// sample, reading the real part as I and the imaginary part as Q.
func ApplyIq(w []complex128, cal *request.IqCalibration) {
	if cal == nil {
		return
	}
	for n, y := range w {
		i, q := real(y), imag(y)
		w[n] = complex(
			cal.A*i+cal.B*q+cal.IOffset,
			cal.C*i+cal.D*q+cal.QOffset,
		)
	}
}

// ApplyIIR runs the biquad cascade over the buffer in order. Each section
// is the direct-form-II-transposed recurrence with a0 normalized to 1.
func ApplyIIR(w []complex128, sections []request.Biquad) error {
	for _, s := range sections {
		var z1, z2 complex128
		b0 := complex(s.B0, 0)
		b1 := complex(s.B1, 0)
		b2 := complex(s.B2, 0)
		a1 := complex(s.A1, 0)
		a2 := complex(s.A2, 0)
		for n, x := range w {
			y := b0*x + z1
			z1 = b1*x - a1*y + z2
			z2 = b2*x - a2*y
			w[n] = y
		}
	}
	if i := firstNonFinite(w); i >= 0 {
		return &FilterError{Stage: "iir cascade", Index: i}
	}
	return nil
}

// ApplyFIR convolves the buffer with the coefficient sequence, truncating
// the result to the original length. An empty sequence is the identity.
func ApplyFIR(w []complex128, coefs []float64) error {
	if len(coefs) == 0 {
		return nil
	}
	out := make([]complex128, len(w))
	for n := range w {
		var acc complex128
		for k, c := range coefs {
			if n-k < 0 {
				break
			}
			acc += complex(c, 0) * w[n-k]
		}
		out[n] = acc
	}
	copy(w, out)
	if i := firstNonFinite(w); i >= 0 {
		return &FilterError{Stage: "fir convolution", Index: i}
	}
	return nil
}

// Apply runs the channel's full conditioning chain: IQ calibration, then
// the IIR cascade, then the FIR filter.
func Apply(w []complex128, ch *request.ChannelInfo) error {
	ApplyIq(w, ch.IqCal)
	if err := ApplyIIR(w, ch.IIR); err != nil {
		return err
	}
	return ApplyFIR(w, ch.FIR)
}

func firstNonFinite(w []complex128) int {
	for i, y := range w {
		if cmplx.IsNaN(y) || cmplx.IsInf(y) {
			return i
		}
	}
	return -1
}

// Stable reports whether a biquad's poles lie inside the unit circle.
// Unstable sections grow without bound over a long buffer, so the engine
// rejects them up front.
func Stable(s request.Biquad) bool {
	// Jury criterion for 1 + a1 z^-1 + a2 z^-2.
	return math.Abs(s.A2) < 1 && math.Abs(s.A1) < 1+s.A2
}
