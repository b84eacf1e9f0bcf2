// core/shape/shape.go
// Pulse envelope evaluation. A shape is a unit-support function over
// [-0.5, 0.5]; the renderer samples it across a pulse's rising and falling
// edges and inserts the plateau between them.
package shape

import (
	"fmt"
	"math"

	"pulsegen-core/request"
)

// Shape evaluates a pulse envelope over its unit support.
type Shape interface {
	// Sample fills out with the envelope at x0, x0+dx, x0+2dx, ...
	Sample(x0, dx float64, out []float64) error
}

// FromRequest maps a request shape variant to its evaluator.
func FromRequest(s request.Shape) (Shape, error) {
	switch v := s.(type) {
	case request.Hann:
		return HannShape{}, nil
	case request.Triangle:
		return TriangleShape{}, nil
	case request.Interpolated:
		return InterpolatedShape{X: v.X, Y: v.Y}, nil
	}
	return nil, fmt.Errorf("unknown shape variant %T", s)
}

// HannShape is the raised-cosine window: 0 at the edges, 1 at the center.
type HannShape struct{}

func (HannShape) Sample(x0, dx float64, out []float64) error {
	for i := range out {
		x := x0 + float64(i)*dx
		if x < -0.5 || x > 0.5 {
			out[i] = 0
			continue
		}
		out[i] = 0.5 * (1 + math.Cos(2*math.Pi*x))
	}
	return nil
}

// TriangleShape ramps linearly from 0 to 1 and back.
type TriangleShape struct{}

func (TriangleShape) Sample(x0, dx float64, out []float64) error {
	for i := range out {
		x := x0 + float64(i)*dx
		v := 1 - 2*math.Abs(x)
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	return nil
}

// InterpolatedShape linearly interpolates between control points. X must
// be strictly ascending (validated at request construction); sampling
// outside [X[0], X[len-1]] is a hard error, not an extrapolation.
type InterpolatedShape struct {
	X []float64
	Y []float64
}

func (s InterpolatedShape) Sample(x0, dx float64, out []float64) error {
	lo, hi := s.X[0], s.X[len(s.X)-1]
	// seg advances monotonically because dx > 0.
	seg := 0
	for i := range out {
		x := x0 + float64(i)*dx
		if x < lo || x > hi {
			return fmt.Errorf("interpolated shape evaluated at %v outside domain [%v, %v]", x, lo, hi)
		}
		for seg < len(s.X)-2 && x > s.X[seg+1] {
			seg++
		}
		x1, x2 := s.X[seg], s.X[seg+1]
		y1, y2 := s.Y[seg], s.Y[seg+1]
		out[i] = y1 + (y2-y1)*(x-x1)/(x2-x1)
	}
	return nil
}
