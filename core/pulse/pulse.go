// core/pulse/pulse.go
// Pulse list construction. Pulses are grouped into bins sharing the same
// envelope and frequencies so the renderer can reuse the sampled envelope;
// within a bin, pulses at the same instant (within the time tolerance)
// merge by complex addition and near-zero amplitudes are dropped.
package pulse

import (
	"fmt"
	"math"
	"sort"

	"pulsegen-core/quant"
	"pulsegen-core/request"
)

// Spec is one pulse to add to a list, in the flattened instruction form.
type Spec struct {
	ShapeID int
	Width   float64
	Plateau float64
	// GlobalFreq accrues phase from channel time zero, LocalFreq from the
	// pulse start. Both in Hz.
	GlobalFreq float64
	LocalFreq  float64
	Time       float64
	Amplitude  float64
	DragCoef   float64
	// Phase is the constant phase term in cycles.
	Phase float64
}

// binKey identifies pulses that can share a sampled envelope.
type binKey struct {
	shapeID    int
	width      float64
	plateau    float64
	globalFreq float64
	localFreq  float64
}

type binPulse struct {
	time float64
	amp  complex128
	// drag is the drag amplitude, not yet multiplied by the sample rate.
	drag complex128
}

type bin struct {
	key    binKey
	pulses []binPulse
}

// List is an immutable set of binned pulses ready for rendering. Bins keep
// builder insertion order so superposition is deterministic.
type List struct {
	bins []bin
}

// Empty reports whether the list contains no pulses.
func (l *List) Empty() bool { return len(l.bins) == 0 }

// Builder accumulates pulses into bins.
type Builder struct {
	bins     []bin
	index    map[binKey]int
	ampTol   float64
	timeTol  float64
	phaseTol float64
}

// NewBuilder returns a builder using the request tolerances.
func NewBuilder(opt request.Options) *Builder {
	return &Builder{
		index:    make(map[binKey]int),
		ampTol:   opt.AmpTolerance,
		timeTol:  opt.TimeTolerance,
		phaseTol: opt.PhaseTolerance,
	}
}

// Push adds one pulse. Amplitudes below the amplitude tolerance are
// discarded; amplitudes beyond full scale or non-finite values are errors.
func (b *Builder) Push(p Spec) error {
	if math.IsNaN(p.Amplitude) || math.IsInf(p.Amplitude, 0) {
		return fmt.Errorf("non-finite amplitude at %v", p.Time)
	}
	if math.IsNaN(p.Phase) || math.IsInf(p.Phase, 0) {
		return fmt.Errorf("non-finite phase at %v", p.Time)
	}
	if math.Abs(p.Amplitude) > 1+b.ampTol {
		return fmt.Errorf("amplitude %v at %v exceeds full scale", p.Amplitude, p.Time)
	}
	if math.Abs(p.Amplitude) <= b.ampTol {
		return nil
	}
	width, plateau, shapeID := p.Width, p.Plateau, p.ShapeID
	// A rectangle has no shaped part: fold the width into the plateau.
	if shapeID == request.RectShapeID || width == 0 {
		plateau += width
		width = 0
		shapeID = request.RectShapeID
	}
	key := binKey{
		shapeID:    shapeID,
		width:      width,
		plateau:    plateau,
		globalFreq: p.GlobalFreq,
		localFreq:  p.LocalFreq,
	}
	i, ok := b.index[key]
	if !ok {
		i = len(b.bins)
		b.bins = append(b.bins, bin{key: key})
		b.index[key] = i
	}
	phase := 2 * math.Pi * quant.WrapPhase(p.Phase, b.phaseTol)
	amp := complex(p.Amplitude*math.Cos(phase), p.Amplitude*math.Sin(phase))
	b.bins[i].pulses = append(b.bins[i].pulses, binPulse{
		time: p.Time,
		amp:  amp,
		drag: amp * complex(0, p.DragCoef),
	})
	return nil
}

// Build sorts each bin by time and merges pulses whose times coincide
// within the time tolerance. The builder must not be reused afterwards.
func (b *Builder) Build() *List {
	for bi := range b.bins {
		pulses := b.bins[bi].pulses
		sort.SliceStable(pulses, func(i, j int) bool {
			return pulses[i].time < pulses[j].time
		})
		i := 0
		for j := 1; j < len(pulses); j++ {
			if quant.ApproxEq(pulses[i].time, pulses[j].time, b.timeTol) {
				pulses[i].amp += pulses[j].amp
				pulses[i].drag += pulses[j].drag
			} else {
				i++
				pulses[i] = pulses[j]
			}
		}
		b.bins[bi].pulses = pulses[:i+1]
	}
	return &List{bins: b.bins}
}
