// core/pulse/sample.go
// Waveform synthesis. Each binned pulse is aligned to the channel's sample
// grid, its envelope sampled once per (envelope, grid offset) pair, and
// mixed onto the complex buffer with an incrementally rotated carrier.
package pulse

import (
	"fmt"
	"math"
	"math/cmplx"

	"pulsegen-core/quant"
	"pulsegen-core/request"
	"pulsegen-core/shape"
)

// ChannelConfig is the per-channel sampling geometry.
type ChannelConfig struct {
	Length     int
	SampleRate float64
	Delay      float64
	AlignLevel int
	// AmpTolerance widens the overflow check on the finished buffer.
	AmpTolerance float64
}

// RenderError reports a synthesis failure with the offending pulse time.
type RenderError struct {
	Time float64
	Msg  string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error at %v: %s", e.Time, e.Msg)
}

// ShapeTable resolves shape ids to sampleable shapes.
type ShapeTable interface {
	Shape(id int) (shape.Shape, error)
}

// Shapes is a ShapeTable backed by a slice indexed by shape id.
type Shapes []shape.Shape

func (s Shapes) Shape(id int) (shape.Shape, error) {
	if id < 0 || id >= len(s) {
		return nil, fmt.Errorf("shape id %d out of range", id)
	}
	return s[id], nil
}

type envKey struct {
	shapeID int
	width   float64
	plateau float64
	offset  float64
}

// Render synthesizes the channel's complex waveform from a pulse list.
// Pulses extending past either end of the buffer are truncated to the part
// that falls inside it; out-of-scale or non-finite results are errors.
func Render(list *List, shapes ShapeTable, cfg ChannelConfig) ([]complex128, error) {
	waveform := make([]complex128, cfg.Length)
	dt := 1 / cfg.SampleRate
	cache := make(map[envKey][]float64)
	for _, bn := range list.bins {
		totalFreq := bn.key.globalFreq + bn.key.localFreq
		for _, p := range bn.pulses {
			ai := quant.Align(p.time+cfg.Delay, cfg.SampleRate, cfg.AlignLevel)
			if ai.Start >= cfg.Length {
				continue
			}
			start, skip := ai.Start, 0
			if start < 0 {
				skip = -start
				start = 0
			}
			dphase := 2 * math.Pi * totalFreq * dt
			phase0 := 2*math.Pi*(bn.key.globalFreq*(float64(ai.Start)*dt-cfg.Delay)+
				bn.key.localFreq*ai.Offset*dt) + float64(skip)*dphase
			out := waveform[start:]
			if bn.key.shapeID == request.RectShapeID {
				n := int(math.Ceil(bn.key.plateau*cfg.SampleRate)) - skip
				if n <= 0 {
					continue
				}
				if n > len(out) {
					n = len(out)
				}
				mixAddPlateau(out[:n], p.amp, phase0, dphase)
				continue
			}
			env, err := sampledEnvelope(cache, shapes, bn.key, ai.Offset, cfg.SampleRate)
			if err != nil {
				return nil, &RenderError{Time: p.time, Msg: err.Error()}
			}
			if skip >= len(env) {
				continue
			}
			drag := p.drag * complex(cfg.SampleRate, 0)
			mixAddEnvelope(out, env, skip, p.amp, drag, phase0, dphase)
		}
	}
	limit := 1 + cfg.AmpTolerance
	for i, y := range waveform {
		if cmplx.IsNaN(y) || cmplx.IsInf(y) {
			return nil, &RenderError{Time: float64(i) * dt, Msg: "non-finite sample"}
		}
		if math.Abs(real(y)) > limit || math.Abs(imag(y)) > limit {
			return nil, &RenderError{Time: float64(i) * dt, Msg: "sample exceeds full scale"}
		}
	}
	return waveform, nil
}

// sampledEnvelope returns the envelope samples for a bin at a given grid
// offset, caching per render call.
func sampledEnvelope(cache map[envKey][]float64, shapes ShapeTable, key binKey, offset, sampleRate float64) ([]float64, error) {
	ek := envKey{shapeID: key.shapeID, width: key.width, plateau: key.plateau, offset: offset}
	if env, ok := cache[ek]; ok {
		return env, nil
	}
	s, err := shapes.Shape(key.shapeID)
	if err != nil {
		return nil, err
	}
	env, err := buildEnvelope(s, key.width, key.plateau, offset, sampleRate)
	if err != nil {
		return nil, err
	}
	cache[ek] = env
	return env, nil
}

// buildEnvelope samples shape over [-1/2, 1/2] of its width with a flat
// plateau inserted at the center. offset is the fractional sample by which
// the pulse start misses the aligned grid point.
func buildEnvelope(s shape.Shape, width, plateau, offset, sampleRate float64) ([]float64, error) {
	dt := 1 / sampleRate
	tOffset := offset * dt
	t1 := width/2 - tOffset
	t2 := width/2 + plateau - tOffset
	t3 := width + plateau - tOffset
	length := int(math.Ceil(t3 * sampleRate))
	if length <= 0 {
		return nil, nil
	}
	env := make([]float64, length)
	x0 := -t1 / width
	dx := dt / width
	if plateau == 0 {
		if err := s.Sample(x0, dx, env); err != nil {
			return nil, err
		}
		return env, nil
	}
	plateauStart := int(math.Ceil(t1 * sampleRate))
	plateauEnd := int(math.Ceil(t2 * sampleRate))
	if plateauStart > length {
		plateauStart = length
	}
	if plateauEnd > length {
		plateauEnd = length
	}
	if err := s.Sample(x0, dx, env[:plateauStart]); err != nil {
		return nil, err
	}
	for i := plateauStart; i < plateauEnd; i++ {
		env[i] = 1
	}
	x2 := (float64(plateauEnd)*dt - t2) / width
	if err := s.Sample(x2, dx, env[plateauEnd:]); err != nil {
		return nil, err
	}
	return env, nil
}

// mixAddEnvelope superposes amplitude*env plus the drag term onto the
// waveform under an incrementally rotated carrier, starting at envelope
// index skip (the part clipped off before the buffer). The envelope
// derivative is the symmetric difference, treating samples outside the
// envelope as zero.
func mixAddEnvelope(waveform []complex128, env []float64, skip int, amp, drag complex128, phase0, dphase float64) {
	carrier := cmplx.Rect(1, phase0)
	dcarrier := cmplx.Rect(1, dphase)
	n := len(env)
	if m := skip + len(waveform); n > m {
		n = m
	}
	for i := skip; i < n; i++ {
		var left, right float64
		if i > 0 {
			left = env[i-1]
		}
		if i < len(env)-1 {
			right = env[i+1]
		}
		slope := (right - left) / 2
		waveform[i-skip] += carrier * (amp*complex(env[i], 0) + drag*complex(slope, 0))
		carrier *= dcarrier
	}
}

// mixAddPlateau superposes a constant amplitude under a rotating carrier.
func mixAddPlateau(waveform []complex128, amp complex128, phase0, dphase float64) {
	carrier := cmplx.Rect(1, phase0) * amp
	dcarrier := cmplx.Rect(1, dphase)
	for i := range waveform {
		waveform[i] += carrier
		carrier *= dcarrier
	}
}
