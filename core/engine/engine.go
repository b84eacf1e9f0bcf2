// core/engine/engine.go
// The synthesis pipeline: validate, resolve the schedule, flatten to
// per-channel instructions, then render and condition every channel.
// Scheduling and flattening are strictly sequential; rendering and
// filtering fan out per channel since they share no state.
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pulsegen-core/filter"
	"pulsegen-core/flatten"
	"pulsegen-core/pulse"
	"pulsegen-core/request"
	"pulsegen-core/schedule"
	"pulsegen-core/shape"
)

// Config holds synthesis parameters.
type Config struct {
	// MaxConcurrency caps the number of channels rendered in parallel.
	// Zero means one goroutine per channel.
	MaxConcurrency int
}

// Engine generates waveforms from schedule requests.
type Engine struct {
	cfg Config
}

// New creates a new Engine.
func New(c Config) *Engine { return &Engine{cfg: c} }

// Waveform is one channel's synthesized output split into in-phase and
// quadrature components.
type Waveform struct {
	I []float64
	Q []float64
}

// Generate processes one request to completion. The result maps channel
// names to waveforms; on any error no partial result is returned.
func (e *Engine) Generate(ctx context.Context, req *request.Request) (map[string]Waveform, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for ci := range req.Channels {
		ch := &req.Channels[ci]
		for si, s := range ch.IIR {
			if !filter.Stable(s) {
				return nil, fmt.Errorf("channel %s: iir section %d is unstable", ch.Name, si)
			}
		}
	}
	shapes, err := shapeTable(req.Shapes)
	if err != nil {
		return nil, err
	}

	arranged, err := schedule.Resolve(req.Schedule, schedule.Options{
		TimeTolerance: req.Options.TimeTolerance,
		AllowOversize: req.Options.AllowOversize,
	})
	if err != nil {
		return nil, err
	}
	program, err := flatten.Flatten(arranged, len(req.Channels))
	if err != nil {
		return nil, err
	}

	waveforms := make([]Waveform, len(req.Channels))
	g, ctx := errgroup.WithContext(ctx)
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}
	for ci := range req.Channels {
		ci := ci
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ch := &req.Channels[ci]
			w, err := renderChannel(ch, program.Pulses[ci], shapes, req.Options)
			if err != nil {
				return fmt.Errorf("channel %s: %w", ch.Name, err)
			}
			waveforms[ci] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Waveform, len(req.Channels))
	for ci := range req.Channels {
		out[req.Channels[ci].Name] = waveforms[ci]
	}
	return out, nil
}

func shapeTable(infos []request.Shape) (pulse.Shapes, error) {
	shapes := make(pulse.Shapes, len(infos))
	for i, info := range infos {
		s, err := shape.FromRequest(info)
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
		shapes[i] = s
	}
	return shapes, nil
}

func renderChannel(ch *request.ChannelInfo, pulses []flatten.Pulse, shapes pulse.Shapes, opt request.Options) (Waveform, error) {
	b := pulse.NewBuilder(opt)
	for _, p := range pulses {
		err := b.Push(pulse.Spec{
			ShapeID:    p.ShapeID,
			Width:      p.Width,
			Plateau:    p.Plateau,
			GlobalFreq: ch.BaseFreq,
			LocalFreq:  p.LocalFreq,
			Time:       p.Time,
			Amplitude:  p.Amplitude,
			DragCoef:   p.DragCoef,
			Phase:      p.Phase,
		})
		if err != nil {
			return Waveform{}, err
		}
	}
	samples, err := pulse.Render(b.Build(), shapes, pulse.ChannelConfig{
		Length:       ch.Length,
		SampleRate:   ch.SampleRate,
		Delay:        ch.Delay,
		AlignLevel:   ch.AlignLevel,
		AmpTolerance: opt.AmpTolerance,
	})
	if err != nil {
		return Waveform{}, err
	}
	if err := filter.Apply(samples, ch); err != nil {
		return Waveform{}, err
	}
	w := Waveform{I: make([]float64, len(samples)), Q: make([]float64, len(samples))}
	for i, y := range samples {
		w.I[i] = real(y)
		w.Q[i] = imag(y)
	}
	return w, nil
}
