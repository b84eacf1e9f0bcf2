// core/flatten/flatten.go
// Instruction flattening: a single deterministic walk over the arranged
// tree that turns layout results into per-channel pulse instructions with
// absolute times.
//
// Each channel carries a cursor (deltaFreq, phase0) describing its
// accumulated frequency shift relative to the base frequency and its phase
// offset in cycles. The accumulated phase at time t is
//
//	acc(t) = deltaFreq*t + phase0
//
// and every state instruction rewrites the cursor so that acc stays
// continuous across the change. A Play at time t therefore resolves to the
// constant phase term phase0 + deltaFreq*t + pulse phase, with the
// remaining time dependence folded into the pulse's local frequency.
package flatten

import (
	"fmt"
	"math"

	"pulsegen-core/request"
	"pulsegen-core/schedule"
)

// Pulse is one concrete play instruction on a channel.
type Pulse struct {
	// Time is the absolute start of the pulse envelope, before the
	// channel delay is applied.
	Time      float64
	Amplitude float64
	ShapeID   int
	Width     float64
	Plateau   float64
	DragCoef  float64
	// LocalFreq is the detuning relative to the channel base frequency,
	// accrued from the pulse start.
	LocalFreq float64
	// Phase is the constant phase term in cycles.
	Phase float64
}

// ChannelState is the phase/frequency cursor of one channel.
type ChannelState struct {
	// DeltaFreq is the accumulated frequency shift relative to the
	// channel base frequency.
	DeltaFreq float64
	// Phase is the accumulated phase offset in cycles.
	Phase float64
}

// PhaseAt returns the accumulated phase in cycles at time t.
func (s ChannelState) PhaseAt(t float64) float64 {
	return s.DeltaFreq*t + s.Phase
}

// Program is the flattened form of one schedule: per-channel pulse lists in
// emission order plus the final cursor of every channel.
type Program struct {
	Pulses [][]Pulse
	Final  []ChannelState
}

// InstructionError reports a bad instruction with its channel and time.
type InstructionError struct {
	ChannelID int
	Time      float64
	Msg       string
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction error on channel %d at %v: %s", e.ChannelID, e.Time, e.Msg)
}

type flattener struct {
	states []ChannelState
	pulses [][]Pulse
}

// Flatten walks the arranged tree in document order and produces the
// per-channel instruction program. numChannels is the size of the request's
// channel table; every referenced channel id must be below it.
func Flatten(root *schedule.Arranged, numChannels int) (*Program, error) {
	f := &flattener{
		states: make([]ChannelState, numChannels),
		pulses: make([][]Pulse, numChannels),
	}
	if err := f.walk(root, 0, true); err != nil {
		return nil, err
	}
	return &Program{Pulses: f.pulses, Final: f.states}, nil
}

// walk visits one arranged element. Invisibility is inherited: an invisible
// subtree occupies its time and applies its state instructions but emits no
// pulses.
func (f *flattener) walk(a *schedule.Arranged, base float64, visible bool) error {
	t := base + a.Time
	visible = visible && a.Element.Common().Visible
	switch v := a.Element.(type) {
	case *request.Play:
		return f.play(v, a, t, visible)
	case *request.ShiftPhase:
		s, err := f.state(v.ChannelID, t)
		if err != nil {
			return err
		}
		s.Phase += v.Phase
	case *request.SetPhase:
		s, err := f.state(v.ChannelID, t)
		if err != nil {
			return err
		}
		s.Phase = v.Phase - s.DeltaFreq*t
	case *request.ShiftFrequency:
		s, err := f.state(v.ChannelID, t)
		if err != nil {
			return err
		}
		s.Phase -= v.Frequency * t
		s.DeltaFreq += v.Frequency
	case *request.SetFrequency:
		s, err := f.state(v.ChannelID, t)
		if err != nil {
			return err
		}
		s.Phase += (s.DeltaFreq - v.Frequency) * t
		s.DeltaFreq = v.Frequency
	case *request.SwapPhase:
		s1, err := f.state(v.ChannelID1, t)
		if err != nil {
			return err
		}
		s2, err := f.state(v.ChannelID2, t)
		if err != nil {
			return err
		}
		acc1, acc2 := s1.PhaseAt(t), s2.PhaseAt(t)
		s1.Phase = acc2 - s1.DeltaFreq*t
		s2.Phase = acc1 - s2.DeltaFreq*t
	case *request.Barrier:
		// Synchronization is resolved entirely by layout.
	default:
		for _, child := range a.Children {
			if err := f.walk(child, t, visible); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *flattener) state(ch int, t float64) (*ChannelState, error) {
	if ch < 0 || ch >= len(f.states) {
		return nil, &InstructionError{ChannelID: ch, Time: t, Msg: "channel id out of range"}
	}
	return &f.states[ch], nil
}

func (f *flattener) play(v *request.Play, a *schedule.Arranged, t float64, visible bool) error {
	s, err := f.state(v.ChannelID, t)
	if err != nil {
		return err
	}
	if !visible {
		return nil
	}
	plateau := v.Plateau
	if v.Flexible {
		// A flexible pulse fills its arranged duration with plateau.
		plateau = math.Max(a.Duration-v.Width, v.Plateau)
	}
	f.pulses[v.ChannelID] = append(f.pulses[v.ChannelID], Pulse{
		Time:      t,
		Amplitude: v.Amplitude,
		ShapeID:   v.ShapeID,
		Width:     v.Width,
		Plateau:   plateau,
		DragCoef:  v.DragCoef,
		LocalFreq: s.DeltaFreq + v.Frequency,
		Phase:     s.Phase + s.DeltaFreq*t + v.Phase,
	})
	return nil
}
