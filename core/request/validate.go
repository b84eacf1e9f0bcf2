// core/request/validate.go
package request

import (
	"fmt"
	"math"
)

// ValidationError rejects a request before any layout work happens.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid request: " + e.Msg
	}
	return fmt.Sprintf("invalid request at %s: %s", e.Path, e.Msg)
}

func invalidf(path, format string, args ...any) error {
	return &ValidationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the whole request against the data-model invariants:
// finite non-negative margins and durations, valid channel/shape indices,
// sorted interpolation control points, sane channel definitions. It must
// pass before the request is handed to the scheduler.
func (r *Request) Validate() error {
	for i, ch := range r.Channels {
		if ch.Name == "" {
			return invalidf(fmt.Sprintf("channels[%d]", i), "empty name")
		}
		if ch.SampleRate <= 0 || !isFinite(ch.SampleRate) {
			return invalidf(fmt.Sprintf("channels[%d]", i), "sample_rate %v must be finite and positive", ch.SampleRate)
		}
		if ch.Length < 0 {
			return invalidf(fmt.Sprintf("channels[%d]", i), "negative length %d", ch.Length)
		}
		if !isFinite(ch.BaseFreq) || !isFinite(ch.Delay) {
			return invalidf(fmt.Sprintf("channels[%d]", i), "base_freq and delay must be finite")
		}
	}
	seen := make(map[string]struct{}, len(r.Channels))
	for i, ch := range r.Channels {
		if _, dup := seen[ch.Name]; dup {
			return invalidf(fmt.Sprintf("channels[%d]", i), "duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}
	}
	for i, s := range r.Shapes {
		if interp, ok := s.(Interpolated); ok {
			if err := validateInterpolated(interp, fmt.Sprintf("shapes[%d]", i)); err != nil {
				return err
			}
		}
	}
	if r.Schedule == nil {
		return invalidf("schedule", "missing root element")
	}
	if err := validateOptions(r.Options); err != nil {
		return err
	}
	return r.validateElement(r.Schedule, "schedule")
}

func validateOptions(o Options) error {
	if o.TimeTolerance <= 0 || !isFinite(o.TimeTolerance) {
		return invalidf("options", "time_tolerance %v must be finite and positive", o.TimeTolerance)
	}
	if o.AmpTolerance < 0 || o.PhaseTolerance < 0 {
		return invalidf("options", "tolerances must be non-negative")
	}
	return nil
}

func validateInterpolated(s Interpolated, path string) error {
	if len(s.X) != len(s.Y) {
		return invalidf(path, "x and y arrays differ in length (%d vs %d)", len(s.X), len(s.Y))
	}
	if len(s.X) < 2 {
		return invalidf(path, "need at least two control points, got %d", len(s.X))
	}
	for i := 1; i < len(s.X); i++ {
		if !(s.X[i] > s.X[i-1]) {
			return invalidf(path, "x array not strictly ascending at index %d", i)
		}
	}
	return nil
}

func (r *Request) validateElement(e Element, path string) error {
	if err := r.validateCommon(e.Common(), path); err != nil {
		return err
	}
	switch v := e.(type) {
	case *Play:
		if err := r.checkChannel(v.ChannelID, path); err != nil {
			return err
		}
		if v.ShapeID != RectShapeID && (v.ShapeID < 0 || v.ShapeID >= len(r.Shapes)) {
			return invalidf(path, "shape_id %d out of range (%d shapes)", v.ShapeID, len(r.Shapes))
		}
		if v.Width < 0 || v.Plateau < 0 || !isFinite(v.Width) || !isFinite(v.Plateau) {
			return invalidf(path, "width and plateau must be finite and non-negative")
		}
		if !isFinite(v.Amplitude) || !isFinite(v.Phase) || !isFinite(v.Frequency) || !isFinite(v.DragCoef) {
			return invalidf(path, "pulse parameters must be finite")
		}
	case *ShiftPhase:
		if err := r.checkChannel(v.ChannelID, path); err != nil {
			return err
		}
		if !isFinite(v.Phase) {
			return invalidf(path, "phase must be finite")
		}
	case *SetPhase:
		if err := r.checkChannel(v.ChannelID, path); err != nil {
			return err
		}
		if !isFinite(v.Phase) {
			return invalidf(path, "phase must be finite")
		}
	case *ShiftFrequency:
		if err := r.checkChannel(v.ChannelID, path); err != nil {
			return err
		}
		if !isFinite(v.Frequency) {
			return invalidf(path, "frequency must be finite")
		}
	case *SetFrequency:
		if err := r.checkChannel(v.ChannelID, path); err != nil {
			return err
		}
		if !isFinite(v.Frequency) {
			return invalidf(path, "frequency must be finite")
		}
	case *SwapPhase:
		if err := r.checkChannel(v.ChannelID1, path); err != nil {
			return err
		}
		if err := r.checkChannel(v.ChannelID2, path); err != nil {
			return err
		}
	case *Barrier:
		for _, id := range v.ChannelIDs {
			if err := r.checkChannel(id, path); err != nil {
				return err
			}
		}
	case *Repeat:
		if v.Count < 0 {
			return invalidf(path, "negative repeat count %d", v.Count)
		}
		if v.Spacing < 0 || !isFinite(v.Spacing) {
			return invalidf(path, "spacing must be finite and non-negative")
		}
		if v.Child == nil {
			return invalidf(path, "missing repeat child")
		}
		return r.validateElement(v.Child, path+"/child")
	case *Stack:
		for i, c := range v.Children {
			if c == nil {
				return invalidf(path, "nil child at index %d", i)
			}
			if err := r.validateElement(c, fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
	case *Absolute:
		for i, entry := range v.Children {
			if entry.Element == nil {
				return invalidf(path, "nil child at index %d", i)
			}
			if entry.Time < 0 || !isFinite(entry.Time) {
				return invalidf(fmt.Sprintf("%s/%d", path, i), "entry time %v must be finite and non-negative", entry.Time)
			}
			if err := r.validateElement(entry.Element, fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
	case *Grid:
		for i, col := range v.Columns {
			if col.Unit == GridSecond && (col.Value < 0 || !isFinite(col.Value)) {
				return invalidf(path, "column %d length %v must be finite and non-negative", i, col.Value)
			}
			if col.Unit == GridStar && (col.Value <= 0 || !isFinite(col.Value)) {
				return invalidf(path, "column %d star weight %v must be finite and positive", i, col.Value)
			}
		}
		for i, entry := range v.Children {
			if entry.Element == nil {
				return invalidf(path, "nil child at index %d", i)
			}
			if entry.Column < 0 {
				return invalidf(fmt.Sprintf("%s/%d", path, i), "negative column %d", entry.Column)
			}
			if entry.Span < 1 {
				return invalidf(fmt.Sprintf("%s/%d", path, i), "span %d must be at least 1", entry.Span)
			}
			if err := r.validateElement(entry.Element, fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
	default:
		return invalidf(path, "unknown element variant %T", e)
	}
	return nil
}

func (r *Request) validateCommon(c *ElementCommon, path string) error {
	if c.MarginBefore < 0 || c.MarginAfter < 0 || !isFinite(c.MarginBefore) || !isFinite(c.MarginAfter) {
		return invalidf(path, "margins must be finite and non-negative")
	}
	if c.Duration != nil && (*c.Duration < 0 || !isFinite(*c.Duration)) {
		return invalidf(path, "duration %v must be finite and non-negative", *c.Duration)
	}
	if c.MinDuration < 0 || !isFinite(c.MinDuration) {
		return invalidf(path, "min_duration %v must be finite and non-negative", c.MinDuration)
	}
	if c.MaxDuration < 0 || math.IsNaN(c.MaxDuration) {
		return invalidf(path, "max_duration %v must be non-negative", c.MaxDuration)
	}
	if c.Alignment < AlignEnd || c.Alignment > AlignStretch {
		return invalidf(path, "unknown alignment %d", int(c.Alignment))
	}
	return nil
}

func (r *Request) checkChannel(id int, path string) error {
	if id < 0 || id >= len(r.Channels) {
		return invalidf(path, "channel_id %d out of range (%d channels)", id, len(r.Channels))
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
