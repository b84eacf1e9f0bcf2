// core/request/request.go
// Data model for waveform generation requests: channels, pulse shapes,
// options, and the schedule element tree. Values are plain immutable data;
// all behavior lives in the scheduler and renderer packages.
//
// Field declaration order matters: the wire codec serializes each struct as
// an ordered tuple in exactly this order.
package request

import (
	"fmt"
	"math"
)

// Biquad is one second-order IIR section. A channel's IIR chain is an
// ordered cascade of these.
type Biquad struct {
	B0 float64
	B1 float64
	B2 float64
	A1 float64
	A2 float64
}

// IqCalibration is a 2x2 linear transform plus offset applied to I/Q
// samples after synthesis:
//
//	I' = A*I + B*Q + IOffset
//	Q' = C*I + D*Q + QOffset
type IqCalibration struct {
	A       float64
	B       float64
	C       float64
	D       float64
	IOffset float64
	QOffset float64
}

// ChannelInfo describes one output channel. Channels are referenced
// elsewhere by their index in Request.Channels.
type ChannelInfo struct {
	Name       string
	BaseFreq   float64
	SampleRate float64
	Delay      float64
	Length     int
	AlignLevel int
	IqCal      *IqCalibration
	IIR        []Biquad
	FIR        []float64
}

// Options holds tolerances and scheduling switches.
type Options struct {
	TimeTolerance  float64
	AmpTolerance   float64
	PhaseTolerance float64
	AllowOversize  bool
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		TimeTolerance:  1e-12,
		AmpTolerance:   0.1 / 65536,
		PhaseTolerance: 1e-4,
		AllowOversize:  false,
	}
}

// Shape is a unit-support pulse envelope description. The set of variants
// is closed: Hann, Triangle, Interpolated.
type Shape interface {
	shapeTag() int
}

// Hann is the analytic raised-cosine window.
type Hann struct{}

// Triangle is a piecewise-linear ramp up and down.
type Triangle struct{}

// Interpolated linearly interpolates between control points. X must be
// strictly ascending; evaluation outside [X[0], X[len-1]] is an error.
type Interpolated struct {
	X []float64
	Y []float64
}

// Wire tags for Shape variants.
const (
	ShapeTagHann         = 0
	ShapeTagTriangle     = 1
	ShapeTagInterpolated = 2
)

func (Hann) shapeTag() int         { return ShapeTagHann }
func (Triangle) shapeTag() int     { return ShapeTagTriangle }
func (Interpolated) shapeTag() int { return ShapeTagInterpolated }

// ShapeTag returns the fixed wire tag of a shape variant.
func ShapeTag(s Shape) int { return s.shapeTag() }

// RectShapeID is the sentinel shape id for a rectangle pulse: no envelope
// shape, the whole width+plateau renders as a flat plateau.
const RectShapeID = -1

// Alignment positions an element inside the span allocated by its parent.
type Alignment int

const (
	AlignEnd Alignment = iota
	AlignStart
	AlignCenter
	AlignStretch
)

func (a Alignment) String() string {
	switch a {
	case AlignEnd:
		return "end"
	case AlignStart:
		return "start"
	case AlignCenter:
		return "center"
	case AlignStretch:
		return "stretch"
	}
	return fmt.Sprintf("alignment(%d)", int(a))
}

// ParseAlignment converts the textual form used in schedule documents.
func ParseAlignment(s string) (Alignment, error) {
	switch s {
	case "end":
		return AlignEnd, nil
	case "start":
		return AlignStart, nil
	case "center":
		return AlignCenter, nil
	case "stretch":
		return AlignStretch, nil
	}
	return 0, fmt.Errorf("unknown alignment %q", s)
}

// Direction selects which end a Stack arranges its children from.
type Direction int

const (
	Backwards Direction = iota
	Forwards
)

func (d Direction) String() string {
	if d == Forwards {
		return "forwards"
	}
	return "backwards"
}

// ParseDirection converts the textual form used in schedule documents.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "backwards":
		return Backwards, nil
	case "forwards":
		return Forwards, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// GridUnit is the sizing mode of a grid column.
type GridUnit int

const (
	GridSecond GridUnit = iota
	GridAuto
	GridStar
)

// GridLength is the declared width of one grid column.
type GridLength struct {
	Value float64
	Unit  GridUnit
}

// GridAutoLength returns an auto-sized column.
func GridAutoLength() GridLength { return GridLength{Value: math.NaN(), Unit: GridAuto} }

// GridStarLength returns a star-sized column with the given weight.
func GridStarLength(w float64) GridLength { return GridLength{Value: w, Unit: GridStar} }

// GridFixedLength returns a fixed column of the given duration.
func GridFixedLength(v float64) GridLength { return GridLength{Value: v, Unit: GridSecond} }

// ParseGridLength accepts "auto", "N*", "*", or a duration in seconds
// ("10e-9"), mirroring the shorthand accepted by schedule documents.
func ParseGridLength(s string) (GridLength, error) {
	if s == "auto" {
		return GridAutoLength(), nil
	}
	if s == "*" {
		return GridStarLength(1), nil
	}
	if n := len(s); n > 1 && s[n-1] == '*' {
		var w float64
		if _, err := fmt.Sscanf(s[:n-1], "%g", &w); err != nil {
			return GridLength{}, fmt.Errorf("bad star grid length %q", s)
		}
		return GridStarLength(w), nil
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return GridLength{}, fmt.Errorf("bad grid length %q", s)
	}
	return GridFixedLength(v), nil
}

// ElementCommon carries the layout attributes shared by every element.
type ElementCommon struct {
	// MarginBefore and MarginAfter reserve time inside the element's own
	// allocation, before and after its content.
	MarginBefore float64
	MarginAfter  float64
	Alignment    Alignment
	// Visible elements emit instructions; invisible ones still occupy
	// their allocated time.
	Visible bool
	// Duration is the requested duration; nil means size to content.
	Duration    *float64
	MaxDuration float64
	MinDuration float64
}

// DefaultCommon returns the attribute defaults: end alignment, visible,
// content-sized, unbounded maximum.
func DefaultCommon() ElementCommon {
	return ElementCommon{
		Alignment:   AlignEnd,
		Visible:     true,
		MaxDuration: math.Inf(1),
	}
}

// Margin normalizes a scalar margin to the (before, after) pair.
func Margin(m float64) (float64, float64) { return m, m }

// Element is a node of the schedule tree. The variant set is closed; the
// scheduler dispatches exhaustively on it.
type Element interface {
	Common() *ElementCommon
	elementTag() int
}

// Wire tags for Element variants.
const (
	ElemTagPlay = iota
	ElemTagShiftPhase
	ElemTagSetPhase
	ElemTagShiftFrequency
	ElemTagSetFrequency
	ElemTagSwapPhase
	ElemTagBarrier
	ElemTagRepeat
	ElemTagStack
	ElemTagAbsolute
	ElemTagGrid
)

// ElementTag returns the fixed wire tag of an element variant.
func ElementTag(e Element) int { return e.elementTag() }

// Play emits one pulse on a channel. Phase is in cycles. If Flexible and
// the alignment is stretch, the plateau extends to fill the allocation.
type Play struct {
	ElementCommon
	ChannelID int
	Amplitude float64
	ShapeID   int
	Width     float64
	Plateau   float64
	DragCoef  float64
	Frequency float64
	Phase     float64
	Flexible  bool
}

// ShiftPhase adds Phase (cycles) to a channel's accumulated phase.
type ShiftPhase struct {
	ElementCommon
	ChannelID int
	Phase     float64
}

// SetPhase overwrites a channel's phase offset so the accumulated phase at
// the instruction time equals Phase (cycles).
type SetPhase struct {
	ElementCommon
	ChannelID int
	Phase     float64
}

// ShiftFrequency adds Frequency to a channel's accumulated frequency shift.
type ShiftFrequency struct {
	ElementCommon
	ChannelID int
	Frequency float64
}

// SetFrequency overwrites a channel's accumulated frequency shift.
type SetFrequency struct {
	ElementCommon
	ChannelID int
	Frequency float64
}

// SwapPhase exchanges the accumulated phase of two channels. Applying the
// same swap twice restores both.
type SwapPhase struct {
	ElementCommon
	ChannelID1 int
	ChannelID2 int
}

// Barrier is a zero-duration synchronization point. An empty ChannelIDs
// list synchronizes every channel visible to the parent.
type Barrier struct {
	ElementCommon
	ChannelIDs []int
}

// Repeat tiles Child Count times with Spacing between instances.
type Repeat struct {
	ElementCommon
	Child   Element
	Count   int
	Spacing float64
}

// Stack arranges children sequentially along Direction.
type Stack struct {
	ElementCommon
	Children  []Element
	Direction Direction
}

// WithChildren returns a copy of the stack with replaced children.
func (s Stack) WithChildren(children ...Element) Stack {
	s.Children = children
	return s
}

// AbsoluteEntry places an element at an explicit offset from the start of
// its Absolute container.
type AbsoluteEntry struct {
	Time    float64
	Element Element
}

// Absolute places children at explicit offsets; its natural duration is
// the maximum child end time.
type Absolute struct {
	ElementCommon
	Children []AbsoluteEntry
}

// WithChildren returns a copy of the absolute schedule with replaced
// children, all at offset zero.
func (a Absolute) WithChildren(children ...Element) Absolute {
	entries := make([]AbsoluteEntry, len(children))
	for i, c := range children {
		entries[i] = AbsoluteEntry{Element: c}
	}
	a.Children = entries
	return a
}

// GridEntry assigns an element to a column range of a Grid.
type GridEntry struct {
	Column  int
	Span    int
	Element Element
}

// Grid places children into sized columns. Columns may be fixed, auto
// (sized to content), or star (sharing remaining space by weight). An
// empty column list behaves as a single star column.
type Grid struct {
	ElementCommon
	Children []GridEntry
	Columns  []GridLength
}

// WithChildren returns a copy of the grid with replaced children, all in
// column 0 with span 1.
func (g Grid) WithChildren(children ...Element) Grid {
	entries := make([]GridEntry, len(children))
	for i, c := range children {
		entries[i] = GridEntry{Span: 1, Element: c}
	}
	g.Children = entries
	return g
}

func (p *Play) Common() *ElementCommon           { return &p.ElementCommon }
func (p *ShiftPhase) Common() *ElementCommon     { return &p.ElementCommon }
func (p *SetPhase) Common() *ElementCommon       { return &p.ElementCommon }
func (p *ShiftFrequency) Common() *ElementCommon { return &p.ElementCommon }
func (p *SetFrequency) Common() *ElementCommon   { return &p.ElementCommon }
func (p *SwapPhase) Common() *ElementCommon      { return &p.ElementCommon }
func (p *Barrier) Common() *ElementCommon        { return &p.ElementCommon }
func (p *Repeat) Common() *ElementCommon         { return &p.ElementCommon }
func (p *Stack) Common() *ElementCommon          { return &p.ElementCommon }
func (p *Absolute) Common() *ElementCommon       { return &p.ElementCommon }
func (p *Grid) Common() *ElementCommon           { return &p.ElementCommon }

func (*Play) elementTag() int           { return ElemTagPlay }
func (*ShiftPhase) elementTag() int     { return ElemTagShiftPhase }
func (*SetPhase) elementTag() int       { return ElemTagSetPhase }
func (*ShiftFrequency) elementTag() int { return ElemTagShiftFrequency }
func (*SetFrequency) elementTag() int   { return ElemTagSetFrequency }
func (*SwapPhase) elementTag() int      { return ElemTagSwapPhase }
func (*Barrier) elementTag() int        { return ElemTagBarrier }
func (*Repeat) elementTag() int         { return ElemTagRepeat }
func (*Stack) elementTag() int          { return ElemTagStack }
func (*Absolute) elementTag() int       { return ElemTagAbsolute }
func (*Grid) elementTag() int           { return ElemTagGrid }

// Request is one complete generation job: channel and shape tables, the
// schedule tree, and options.
type Request struct {
	Channels []ChannelInfo
	Shapes   []Shape
	Schedule Element
	Options  Options
}
