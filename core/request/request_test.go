package request

import (
	"math"
	"testing"
)

func testChannel() ChannelInfo {
	return ChannelInfo{Name: "xy0", SampleRate: 2e9, Length: 1000}
}

func durationOf(v float64) *float64 { return &v }

func TestParseAlignment(t *testing.T) {
	for s, want := range map[string]Alignment{
		"end": AlignEnd, "start": AlignStart, "center": AlignCenter, "stretch": AlignStretch,
	} {
		got, err := ParseAlignment(s)
		if err != nil || got != want {
			t.Errorf("ParseAlignment(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := ParseAlignment("middle"); err == nil {
		t.Error("expected error for unknown alignment")
	}
}

func TestParseGridLength(t *testing.T) {
	cases := []struct {
		in   string
		want GridLength
	}{
		{"auto", GridLength{Value: math.NaN(), Unit: GridAuto}},
		{"*", GridLength{Value: 1, Unit: GridStar}},
		{"10*", GridLength{Value: 10, Unit: GridStar}},
		{"10e-9", GridLength{Value: 10e-9, Unit: GridSecond}},
		{"0.5", GridLength{Value: 0.5, Unit: GridSecond}},
	}
	for _, c := range cases {
		got, err := ParseGridLength(c.in)
		if err != nil {
			t.Errorf("ParseGridLength(%q) error: %v", c.in, err)
			continue
		}
		if got.Unit != c.want.Unit {
			t.Errorf("ParseGridLength(%q).Unit = %v, want %v", c.in, got.Unit, c.want.Unit)
		}
		if got.Unit != GridAuto && got.Value != c.want.Value {
			t.Errorf("ParseGridLength(%q).Value = %v, want %v", c.in, got.Value, c.want.Value)
		}
	}
	if _, err := ParseGridLength("x*"); err == nil {
		t.Error("expected error for bad star weight")
	}
}

func TestMarginNormalization(t *testing.T) {
	before, after := Margin(3e-9)
	if before != 3e-9 || after != 3e-9 {
		t.Errorf("Margin(3e-9) = (%v, %v)", before, after)
	}
}

func TestValidateAccepts(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Shapes:   []Shape{Hann{}},
		Schedule: &Stack{
			ElementCommon: DefaultCommon(),
			Children: []Element{
				&Play{ElementCommon: DefaultCommon(), ChannelID: 0, Amplitude: 0.5, ShapeID: 0, Width: 20e-9},
			},
		},
		Options: DefaultOptions(),
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidateChannelOutOfRange(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Shapes:   []Shape{Hann{}},
		Schedule: &Play{ElementCommon: DefaultCommon(), ChannelID: 3, ShapeID: 0, Width: 1e-9},
		Options:  DefaultOptions(),
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected channel index error")
	}
}

func TestValidateShapeOutOfRange(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Schedule: &Play{ElementCommon: DefaultCommon(), ChannelID: 0, ShapeID: 0, Width: 1e-9},
		Options:  DefaultOptions(),
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected shape index error")
	}
}

func TestValidateRectShapeAllowed(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Schedule: &Play{ElementCommon: DefaultCommon(), ChannelID: 0, ShapeID: RectShapeID, Width: 1e-9},
		Options:  DefaultOptions(),
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("rectangle pulse rejected: %v", err)
	}
}

func TestValidateUnsortedInterpolated(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Shapes:   []Shape{Interpolated{X: []float64{0, -0.5, 0.5}, Y: []float64{0, 1, 0}}},
		Schedule: &Barrier{ElementCommon: DefaultCommon()},
		Options:  DefaultOptions(),
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected unsorted control point error")
	}
}

func TestValidateNegativeMargin(t *testing.T) {
	common := DefaultCommon()
	common.MarginBefore = -1e-9
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Schedule: &Barrier{ElementCommon: common},
		Options:  DefaultOptions(),
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected negative margin error")
	}
}

func TestValidateDuplicateChannelName(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel(), testChannel()},
		Schedule: &Barrier{ElementCommon: DefaultCommon()},
		Options:  DefaultOptions(),
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestValidateGridEntry(t *testing.T) {
	req := &Request{
		Channels: []ChannelInfo{testChannel()},
		Schedule: &Grid{
			ElementCommon: DefaultCommon(),
			Columns:       []GridLength{GridStarLength(1)},
			Children: []GridEntry{
				{Column: 0, Span: 0, Element: &Barrier{ElementCommon: DefaultCommon()}},
			},
		},
		Options: DefaultOptions(),
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected span error")
	}
}

func TestWithChildren(t *testing.T) {
	base := Stack{ElementCommon: DefaultCommon(), Direction: Forwards}
	child := &Barrier{ElementCommon: DefaultCommon()}
	s := base.WithChildren(child)
	if len(base.Children) != 0 {
		t.Error("WithChildren mutated the receiver")
	}
	if len(s.Children) != 1 || s.Direction != Forwards {
		t.Errorf("unexpected copy: %+v", s)
	}
	d := durationOf(10e-9)
	a := Absolute{ElementCommon: DefaultCommon()}
	a.Duration = d
	a2 := a.WithChildren(child, child)
	if len(a2.Children) != 2 || a2.Duration != d {
		t.Errorf("Absolute.WithChildren lost fields")
	}
}
