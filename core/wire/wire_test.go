package wire

import (
	"math"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"pulsegen-core/request"
)

func sampleRequest() *request.Request {
	d := 100e-9
	inner := &request.Play{
		ElementCommon: request.DefaultCommon(),
		ChannelID:     1,
		Amplitude:     0.25,
		ShapeID:       2,
		Width:         15e-9,
		Plateau:       5e-9,
		DragCoef:      2e-10,
		Frequency:     1e6,
		Phase:         0.125,
		Flexible:      true,
	}
	inner.MarginBefore = 1e-9
	inner.Alignment = request.AlignCenter
	schedule := &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Direction:     request.Forwards,
		Children: []request.Element{
			&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.5},
			&request.SetFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: 2e6},
			&request.SwapPhase{ElementCommon: request.DefaultCommon(), ChannelID1: 0, ChannelID2: 1},
			&request.Barrier{ElementCommon: request.DefaultCommon(), ChannelIDs: []int{0, 1}},
			&request.Repeat{ElementCommon: request.DefaultCommon(), Child: inner, Count: 3, Spacing: 2e-9},
			&request.Absolute{ElementCommon: request.DefaultCommon(), Children: []request.AbsoluteEntry{
				{Time: 10e-9, Element: &request.SetPhase{ElementCommon: request.DefaultCommon(), ChannelID: 1, Phase: 0.25}},
			}},
			&request.Grid{
				ElementCommon: request.DefaultCommon(),
				Columns: []request.GridLength{
					request.GridFixedLength(10e-9),
					request.GridStarLength(2),
				},
				Children: []request.GridEntry{
					{Column: 1, Span: 1, Element: &request.ShiftFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: -1e6}},
				},
			},
		},
	}
	schedule.Duration = &d
	return &request.Request{
		Channels: []request.ChannelInfo{
			{
				Name:       "xy0",
				BaseFreq:   100e6,
				SampleRate: 2e9,
				Delay:      4e-9,
				Length:     2000,
				AlignLevel: -4,
				IqCal:      &request.IqCalibration{A: 1, B: 0.01, C: -0.01, D: 1, IOffset: 0.002, QOffset: -0.001},
				IIR:        []request.Biquad{{B0: 1, B1: 0.5, B2: 0.25, A1: -0.3, A2: 0.1}},
				FIR:        []float64{0.9, 0.1},
			},
			{Name: "xy1", BaseFreq: 50e6, SampleRate: 2e9, Length: 2000},
		},
		Shapes: []request.Shape{
			request.Hann{},
			request.Triangle{},
			request.Interpolated{X: []float64{-0.5, 0, 0.5}, Y: []float64{0, 1, 0}},
		},
		Schedule: schedule,
		Options:  request.DefaultOptions(),
	}
}

func TestRoundTrip(t *testing.T) {
	req := sampleRequest()
	data, err := Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, req)
	}
}

func TestRoundTripInfiniteMaxDuration(t *testing.T) {
	req := &request.Request{
		Channels: []request.ChannelInfo{{Name: "ch", SampleRate: 1e9, Length: 10}},
		Schedule: &request.Play{ElementCommon: request.DefaultCommon(), Width: 1e-9},
		Options:  request.DefaultOptions(),
	}
	data, err := Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !math.IsInf(got.Schedule.Common().MaxDuration, 1) {
		t.Errorf("max duration = %v, want +Inf", got.Schedule.Common().MaxDuration)
	}
	if got.Schedule.Common().Duration != nil {
		t.Error("content-sized duration should decode as nil")
	}
}

func TestMarshalCalibrationAndBiquadAreTuples(t *testing.T) {
	blob, err := Marshal(sampleRequest())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw []interface{}
	if err := msgpack.Unmarshal(blob, &raw); err != nil {
		t.Fatalf("generic decode: %v", err)
	}
	channels := raw[0].([]interface{})
	var full []interface{}
	for _, c := range channels {
		if ch := c.([]interface{}); ch[6] != nil {
			full = ch
			break
		}
	}
	if full == nil {
		t.Fatal("sample request has no channel with calibration")
	}
	cal, ok := full[6].([]interface{})
	if !ok || len(cal) != 6 {
		t.Errorf("iq calibration slot = %#v, want a 6-tuple", full[6])
	}
	iir, ok := full[7].([]interface{})
	if !ok || len(iir) != 1 {
		t.Fatalf("iir slot = %#v, want a 1-element list", full[7])
	}
	sec, ok := iir[0].([]interface{})
	if !ok || len(sec) != 5 {
		t.Errorf("biquad = %#v, want a 5-tuple", iir[0])
	}
}

func TestUnmarshalTruncatedInput(t *testing.T) {
	req := sampleRequest()
	data, err := Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Truncated input is an error, not a partial request.
	if _, err := Unmarshal(data[:len(data)/2]); err == nil {
		t.Error("expected error for truncated input")
	}
}
