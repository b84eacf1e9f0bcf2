// core/wire/decode.go
// Msgpack decoding of requests, the exact inverse of encode.go. Arity and
// tag mismatches are reported as errors rather than skipped.
package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"pulsegen-core/request"
)

// Unmarshal parses a msgpack-encoded request.
func Unmarshal(data []byte) (*request.Request, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one request from r.
func Decode(r io.Reader) (*request.Request, error) {
	dec := msgpack.NewDecoder(r)
	if err := expectArrayLen(dec, 4, "request"); err != nil {
		return nil, err
	}
	req := &request.Request{}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	req.Channels = make([]request.ChannelInfo, n)
	for i := range req.Channels {
		if err := decodeChannel(dec, &req.Channels[i]); err != nil {
			return nil, err
		}
	}
	if n, err = dec.DecodeArrayLen(); err != nil {
		return nil, err
	}
	req.Shapes = make([]request.Shape, n)
	for i := range req.Shapes {
		if req.Shapes[i], err = decodeShape(dec); err != nil {
			return nil, err
		}
	}
	if req.Schedule, err = decodeElement(dec); err != nil {
		return nil, err
	}
	if req.Options, err = decodeOptions(dec); err != nil {
		return nil, err
	}
	return req, nil
}

func expectArrayLen(dec *msgpack.Decoder, want int, what string) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", what, err)
	}
	if n != want {
		return fmt.Errorf("decoding %s: tuple arity %d, want %d", what, n, want)
	}
	return nil
}

func decodeChannel(dec *msgpack.Decoder, c *request.ChannelInfo) error {
	if err := expectArrayLen(dec, 9, "channel"); err != nil {
		return err
	}
	var err error
	if c.Name, err = dec.DecodeString(); err != nil {
		return err
	}
	for _, dst := range []*float64{&c.BaseFreq, &c.SampleRate, &c.Delay} {
		if *dst, err = dec.DecodeFloat64(); err != nil {
			return err
		}
	}
	if c.Length, err = decodeInt(dec); err != nil {
		return err
	}
	if c.AlignLevel, err = decodeInt(dec); err != nil {
		return err
	}
	if c.IqCal, err = decodeIqCal(dec); err != nil {
		return err
	}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	c.IIR = make([]request.Biquad, n)
	for i := range c.IIR {
		b := &c.IIR[i]
		if err := expectArrayLen(dec, 5, "biquad"); err != nil {
			return err
		}
		if err := decodeFloats(dec, &b.B0, &b.B1, &b.B2, &b.A1, &b.A2); err != nil {
			return err
		}
	}
	c.FIR, err = decodeFloatSlice(dec)
	return err
}

func decodeIqCal(dec *msgpack.Decoder) (*request.IqCalibration, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if code == msgpcode.Nil {
		return nil, dec.DecodeNil()
	}
	if err := expectArrayLen(dec, 6, "iq calibration"); err != nil {
		return nil, err
	}
	cal := &request.IqCalibration{}
	if err := decodeFloats(dec, &cal.A, &cal.B, &cal.C, &cal.D, &cal.IOffset, &cal.QOffset); err != nil {
		return nil, err
	}
	return cal, nil
}

func decodeShape(dec *msgpack.Decoder) (request.Shape, error) {
	if err := expectArrayLen(dec, 2, "shape union"); err != nil {
		return nil, err
	}
	tag, err := decodeInt(dec)
	if err != nil {
		return nil, err
	}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	switch tag {
	case request.ShapeTagHann, request.ShapeTagTriangle:
		if n != 0 {
			return nil, fmt.Errorf("shape tag %d: tuple arity %d, want 0", tag, n)
		}
		if tag == request.ShapeTagHann {
			return request.Hann{}, nil
		}
		return request.Triangle{}, nil
	case request.ShapeTagInterpolated:
		if n != 2 {
			return nil, fmt.Errorf("interpolated shape: tuple arity %d, want 2", n)
		}
		var s request.Interpolated
		if s.X, err = decodeFloatSlice(dec); err != nil {
			return nil, err
		}
		if s.Y, err = decodeFloatSlice(dec); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown shape tag %d", tag)
}

func decodeOptions(dec *msgpack.Decoder) (request.Options, error) {
	o := request.Options{}
	if err := expectArrayLen(dec, 4, "options"); err != nil {
		return o, err
	}
	if err := decodeFloats(dec, &o.TimeTolerance, &o.AmpTolerance, &o.PhaseTolerance); err != nil {
		return o, err
	}
	var err error
	o.AllowOversize, err = dec.DecodeBool()
	return o, err
}

func decodeElement(dec *msgpack.Decoder) (request.Element, error) {
	if err := expectArrayLen(dec, 2, "element union"); err != nil {
		return nil, err
	}
	tag, err := decodeInt(dec)
	if err != nil {
		return nil, err
	}
	want, ok := elementFieldCount[tag]
	if !ok {
		return nil, fmt.Errorf("unknown element tag %d", tag)
	}
	if err := expectArrayLen(dec, want, fmt.Sprintf("element tag %d", tag)); err != nil {
		return nil, err
	}
	common, err := decodeCommon(dec)
	if err != nil {
		return nil, err
	}
	switch tag {
	case request.ElemTagPlay:
		v := &request.Play{ElementCommon: common}
		if v.ChannelID, err = decodeInt(dec); err != nil {
			return nil, err
		}
		if v.Amplitude, err = dec.DecodeFloat64(); err != nil {
			return nil, err
		}
		if v.ShapeID, err = decodeInt(dec); err != nil {
			return nil, err
		}
		if err = decodeFloats(dec, &v.Width, &v.Plateau, &v.DragCoef, &v.Frequency, &v.Phase); err != nil {
			return nil, err
		}
		if v.Flexible, err = dec.DecodeBool(); err != nil {
			return nil, err
		}
		return v, nil
	case request.ElemTagShiftPhase:
		v := &request.ShiftPhase{ElementCommon: common}
		return v, decodeIntFloat(dec, &v.ChannelID, &v.Phase)
	case request.ElemTagSetPhase:
		v := &request.SetPhase{ElementCommon: common}
		return v, decodeIntFloat(dec, &v.ChannelID, &v.Phase)
	case request.ElemTagShiftFrequency:
		v := &request.ShiftFrequency{ElementCommon: common}
		return v, decodeIntFloat(dec, &v.ChannelID, &v.Frequency)
	case request.ElemTagSetFrequency:
		v := &request.SetFrequency{ElementCommon: common}
		return v, decodeIntFloat(dec, &v.ChannelID, &v.Frequency)
	case request.ElemTagSwapPhase:
		v := &request.SwapPhase{ElementCommon: common}
		if v.ChannelID1, err = decodeInt(dec); err != nil {
			return nil, err
		}
		if v.ChannelID2, err = decodeInt(dec); err != nil {
			return nil, err
		}
		return v, nil
	case request.ElemTagBarrier:
		v := &request.Barrier{ElementCommon: common}
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		v.ChannelIDs = make([]int, n)
		for i := range v.ChannelIDs {
			if v.ChannelIDs[i], err = decodeInt(dec); err != nil {
				return nil, err
			}
		}
		return v, nil
	case request.ElemTagRepeat:
		v := &request.Repeat{ElementCommon: common}
		if v.Child, err = decodeElement(dec); err != nil {
			return nil, err
		}
		if v.Count, err = decodeInt(dec); err != nil {
			return nil, err
		}
		if v.Spacing, err = dec.DecodeFloat64(); err != nil {
			return nil, err
		}
		return v, nil
	case request.ElemTagStack:
		v := &request.Stack{ElementCommon: common}
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		v.Children = make([]request.Element, n)
		for i := range v.Children {
			if v.Children[i], err = decodeElement(dec); err != nil {
				return nil, err
			}
		}
		d, err := decodeInt(dec)
		if err != nil {
			return nil, err
		}
		v.Direction = request.Direction(d)
		return v, nil
	case request.ElemTagAbsolute:
		v := &request.Absolute{ElementCommon: common}
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		v.Children = make([]request.AbsoluteEntry, n)
		for i := range v.Children {
			if err := expectArrayLen(dec, 2, "absolute entry"); err != nil {
				return nil, err
			}
			if v.Children[i].Time, err = dec.DecodeFloat64(); err != nil {
				return nil, err
			}
			if v.Children[i].Element, err = decodeElement(dec); err != nil {
				return nil, err
			}
		}
		return v, nil
	case request.ElemTagGrid:
		v := &request.Grid{ElementCommon: common}
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		v.Children = make([]request.GridEntry, n)
		for i := range v.Children {
			if err := expectArrayLen(dec, 3, "grid entry"); err != nil {
				return nil, err
			}
			if v.Children[i].Column, err = decodeInt(dec); err != nil {
				return nil, err
			}
			if v.Children[i].Span, err = decodeInt(dec); err != nil {
				return nil, err
			}
			if v.Children[i].Element, err = decodeElement(dec); err != nil {
				return nil, err
			}
		}
		if n, err = dec.DecodeArrayLen(); err != nil {
			return nil, err
		}
		v.Columns = make([]request.GridLength, n)
		for i := range v.Columns {
			if err := expectArrayLen(dec, 2, "grid length"); err != nil {
				return nil, err
			}
			if v.Columns[i].Value, err = dec.DecodeFloat64(); err != nil {
				return nil, err
			}
			u, err := decodeInt(dec)
			if err != nil {
				return nil, err
			}
			v.Columns[i].Unit = request.GridUnit(u)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown element tag %d", tag)
}

func decodeCommon(dec *msgpack.Decoder) (request.ElementCommon, error) {
	c := request.ElementCommon{}
	if err := expectArrayLen(dec, 2, "margin"); err != nil {
		return c, err
	}
	if err := decodeFloats(dec, &c.MarginBefore, &c.MarginAfter); err != nil {
		return c, err
	}
	a, err := decodeInt(dec)
	if err != nil {
		return c, err
	}
	c.Alignment = request.Alignment(a)
	if c.Visible, err = dec.DecodeBool(); err != nil {
		return c, err
	}
	code, err := dec.PeekCode()
	if err != nil {
		return c, err
	}
	if code == msgpcode.Nil {
		if err := dec.DecodeNil(); err != nil {
			return c, err
		}
	} else {
		d, err := dec.DecodeFloat64()
		if err != nil {
			return c, err
		}
		c.Duration = &d
	}
	if err := decodeFloats(dec, &c.MaxDuration, &c.MinDuration); err != nil {
		return c, err
	}
	return c, nil
}

func decodeInt(dec *msgpack.Decoder) (int, error) {
	v, err := dec.DecodeInt64()
	return int(v), err
}

func decodeIntFloat(dec *msgpack.Decoder, i *int, f *float64) error {
	var err error
	if *i, err = decodeInt(dec); err != nil {
		return err
	}
	*f, err = dec.DecodeFloat64()
	return err
}

func decodeFloats(dec *msgpack.Decoder, dst ...*float64) error {
	for _, d := range dst {
		v, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

func decodeFloatSlice(dec *msgpack.Decoder) ([]float64, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	fs := make([]float64, n)
	for i := range fs {
		if fs[i], err = dec.DecodeFloat64(); err != nil {
			return nil, err
		}
	}
	return fs, nil
}
