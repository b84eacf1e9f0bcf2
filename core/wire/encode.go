// core/wire/encode.go
// Msgpack encoding of requests. Every message object serializes as an
// ordered tuple whose field order matches the struct declaration order;
// polymorphic variants serialize as (tag, field_tuple). Reordering fields
// is a breaking protocol change.
package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"pulsegen-core/request"
)

// Marshal serializes a request to msgpack bytes.
func Marshal(r *request.Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes a request to w in msgpack format.
func Encode(w io.Writer, r *request.Request) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(r.Channels)); err != nil {
		return err
	}
	for i := range r.Channels {
		if err := encodeChannel(enc, &r.Channels[i]); err != nil {
			return err
		}
	}
	if err := enc.EncodeArrayLen(len(r.Shapes)); err != nil {
		return err
	}
	for _, s := range r.Shapes {
		if err := encodeShape(enc, s); err != nil {
			return err
		}
	}
	if err := encodeElement(enc, r.Schedule); err != nil {
		return err
	}
	return encodeOptions(enc, r.Options)
}

func encodeChannel(enc *msgpack.Encoder, c *request.ChannelInfo) error {
	if err := enc.EncodeArrayLen(9); err != nil {
		return err
	}
	if err := enc.EncodeString(c.Name); err != nil {
		return err
	}
	for _, f := range []float64{c.BaseFreq, c.SampleRate, c.Delay} {
		if err := enc.EncodeFloat64(f); err != nil {
			return err
		}
	}
	if err := enc.EncodeInt(int64(c.Length)); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(c.AlignLevel)); err != nil {
		return err
	}
	if err := encodeIqCal(enc, c.IqCal); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(c.IIR)); err != nil {
		return err
	}
	for _, b := range c.IIR {
		if err := enc.EncodeArrayLen(5); err != nil {
			return err
		}
		if err := encodeFloats(enc, b.B0, b.B1, b.B2, b.A1, b.A2); err != nil {
			return err
		}
	}
	return encodeFloatSlice(enc, c.FIR)
}

func encodeIqCal(enc *msgpack.Encoder, cal *request.IqCalibration) error {
	if cal == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeArrayLen(6); err != nil {
		return err
	}
	return encodeFloats(enc, cal.A, cal.B, cal.C, cal.D, cal.IOffset, cal.QOffset)
}

func encodeShape(enc *msgpack.Encoder, s request.Shape) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(request.ShapeTag(s))); err != nil {
		return err
	}
	switch v := s.(type) {
	case request.Hann, request.Triangle:
		return enc.EncodeArrayLen(0)
	case request.Interpolated:
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := encodeFloatSlice(enc, v.X); err != nil {
			return err
		}
		return encodeFloatSlice(enc, v.Y)
	}
	return fmt.Errorf("unknown shape variant %T", s)
}

func encodeOptions(enc *msgpack.Encoder, o request.Options) error {
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := encodeFloats(enc, o.TimeTolerance, o.AmpTolerance, o.PhaseTolerance); err != nil {
		return err
	}
	return enc.EncodeBool(o.AllowOversize)
}

// elementFieldCount is the tuple arity of each element variant, common
// attributes included.
var elementFieldCount = map[int]int{
	request.ElemTagPlay:           15,
	request.ElemTagShiftPhase:     8,
	request.ElemTagSetPhase:       8,
	request.ElemTagShiftFrequency: 8,
	request.ElemTagSetFrequency:   8,
	request.ElemTagSwapPhase:      8,
	request.ElemTagBarrier:        7,
	request.ElemTagRepeat:         9,
	request.ElemTagStack:          8,
	request.ElemTagAbsolute:       7,
	request.ElemTagGrid:           8,
}

func encodeElement(enc *msgpack.Encoder, el request.Element) error {
	tag := request.ElementTag(el)
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(tag)); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(elementFieldCount[tag]); err != nil {
		return err
	}
	if err := encodeCommon(enc, el.Common()); err != nil {
		return err
	}
	switch v := el.(type) {
	case *request.Play:
		if err := enc.EncodeInt(int64(v.ChannelID)); err != nil {
			return err
		}
		if err := enc.EncodeFloat64(v.Amplitude); err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(v.ShapeID)); err != nil {
			return err
		}
		if err := encodeFloats(enc, v.Width, v.Plateau, v.DragCoef, v.Frequency, v.Phase); err != nil {
			return err
		}
		return enc.EncodeBool(v.Flexible)
	case *request.ShiftPhase:
		return encodeIntFloat(enc, v.ChannelID, v.Phase)
	case *request.SetPhase:
		return encodeIntFloat(enc, v.ChannelID, v.Phase)
	case *request.ShiftFrequency:
		return encodeIntFloat(enc, v.ChannelID, v.Frequency)
	case *request.SetFrequency:
		return encodeIntFloat(enc, v.ChannelID, v.Frequency)
	case *request.SwapPhase:
		if err := enc.EncodeInt(int64(v.ChannelID1)); err != nil {
			return err
		}
		return enc.EncodeInt(int64(v.ChannelID2))
	case *request.Barrier:
		if err := enc.EncodeArrayLen(len(v.ChannelIDs)); err != nil {
			return err
		}
		for _, id := range v.ChannelIDs {
			if err := enc.EncodeInt(int64(id)); err != nil {
				return err
			}
		}
		return nil
	case *request.Repeat:
		if err := encodeElement(enc, v.Child); err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(v.Count)); err != nil {
			return err
		}
		return enc.EncodeFloat64(v.Spacing)
	case *request.Stack:
		if err := enc.EncodeArrayLen(len(v.Children)); err != nil {
			return err
		}
		for _, c := range v.Children {
			if err := encodeElement(enc, c); err != nil {
				return err
			}
		}
		return enc.EncodeInt(int64(v.Direction))
	case *request.Absolute:
		if err := enc.EncodeArrayLen(len(v.Children)); err != nil {
			return err
		}
		for _, e := range v.Children {
			if err := enc.EncodeArrayLen(2); err != nil {
				return err
			}
			if err := enc.EncodeFloat64(e.Time); err != nil {
				return err
			}
			if err := encodeElement(enc, e.Element); err != nil {
				return err
			}
		}
		return nil
	case *request.Grid:
		if err := enc.EncodeArrayLen(len(v.Children)); err != nil {
			return err
		}
		for _, e := range v.Children {
			if err := enc.EncodeArrayLen(3); err != nil {
				return err
			}
			if err := enc.EncodeInt(int64(e.Column)); err != nil {
				return err
			}
			if err := enc.EncodeInt(int64(e.Span)); err != nil {
				return err
			}
			if err := encodeElement(enc, e.Element); err != nil {
				return err
			}
		}
		if err := enc.EncodeArrayLen(len(v.Columns)); err != nil {
			return err
		}
		for _, col := range v.Columns {
			if err := enc.EncodeArrayLen(2); err != nil {
				return err
			}
			if err := enc.EncodeFloat64(col.Value); err != nil {
				return err
			}
			if err := enc.EncodeInt(int64(col.Unit)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown element variant %T", el)
}

func encodeCommon(enc *msgpack.Encoder, c *request.ElementCommon) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := encodeFloats(enc, c.MarginBefore, c.MarginAfter); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(c.Alignment)); err != nil {
		return err
	}
	if err := enc.EncodeBool(c.Visible); err != nil {
		return err
	}
	if c.Duration == nil {
		if err := enc.EncodeNil(); err != nil {
			return err
		}
	} else if err := enc.EncodeFloat64(*c.Duration); err != nil {
		return err
	}
	return encodeFloats(enc, c.MaxDuration, c.MinDuration)
}

func encodeIntFloat(enc *msgpack.Encoder, i int, f float64) error {
	if err := enc.EncodeInt(int64(i)); err != nil {
		return err
	}
	return enc.EncodeFloat64(f)
}

func encodeFloats(enc *msgpack.Encoder, fs ...float64) error {
	for _, f := range fs {
		if err := enc.EncodeFloat64(f); err != nil {
			return err
		}
	}
	return nil
}

func encodeFloatSlice(enc *msgpack.Encoder, fs []float64) error {
	if err := enc.EncodeArrayLen(len(fs)); err != nil {
		return err
	}
	return encodeFloats(enc, fs...)
}
