// Package schedulefile loads YAML schedule documents into generation
// requests. Documents reference channels and shapes by name; the loader
// resolves them to table indices.
package schedulefile

import (
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"pulsegen-core/request"
)

type channelDoc struct {
	Name       string    `yaml:"name"`
	BaseFreq   float64   `yaml:"base_freq"`
	SampleRate float64   `yaml:"sample_rate"`
	Delay      float64   `yaml:"delay"`
	Length     int       `yaml:"length"`
	AlignLevel int       `yaml:"align_level"`
	IqCal      *iqDoc    `yaml:"iq_calibration"`
	IIR        []iirDoc  `yaml:"iir"`
	FIR        []float64 `yaml:"fir"`
}

type iqDoc struct {
	A       float64 `yaml:"a"`
	B       float64 `yaml:"b"`
	C       float64 `yaml:"c"`
	D       float64 `yaml:"d"`
	IOffset float64 `yaml:"i_offset"`
	QOffset float64 `yaml:"q_offset"`
}

type iirDoc struct {
	B0 float64 `yaml:"b0"`
	B1 float64 `yaml:"b1"`
	B2 float64 `yaml:"b2"`
	A1 float64 `yaml:"a1"`
	A2 float64 `yaml:"a2"`
}

type shapeDoc struct {
	Name string    `yaml:"name"`
	Type string    `yaml:"type"`
	X    []float64 `yaml:"x"`
	Y    []float64 `yaml:"y"`
}

type optionsDoc struct {
	TimeTolerance  *float64 `yaml:"time_tolerance"`
	AmpTolerance   *float64 `yaml:"amp_tolerance"`
	PhaseTolerance *float64 `yaml:"phase_tolerance"`
	AllowOversize  bool     `yaml:"allow_oversize"`
}

type rootDoc struct {
	Channels []channelDoc `yaml:"channels"`
	Shapes   []shapeDoc   `yaml:"shapes"`
	Options  *optionsDoc  `yaml:"options"`
	Schedule yaml.Node    `yaml:"schedule"`
}

// elementDoc is the superset of every element variant's fields; Type
// selects which subset is meaningful.
type elementDoc struct {
	Type string `yaml:"type"`

	Margin      yaml.Node `yaml:"margin"`
	Alignment   string    `yaml:"alignment"`
	Visible     *bool     `yaml:"visible"`
	Duration    *float64  `yaml:"duration"`
	MaxDuration *float64  `yaml:"max_duration"`
	MinDuration *float64  `yaml:"min_duration"`

	Channel  string   `yaml:"channel"`
	Channel2 string   `yaml:"channel2"`
	Channels []string `yaml:"channels"`

	Amplitude float64 `yaml:"amplitude"`
	Shape     *string `yaml:"shape"`
	Width     float64 `yaml:"width"`
	Plateau   float64 `yaml:"plateau"`
	DragCoef  float64 `yaml:"drag_coef"`
	Frequency float64 `yaml:"frequency"`
	Phase     float64 `yaml:"phase"`
	Flexible  bool    `yaml:"flexible"`

	Count   int       `yaml:"count"`
	Spacing float64   `yaml:"spacing"`
	Child   yaml.Node `yaml:"child"`

	Direction string      `yaml:"direction"`
	Children  []yaml.Node `yaml:"children"`
	Entries   []entryDoc  `yaml:"entries"`
	Columns   []string    `yaml:"columns"`
}

type entryDoc struct {
	Time    float64   `yaml:"time"`
	Column  int       `yaml:"column"`
	Span    *int      `yaml:"span"`
	Element yaml.Node `yaml:"element"`
}

type loader struct {
	channels map[string]int
	shapes   map[string]int
}

// Load parses a YAML schedule document into a request.
func Load(r io.Reader) (*request.Request, error) {
	var doc rootDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse schedule document: %w", err)
	}

	ld := &loader{
		channels: make(map[string]int, len(doc.Channels)),
		shapes:   make(map[string]int, len(doc.Shapes)),
	}

	req := &request.Request{Options: request.DefaultOptions()}
	for i, cd := range doc.Channels {
		if _, dup := ld.channels[cd.Name]; dup {
			return nil, fmt.Errorf("duplicate channel %q", cd.Name)
		}
		ld.channels[cd.Name] = i
		req.Channels = append(req.Channels, buildChannel(cd))
	}
	for i, sd := range doc.Shapes {
		if _, dup := ld.shapes[sd.Name]; dup {
			return nil, fmt.Errorf("duplicate shape %q", sd.Name)
		}
		ld.shapes[sd.Name] = i
		s, err := buildShape(sd)
		if err != nil {
			return nil, err
		}
		req.Shapes = append(req.Shapes, s)
	}
	if doc.Options != nil {
		applyOptions(&req.Options, doc.Options)
	}
	if doc.Schedule.Kind == 0 {
		return nil, fmt.Errorf("schedule document has no schedule")
	}
	root, err := ld.element(&doc.Schedule)
	if err != nil {
		return nil, err
	}
	req.Schedule = root
	return req, nil
}

// LoadFile reads and parses the document at path.
func LoadFile(path string) (*request.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	req, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

func buildChannel(cd channelDoc) request.ChannelInfo {
	ch := request.ChannelInfo{
		Name:       cd.Name,
		BaseFreq:   cd.BaseFreq,
		SampleRate: cd.SampleRate,
		Delay:      cd.Delay,
		Length:     cd.Length,
		AlignLevel: cd.AlignLevel,
		FIR:        cd.FIR,
	}
	if cd.IqCal != nil {
		ch.IqCal = &request.IqCalibration{
			A: cd.IqCal.A, B: cd.IqCal.B,
			C: cd.IqCal.C, D: cd.IqCal.D,
			IOffset: cd.IqCal.IOffset, QOffset: cd.IqCal.QOffset,
		}
	}
	for _, s := range cd.IIR {
		ch.IIR = append(ch.IIR, request.Biquad{B0: s.B0, B1: s.B1, B2: s.B2, A1: s.A1, A2: s.A2})
	}
	return ch
}

func buildShape(sd shapeDoc) (request.Shape, error) {
	switch sd.Type {
	case "hann":
		return request.Hann{}, nil
	case "triangle":
		return request.Triangle{}, nil
	case "interpolated":
		return request.Interpolated{X: sd.X, Y: sd.Y}, nil
	}
	return nil, fmt.Errorf("shape %q: unknown type %q", sd.Name, sd.Type)
}

func applyOptions(opt *request.Options, od *optionsDoc) {
	if od.TimeTolerance != nil {
		opt.TimeTolerance = *od.TimeTolerance
	}
	if od.AmpTolerance != nil {
		opt.AmpTolerance = *od.AmpTolerance
	}
	if od.PhaseTolerance != nil {
		opt.PhaseTolerance = *od.PhaseTolerance
	}
	opt.AllowOversize = od.AllowOversize
}

func (ld *loader) element(node *yaml.Node) (request.Element, error) {
	var ed elementDoc
	if err := node.Decode(&ed); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	common, err := ld.common(&ed)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}

	el, err := ld.variant(&ed, common)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return el, nil
}

func (ld *loader) variant(ed *elementDoc, common request.ElementCommon) (request.Element, error) {
	switch ed.Type {
	case "play":
		ch, err := ld.channelID(ed.Channel)
		if err != nil {
			return nil, err
		}
		shapeID := request.RectShapeID
		if ed.Shape != nil {
			shapeID, err = ld.shapeID(*ed.Shape)
			if err != nil {
				return nil, err
			}
		}
		return &request.Play{
			ElementCommon: common,
			ChannelID:     ch,
			Amplitude:     ed.Amplitude,
			ShapeID:       shapeID,
			Width:         ed.Width,
			Plateau:       ed.Plateau,
			DragCoef:      ed.DragCoef,
			Frequency:     ed.Frequency,
			Phase:         ed.Phase,
			Flexible:      ed.Flexible,
		}, nil

	case "shift_phase":
		ch, err := ld.channelID(ed.Channel)
		if err != nil {
			return nil, err
		}
		return &request.ShiftPhase{ElementCommon: common, ChannelID: ch, Phase: ed.Phase}, nil

	case "set_phase":
		ch, err := ld.channelID(ed.Channel)
		if err != nil {
			return nil, err
		}
		return &request.SetPhase{ElementCommon: common, ChannelID: ch, Phase: ed.Phase}, nil

	case "shift_frequency":
		ch, err := ld.channelID(ed.Channel)
		if err != nil {
			return nil, err
		}
		return &request.ShiftFrequency{ElementCommon: common, ChannelID: ch, Frequency: ed.Frequency}, nil

	case "set_frequency":
		ch, err := ld.channelID(ed.Channel)
		if err != nil {
			return nil, err
		}
		return &request.SetFrequency{ElementCommon: common, ChannelID: ch, Frequency: ed.Frequency}, nil

	case "swap_phase":
		ch1, err := ld.channelID(ed.Channel)
		if err != nil {
			return nil, err
		}
		ch2, err := ld.channelID(ed.Channel2)
		if err != nil {
			return nil, err
		}
		return &request.SwapPhase{ElementCommon: common, ChannelID1: ch1, ChannelID2: ch2}, nil

	case "barrier":
		var ids []int
		for _, name := range ed.Channels {
			ch, err := ld.channelID(name)
			if err != nil {
				return nil, err
			}
			ids = append(ids, ch)
		}
		return &request.Barrier{ElementCommon: common, ChannelIDs: ids}, nil

	case "repeat":
		if ed.Child.Kind == 0 {
			return nil, fmt.Errorf("repeat has no child")
		}
		child, err := ld.element(&ed.Child)
		if err != nil {
			return nil, err
		}
		return &request.Repeat{ElementCommon: common, Child: child, Count: ed.Count, Spacing: ed.Spacing}, nil

	case "stack":
		dir := request.Backwards
		if ed.Direction != "" {
			var err error
			dir, err = request.ParseDirection(ed.Direction)
			if err != nil {
				return nil, err
			}
		}
		children, err := ld.children(ed.Children)
		if err != nil {
			return nil, err
		}
		return &request.Stack{ElementCommon: common, Children: children, Direction: dir}, nil

	case "absolute":
		var entries []request.AbsoluteEntry
		for i := range ed.Entries {
			el, err := ld.element(&ed.Entries[i].Element)
			if err != nil {
				return nil, err
			}
			entries = append(entries, request.AbsoluteEntry{Time: ed.Entries[i].Time, Element: el})
		}
		return &request.Absolute{ElementCommon: common, Children: entries}, nil

	case "grid":
		var entries []request.GridEntry
		for i := range ed.Entries {
			el, err := ld.element(&ed.Entries[i].Element)
			if err != nil {
				return nil, err
			}
			span := 1
			if ed.Entries[i].Span != nil {
				span = *ed.Entries[i].Span
			}
			entries = append(entries, request.GridEntry{Column: ed.Entries[i].Column, Span: span, Element: el})
		}
		var columns []request.GridLength
		for _, c := range ed.Columns {
			gl, err := request.ParseGridLength(c)
			if err != nil {
				return nil, err
			}
			columns = append(columns, gl)
		}
		return &request.Grid{ElementCommon: common, Children: entries, Columns: columns}, nil
	}
	return nil, fmt.Errorf("unknown element type %q", ed.Type)
}

func (ld *loader) common(ed *elementDoc) (request.ElementCommon, error) {
	common := request.DefaultCommon()
	if ed.Margin.Kind != 0 {
		switch ed.Margin.Kind {
		case yaml.ScalarNode:
			var m float64
			if err := ed.Margin.Decode(&m); err != nil {
				return common, fmt.Errorf("bad margin: %w", err)
			}
			common.MarginBefore, common.MarginAfter = request.Margin(m)
		case yaml.SequenceNode:
			var pair [2]float64
			if err := ed.Margin.Decode(&pair); err != nil {
				return common, fmt.Errorf("bad margin: %w", err)
			}
			common.MarginBefore, common.MarginAfter = pair[0], pair[1]
		default:
			return common, fmt.Errorf("margin must be a number or a [before, after] pair")
		}
	}
	if ed.Alignment != "" {
		a, err := request.ParseAlignment(ed.Alignment)
		if err != nil {
			return common, err
		}
		common.Alignment = a
	}
	if ed.Visible != nil {
		common.Visible = *ed.Visible
	}
	common.Duration = ed.Duration
	if ed.MaxDuration != nil {
		common.MaxDuration = *ed.MaxDuration
	} else {
		common.MaxDuration = math.Inf(1)
	}
	if ed.MinDuration != nil {
		common.MinDuration = *ed.MinDuration
	}
	return common, nil
}

func (ld *loader) children(nodes []yaml.Node) ([]request.Element, error) {
	var out []request.Element
	for i := range nodes {
		el, err := ld.element(&nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func (ld *loader) channelID(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("missing channel")
	}
	id, ok := ld.channels[name]
	if !ok {
		return 0, fmt.Errorf("unknown channel %q", name)
	}
	return id, nil
}

func (ld *loader) shapeID(name string) (int, error) {
	id, ok := ld.shapes[name]
	if !ok {
		return 0, fmt.Errorf("unknown shape %q", name)
	}
	return id, nil
}
