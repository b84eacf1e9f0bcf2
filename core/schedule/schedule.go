// core/schedule/schedule.go
// Two-pass constraint layout for the schedule element tree.
//
// The measure pass walks bottom-up computing each element's natural
// duration (content plus margins, clamped to its min/max constraints).
// The arrange pass walks top-down handing each element a concrete slot and
// resolving every child's (start, duration) inside it. All comparisons use
// the request's time tolerance; an allocation smaller than the measured
// need is a layout error unless oversizing is allowed.
package schedule

import (
	"fmt"
	"math"
	"sort"

	"pulsegen-core/quant"
	"pulsegen-core/request"
)

// Options are the scheduling knobs extracted from request.Options.
type Options struct {
	TimeTolerance float64
	AllowOversize bool
}

// LayoutError reports an unsatisfiable layout constraint together with the
// path of the offending element in the tree.
type LayoutError struct {
	Path string
	Msg  string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("layout error at %s: %s", e.Path, e.Msg)
}

func layoutf(path, format string, args ...any) error {
	return &LayoutError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Arranged is one resolved element: its inner start time relative to the
// parent's inner frame (margins already consumed) and its inner duration.
type Arranged struct {
	Element  request.Element
	Time     float64
	Duration float64
	Children []*Arranged
}

// measured carries the bottom-up pass results for one element.
type measured struct {
	el request.Element
	// natural is the content duration without margins, unclamped.
	natural float64
	// unclipped is natural plus margins; oversize checks compare
	// against it.
	unclipped float64
	// duration is the clamped span the element asks its parent for,
	// margins included.
	duration float64
	// channels is the sorted set of channel ids the subtree touches.
	// Empty means "all of the parent's channels" (barriers).
	channels []int
	children []measured
	// colSizes holds measured grid column sizes.
	colSizes []float64
	path     string
}

// Resolve measures the tree rooted at el and arranges it at time zero with
// exactly its measured duration.
func Resolve(el request.Element, opt Options) (*Arranged, error) {
	m, err := measure(el, "schedule")
	if err != nil {
		return nil, err
	}
	return arrange(&m, 0, m.duration, opt)
}

// effectiveMinMax folds the requested duration into the element's min/max
// bounds: a fixed duration pins both ends.
func effectiveMinMax(c *request.ElementCommon) (float64, float64) {
	lo, hi := c.MinDuration, c.MaxDuration
	if c.Duration != nil {
		return quant.Clamp(*c.Duration, lo, hi), quant.Clamp(*c.Duration, lo, hi)
	}
	return lo, hi
}

func measure(el request.Element, path string) (measured, error) {
	c := el.Common()
	if c.MinDuration > c.MaxDuration {
		return measured{}, layoutf(path, "over-constrained: min_duration %v > max_duration %v", c.MinDuration, c.MaxDuration)
	}
	m, err := measureContent(el, path)
	if err != nil {
		return measured{}, err
	}
	margin := c.MarginBefore + c.MarginAfter
	lo, hi := effectiveMinMax(c)
	inner := quant.Clamp(math.Max(m.natural, 0), lo, hi)
	m.el = el
	m.path = path
	m.unclipped = math.Max(m.natural, 0) + margin
	m.duration = inner + margin
	return m, nil
}

// measureContent computes the variant-specific natural duration and
// measures children.
func measureContent(el request.Element, path string) (measured, error) {
	switch v := el.(type) {
	case *request.Play:
		return measured{
			natural:  v.Width + v.Plateau,
			channels: []int{v.ChannelID},
		}, nil
	case *request.ShiftPhase:
		return measured{channels: []int{v.ChannelID}}, nil
	case *request.SetPhase:
		return measured{channels: []int{v.ChannelID}}, nil
	case *request.ShiftFrequency:
		return measured{channels: []int{v.ChannelID}}, nil
	case *request.SetFrequency:
		return measured{channels: []int{v.ChannelID}}, nil
	case *request.SwapPhase:
		ch := []int{v.ChannelID1, v.ChannelID2}
		sort.Ints(ch)
		return measured{channels: ch}, nil
	case *request.Barrier:
		ch := append([]int(nil), v.ChannelIDs...)
		sort.Ints(ch)
		return measured{channels: ch}, nil
	case *request.Repeat:
		child, err := measure(v.Child, path+"/child")
		if err != nil {
			return measured{}, err
		}
		var natural float64
		if v.Count > 0 {
			natural = float64(v.Count)*child.duration + float64(v.Count-1)*v.Spacing
		}
		return measured{
			natural:  natural,
			channels: child.channels,
			children: []measured{child},
		}, nil
	case *request.Stack:
		return measureStack(v, path)
	case *request.Absolute:
		children := make([]measured, len(v.Children))
		var natural float64
		for i, entry := range v.Children {
			m, err := measure(entry.Element, fmt.Sprintf("%s/%d", path, i))
			if err != nil {
				return measured{}, err
			}
			natural = math.Max(natural, entry.Time+m.duration)
			children[i] = m
		}
		return measured{
			natural:  natural,
			channels: mergeChannels(children),
			children: children,
		}, nil
	case *request.Grid:
		return measureGrid(v, path)
	}
	return measured{}, layoutf(path, "unknown element variant %T", el)
}

func mergeChannels(children []measured) []int {
	set := map[int]struct{}{}
	for _, c := range children {
		for _, id := range c.channels {
			set[id] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func arrange(m *measured, slotTime, slotDuration float64, opt Options) (*Arranged, error) {
	c := m.el.Common()
	if quant.Less(slotDuration, m.unclipped, opt.TimeTolerance) && !opt.AllowOversize {
		return nil, layoutf(m.path, "available duration %v shorter than measured %v and oversizing is disallowed", slotDuration, m.unclipped)
	}
	margin := c.MarginBefore + c.MarginAfter
	lo, hi := effectiveMinMax(c)
	inner := quant.Clamp(math.Max(slotDuration-margin, 0), lo, hi)
	if quant.Less(inner+margin, m.unclipped, opt.TimeTolerance) && !opt.AllowOversize {
		return nil, layoutf(m.path, "constrained duration %v shorter than measured %v and oversizing is disallowed", inner+margin, m.unclipped)
	}
	children, err := arrangeContent(m, inner, opt)
	if err != nil {
		return nil, err
	}
	return &Arranged{
		Element:  m.el,
		Time:     slotTime + c.MarginBefore,
		Duration: inner,
		Children: children,
	}, nil
}

func arrangeContent(m *measured, final float64, opt Options) ([]*Arranged, error) {
	switch v := m.el.(type) {
	case *request.Play, *request.ShiftPhase, *request.SetPhase,
		*request.ShiftFrequency, *request.SetFrequency,
		*request.SwapPhase, *request.Barrier:
		return nil, nil
	case *request.Repeat:
		if v.Count == 0 {
			return nil, nil
		}
		child := &m.children[0]
		step := child.duration + v.Spacing
		out := make([]*Arranged, 0, v.Count)
		for k := 0; k < v.Count; k++ {
			a, err := arrange(child, float64(k)*step, child.duration, opt)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	case *request.Stack:
		return arrangeStack(v, m, final, opt)
	case *request.Absolute:
		out := make([]*Arranged, len(m.children))
		for i := range m.children {
			child := &m.children[i]
			a, err := arrange(child, v.Children[i].Time, child.duration, opt)
			if err != nil {
				return nil, err
			}
			out[i] = a
		}
		return out, nil
	case *request.Grid:
		return arrangeGrid(v, m, final, opt)
	}
	return nil, layoutf(m.path, "unknown element variant %T", m.el)
}

// placeInSlot positions a span of natural duration inside a larger slot
// according to alignment. Stretch consumes the whole slot.
func placeInSlot(align request.Alignment, slotStart, slotDuration, natural float64) (float64, float64) {
	switch align {
	case request.AlignStretch:
		return slotStart, slotDuration
	case request.AlignStart:
		return slotStart, natural
	case request.AlignCenter:
		return slotStart + (slotDuration-natural)/2, natural
	default: // AlignEnd
		return slotStart + slotDuration - natural, natural
	}
}
