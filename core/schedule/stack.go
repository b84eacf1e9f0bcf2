// core/schedule/stack.go
// Sequential arrangement with per-channel packing. Children occupying
// disjoint channel sets pack in parallel; a barrier (empty channel set)
// forces every channel's cursor to the common maximum.
package schedule

import (
	"fmt"
	"math"

	"pulsegen-core/request"
)

// usage tracks how much time each channel has consumed from the arranging
// edge of a stack. A stack whose subtree names no channels degenerates to
// a single cursor.
type usage struct {
	all    []int
	single float64
	perCh  map[int]float64
}

func newUsage(all []int) *usage {
	u := &usage{all: all}
	if len(all) > 0 {
		u.perCh = make(map[int]float64, len(all))
	}
	return u
}

// get returns the current edge distance for the given channels; an empty
// set means the maximum over all channels.
func (u *usage) get(channels []int) float64 {
	if u.perCh == nil {
		return u.single
	}
	if len(channels) == 0 {
		channels = u.all
	}
	var v float64
	for _, ch := range channels {
		v = math.Max(v, u.perCh[ch])
	}
	return v
}

// update advances the given channels (all of them when empty) to d.
func (u *usage) update(d float64, channels []int) {
	if u.perCh == nil {
		u.single = d
		return
	}
	if len(channels) == 0 {
		channels = u.all
	}
	for _, ch := range channels {
		u.perCh[ch] = d
	}
}

func (u *usage) max() float64 {
	if u.perCh == nil {
		return u.single
	}
	var v float64
	for _, d := range u.perCh {
		v = math.Max(v, d)
	}
	return v
}

// stackOffsets computes, for each child in original order, its distance
// from the arranging edge given per-child durations. Children are visited
// in document order for Forwards and reversed for Backwards.
func stackOffsets(children []measured, durations []float64, all []int, dir request.Direction) ([]float64, float64) {
	u := newUsage(all)
	offsets := make([]float64, len(children))
	visit := func(i int) {
		off := u.get(children[i].channels)
		offsets[i] = off
		u.update(off+durations[i], children[i].channels)
	}
	if dir == request.Forwards {
		for i := range children {
			visit(i)
		}
	} else {
		for i := len(children) - 1; i >= 0; i-- {
			visit(i)
		}
	}
	return offsets, u.max()
}

func measureStack(v *request.Stack, path string) (measured, error) {
	children := make([]measured, len(v.Children))
	for i, c := range v.Children {
		m, err := measure(c, childPath(path, i))
		if err != nil {
			return measured{}, err
		}
		children[i] = m
	}
	all := mergeChannels(children)
	durations := make([]float64, len(children))
	for i := range children {
		durations[i] = children[i].duration
	}
	_, natural := stackOffsets(children, durations, all, v.Direction)
	return measured{
		natural:  natural,
		channels: all,
		children: children,
	}, nil
}

func arrangeStack(v *request.Stack, m *measured, final float64, opt Options) ([]*Arranged, error) {
	durations := make([]float64, len(m.children))
	var stretch []int
	for i := range m.children {
		durations[i] = m.children[i].duration
		if m.children[i].el.Common().Alignment == request.AlignStretch {
			stretch = append(stretch, i)
		}
	}
	// Extra space beyond the natural packing goes to stretch children in
	// equal shares. Without stretch children the remainder stays idle at
	// the un-anchored end.
	if len(stretch) > 0 {
		excess := final - m.natural
		if excess > opt.TimeTolerance {
			share := excess / float64(len(stretch))
			for _, i := range stretch {
				durations[i] += share
			}
		}
	}
	all := mergeChannels(m.children)
	offsets, _ := stackOffsets(m.children, durations, all, v.Direction)
	out := make([]*Arranged, len(m.children))
	for i := range m.children {
		start := offsets[i]
		if v.Direction == request.Backwards {
			start = final - offsets[i] - durations[i]
		}
		a, err := arrange(&m.children[i], start, durations[i], opt)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func childPath(path string, i int) string {
	return fmt.Sprintf("%s/%d", path, i)
}
