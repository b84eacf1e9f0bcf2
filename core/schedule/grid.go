// core/schedule/grid.go
// Grid column sizing. Fixed columns take their declared duration, auto
// columns grow to their widest occupant, and star columns share whatever
// remains of the final duration in proportion to their weights.
package schedule

import (
	"math"
	"sort"

	"pulsegen-core/request"
)

// gridColumns returns the effective column list; an empty declaration
// behaves as a single star column.
func gridColumns(v *request.Grid) []request.GridLength {
	if len(v.Columns) == 0 {
		return []request.GridLength{request.GridStarLength(1)}
	}
	return v.Columns
}

func measureGrid(v *request.Grid, path string) (measured, error) {
	cols := gridColumns(v)
	children := make([]measured, len(v.Children))
	for i, entry := range v.Children {
		m, err := measure(entry.Element, childPath(path, i))
		if err != nil {
			return measured{}, err
		}
		if entry.Column >= len(cols) || entry.Column+entry.Span > len(cols) {
			return measured{}, layoutf(childPath(path, i), "column range [%d, %d) exceeds %d columns", entry.Column, entry.Column+entry.Span, len(cols))
		}
		children[i] = m
	}

	sizes := make([]float64, len(cols))
	for i, col := range cols {
		if col.Unit == request.GridSecond {
			sizes[i] = col.Value
		}
	}
	// Grow flexible columns to content, narrow spans first so a wide span
	// benefits from space its narrower overlaps already claimed. Star
	// columns are content-sized here; arrange re-derives them from the
	// final duration.
	order := make([]int, len(children))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return v.Children[order[a]].Span < v.Children[order[b]].Span
	})
	for _, i := range order {
		entry := v.Children[i]
		var current float64
		var flex []int
		for j := entry.Column; j < entry.Column+entry.Span; j++ {
			current += sizes[j]
			if cols[j].Unit != request.GridSecond {
				flex = append(flex, j)
			}
		}
		shortfall := children[i].duration - current
		if shortfall > 0 && len(flex) > 0 {
			share := shortfall / float64(len(flex))
			for _, j := range flex {
				sizes[j] += share
			}
		}
	}
	var natural float64
	for _, s := range sizes {
		natural += s
	}
	return measured{
		natural:  natural,
		channels: mergeChannels(children),
		children: children,
		colSizes: sizes,
	}, nil
}

func arrangeGrid(v *request.Grid, m *measured, final float64, opt Options) ([]*Arranged, error) {
	cols := gridColumns(v)
	sizes := make([]float64, len(cols))
	var starWeight, fixed float64
	for i, col := range cols {
		switch col.Unit {
		case request.GridSecond:
			sizes[i] = col.Value
			fixed += col.Value
		case request.GridAuto:
			sizes[i] = m.colSizes[i]
			fixed += m.colSizes[i]
		case request.GridStar:
			starWeight += col.Value
		}
	}
	if starWeight > 0 {
		remaining := math.Max(final-fixed, 0)
		for i, col := range cols {
			if col.Unit == request.GridStar {
				sizes[i] = remaining * col.Value / starWeight
			}
		}
	}
	offsets := make([]float64, len(cols)+1)
	for i, s := range sizes {
		offsets[i+1] = offsets[i] + s
	}

	out := make([]*Arranged, len(m.children))
	for i := range m.children {
		entry := v.Children[i]
		child := &m.children[i]
		slotStart := offsets[entry.Column]
		slotDur := offsets[entry.Column+entry.Span] - slotStart
		start, dur := placeInSlot(child.el.Common().Alignment, slotStart, slotDur, child.duration)
		a, err := arrange(child, start, dur, opt)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}
