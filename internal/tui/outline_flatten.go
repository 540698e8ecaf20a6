package tui

import (
	"arborescence/internal/drag"
	"arborescence/internal/model"
	"arborescence/internal/tree"
)

type outlineRow struct {
	node  model.Node
	depth int
	// placeholder marks the drop slot shown while dragging.
	placeholder bool
	busy        bool
}

// flattenOutline renders the tree depth-first with the drag projection applied:
// the dragged node's slot (and subtree) is hidden and a placeholder row is
// inserted where it would land.
func flattenOutline(r tree.Reader, d *drag.Controller, busy func(string) bool) []outlineRow {
	var out []outlineRow
	var walk func(parentID string, level model.Level, depth int)
	walk = func(parentID string, level model.Level, depth int) {
		for _, slot := range projectSlots(r, d, parentID, level) {
			n, ok := r.Node(slot.ID)
			if !ok {
				continue
			}
			if slot.Placeholder {
				out = append(out, outlineRow{node: n, depth: depth, placeholder: true})
				continue
			}
			out = append(out, outlineRow{node: n, depth: depth, busy: busy != nil && busy(n.ID)})
			if child, ok := level.ChildLevel(); ok {
				walk(n.ID, child, depth+1)
			}
		}
	}
	walk("", model.LevelSection, 0)
	return out
}

func projectSlots(r tree.Reader, d *drag.Controller, parentID string, level model.Level) []drag.Slot {
	if d != nil {
		return d.Project(parentID, level)
	}
	kids := r.Children(parentID, level)
	out := make([]drag.Slot, 0, len(kids))
	for _, n := range kids {
		out = append(out, drag.Slot{ID: n.ID})
	}
	return out
}

// rowLayout maps rows to screen cells for the drag controller. Drop targets
// come from hit, the rows as they were before the drag started, so the
// geometry stays put while the placeholder moves around.
type rowLayout struct {
	rows  []outlineRow
	hit   []outlineRow
	top   int // first screen line of the list
	width int
	// offset is the index of the first visible row.
	offset  int
	visible int
}

func (l *rowLayout) Targets() []drag.Target {
	rows := l.hit
	if rows == nil {
		rows = l.rows
	}
	out := make([]drag.Target, 0, len(rows))
	for i, r := range rows {
		if r.placeholder {
			continue
		}
		if i < l.offset || (l.visible > 0 && i >= l.offset+l.visible) {
			continue
		}
		y := float64(l.top + i - l.offset)
		out = append(out, drag.Target{ID: r.node.ID, Rect: drag.Rect{X: 0, Y: y, W: float64(max(l.width, 1)), H: 1}})
	}
	return out
}

// rowAt returns the row index at screen line y.
func (l *rowLayout) rowAt(y int) (int, bool) {
	i := y - l.top + l.offset
	if y < l.top || i < 0 || i >= len(l.rows) {
		return 0, false
	}
	if l.visible > 0 && i >= l.offset+l.visible {
		return 0, false
	}
	return i, true
}

func (l *rowLayout) indexOf(id string) int {
	for i, r := range l.rows {
		if r.node.ID == id && !r.placeholder {
			return i
		}
	}
	return -1
}
