// Package drag turns pointer events into reorder and move commands. It never
// writes the tree; it reads it through tree.Reader and reports the drop as a
// Command for the mutation coordinator.
package drag

import (
	"math"
	"strings"

	"arborescence/internal/model"
	"arborescence/internal/order"
	"arborescence/internal/tree"
)

type Point struct {
	X, Y float64
}

type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Center() Point { return Point{X: r.X + r.W/2, Y: r.Y + r.H/2} }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// Target is a rendered, droppable row.
type Target struct {
	ID   string
	Rect Rect
}

// Layout reports the current row geometry. It is read on every move.
type Layout interface {
	Targets() []Target
}

// LayoutFunc adapts a function to Layout.
type LayoutFunc func() []Target

func (f LayoutFunc) Targets() []Target { return f() }

type Phase int

const (
	PhaseIdle Phase = iota
	// PhasePending: pointer is down but has not travelled MinDistance yet.
	PhasePending
	PhaseDragging
	PhaseDropped
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseDragging:
		return "dragging"
	case PhaseDropped:
		return "dropped"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// DefaultMinDistance is one terminal cell.
const DefaultMinDistance = 1

// midpointEpsilon absorbs float noise when the dragged center sits on a row's center.
const midpointEpsilon = 1e-6

// Placeholder is where the dragged node would land.
type Placeholder struct {
	ParentID string
	Level    model.Level
	Index    int
}

type CommandKind int

const (
	CommandReorder CommandKind = iota
	CommandMove
)

func (k CommandKind) String() string {
	if k == CommandMove {
		return "move"
	}
	return "reorder"
}

// Command is the single write a drop produces. Orders are complete id lists of
// each affected group after the drop.
type Command struct {
	Kind         CommandKind
	NodeID       string
	Level        model.Level
	FromParentID string
	ToParentID   string
	// Index is the node's position in the destination order.
	Index int
	// SourceOrder is the new order of the node's original group (the whole
	// group for a reorder, the group without the node for a move).
	SourceOrder []string
	// DestOrder is set for moves.
	DestOrder []string
}

type Controller struct {
	tree   tree.Reader
	layout Layout

	MinDistance float64

	phase      Phase
	active     model.Node
	activeRect Rect
	origin     Point
	pointer    Point

	overID      string
	placeholder Placeholder
	valid       bool
}

func New(r tree.Reader, l Layout) *Controller {
	return &Controller{tree: r, layout: l, MinDistance: DefaultMinDistance}
}

func (c *Controller) Phase() Phase { return c.phase }

// Active is the id being dragged ("" unless pending or dragging).
func (c *Controller) Active() string { return c.active.ID }

func (c *Controller) Dragging() bool { return c.phase == PhaseDragging }

// HiddenID is the node whose original slot is hidden while dragging.
func (c *Controller) HiddenID() string {
	if c.phase != PhaseDragging {
		return ""
	}
	return c.active.ID
}

// Over is the current drop target id.
func (c *Controller) Over() string {
	if c.phase != PhaseDragging || !c.valid {
		return ""
	}
	return c.overID
}

func (c *Controller) Placeholder() (Placeholder, bool) {
	if c.phase != PhaseDragging || !c.valid {
		return Placeholder{}, false
	}
	return c.placeholder, true
}

// Down arms a drag on id. It reports false when id is unknown or a drag is
// already under way.
func (c *Controller) Down(id string, p Point) bool {
	if c.phase == PhasePending || c.phase == PhaseDragging {
		return false
	}
	n, ok := c.tree.Node(strings.TrimSpace(id))
	if !ok {
		return false
	}
	c.reset()
	c.phase = PhasePending
	c.active = n
	c.origin = p
	c.pointer = p
	c.activeRect = Rect{X: p.X, Y: p.Y}
	for _, t := range c.layout.Targets() {
		if t.ID == n.ID {
			c.activeRect = t.Rect
			break
		}
	}
	return true
}

// Move updates the pointer. Returns true when the visual state changed.
func (c *Controller) Move(p Point) bool {
	switch c.phase {
	case PhasePending:
		c.pointer = p
		if dist(p, c.origin) < c.MinDistance {
			return false
		}
		c.phase = PhaseDragging
		c.retarget()
		return true
	case PhaseDragging:
		c.pointer = p
		prevOver, prevPH, prevValid := c.overID, c.placeholder, c.valid
		c.retarget()
		return prevOver != c.overID || prevPH != c.placeholder || prevValid != c.valid
	default:
		return false
	}
}

// Up ends the gesture. A command is returned only when the drop is over a valid
// target and changes the node's position; otherwise the drag is cancelled.
func (c *Controller) Up(p Point) (Command, bool) {
	switch c.phase {
	case PhasePending:
		// A click, not a drag.
		c.reset()
		c.phase = PhaseIdle
		return Command{}, false
	case PhaseDragging:
	default:
		return Command{}, false
	}
	c.pointer = p
	c.retarget()
	if !c.valid {
		c.Cancel()
		return Command{}, false
	}
	cmd, ok := c.command()
	if !ok {
		c.Cancel()
		return Command{}, false
	}
	c.reset()
	c.phase = PhaseDropped
	return cmd, true
}

// Cancel aborts the drag; nothing was written, so the view returns to the
// pre-drag order once the hidden slot and placeholder are gone.
func (c *Controller) Cancel() {
	if c.phase == PhaseIdle {
		return
	}
	c.reset()
	c.phase = PhaseCancelled
}

func (c *Controller) reset() {
	c.active = model.Node{}
	c.activeRect = Rect{}
	c.origin = Point{}
	c.pointer = Point{}
	c.overID = ""
	c.placeholder = Placeholder{}
	c.valid = false
}

// draggedCenter is the center of the active row translated by the pointer delta.
func (c *Controller) draggedCenter() Point {
	ac := c.activeRect.Center()
	return Point{X: ac.X + c.pointer.X - c.origin.X, Y: ac.Y + c.pointer.Y - c.origin.Y}
}

// legal reports whether the active node may be dropped on n.
func (c *Controller) legal(n model.Node) bool {
	a := c.active
	switch a.Level {
	case model.LevelSection:
		return n.Level == model.LevelSection
	case model.LevelTitle:
		return n.Level == model.LevelTitle && n.Parent() == a.Parent()
	case model.LevelSubTitle:
		return n.Level == model.LevelSubTitle || n.Level == model.LevelTitle
	}
	return false
}

func (c *Controller) retarget() {
	c.overID = ""
	c.valid = false

	targets := c.layout.Targets()
	inside := false
	for _, t := range targets {
		if t.Rect.Contains(c.pointer) {
			inside = true
			break
		}
	}
	if !inside {
		return
	}

	center := c.draggedCenter()
	best := -1.0
	var over Target
	var overNode model.Node
	for _, t := range targets {
		n, ok := c.tree.Node(t.ID)
		if !ok || !c.legal(n) {
			continue
		}
		d := dist(center, t.Rect.Center())
		if best < 0 || d < best {
			best, over, overNode = d, t, n
		}
	}
	if best < 0 {
		return
	}

	c.overID = over.ID
	c.valid = true
	if overNode.Level != c.active.Level {
		// Sub-title over a title row: first slot of that title.
		c.placeholder = Placeholder{ParentID: overNode.ID, Level: c.active.Level, Index: 0}
		return
	}
	parent := overNode.Parent()
	rest := order.Without(order.IDs(c.tree.Children(parent, c.active.Level)), c.active.ID)
	if overNode.ID == c.active.ID {
		c.placeholder = Placeholder{ParentID: parent, Level: c.active.Level, Index: c.originIndex()}
		return
	}
	idx := 0
	for i, id := range rest {
		if id == overNode.ID {
			idx = i
			break
		}
	}
	dy := center.Y - over.Rect.Center().Y
	switch {
	case dy > midpointEpsilon:
		idx++
	case dy >= -midpointEpsilon && parent == c.active.Parent() && idx >= c.originIndex():
		// Dead center on a later sibling: take its slot, pushing it up.
		idx++
	}
	c.placeholder = Placeholder{ParentID: parent, Level: c.active.Level, Index: idx}
}

func (c *Controller) originIndex() int {
	for i, id := range order.IDs(c.tree.Children(c.active.Parent(), c.active.Level)) {
		if id == c.active.ID {
			return i
		}
	}
	return 0
}

func (c *Controller) command() (Command, bool) {
	a := c.active
	ph := c.placeholder
	from := a.Parent()
	src := c.tree.Children(from, a.Level)
	cmd := Command{NodeID: a.ID, Level: a.Level, FromParentID: from, ToParentID: ph.ParentID, Index: ph.Index}

	if ph.ParentID == from {
		if ph.Index == c.originIndex() {
			return Command{}, false
		}
		plan, err := order.PlanReorder(src, a.ID, ph.Index)
		if err != nil {
			return Command{}, false
		}
		cmd.Kind = CommandReorder
		cmd.SourceOrder = plan.Final
		return cmd, true
	}
	if a.Level != model.LevelSubTitle {
		return Command{}, false
	}
	plan, err := order.PlanMove(src, c.tree.Children(ph.ParentID, a.Level), a.ID, ph.Index)
	if err != nil {
		return Command{}, false
	}
	cmd.Kind = CommandMove
	cmd.SourceOrder = plan.SourceOrder
	cmd.DestOrder = plan.DestOrder
	for i, id := range plan.DestOrder {
		if id == a.ID {
			cmd.Index = i
		}
	}
	return cmd, true
}

// Slot is one rendered position of a group during a drag.
type Slot struct {
	ID          string
	Placeholder bool
}

// Project returns the rendered slots of the (parentID, level) group: the active
// node is removed and, if the drop lands in this group, a placeholder is inserted.
func (c *Controller) Project(parentID string, level model.Level) []Slot {
	ids := order.IDs(c.tree.Children(parentID, level))
	if c.phase != PhaseDragging {
		out := make([]Slot, 0, len(ids))
		for _, id := range ids {
			out = append(out, Slot{ID: id})
		}
		return out
	}
	ids = order.Without(ids, c.active.ID)
	out := make([]Slot, 0, len(ids)+1)
	for _, id := range ids {
		out = append(out, Slot{ID: id})
	}
	if ph, ok := c.Placeholder(); ok && ph.ParentID == parentID && ph.Level == level {
		at := ph.Index
		if at > len(out) {
			at = len(out)
		}
		out = append(out[:at], append([]Slot{{ID: c.active.ID, Placeholder: true}}, out[at:]...)...)
	}
	return out
}
