package mutate

import (
	"context"
	"fmt"
	"strings"

	"arborescence/internal/model"
	"arborescence/internal/order"
	"arborescence/internal/remote"
	"arborescence/internal/tree"
)

func (c *Coordinator) node(id string) (model.Node, error) {
	id = strings.TrimSpace(id)
	n, ok := c.model.Node(id)
	if !ok {
		return model.Node{}, NotFoundError{Kind: "node", ID: id}
	}
	return n, nil
}

// checkParent verifies parentID can hold children of level.
func (c *Coordinator) checkParent(op Op, parentID string, level model.Level) error {
	want, needsParent := level.ParentLevel()
	if !needsParent {
		if parentID != "" {
			return InvalidError{Op: op, Reason: "a section has no parent"}
		}
		return nil
	}
	if parentID == "" {
		return InvalidError{Op: op, Reason: fmt.Sprintf("a %s requires a parent", strings.ToLower(level.Label()))}
	}
	if IsTempID(parentID) {
		return BusyError{Op: op, Keys: []string{"node:" + parentID}}
	}
	p, err := c.node(parentID)
	if err != nil {
		return err
	}
	if p.Level != want {
		return InvalidError{Op: op, Reason: fmt.Sprintf("%s %s cannot hold a %s", p.Level.Label(), p.ID, strings.ToLower(level.Label()))}
	}
	return nil
}

// RequestCreate installs a node with a temporary id at the first free index of
// its sibling group. On commit the temporary node is replaced by the server's.
func (c *Coordinator) RequestCreate(parentID string, level model.Level, label string) (*Pending, error) {
	parentID = strings.TrimSpace(parentID)
	label, err := model.NormalizeLabel(label)
	if err != nil {
		return nil, InvalidError{Op: OpCreate, Reason: err.Error()}
	}
	if !level.Valid() {
		return nil, InvalidError{Op: OpCreate, Reason: fmt.Sprintf("invalid level %q", level)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkParent(OpCreate, parentID, level); err != nil {
		return nil, err
	}
	idx := order.NextAvailableIndex(c.model.Children(parentID, level))
	tmp := model.Node{
		ID:       c.newTempID(),
		Label:    label,
		Level:    level,
		ParentID: model.ParentPtr(parentID),
		Index:    idx,
	}
	scope := tree.Scope{Groups: []string{parentID}, Nodes: []string{tmp.ID}}
	p, err := c.begin(OpCreate, tmp.ID, scope, tree.Change{Upsert: []model.Node{tmp}})
	if err != nil {
		return nil, err
	}
	p.tempID = tmp.ID
	req := model.CreateRequest{Label: label, Level: level, ParentID: model.ParentPtr(parentID), Index: idx}
	p.call = func(ctx context.Context) (*model.Node, error) {
		n, err := c.remote.CreateNode(ctx, req)
		if err != nil {
			return nil, err
		}
		return &n, nil
	}
	return p, nil
}

func (c *Coordinator) RequestRename(id, label string) (*Pending, error) {
	label, err := model.NormalizeLabel(label)
	if err != nil {
		return nil, InvalidError{Op: OpRename, Reason: err.Error()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.node(id)
	if err != nil {
		return nil, err
	}
	scope := tree.Scope{Groups: []string{n.Parent()}, Nodes: []string{n.ID}}
	if n.Label == label {
		p, err := c.begin(OpRename, n.ID, scope, tree.Change{})
		if err != nil {
			return nil, err
		}
		c.releaseLocked(p.keys)
		return p, nil
	}
	renamed := n.Clone()
	renamed.Label = label
	p, err := c.begin(OpRename, n.ID, scope, tree.Change{Upsert: []model.Node{renamed}})
	if err != nil {
		return nil, err
	}
	p.call = func(ctx context.Context) (*model.Node, error) {
		out, err := c.remote.RenameNode(ctx, n.ID, model.RenameRequest{Label: label})
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
	return p, nil
}

// RequestDelete removes the node and its descendants optimistically.
func (c *Coordinator) RequestDelete(id string) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.node(id)
	if err != nil {
		return nil, err
	}
	if IsTempID(n.ID) {
		return nil, BusyError{Op: OpDelete, Keys: []string{"node:" + n.ID}}
	}
	desc := c.model.Descendants(n.ID)
	removed := append([]string{n.ID}, desc...)
	// Every group below the node goes with it.
	groups := []string{n.Parent(), n.ID}
	for _, d := range desc {
		if dn, ok := c.model.Node(d); ok && dn.Level != model.LevelSubTitle {
			groups = append(groups, d)
		}
	}
	scope := tree.Scope{}.Add(tree.Scope{Groups: groups, Nodes: removed})
	p, err := c.begin(OpDelete, n.ID, scope, tree.Change{Remove: removed})
	if err != nil {
		return nil, err
	}
	p.call = func(ctx context.Context) (*model.Node, error) {
		return nil, c.remote.DeleteNode(ctx, n.ID)
	}
	return p, nil
}

// RequestReorder installs orderedIDs as the new order of the (parentID, level)
// group. orderedIDs must be a permutation of the group.
func (c *Coordinator) RequestReorder(parentID string, level model.Level, orderedIDs []string) (*Pending, error) {
	parentID = strings.TrimSpace(parentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	sibs := c.model.Children(parentID, level)
	if len(sibs) != len(orderedIDs) {
		return nil, InvalidError{Op: OpReorder, Reason: fmt.Sprintf("order lists %d nodes, group has %d", len(orderedIDs), len(sibs))}
	}
	byID := map[string]model.Node{}
	for _, s := range sibs {
		byID[s.ID] = s
	}
	seen := map[string]bool{}
	for _, id := range orderedIDs {
		if _, ok := byID[id]; !ok || seen[id] {
			return nil, InvalidError{Op: OpReorder, Reason: fmt.Sprintf("%q is not a distinct member of the group", id)}
		}
		seen[id] = true
	}
	for _, id := range orderedIDs {
		if IsTempID(id) {
			return nil, BusyError{Op: OpReorder, Keys: []string{"node:" + id}}
		}
	}

	placements := order.Reindex(orderedIDs)
	var upserts []model.Node
	for _, pl := range placements {
		n := byID[pl.ID]
		if n.Index != pl.Index {
			n.Index = pl.Index
			upserts = append(upserts, n)
		}
	}
	scope := tree.Scope{Groups: []string{parentID}}
	p, err := c.begin(OpReorder, "", scope, tree.Change{Upsert: upserts})
	if err != nil {
		return nil, err
	}
	if len(upserts) == 0 {
		c.releaseLocked(p.keys)
		return p, nil
	}
	req := model.ReorderRequest{ParentID: model.ParentPtr(parentID), Order: placements}
	p.call = func(ctx context.Context) (*model.Node, error) {
		return nil, c.remote.ReorderSiblings(ctx, req)
	}
	return p, nil
}

// RequestMove moves a node to toParentID at index (counted without the node).
// Both the source and the destination groups are densely renumbered.
func (c *Coordinator) RequestMove(nodeID, toParentID string, index int) (*Pending, error) {
	toParentID = strings.TrimSpace(toParentID)

	c.mu.Lock()
	n, err := c.node(nodeID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	from := n.Parent()
	if from == toParentID {
		c.mu.Unlock()
		plan, err := order.PlanReorder(c.model.Children(from, n.Level), n.ID, index)
		if err != nil {
			return nil, InvalidError{Op: OpMove, Reason: err.Error()}
		}
		return c.RequestReorder(from, n.Level, plan.Final)
	}
	defer c.mu.Unlock()
	if IsTempID(n.ID) {
		return nil, BusyError{Op: OpMove, Keys: []string{"node:" + n.ID}}
	}
	if n.Level != model.LevelSubTitle {
		return nil, InvalidError{Op: OpMove, Reason: fmt.Sprintf("a %s can only be reordered within its parent", strings.ToLower(n.Level.Label()))}
	}
	if err := c.checkParent(OpMove, toParentID, n.Level); err != nil {
		return nil, err
	}

	src := c.model.Children(from, n.Level)
	dst := c.model.Children(toParentID, n.Level)
	plan, err := order.PlanMove(src, dst, n.ID, index)
	if err != nil {
		return nil, InvalidError{Op: OpMove, Reason: err.Error()}
	}
	byID := map[string]model.Node{}
	for _, s := range append(append([]model.Node{}, src...), dst...) {
		byID[s.ID] = s
	}
	var upserts []model.Node
	for _, pl := range plan.SourcePlacements() {
		s := byID[pl.ID]
		s.Index = pl.Index
		upserts = append(upserts, s)
	}
	for _, pl := range plan.DestPlacements() {
		s := byID[pl.ID]
		s.Index = pl.Index
		s.ParentID = model.ParentPtr(toParentID)
		upserts = append(upserts, s)
	}

	scope := tree.Scope{Groups: []string{from, toParentID}, Nodes: []string{n.ID}}
	p, err := c.begin(OpMove, n.ID, scope, tree.Change{Upsert: upserts})
	if err != nil {
		return nil, err
	}
	destIdx := 0
	for i, id := range plan.DestOrder {
		if id == n.ID {
			destIdx = i
		}
	}
	p.call = func(ctx context.Context) (*model.Node, error) {
		if mv, ok := c.remote.(remote.Mover); ok {
			return nil, mv.MoveNode(ctx, model.MoveRequest{
				NodeID:       n.ID,
				FromParentID: model.ParentPtr(from),
				ToParentID:   model.ParentPtr(toParentID),
				Index:        destIdx,
			})
		}
		// Destination first: the node leaves the source group as it is attached.
		if err := c.remote.ReorderSiblings(ctx, model.ReorderRequest{ParentID: model.ParentPtr(toParentID), Order: plan.DestPlacements()}); err != nil {
			return nil, err
		}
		if len(plan.SourceOrder) == 0 {
			return nil, nil
		}
		return nil, c.remote.ReorderSiblings(ctx, model.ReorderRequest{ParentID: model.ParentPtr(from), Order: plan.SourcePlacements()})
	}
	return p, nil
}

// Densify renumbers every sibling group that has gaps to 0..n-1, one reorder
// per group. It returns the number of groups rewritten.
func (c *Coordinator) Densify(ctx context.Context) (int, error) {
	type group struct {
		parent string
		level  model.Level
		ids    []string
	}
	var todo []group
	for _, key := range c.model.GroupKeys() {
		level := model.LevelSection
		if key != "" {
			p, ok := c.model.Node(key)
			if !ok {
				continue
			}
			cl, ok := p.Level.ChildLevel()
			if !ok {
				continue
			}
			level = cl
		}
		sibs := c.model.Children(key, level)
		if len(sibs) == 0 || order.IsDense(sibs) {
			continue
		}
		todo = append(todo, group{parent: key, level: level, ids: order.IDs(sibs)})
	}
	done := 0
	for _, g := range todo {
		p, err := c.RequestReorder(g.parent, g.level, g.ids)
		if err != nil {
			return done, err
		}
		if _, err := p.Run(ctx); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func (c *Coordinator) releaseLocked(keys []string) {
	for _, k := range keys {
		delete(c.inflight, k)
	}
}
