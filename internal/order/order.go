package order

import (
	"errors"
	"sort"
	"strings"

	"arborescence/internal/model"
)

// Sort sorts nodes in place by sibling index, then ID.
// Ties only happen on uncommitted state; the ID tie-break keeps renders stable.
func Sort(nodes []model.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return compareNodes(nodes[i], nodes[j]) < 0
	})
}

func compareNodes(a, b model.Node) int {
	if a.Index < b.Index {
		return -1
	}
	if a.Index > b.Index {
		return 1
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}

// NextAvailableIndex returns the first of 0, 1, 2, ... not used by siblings.
// Gaps left by deletions are reused; the group is not renumbered.
func NextAvailableIndex(siblings []model.Node) int {
	used := make(map[int]bool, len(siblings))
	for _, s := range siblings {
		used[s.Index] = true
	}
	for i := 0; ; i++ {
		if !used[i] {
			return i
		}
	}
}

// Reindex assigns 0..n-1 in the given order.
func Reindex(orderedIDs []string) []model.Placement {
	out := make([]model.Placement, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		out = append(out, model.Placement{ID: id, Index: i})
	}
	return out
}

// IDs returns the ids of nodes sorted by sibling order.
func IDs(nodes []model.Node) []string {
	cur := append([]model.Node{}, nodes...)
	Sort(cur)
	out := make([]string, 0, len(cur))
	for _, n := range cur {
		out = append(out, n.ID)
	}
	return out
}

// IsDense reports whether siblings' indices are exactly 0..n-1.
func IsDense(siblings []model.Node) bool {
	return len(Gaps(siblings)) == 0 && Unique(siblings)
}

// Unique reports whether no two siblings share an index.
func Unique(siblings []model.Node) bool {
	seen := make(map[int]bool, len(siblings))
	for _, s := range siblings {
		if seen[s.Index] {
			return false
		}
		seen[s.Index] = true
	}
	return true
}

// Gaps lists the unused indices below the group's highest index.
func Gaps(siblings []model.Node) []int {
	used := map[int]bool{}
	max := -1
	for _, s := range siblings {
		used[s.Index] = true
		if s.Index > max {
			max = s.Index
		}
	}
	var out []int
	for i := 0; i < max; i++ {
		if !used[i] {
			out = append(out, i)
		}
	}
	return out
}

// InsertAt returns ids with id inserted at position at (clamped).
func InsertAt(ids []string, id string, at int) []string {
	if at < 0 {
		at = 0
	}
	if at > len(ids) {
		at = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:at]...)
	out = append(out, id)
	out = append(out, ids[at:]...)
	return out
}

// Without returns ids minus id.
func Without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Plan is the result of planning a same-group reorder.
type Plan struct {
	// Final is the full sibling order after the move.
	Final []string
	// Changed is false when the move lands on the node's current position
	// and the group is already dense.
	Changed bool
}

// Placements densely indexes the planned order.
func (p Plan) Placements() []model.Placement { return Reindex(p.Final) }

// PlanReorder plans a reorder inside one sibling group.
//
// Inputs:
// - siblings: the current group (including the moved node)
// - movedID: the node being moved
// - insertAt: the index to insert the moved node at *after removing it*
//
// The whole group is renumbered; a move to the current position is a no-op
// unless the group has gaps or duplicates to repair.
func PlanReorder(siblings []model.Node, movedID string, insertAt int) (Plan, error) {
	movedID = strings.TrimSpace(movedID)
	if movedID == "" {
		return Plan{}, errors.New("missing movedID")
	}
	cur := IDs(siblings)

	movedIdx := -1
	for i, id := range cur {
		if id == movedID {
			movedIdx = i
			break
		}
	}
	if movedIdx < 0 {
		return Plan{}, errors.New("moved node not found in sibling group")
	}

	rest := Without(cur, movedID)
	if insertAt < 0 {
		insertAt = 0
	}
	if insertAt > len(rest) {
		insertAt = len(rest)
	}
	final := InsertAt(rest, movedID, insertAt)
	changed := insertAt != movedIdx || !IsDense(siblings)
	return Plan{Final: final, Changed: changed}, nil
}

// MovePlan is the result of planning a cross-parent move.
type MovePlan struct {
	SourceOrder []string
	DestOrder   []string
}

func (p MovePlan) SourcePlacements() []model.Placement { return Reindex(p.SourceOrder) }
func (p MovePlan) DestPlacements() []model.Placement   { return Reindex(p.DestOrder) }

// PlanMove plans moving movedID from the source group into the destination group
// at insertAt. Both groups come out densely ordered.
func PlanMove(source, dest []model.Node, movedID string, insertAt int) (MovePlan, error) {
	movedID = strings.TrimSpace(movedID)
	if movedID == "" {
		return MovePlan{}, errors.New("missing movedID")
	}
	src := IDs(source)
	found := false
	for _, id := range src {
		if id == movedID {
			found = true
			break
		}
	}
	if !found {
		return MovePlan{}, errors.New("moved node not found in source group")
	}
	dst := Without(IDs(dest), movedID)
	return MovePlan{
		SourceOrder: Without(src, movedID),
		DestOrder:   InsertAt(dst, movedID, insertAt),
	}, nil
}
