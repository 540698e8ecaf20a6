package order

import (
	"reflect"
	"testing"

	"arborescence/internal/model"
)

func sub(id, parent string, idx int) model.Node {
	return model.Node{ID: id, Label: id, Level: model.LevelSubTitle, ParentID: model.ParentPtr(parent), Index: idx}
}

func TestNextAvailableIndex_FillsFirstGap(t *testing.T) {
	sibs := []model.Node{sub("a", "t1", 0), sub("b", "t1", 2)}
	if got := NextAvailableIndex(sibs); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestNextAvailableIndex_EmptyAndDense(t *testing.T) {
	if got := NextAvailableIndex(nil); got != 0 {
		t.Fatalf("expected 0 for empty group, got %d", got)
	}
	sibs := []model.Node{sub("a", "t1", 1), sub("b", "t1", 0), sub("c", "t1", 2)}
	if got := NextAvailableIndex(sibs); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestReindex_Dense(t *testing.T) {
	got := Reindex([]string{"c", "a", "b"})
	want := []model.Placement{{ID: "c", Index: 0}, {ID: "a", Index: 1}, {ID: "b", Index: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPlanReorder_LastToFirst(t *testing.T) {
	sibs := []model.Node{sub("1", "t", 0), sub("2", "t", 1), sub("3", "t", 2)}
	p, err := PlanReorder(sibs, "3", 0)
	if err != nil {
		t.Fatalf("PlanReorder error: %v", err)
	}
	if !p.Changed {
		t.Fatalf("expected changed")
	}
	want := []model.Placement{{ID: "3", Index: 0}, {ID: "1", Index: 1}, {ID: "2", Index: 2}}
	if got := p.Placements(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPlanReorder_SamePositionIsNoop(t *testing.T) {
	sibs := []model.Node{sub("1", "t", 0), sub("2", "t", 1), sub("3", "t", 2)}
	p, err := PlanReorder(sibs, "2", 1)
	if err != nil {
		t.Fatalf("PlanReorder error: %v", err)
	}
	if p.Changed {
		t.Fatalf("expected no-op, got %v", p.Final)
	}
}

func TestPlanReorder_SamePositionRepairsGaps(t *testing.T) {
	sibs := []model.Node{sub("1", "t", 0), sub("2", "t", 3)}
	p, err := PlanReorder(sibs, "2", 1)
	if err != nil {
		t.Fatalf("PlanReorder error: %v", err)
	}
	if !p.Changed {
		t.Fatalf("expected changed=true to densify the group")
	}
}

func TestPlanReorder_UnknownNode(t *testing.T) {
	if _, err := PlanReorder([]model.Node{sub("1", "t", 0)}, "x", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlanMove_BothGroupsDense(t *testing.T) {
	src := []model.Node{sub("a", "A", 0), sub("b", "A", 1), sub("c", "A", 2)}
	dst := []model.Node{sub("x", "B", 0), sub("y", "B", 4)}
	p, err := PlanMove(src, dst, "b", 1)
	if err != nil {
		t.Fatalf("PlanMove error: %v", err)
	}
	if got, want := p.SourceOrder, []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("source order: expected %v, got %v", want, got)
	}
	if got, want := p.DestOrder, []string{"x", "b", "y"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("dest order: expected %v, got %v", want, got)
	}
	for i, pl := range p.DestPlacements() {
		if pl.Index != i {
			t.Fatalf("dest placements not dense: %v", p.DestPlacements())
		}
	}
}

func TestGapsAndDensity(t *testing.T) {
	sibs := []model.Node{sub("a", "t", 0), sub("b", "t", 3)}
	if got, want := Gaps(sibs), []int{1, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected gaps %v, got %v", want, got)
	}
	if IsDense(sibs) {
		t.Fatalf("expected not dense")
	}
	dup := []model.Node{sub("a", "t", 0), sub("b", "t", 0)}
	if Unique(dup) || IsDense(dup) {
		t.Fatalf("duplicate indices must not count as dense")
	}
}

func TestSort_TieBreaksByID(t *testing.T) {
	nodes := []model.Node{sub("b", "t", 1), sub("a", "t", 1), sub("c", "t", 0)}
	Sort(nodes)
	got := []string{nodes[0].ID, nodes[1].ID, nodes[2].ID}
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
