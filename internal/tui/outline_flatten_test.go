package tui

import (
	"testing"

	"arborescence/internal/drag"
	"arborescence/internal/model"
	"arborescence/internal/tree"
)

func outlineTree(t *testing.T) *tree.Model {
	t.Helper()
	m, err := tree.New([]model.Node{
		{ID: "s1", Label: "S1", Level: model.LevelSection, Index: 0},
		{ID: "t1", Label: "T1", Level: model.LevelTitle, ParentID: model.ParentPtr("s1"), Index: 0},
		{ID: "u1", Label: "U1", Level: model.LevelSubTitle, ParentID: model.ParentPtr("t1"), Index: 0},
		{ID: "u2", Label: "U2", Level: model.LevelSubTitle, ParentID: model.ParentPtr("t1"), Index: 1},
		{ID: "t2", Label: "T2", Level: model.LevelTitle, ParentID: model.ParentPtr("s1"), Index: 1},
		{ID: "s2", Label: "S2", Level: model.LevelSection, Index: 1},
	})
	if err != nil {
		t.Fatalf("tree.New: %v", err)
	}
	return m
}

func rowIDs(rows []outlineRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		id := r.node.ID
		if r.placeholder {
			id = "[" + id + "]"
		}
		out = append(out, id)
	}
	return out
}

func TestFlattenOutline_DepthFirstWithDepths(t *testing.T) {
	m := outlineTree(t)
	rows := flattenOutline(m, nil, func(id string) bool { return id == "t2" })
	want := []string{"s1", "t1", "u1", "u2", "t2", "s2"}
	got := rowIDs(rows)
	if len(got) != len(want) {
		t.Fatalf("unexpected rows: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected rows: %v", got)
		}
	}
	if rows[2].depth != 2 || rows[5].depth != 0 || !rows[4].busy || rows[1].busy {
		t.Fatalf("unexpected row metadata: %+v", rows)
	}
}

func TestFlattenOutline_DragHidesOriginAndShowsPlaceholder(t *testing.T) {
	m := outlineTree(t)
	layout := &rowLayout{width: 40}
	layout.rows = flattenOutline(m, nil, nil)
	d := drag.New(m, layout)
	d.MinDistance = 1

	// Drag T1 (row 1) down onto T2 (row 4): its sub-titles travel with it.
	d.Down("t1", drag.Point{X: 1, Y: 1.5})
	d.Move(drag.Point{X: 1, Y: 4.7})
	rows := flattenOutline(m, d, nil)
	got := rowIDs(rows)
	want := []string{"s1", "t2", "[t1]", "s2"}
	if len(got) != len(want) {
		t.Fatalf("unexpected rows: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected rows: %v", got)
		}
	}
}

func TestRowLayout_TargetsAndRowAt(t *testing.T) {
	m := outlineTree(t)
	l := &rowLayout{top: 2, width: 30, offset: 1, visible: 3}
	l.rows = flattenOutline(m, nil, nil)

	targets := l.Targets()
	if len(targets) != 3 || targets[0].ID != "t1" || targets[0].Rect.Y != 2 || targets[2].ID != "u2" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
	if i, ok := l.rowAt(3); !ok || l.rows[i].node.ID != "u1" {
		t.Fatalf("expected u1 at screen line 3")
	}
	if _, ok := l.rowAt(1); ok {
		t.Fatalf("header line must not map to a row")
	}
	if _, ok := l.rowAt(5); ok {
		t.Fatalf("rows below the window must not map")
	}
	if l.indexOf("s2") != 5 || l.indexOf("nope") != -1 {
		t.Fatalf("unexpected indexOf")
	}
}
