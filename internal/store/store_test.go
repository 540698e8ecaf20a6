package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"arborescence/internal/model"
	"arborescence/internal/order"
	"arborescence/internal/remote"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "arbo.sqlite"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, label string, level model.Level, parent string, idx int) model.Node {
	t.Helper()
	n, err := s.CreateNode(context.Background(), model.CreateRequest{
		Label:    label,
		Level:    level,
		ParentID: model.ParentPtr(parent),
		Index:    idx,
	})
	if err != nil {
		t.Fatalf("CreateNode(%s): %v", label, err)
	}
	return n
}

func groupOf(t *testing.T, s *Store, parent string) []model.Node {
	t.Helper()
	g, err := s.group(context.Background(), s.db, parent)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	return g
}

func TestCreateNode_TakenIndexGetsNextFree(t *testing.T) {
	s := openTestStore(t)
	sec := mustCreate(t, s, "Droit civil", model.LevelSection, "", 0)
	a := mustCreate(t, s, "A", model.LevelTitle, sec.ID, 0)
	b := mustCreate(t, s, "B", model.LevelTitle, sec.ID, 2)
	c := mustCreate(t, s, "C", model.LevelTitle, sec.ID, 0)

	if a.Index != 0 || b.Index != 2 {
		t.Fatalf("unexpected indices a=%d b=%d", a.Index, b.Index)
	}
	if c.Index != 1 {
		t.Fatalf("expected taken index to be replaced by 1, got %d", c.Index)
	}
	if c.ParentID == nil || *c.ParentID != sec.ID {
		t.Fatalf("expected parent %s, got %+v", sec.ID, c.ParentID)
	}
	if got := c.ID[:4]; got != "tit-" {
		t.Fatalf("expected tit- id, got %q", c.ID)
	}
}

func TestCreateNode_RejectsWrongLevel(t *testing.T) {
	s := openTestStore(t)
	sec := mustCreate(t, s, "S", model.LevelSection, "", 0)

	_, err := s.CreateNode(context.Background(), model.CreateRequest{Label: "x", Level: model.LevelSubTitle, ParentID: model.ParentPtr(sec.ID)})
	if !remote.IsDomain(err) {
		t.Fatalf("expected domain error, got %v", err)
	}
	_, err = s.CreateNode(context.Background(), model.CreateRequest{Label: "x", Level: model.LevelTitle})
	if !remote.IsDomain(err) {
		t.Fatalf("expected domain error for parentless title, got %v", err)
	}
	_, err = s.CreateNode(context.Background(), model.CreateRequest{Label: "  ", Level: model.LevelSection})
	if !remote.IsDomain(err) {
		t.Fatalf("expected domain error for empty label, got %v", err)
	}
}

func TestRenameNode(t *testing.T) {
	s := openTestStore(t)
	sec := mustCreate(t, s, "Old", model.LevelSection, "", 0)

	n, err := s.RenameNode(context.Background(), sec.ID, model.RenameRequest{Label: "  New  "})
	if err != nil {
		t.Fatalf("RenameNode: %v", err)
	}
	if n.Label != "New" || n.Index != 0 {
		t.Fatalf("unexpected node: %+v", n)
	}
	_, err = s.RenameNode(context.Background(), "sec-missing", model.RenameRequest{Label: "x"})
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteNode_CascadesSubtree(t *testing.T) {
	s := openTestStore(t)
	sec := mustCreate(t, s, "S", model.LevelSection, "", 0)
	tit := mustCreate(t, s, "T", model.LevelTitle, sec.ID, 0)
	mustCreate(t, s, "U", model.LevelSubTitle, tit.ID, 0)
	other := mustCreate(t, s, "Other", model.LevelSection, "", 1)

	if err := s.DeleteNode(context.Background(), sec.ID); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	nodes, err := s.ListTree(context.Background())
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != other.ID {
		t.Fatalf("expected only %s left, got %+v", other.ID, nodes)
	}
}

func TestDeleteNode_ReferencedSubtreeIsRefused(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sec := mustCreate(t, s, "S", model.LevelSection, "", 0)
	tit := mustCreate(t, s, "T", model.LevelTitle, sec.ID, 0)
	sub := mustCreate(t, s, "U", model.LevelSubTitle, tit.ID, 0)

	if err := s.AttachRef(ctx, model.Ref{NodeID: sub.ID, Kind: model.RefDocument, RefID: "doc-1"}); err != nil {
		t.Fatalf("AttachRef: %v", err)
	}
	// Attaching twice is a no-op.
	if err := s.AttachRef(ctx, model.Ref{NodeID: sub.ID, Kind: model.RefDocument, RefID: "doc-1"}); err != nil {
		t.Fatalf("AttachRef (again): %v", err)
	}

	err := s.DeleteNode(ctx, sec.ID)
	if !errors.Is(err, remote.ErrReferenced) || !remote.IsDomain(err) {
		t.Fatalf("expected referenced domain error, got %v", err)
	}
	nodes, _ := s.ListTree(ctx)
	if len(nodes) != 3 {
		t.Fatalf("expected nothing deleted, got %d nodes", len(nodes))
	}

	if err := s.DetachRef(ctx, model.Ref{NodeID: sub.ID, Kind: model.RefDocument, RefID: "doc-1"}); err != nil {
		t.Fatalf("DetachRef: %v", err)
	}
	if err := s.DeleteNode(ctx, sec.ID); err != nil {
		t.Fatalf("DeleteNode after detach: %v", err)
	}
}

func TestReorderSiblings_AppliesAssignment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A", model.LevelSection, "", 0)
	b := mustCreate(t, s, "B", model.LevelSection, "", 1)
	c := mustCreate(t, s, "C", model.LevelSection, "", 2)

	err := s.ReorderSiblings(ctx, model.ReorderRequest{Order: order.Reindex([]string{c.ID, a.ID, b.ID})})
	if err != nil {
		t.Fatalf("ReorderSiblings: %v", err)
	}
	got := order.IDs(groupOf(t, s, ""))
	want := []string{c.ID, a.ID, b.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestReorderSiblings_RejectsDuplicatesAndCollisions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A", model.LevelSection, "", 0)
	b := mustCreate(t, s, "B", model.LevelSection, "", 1)

	err := s.ReorderSiblings(ctx, model.ReorderRequest{Order: []model.Placement{{ID: a.ID, Index: 0}, {ID: b.ID, Index: 0}}})
	if !remote.IsDomain(err) {
		t.Fatalf("expected domain error for duplicate index, got %v", err)
	}
	// Partial order colliding with an unlisted sibling.
	err = s.ReorderSiblings(ctx, model.ReorderRequest{Order: []model.Placement{{ID: a.ID, Index: 1}}})
	if !remote.IsDomain(err) {
		t.Fatalf("expected conflict for colliding index, got %v", err)
	}
	if got := groupOf(t, s, ""); got[0].ID != a.ID || got[0].Index != 0 {
		t.Fatalf("expected rollback of the failed reorder, got %+v", got)
	}
}

func TestMoveNode_CrossParentKeepsBothGroupsDense(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sec := mustCreate(t, s, "S", model.LevelSection, "", 0)
	t1 := mustCreate(t, s, "T1", model.LevelTitle, sec.ID, 0)
	t2 := mustCreate(t, s, "T2", model.LevelTitle, sec.ID, 1)
	u1 := mustCreate(t, s, "U1", model.LevelSubTitle, t1.ID, 0)
	u2 := mustCreate(t, s, "U2", model.LevelSubTitle, t1.ID, 1)
	v1 := mustCreate(t, s, "V1", model.LevelSubTitle, t2.ID, 0)

	err := s.MoveNode(ctx, model.MoveRequest{NodeID: u1.ID, FromParentID: model.ParentPtr(t1.ID), ToParentID: model.ParentPtr(t2.ID), Index: 0})
	if err != nil {
		t.Fatalf("MoveNode: %v", err)
	}
	src := groupOf(t, s, t1.ID)
	dst := groupOf(t, s, t2.ID)
	if len(src) != 1 || src[0].ID != u2.ID || src[0].Index != 0 {
		t.Fatalf("unexpected source group: %+v", src)
	}
	if len(dst) != 2 || dst[0].ID != u1.ID || dst[1].ID != v1.ID || !order.IsDense(dst) {
		t.Fatalf("unexpected destination group: %+v", dst)
	}

	// Stale source parent is a conflict.
	err = s.MoveNode(ctx, model.MoveRequest{NodeID: u1.ID, FromParentID: model.ParentPtr(t1.ID), ToParentID: model.ParentPtr(t1.ID), Index: 0})
	var de *remote.DomainError
	if !errors.As(err, &de) || de.Code != remote.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMoveNode_TitleCannotLeaveLevel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sec := mustCreate(t, s, "S", model.LevelSection, "", 0)
	t1 := mustCreate(t, s, "T1", model.LevelTitle, sec.ID, 0)
	t2 := mustCreate(t, s, "T2", model.LevelTitle, sec.ID, 1)

	err := s.MoveNode(ctx, model.MoveRequest{NodeID: t1.ID, ToParentID: model.ParentPtr(t2.ID), Index: 0})
	if !remote.IsDomain(err) {
		t.Fatalf("expected domain error, got %v", err)
	}
}

func TestMoveNode_TitleStaysInItsSection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A", model.LevelSection, "", 0)
	b := mustCreate(t, s, "B", model.LevelSection, "", 1)
	t1 := mustCreate(t, s, "T1", model.LevelTitle, a.ID, 0)
	mustCreate(t, s, "T2", model.LevelTitle, b.ID, 0)

	err := s.MoveNode(ctx, model.MoveRequest{NodeID: t1.ID, FromParentID: model.ParentPtr(a.ID), ToParentID: model.ParentPtr(b.ID), Index: 0})
	var de *remote.DomainError
	if !errors.As(err, &de) || de.Code != remote.CodeInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
	// The same re-parenting through a reorder of the destination group.
	err = s.ReorderSiblings(ctx, model.ReorderRequest{ParentID: model.ParentPtr(b.ID), Order: []model.Placement{{ID: t1.ID, Index: 1}}})
	if !errors.As(err, &de) || de.Code != remote.CodeInvalid {
		t.Fatalf("expected invalid reorder, got %v", err)
	}
	if got := groupOf(t, s, a.ID); len(got) != 1 || got[0].ID != t1.ID {
		t.Fatalf("expected T1 still under A, got %+v", got)
	}
}

func TestID_StableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.sqlite")
	ctx := context.Background()
	first, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := first.ID(ctx)
	if err != nil || id == "" {
		t.Fatalf("ID: %q %v", id, err)
	}
	_ = first.Close()

	second, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	again, err := second.ID(ctx)
	if err != nil || again != id {
		t.Fatalf("expected stable id %q, got %q (%v)", id, again, err)
	}
}

func TestListTree_OrderedByDepthAndIndex(t *testing.T) {
	s := openTestStore(t)
	b := mustCreate(t, s, "B", model.LevelSection, "", 1)
	a := mustCreate(t, s, "A", model.LevelSection, "", 0)
	mustCreate(t, s, "T", model.LevelTitle, a.ID, 0)

	nodes, err := s.ListTree(context.Background())
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	if len(nodes) != 3 || nodes[0].ID != a.ID || nodes[1].ID != b.ID || nodes[2].Level != model.LevelTitle {
		t.Fatalf("unexpected listing: %+v", nodes)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	if got := s.rebind(`UPDATE x SET a = ? WHERE b = ?`); got != `UPDATE x SET a = $1 WHERE b = $2` {
		t.Fatalf("unexpected rebind: %q", got)
	}
}
