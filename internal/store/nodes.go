package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"arborescence/internal/model"
	"arborescence/internal/order"
	"arborescence/internal/remote"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const nodeColumns = `id, label, level, parent_id, sibling_index`

func scanNode(sc interface{ Scan(...any) error }) (model.Node, error) {
	var (
		n      model.Node
		level  string
		parent sql.NullString
	)
	if err := sc.Scan(&n.ID, &n.Label, &level, &parent, &n.Index); err != nil {
		return model.Node{}, err
	}
	n.Level = model.Level(level)
	if parent.Valid {
		n.ParentID = model.ParentPtr(parent.String)
	}
	return n, nil
}

func nullParent(p *string) any {
	k := model.ParentKey(p)
	if k == "" {
		return nil
	}
	return k
}

// ListTree returns every node, ordered by depth, parent and sibling index.
func (s *Store) ListTree(ctx context.Context) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	out := []model.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortForListing(out)
	return out, nil
}

func sortForListing(nodes []model.Node) {
	// Stable grouping: depth, then parent, then sibling order.
	byKey := map[string][]model.Node{}
	var keys []string
	for _, n := range nodes {
		k := fmt.Sprintf("%d/%s", n.Level.Depth(), n.Parent())
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], n)
	}
	sort.Strings(keys)
	i := 0
	for _, k := range keys {
		g := byKey[k]
		order.Sort(g)
		i += copy(nodes[i:], g)
	}
}

func (s *Store) getNode(ctx context.Context, q querier, id string) (model.Node, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`), strings.TrimSpace(id))
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, remote.Domain(remote.CodeNotFound, "node not found: %s", id)
	}
	if err != nil {
		return model.Node{}, err
	}
	return n, nil
}

func (s *Store) group(ctx context.Context, q querier, parent string) ([]model.Node, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parent == "" {
		rows, err = q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE parent_id IS NULL`)
	} else {
		rows, err = q.QueryContext(ctx, s.rebind(`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ?`), parent)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	order.Sort(out)
	return out, nil
}

// childLevelOf resolves the level children of parent must have ("" parent = sections).
func (s *Store) childLevelOf(ctx context.Context, q querier, parent string) (model.Level, error) {
	if parent == "" {
		return model.LevelSection, nil
	}
	p, err := s.getNode(ctx, q, parent)
	if err != nil {
		return "", err
	}
	lvl, ok := p.Level.ChildLevel()
	if !ok {
		return "", remote.Domain(remote.CodeInvalid, "%s %s cannot have children", p.Level.Label(), p.ID)
	}
	return lvl, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateNode inserts a node. A requested index already used in the group is
// replaced by the first free one; the returned node carries the final index.
func (s *Store) CreateNode(ctx context.Context, req model.CreateRequest) (model.Node, error) {
	label, err := model.NormalizeLabel(req.Label)
	if err != nil {
		return model.Node{}, remote.Domain(remote.CodeInvalid, "%v", err)
	}
	if !req.Level.Valid() {
		return model.Node{}, remote.Domain(remote.CodeInvalid, "invalid level %q", req.Level)
	}
	if req.Index < 0 {
		return model.Node{}, remote.Domain(remote.CodeInvalid, "index must be non-negative")
	}
	parent := model.ParentKey(req.ParentID)

	var out model.Node
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		want, err := s.childLevelOf(ctx, tx, parent)
		if err != nil {
			return err
		}
		if want != req.Level {
			if parent == "" {
				return remote.Domain(remote.CodeInvalid, "a %s requires a parent", req.Level.Label())
			}
			return remote.Domain(remote.CodeInvalid, "a %s cannot be placed under %s (expected %s)", req.Level.Label(), parent, want.Label())
		}
		sibs, err := s.group(ctx, tx, parent)
		if err != nil {
			return err
		}
		idx := req.Index
		for _, sb := range sibs {
			if sb.Index == idx {
				idx = order.NextAvailableIndex(sibs)
				break
			}
		}
		id, err := s.newNodeID(ctx, tx, req.Level)
		if err != nil {
			return err
		}
		now := s.nowMs()
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO nodes(id, label, level, parent_id, sibling_index, created_at_unixms, updated_at_unixms) VALUES(?, ?, ?, ?, ?, ?, ?)`),
			id, label, string(req.Level), nullParent(req.ParentID), idx, now, now); err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		out = model.Node{ID: id, Label: label, Level: req.Level, ParentID: model.ParentPtr(parent), Index: idx}
		return nil
	})
	if err != nil {
		return model.Node{}, err
	}
	s.log.Debug("node created", "id", out.ID, "level", out.Level, "parent", parent, "index", out.Index)
	return out, nil
}

func (s *Store) RenameNode(ctx context.Context, id string, req model.RenameRequest) (model.Node, error) {
	label, err := model.NormalizeLabel(req.Label)
	if err != nil {
		return model.Node{}, remote.Domain(remote.CodeInvalid, "%v", err)
	}
	var out model.Node
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := s.getNode(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE nodes SET label = ?, updated_at_unixms = ? WHERE id = ?`), label, s.nowMs(), n.ID); err != nil {
			return fmt.Errorf("rename node: %w", err)
		}
		n.Label = label
		out = n
		return nil
	})
	return out, err
}

// subtree returns id and all its descendants.
func (s *Store) subtree(ctx context.Context, q querier, id string) ([]string, error) {
	out := []string{id}
	frontier := []string{id}
	for len(frontier) > 0 {
		var next []string
		for _, pid := range frontier {
			kids, err := s.group(ctx, q, pid)
			if err != nil {
				return nil, err
			}
			for _, k := range kids {
				next = append(next, k.ID)
			}
		}
		out = append(out, next...)
		frontier = next
	}
	return out, nil
}

// DeleteNode removes a node and its descendants. It refuses with a
// remote.ErrReferenced domain error when anything in the subtree is referenced.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := s.getNode(ctx, tx, id)
		if err != nil {
			return err
		}
		ids, err := s.subtree(ctx, tx, n.ID)
		if err != nil {
			return err
		}
		refs := 0
		for _, x := range ids {
			var c int
			if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM node_refs WHERE node_id = ?`), x).Scan(&c); err != nil {
				return err
			}
			refs += c
		}
		if refs > 0 {
			return remote.Domain(remote.CodeReferenced, "%s %q is referenced by %d field(s)/document(s) and cannot be deleted", n.Level.Label(), n.Label, refs)
		}
		// Children first keeps the parent reference valid until the end.
		for i := len(ids) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM nodes WHERE id = ?`), ids[i]); err != nil {
				return fmt.Errorf("delete node: %w", err)
			}
		}
		s.log.Debug("node deleted", "id", n.ID, "cascade", len(ids)-1)
		return nil
	})
}

// ReorderSiblings applies an authoritative index assignment to one sibling group.
// Listed nodes are attached to the request's parent; the group must end up with
// unique indices.
func (s *Store) ReorderSiblings(ctx context.Context, req model.ReorderRequest) error {
	if len(req.Order) == 0 {
		return nil
	}
	parent := model.ParentKey(req.ParentID)
	seenID := map[string]bool{}
	seenIdx := map[int]bool{}
	for _, p := range req.Order {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return remote.Domain(remote.CodeInvalid, "order entry without id")
		}
		if p.Index < 0 {
			return remote.Domain(remote.CodeInvalid, "negative index for %s", id)
		}
		if seenID[id] {
			return remote.Domain(remote.CodeInvalid, "duplicate id in order: %s", id)
		}
		if seenIdx[p.Index] {
			return remote.Domain(remote.CodeInvalid, "duplicate index in order: %d", p.Index)
		}
		seenID[id] = true
		seenIdx[p.Index] = true
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.applyOrder(ctx, tx, parent, req.Order)
	})
}

func (s *Store) applyOrder(ctx context.Context, tx *sql.Tx, parent string, placements []model.Placement) error {
	want, err := s.childLevelOf(ctx, tx, parent)
	if err != nil {
		return err
	}
	now := s.nowMs()
	for _, p := range placements {
		n, err := s.getNode(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if n.Level != want {
			return remote.Domain(remote.CodeInvalid, "%s %s cannot be ordered among %s nodes", n.Level.Label(), n.ID, want.Label())
		}
		// Only sub-titles change parent; sections and titles reorder in place.
		if n.Parent() != parent && n.Level != model.LevelSubTitle {
			return remote.Domain(remote.CodeInvalid, "a %s can only be reordered within its parent", strings.ToLower(n.Level.Label()))
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE nodes SET parent_id = ?, sibling_index = ?, updated_at_unixms = ? WHERE id = ?`),
			nullParent(model.ParentPtr(parent)), p.Index, now, n.ID); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
	}
	sibs, err := s.group(ctx, tx, parent)
	if err != nil {
		return err
	}
	if !order.Unique(sibs) {
		return remote.Domain(remote.CodeConflict, "sibling indices under %q would not be unique", parent)
	}
	return nil
}

// MoveNode moves a node to toParent at index in one transaction; both the
// source and destination groups are densely renumbered.
func (s *Store) MoveNode(ctx context.Context, req model.MoveRequest) error {
	if req.Index < 0 {
		return remote.Domain(remote.CodeInvalid, "index must be non-negative")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := s.getNode(ctx, tx, req.NodeID)
		if err != nil {
			return err
		}
		from := n.Parent()
		if req.FromParentID != nil && model.ParentKey(req.FromParentID) != from {
			return remote.Domain(remote.CodeConflict, "node %s is no longer under %s", n.ID, model.ParentKey(req.FromParentID))
		}
		to := model.ParentKey(req.ToParentID)
		src, err := s.group(ctx, tx, from)
		if err != nil {
			return err
		}
		if to == from {
			plan, err := order.PlanReorder(src, n.ID, req.Index)
			if err != nil {
				return remote.Domain(remote.CodeInvalid, "%v", err)
			}
			return s.applyOrder(ctx, tx, from, plan.Placements())
		}
		dst, err := s.group(ctx, tx, to)
		if err != nil {
			return err
		}
		plan, err := order.PlanMove(src, dst, n.ID, req.Index)
		if err != nil {
			return remote.Domain(remote.CodeInvalid, "%v", err)
		}
		if err := s.applyOrder(ctx, tx, to, plan.DestPlacements()); err != nil {
			return err
		}
		return s.applyOrder(ctx, tx, from, plan.SourcePlacements())
	})
}
