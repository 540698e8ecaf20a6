package store

import (
	"context"
	"fmt"
	"strings"

	"arborescence/internal/model"
	"arborescence/internal/remote"
)

func normalizeRef(ref model.Ref) (model.Ref, error) {
	ref.NodeID = strings.TrimSpace(ref.NodeID)
	ref.RefID = strings.TrimSpace(ref.RefID)
	if ref.NodeID == "" || ref.RefID == "" {
		return model.Ref{}, remote.Domain(remote.CodeInvalid, "ref requires a node id and a ref id")
	}
	kind, err := model.ParseRefKind(string(ref.Kind))
	if err != nil {
		return model.Ref{}, remote.Domain(remote.CodeInvalid, "%v", err)
	}
	ref.Kind = kind
	return ref, nil
}

// AttachRef records that a field or document is classified under a node.
// Attaching an existing ref is a no-op.
func (s *Store) AttachRef(ctx context.Context, ref model.Ref) error {
	ref, err := normalizeRef(ref)
	if err != nil {
		return err
	}
	if _, err := s.getNode(ctx, s.db, ref.NodeID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO node_refs(node_id, ref_kind, ref_id, created_at_unixms) VALUES(?, ?, ?, ?) ON CONFLICT (node_id, ref_kind, ref_id) DO NOTHING`),
		ref.NodeID, string(ref.Kind), ref.RefID, s.nowMs())
	if err != nil {
		return fmt.Errorf("attach ref: %w", err)
	}
	return nil
}

func (s *Store) DetachRef(ctx context.Context, ref model.Ref) error {
	ref, err := normalizeRef(ref)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM node_refs WHERE node_id = ? AND ref_kind = ? AND ref_id = ?`),
		ref.NodeID, string(ref.Kind), ref.RefID)
	if err != nil {
		return fmt.Errorf("detach ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return remote.Domain(remote.CodeNotFound, "no %s ref %s on %s", ref.Kind, ref.RefID, ref.NodeID)
	}
	return nil
}

// ListRefs returns the refs attached to nodeID ("" lists all).
func (s *Store) ListRefs(ctx context.Context, nodeID string) ([]model.Ref, error) {
	q := `SELECT node_id, ref_kind, ref_id FROM node_refs`
	var args []any
	if id := strings.TrimSpace(nodeID); id != "" {
		q += ` WHERE node_id = ?`
		args = append(args, id)
	}
	q += ` ORDER BY node_id, ref_kind, ref_id`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Ref{}
	for rows.Next() {
		var (
			r    model.Ref
			kind string
		)
		if err := rows.Scan(&r.NodeID, &kind, &r.RefID); err != nil {
			return nil, err
		}
		r.Kind = model.RefKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
