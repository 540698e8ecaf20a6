package tree

import (
	"sort"
	"strings"

	"arborescence/internal/model"
)

// Scope names the part of the model a mutation touches: whole sibling groups
// (by parent key, "" for sections) and individual nodes.
type Scope struct {
	Groups []string
	Nodes  []string
}

// Add merges o into s without duplicates.
func (s Scope) Add(o Scope) Scope {
	g := map[string]bool{}
	n := map[string]bool{}
	var out Scope
	for _, k := range append(append([]string{}, s.Groups...), o.Groups...) {
		k = strings.TrimSpace(k)
		if !g[k] {
			g[k] = true
			out.Groups = append(out.Groups, k)
		}
	}
	for _, k := range append(append([]string{}, s.Nodes...), o.Nodes...) {
		k = strings.TrimSpace(k)
		if k != "" && !n[k] {
			n[k] = true
			out.Nodes = append(out.Nodes, k)
		}
	}
	sort.Strings(out.Groups)
	sort.Strings(out.Nodes)
	return out
}

// Keys returns namespaced keys used for in-flight conflict detection.
func (s Scope) Keys() []string {
	out := make([]string, 0, len(s.Groups)+len(s.Nodes))
	for _, g := range s.Groups {
		out = append(out, "group:"+g)
	}
	for _, n := range s.Nodes {
		out = append(out, "node:"+n)
	}
	return out
}

// Covers reports whether n belongs to the scope (named directly or via its group).
func (s Scope) Covers(n model.Node) bool {
	for _, id := range s.Nodes {
		if id == n.ID {
			return true
		}
	}
	p := n.Parent()
	for _, g := range s.Groups {
		if g == p {
			return true
		}
	}
	return false
}

// Snapshot is the captured state of a scope.
type Snapshot struct {
	scope Scope
	nodes []model.Node
}

func (s Snapshot) Scope() Scope        { return s.scope }
func (s Snapshot) Nodes() []model.Node { return append([]model.Node{}, s.nodes...) }

// Snapshot captures every node covered by scope.
func (m *Model) Snapshot(scope Scope) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{scope: scope}
	for _, n := range m.nodes {
		if scope.Covers(n) {
			snap.nodes = append(snap.nodes, n.Clone())
		}
	}
	return snap
}

// Restore reinstates a snapshot verbatim: nodes currently covered by its scope are
// dropped and the captured nodes are put back.
func (m *Model) Restore(snap Snapshot) error {
	return m.ReplaceScope(snap.scope, snap.nodes)
}

// ReplaceScope replaces everything covered by scope with the covered subset of nodes.
// Nodes outside the scope are left untouched.
func (m *Model) ReplaceScope(scope Scope, nodes []model.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]model.Node, len(m.nodes))
	for id, n := range m.nodes {
		if scope.Covers(n) {
			continue
		}
		next[id] = n
	}
	for _, n := range nodes {
		if !scope.Covers(n) {
			continue
		}
		next[n.ID] = n.Clone()
	}
	if err := validate(next); err != nil {
		return err
	}
	m.install(next)
	return nil
}
