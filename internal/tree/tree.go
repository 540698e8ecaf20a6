// Package tree holds the canonical, flat, id-keyed collection of arborescence
// nodes. Nested Section -> Title -> Sub-Title views are derived on read; a node
// is never stored in more than one place.
package tree

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"arborescence/internal/model"
	"arborescence/internal/order"
)

// Reader is the read-only view handed to the drag controller and renderers.
type Reader interface {
	Node(id string) (model.Node, bool)
	Children(parentID string, level model.Level) []model.Node
	Group(parentID string) []model.Node
	Nodes() []model.Node
	Len() int
}

// Model is safe for concurrent use. Only the mutation coordinator writes to it.
type Model struct {
	mu    sync.RWMutex
	nodes map[string]model.Node

	// Derived index, rebuilt lazily after writes.
	idxBuilt    bool
	idxByParent map[string][]model.Node
	version     uint64
}

func New(nodes []model.Node) (*Model, error) {
	m := &Model{nodes: map[string]model.Node{}}
	if err := m.Replace(nodes); err != nil {
		return nil, err
	}
	return m, nil
}

// Version increments on every successful write.
func (m *Model) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func (m *Model) Node(id string) (model.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[strings.TrimSpace(id)]
	if !ok {
		return model.Node{}, false
	}
	return n.Clone(), true
}

// Children returns the nodes of level whose parent is parentID ("" for sections),
// sorted by sibling index then id.
func (m *Model) Children(parentID string, level model.Level) []model.Node {
	var out []model.Node
	for _, n := range m.Group(parentID) {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// Group returns the whole sibling group under parentID, sorted.
func (m *Model) Group(parentID string) []model.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureIndex()
	src := m.idxByParent[strings.TrimSpace(parentID)]
	out := make([]model.Node, 0, len(src))
	for _, n := range src {
		out = append(out, n.Clone())
	}
	return out
}

// Nodes returns every node ordered depth-first (section, its titles, their sub-titles).
func (m *Model) Nodes() []model.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureIndex()
	out := make([]model.Node, 0, len(m.nodes))
	var walk func(parent string)
	walk = func(parent string) {
		for _, n := range m.idxByParent[parent] {
			out = append(out, n.Clone())
			walk(n.ID)
		}
	}
	walk("")
	return out
}

func (m *Model) ensureIndex() {
	if m.idxBuilt {
		return
	}
	m.idxByParent = map[string][]model.Node{}
	for _, n := range m.nodes {
		k := n.Parent()
		m.idxByParent[k] = append(m.idxByParent[k], n)
	}
	for k := range m.idxByParent {
		order.Sort(m.idxByParent[k])
	}
	m.idxBuilt = true
}

// Change is an atomic batch of writes.
type Change struct {
	Upsert []model.Node
	Remove []string
}

func (c Change) Empty() bool { return len(c.Upsert) == 0 && len(c.Remove) == 0 }

// Apply installs the change if the resulting model is valid; otherwise nothing changes.
func (m *Model) Apply(c Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]model.Node, len(m.nodes)+len(c.Upsert))
	for id, n := range m.nodes {
		next[id] = n
	}
	for _, id := range c.Remove {
		delete(next, strings.TrimSpace(id))
	}
	for _, n := range c.Upsert {
		n = n.Clone()
		n.ID = strings.TrimSpace(n.ID)
		next[n.ID] = n
	}
	if err := validate(next); err != nil {
		return err
	}
	m.install(next)
	return nil
}

// Replace swaps the whole collection (e.g. with a server snapshot).
func (m *Model) Replace(nodes []model.Node) error {
	next := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		n = n.Clone()
		n.ID = strings.TrimSpace(n.ID)
		if _, dup := next[n.ID]; dup {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		next[n.ID] = n
	}
	if err := validate(next); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.install(next)
	return nil
}

func (m *Model) install(next map[string]model.Node) {
	m.nodes = next
	m.idxBuilt = false
	m.idxByParent = nil
	m.version++
}

// Validate checks the hierarchy invariants of the current state.
func (m *Model) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return validate(m.nodes)
}

func validate(nodes map[string]model.Node) error {
	for id, n := range nodes {
		if id == "" {
			return fmt.Errorf("node with empty id")
		}
		if !n.Level.Valid() {
			return fmt.Errorf("node %s: invalid level %q", id, n.Level)
		}
		if n.Index < 0 {
			return fmt.Errorf("node %s: negative index %d", id, n.Index)
		}
		want, hasParent := n.Level.ParentLevel()
		pid := n.Parent()
		if !hasParent {
			if pid != "" {
				return fmt.Errorf("section %s cannot have a parent", id)
			}
			continue
		}
		if pid == "" {
			return fmt.Errorf("%s %s requires a parent", strings.ToLower(n.Level.Label()), id)
		}
		p, ok := nodes[pid]
		if !ok {
			return fmt.Errorf("node %s: parent not found: %s", id, pid)
		}
		if p.Level != want {
			return fmt.Errorf("node %s: parent %s is a %s, expected %s", id, pid, p.Level.Label(), want.Label())
		}
	}
	return nil
}

// Equal reports structural equality with o.
func (m *Model) Equal(o *Model) bool {
	if m == o {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(m.nodes) != len(o.nodes) {
		return false
	}
	for id, n := range m.nodes {
		x, ok := o.nodes[id]
		if !ok || !n.Same(x) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (m *Model) Clone() *Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	next := make(map[string]model.Node, len(m.nodes))
	for id, n := range m.nodes {
		next[id] = n.Clone()
	}
	return &Model{nodes: next, version: m.version}
}

// Descendants returns the ids below id (not including id), depth-first.
func (m *Model) Descendants(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureIndex()
	var out []string
	seen := map[string]bool{}
	var walk func(pid string)
	walk = func(pid string) {
		for _, ch := range m.idxByParent[pid] {
			if seen[ch.ID] {
				continue
			}
			seen[ch.ID] = true
			out = append(out, ch.ID)
			walk(ch.ID)
		}
	}
	walk(strings.TrimSpace(id))
	return out
}

// GroupKeys returns every parent key that currently has children, sorted.
func (m *Model) GroupKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureIndex()
	out := make([]string, 0, len(m.idxByParent))
	for k := range m.idxByParent {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
