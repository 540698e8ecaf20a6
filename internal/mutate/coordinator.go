// Package mutate is the single writer of the tree model. Every write goes
// through the same cycle: validate, snapshot the affected scope, install an
// optimistic projection, call the remote, then commit (trusting the server) or
// roll the scope back. Each settle ends with a refresh of the scope from listTree.
package mutate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"arborescence/internal/model"
	"arborescence/internal/remote"
	"arborescence/internal/tree"

	"github.com/google/uuid"
)

type Op string

const (
	OpCreate  Op = "create"
	OpRename  Op = "rename"
	OpDelete  Op = "delete"
	OpReorder Op = "reorder"
	OpMove    Op = "move"
)

type State int

const (
	StateIdle State = iota
	StateOptimistic
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateOptimistic:
		return "optimistic"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "idle"
	}
}

// TempPrefix marks client-side ids of nodes whose create is still in flight.
const TempPrefix = "tmp-"

func IsTempID(id string) bool { return strings.HasPrefix(strings.TrimSpace(id), TempPrefix) }

type Coordinator struct {
	model  *tree.Model
	remote remote.Remote
	log    *slog.Logger

	mu       sync.Mutex
	inflight map[string]Op

	newTempID func() string
}

func New(m *tree.Model, r remote.Remote, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		model:     m,
		remote:    r,
		log:       log,
		inflight:  map[string]Op{},
		newTempID: func() string { return TempPrefix + uuid.NewString() },
	}
}

// Model is the read-only view of the tree for renderers and the drag controller.
func (c *Coordinator) Model() tree.Reader { return c.model }

// InFlight reports how many scope keys are held by unsettled mutations.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Busy reports whether node id (or its sibling group) has a change in flight.
func (c *Coordinator) Busy(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight["node:"+id]; ok {
		return true
	}
	if n, ok := c.model.Node(id); ok {
		if _, ok := c.inflight["group:"+n.Parent()]; ok {
			return true
		}
	}
	return false
}

// Load replaces the whole model with the server's tree.
func (c *Coordinator) Load(ctx context.Context) error {
	nodes, err := c.remote.ListTree(ctx)
	if err != nil {
		return err
	}
	return c.model.Replace(nodes)
}

// Refresh is Load for an idle coordinator. It refuses while writes are in
// flight so their optimistic state is not overwritten.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if len(c.inflight) > 0 {
		keys := make([]string, 0, len(c.inflight))
		for k := range c.inflight {
			keys = append(keys, k)
		}
		c.mu.Unlock()
		return BusyError{Op: "refresh", Keys: keys}
	}
	c.mu.Unlock()
	return c.Load(ctx)
}

// Result describes a settled mutation.
type Result struct {
	Op      Op
	State   State
	NodeID  string
	TempID  string
	Node    *model.Node
	Changed bool
	// Drift is set when the refreshed server state differed from the projection.
	Drift bool
}

// Pending is a mutation whose optimistic projection is installed and whose
// remote call has not run yet.
type Pending struct {
	c      *Coordinator
	op     Op
	nodeID string
	tempID string
	scope  tree.Scope
	snap   tree.Snapshot
	keys   []string
	state  State

	// call performs the remote write and returns the server's node, if any.
	call func(ctx context.Context) (*model.Node, error)
}

func (p *Pending) Op() Op         { return p.op }
func (p *Pending) NodeID() string { return p.nodeID }
func (p *Pending) TempID() string { return p.tempID }
func (p *Pending) State() State   { return p.state }

// begin validates scope availability, snapshots it, applies the projection and
// registers the scope as in flight. Callers hold c.mu.
func (c *Coordinator) begin(op Op, nodeID string, scope tree.Scope, projection tree.Change) (*Pending, error) {
	keys := scope.Keys()
	var busy []string
	for _, k := range keys {
		if _, ok := c.inflight[k]; ok {
			busy = append(busy, k)
		}
	}
	if len(busy) > 0 {
		return nil, BusyError{Op: op, Keys: busy}
	}
	snap := c.model.Snapshot(scope)
	if !projection.Empty() {
		if err := c.model.Apply(projection); err != nil {
			return nil, InvalidError{Op: op, Reason: err.Error()}
		}
	}
	for _, k := range keys {
		c.inflight[k] = op
	}
	c.log.Debug("mutation optimistic", "op", op, "node", nodeID, "scope", keys)
	return &Pending{c: c, op: op, nodeID: nodeID, scope: scope, snap: snap, keys: keys, state: StateOptimistic}, nil
}

func (c *Coordinator) release(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.inflight, k)
	}
}

// Run performs the remote call and settles. On failure the scope is restored to
// its pre-mutation snapshot and an *Error is returned.
func (p *Pending) Run(ctx context.Context) (Result, error) {
	res := Result{Op: p.op, NodeID: p.nodeID, TempID: p.tempID}
	if p.state != StateOptimistic {
		res.State = p.state
		return res, errors.New("mutation already settled")
	}
	if p.call == nil {
		p.state = StateCommitted
		res.State = p.state
		return res, nil
	}
	c := p.c
	defer c.release(p.keys)

	server, err := p.call(ctx)
	if err != nil {
		p.state = StateRolledBack
		res.State = p.state
		if rerr := c.model.Restore(p.snap); rerr != nil {
			c.log.Error("rollback failed; reloading", "op", p.op, "node", p.nodeID, "err", rerr)
			if lerr := c.Load(ctx); lerr != nil {
				c.log.Error("reload after failed rollback", "err", lerr)
			}
		}
		kind := classify(err)
		c.log.Info("mutation rolled back", "op", p.op, "node", p.nodeID, "kind", kind.String(), "err", err)
		c.reconcile(ctx, p.scope)
		return res, &Error{Kind: kind, Op: p.op, NodeID: p.nodeID, Err: err}
	}

	p.state = StateCommitted
	res.State = p.state
	res.Changed = true
	if server != nil {
		// Trust the server's node over the projection (id, index renumbering).
		s := server.Clone()
		ch := tree.Change{Upsert: []model.Node{s}}
		if p.tempID != "" {
			ch.Remove = []string{p.tempID}
			res.NodeID = s.ID
			p.scope = p.scope.Add(tree.Scope{Nodes: []string{s.ID}})
		}
		if err := c.model.Apply(ch); err != nil {
			c.log.Warn("server node does not fit the local model", "op", p.op, "node", s.ID, "err", err)
		}
		res.Node = &s
	}
	res.Drift = c.reconcile(ctx, p.scope)
	if res.Node != nil {
		if n, ok := c.model.Node(res.Node.ID); ok {
			res.Node = &n
		}
	}
	c.log.Debug("mutation committed", "op", p.op, "node", res.NodeID, "drift", res.Drift)
	return res, nil
}

// reconcile refreshes scope from listTree; the server wins. It reports whether
// the server state differed from the local one.
func (c *Coordinator) reconcile(ctx context.Context, scope tree.Scope) bool {
	nodes, err := c.remote.ListTree(ctx)
	if err != nil {
		c.log.Warn("refresh after settle failed", "scope", scope.Keys(), "err", err)
		return false
	}
	local := map[string]model.Node{}
	for _, n := range c.model.Snapshot(scope).Nodes() {
		local[n.ID] = n
	}
	drift := false
	seen := 0
	for _, n := range nodes {
		if !scope.Covers(n) {
			continue
		}
		seen++
		if l, ok := local[n.ID]; !ok || !l.Same(n) {
			drift = true
		}
	}
	if seen != len(local) {
		drift = true
	}
	if !drift {
		return false
	}
	c.log.Warn("server state differs from local projection; taking server state", "scope", scope.Keys())
	if err := c.model.ReplaceScope(scope, nodes); err != nil {
		c.log.Warn("scoped refresh does not fit; replacing whole tree", "err", err)
		if err := c.model.Replace(nodes); err != nil {
			c.log.Error("server tree rejected", "err", err)
		}
	}
	return true
}
