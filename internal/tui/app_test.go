package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"arborescence/internal/drag"
	"arborescence/internal/model"
	"arborescence/internal/mutate"
	"arborescence/internal/order"
	"arborescence/internal/store"
	"arborescence/internal/tree"

	tea "github.com/charmbracelet/bubbletea"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "tui.sqlite"), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedSection(t *testing.T, st *store.Store, label string, idx int) string {
	t.Helper()
	n, err := st.CreateNode(context.Background(), model.CreateRequest{Label: label, Level: model.LevelSection, Index: idx})
	if err != nil {
		t.Fatalf("CreateNode %s: %v", label, err)
	}
	return n.ID
}

func newTestApp(t *testing.T, st *store.Store) appModel {
	t.Helper()
	tm, err := tree.New(nil)
	if err != nil {
		t.Fatalf("tree.New: %v", err)
	}
	coord := mutate.New(tm, st, nil)
	if err := coord.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := newAppModel(context.Background(), coord, Options{SkipLoad: true})
	return update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
}

func update(t *testing.T, m appModel, msg tea.Msg) appModel {
	t.Helper()
	next, _ := m.Update(msg)
	am, ok := next.(appModel)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return am
}

// updateRun applies msg and then feeds the resulting command's message back in,
// which is how bubbletea delivers a settled mutation.
func updateRun(t *testing.T, m appModel, msg tea.Msg) (appModel, appModel) {
	t.Helper()
	next, cmd := m.Update(msg)
	optimistic := next.(appModel)
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	return optimistic, update(t, optimistic, cmd())
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sectionLabels(r tree.Reader) []string {
	var out []string
	for _, n := range r.Children("", model.LevelSection) {
		out = append(out, n.Label)
	}
	return out
}

func TestMouseDrag_ReordersOptimisticallyThenCommits(t *testing.T) {
	st := openTestStore(t)
	seedSection(t, st, "One", 0)
	seedSection(t, st, "Two", 1)
	three := seedSection(t, st, "Three", 2)
	m := newTestApp(t, st)

	// Rows start below the header: One@2, Two@3, Three@4.
	m = update(t, m, tea.MouseMsg{X: 5, Y: 4, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.selectedID != three || m.drag.Phase() != drag.PhasePending {
		t.Fatalf("expected pending drag on Three, selected=%q phase=%v", m.selectedID, m.drag.Phase())
	}
	m = update(t, m, tea.MouseMsg{X: 5, Y: 2, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
	if !m.drag.Dragging() {
		t.Fatalf("expected dragging, got %v", m.drag.Phase())
	}
	if len(m.layout.rows) == 0 || !m.layout.rows[0].placeholder || m.layout.rows[0].node.ID != three {
		t.Fatalf("expected placeholder for Three in the first row")
	}

	optimistic, settled := updateRun(t, m, tea.MouseMsg{X: 5, Y: 2, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	if got := sectionLabels(optimistic.coord.Model()); strings.Join(got, ",") != "Three,One,Two" {
		t.Fatalf("unexpected optimistic order: %v", got)
	}
	if settled.statusKind != statusInfo || settled.status != "Saved." {
		t.Fatalf("unexpected status: %q", settled.status)
	}
	nodes, err := st.ListTree(context.Background())
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	if got := order.IDs(nodes); got[0] != three {
		t.Fatalf("expected server order to start with Three, got %v", got)
	}
	for i, n := range nodes {
		if n.Index != i {
			t.Fatalf("expected dense indices, got %+v", nodes)
		}
	}
}

func TestEscCancelsDrag(t *testing.T) {
	st := openTestStore(t)
	seedSection(t, st, "One", 0)
	seedSection(t, st, "Two", 1)
	m := newTestApp(t, st)
	v := m.coord.Model().(*tree.Model).Version()

	m = update(t, m, tea.MouseMsg{X: 5, Y: 2, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = update(t, m, tea.MouseMsg{X: 5, Y: 3, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
	if !m.drag.Dragging() {
		t.Fatalf("expected dragging")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.drag.Phase() != drag.PhaseCancelled {
		t.Fatalf("expected cancelled, got %v", m.drag.Phase())
	}
	for _, r := range m.layout.rows {
		if r.placeholder {
			t.Fatalf("expected no placeholder after cancel")
		}
	}
	if m.coord.Model().(*tree.Model).Version() != v {
		t.Fatalf("expected the model to be untouched")
	}
	if got := sectionLabels(m.coord.Model()); strings.Join(got, ",") != "One,Two" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestCreateSection_ViaKeys(t *testing.T) {
	st := openTestStore(t)
	seedSection(t, st, "One", 0)
	m := newTestApp(t, st)

	m = update(t, m, runes("A"))
	if m.mode != modeCreate || m.createLevel != model.LevelSection {
		t.Fatalf("expected section create mode, got %v", m.mode)
	}
	for _, r := range "Glossary" {
		m = update(t, m, runes(string(r)))
	}
	optimistic, settled := updateRun(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !mutate.IsTempID(optimistic.selectedID) {
		t.Fatalf("expected the temp node selected, got %q", optimistic.selectedID)
	}
	if mutate.IsTempID(settled.selectedID) {
		t.Fatalf("expected selection to follow the server id")
	}
	n, ok := settled.coord.Model().Node(settled.selectedID)
	if !ok || n.Label != "Glossary" || n.Index != 1 {
		t.Fatalf("unexpected created node: %+v ok=%v", n, ok)
	}
	if !strings.Contains(settled.View(), "Glossary") {
		t.Fatalf("expected the new section to render")
	}
}

func TestDeleteReferenced_ShowsRefusal(t *testing.T) {
	st := openTestStore(t)
	id := seedSection(t, st, "Pinned", 0)
	if err := st.AttachRef(context.Background(), model.Ref{NodeID: id, Kind: model.RefField, RefID: "fld-1"}); err != nil {
		t.Fatalf("AttachRef: %v", err)
	}
	m := newTestApp(t, st)

	m = update(t, m, runes("d"))
	if m.mode != modeConfirmDelete {
		t.Fatalf("expected confirm mode")
	}
	optimistic, settled := updateRun(t, m, runes("y"))
	if _, ok := optimistic.coord.Model().Node(id); ok {
		t.Fatalf("expected optimistic removal")
	}
	if _, ok := settled.coord.Model().Node(id); !ok {
		t.Fatalf("expected the node restored after the refusal")
	}
	if settled.statusKind != statusError || !strings.Contains(settled.status, "Cannot delete") {
		t.Fatalf("unexpected status: %q", settled.status)
	}
}

func TestRenameSameLabel_IsNoop(t *testing.T) {
	st := openTestStore(t)
	seedSection(t, st, "One", 0)
	m := newTestApp(t, st)

	m = update(t, m, runes("r"))
	if m.mode != modeRename || m.input.Value() != "One" {
		t.Fatalf("expected rename mode with the current label")
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no write for an unchanged label")
	}
	if next.(appModel).mode != modeNormal {
		t.Fatalf("expected normal mode")
	}
}

func TestMouseDrag_Downward(t *testing.T) {
	// Rows: One@2, Two@3, Three@4.
	cases := []struct {
		label  string
		fromY  int
		toY    int
		expect string
	}{
		{label: "One", fromY: 2, toY: 3, expect: "Two,One,Three"},
		{label: "Two", fromY: 3, toY: 4, expect: "One,Three,Two"},
		{label: "One", fromY: 2, toY: 4, expect: "Two,Three,One"},
	}
	for _, tc := range cases {
		st := openTestStore(t)
		seedSection(t, st, "One", 0)
		seedSection(t, st, "Two", 1)
		seedSection(t, st, "Three", 2)
		m := newTestApp(t, st)

		m = update(t, m, tea.MouseMsg{X: 5, Y: tc.fromY, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
		m = update(t, m, tea.MouseMsg{X: 5, Y: tc.toY, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
		if !m.drag.Dragging() {
			t.Fatalf("%s: expected dragging, got %v", tc.label, m.drag.Phase())
		}
		_, settled := updateRun(t, m, tea.MouseMsg{X: 5, Y: tc.toY, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
		if got := strings.Join(sectionLabels(settled.coord.Model()), ","); got != tc.expect {
			t.Fatalf("drag %s %d->%d: got %s, want %s", tc.label, tc.fromY, tc.toY, got, tc.expect)
		}
		nodes, err := st.ListTree(context.Background())
		if err != nil {
			t.Fatalf("ListTree: %v", err)
		}
		byID := map[string]string{}
		for _, n := range nodes {
			byID[n.ID] = n.Label
		}
		var server []string
		for _, id := range order.IDs(nodes) {
			server = append(server, byID[id])
		}
		if got := strings.Join(server, ","); got != tc.expect {
			t.Fatalf("drag %s: server order %s, want %s", tc.label, got, tc.expect)
		}
	}
}
