package tui

import (
	"errors"
	"strings"

	"arborescence/internal/drag"
	"arborescence/internal/model"
	"arborescence/internal/mutate"
	"arborescence/internal/remote"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-30, 10)
		m.help.Width = msg.Width

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.setStatus(statusError, "Could not load the tree: %v", msg.err)
		} else {
			m.setStatus(statusInfo, "")
		}

	case settledMsg:
		m.settle(msg)

	case tea.MouseMsg:
		cmd = m.handleMouse(msg)

	case tea.KeyMsg:
		var quit bool
		cmd, quit = m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
	}
	m.refreshRows()
	return m, cmd
}

func (m *appModel) settle(msg settledMsg) {
	res := msg.res
	if res.TempID != "" && m.selectedID == res.TempID && res.NodeID != "" && res.NodeID != res.TempID {
		m.selectedID = res.NodeID
	}
	if msg.err == nil {
		if res.Drift {
			m.setStatus(statusWarn, "Saved; the server had newer data, view refreshed.")
		} else if res.Changed {
			m.setStatus(statusInfo, "Saved.")
		}
		return
	}
	m.log.Debug("mutation failed", "op", res.Op, "err", msg.err)
	m.setStatus(statusError, "%s", describeError(msg.err))
}

// describeError words a failure for the status line. Domain refusals get their
// specific message; transient failures a generic retry hint.
func describeError(err error) string {
	var busy mutate.BusyError
	if errors.As(err, &busy) {
		return "That item has a change in progress; try again in a moment."
	}
	var inv mutate.InvalidError
	if errors.As(err, &inv) {
		return inv.Reason
	}
	var nf mutate.NotFoundError
	if errors.As(err, &nf) {
		return "That item no longer exists."
	}
	var me *mutate.Error
	if errors.As(err, &me) {
		if me.Kind == mutate.KindTransient {
			return "Could not reach the server; the change was undone. Try again."
		}
		if errors.Is(err, remote.ErrReferenced) {
			return "Cannot delete: it is still used to classify fields or documents."
		}
		var de *remote.DomainError
		if errors.As(err, &de) && de.Message != "" {
			return "Refused: " + de.Message
		}
		return "Refused: " + me.Err.Error()
	}
	return err.Error()
}

func (m *appModel) start(p *mutate.Pending, err error) tea.Cmd {
	if err != nil {
		m.setStatus(statusError, "%s", describeError(err))
		return nil
	}
	if tmp := p.TempID(); tmp != "" {
		m.selectedID = tmp
	}
	m.setStatus(statusInfo, "")
	return runPending(m.ctx, p)
}

func (m *appModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return nil, true
	}
	if m.drag.Dragging() || m.drag.Phase() == drag.PhasePending {
		if key.Matches(msg, m.keys.Cancel) {
			m.drag.Cancel()
		}
		return nil, false
	}

	switch m.mode {
	case modeCreate, modeRename:
		return m.handleEditKey(msg), false
	case modeConfirmDelete:
		switch msg.String() {
		case "y", "Y", "enter":
			m.mode = modeNormal
			if n, ok := m.selected(); ok {
				return m.start(m.coord.RequestDelete(n.ID)), false
			}
		case "n", "N", "esc":
			m.mode = modeNormal
		}
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return nil, true
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
	case key.Matches(msg, m.keys.AddSection):
		m.beginCreate("", model.LevelSection)
	case key.Matches(msg, m.keys.AddSibling):
		if n, ok := m.selected(); ok {
			m.beginCreate(n.Parent(), n.Level)
		} else {
			m.beginCreate("", model.LevelSection)
		}
	case key.Matches(msg, m.keys.AddChild):
		n, ok := m.selected()
		if !ok {
			break
		}
		cl, ok := n.Level.ChildLevel()
		if !ok {
			m.setStatus(statusWarn, "Sub-titles cannot have children.")
			break
		}
		m.beginCreate(n.ID, cl)
	case key.Matches(msg, m.keys.Rename):
		if n, ok := m.selected(); ok {
			m.mode = modeRename
			m.input.SetValue(n.Label)
			m.input.CursorEnd()
			m.input.Focus()
		}
	case key.Matches(msg, m.keys.Delete):
		if _, ok := m.selected(); ok {
			m.mode = modeConfirmDelete
		}
	case key.Matches(msg, m.keys.MoveUp):
		return m.shiftSelected(-1), false
	case key.Matches(msg, m.keys.MoveDown):
		return m.shiftSelected(1), false
	case key.Matches(msg, m.keys.Reload):
		if m.coord.InFlight() > 0 {
			m.setStatus(statusWarn, "Changes are still being saved; reload when they settle.")
			break
		}
		m.setStatus(statusInfo, "Reloading%s", glyphPending())
		return m.refreshCmd(), false
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Cancel):
		m.setStatus(statusInfo, "")
	}
	return nil, false
}

func (m *appModel) handleEditKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.input.Blur()
		return nil
	case "enter":
		label := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = modeNormal
		m.input.Blur()
		if mode == modeCreate {
			return m.start(m.coord.RequestCreate(m.createParent, m.createLevel, label))
		}
		n, ok := m.selected()
		if !ok {
			return nil
		}
		if label == n.Label {
			return nil
		}
		return m.start(m.coord.RequestRename(n.ID, label))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *appModel) beginCreate(parentID string, level model.Level) {
	m.mode = modeCreate
	m.createParent = parentID
	m.createLevel = level
	m.input.SetValue("")
	m.input.Focus()
}

func (m *appModel) moveSelection(delta int) {
	rows := m.layout.rows
	if len(rows) == 0 {
		return
	}
	i := m.layout.indexOf(m.selectedID)
	for {
		i += delta
		if i < 0 || i >= len(rows) {
			return
		}
		if !rows[i].placeholder {
			m.selectedID = rows[i].node.ID
			return
		}
	}
}

// shiftSelected is the keyboard equivalent of a one-step drag within the group.
func (m *appModel) shiftSelected(delta int) tea.Cmd {
	n, ok := m.selected()
	if !ok {
		return nil
	}
	sibs := m.coord.Model().Children(n.Parent(), n.Level)
	pos := -1
	for i, s := range sibs {
		if s.ID == n.ID {
			pos = i
		}
	}
	to := pos + delta
	if pos < 0 || to < 0 || to >= len(sibs) {
		return nil
	}
	return m.start(m.coord.RequestMove(n.ID, n.Parent(), to))
}

func cellPoint(x, y int) drag.Point {
	return drag.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
}

func (m *appModel) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if m.mode != modeNormal {
		return nil
	}
	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.moveSelection(-1)
			return nil
		case tea.MouseButtonWheelDown:
			m.moveSelection(1)
			return nil
		case tea.MouseButtonLeft:
		default:
			return nil
		}
		i, ok := m.layout.rowAt(msg.Y)
		if !ok {
			return nil
		}
		r := m.layout.rows[i]
		m.selectedID = r.node.ID
		if m.coord.Busy(r.node.ID) || mutate.IsTempID(r.node.ID) {
			return nil
		}
		m.drag.Down(r.node.ID, cellPoint(msg.X, msg.Y))
		return nil

	case tea.MouseActionMotion:
		if m.drag.Phase() == drag.PhasePending || m.drag.Dragging() {
			m.drag.Move(cellPoint(msg.X, msg.Y))
		}
		return nil

	case tea.MouseActionRelease:
		command, ok := m.drag.Up(cellPoint(msg.X, msg.Y))
		if !ok {
			return nil
		}
		return m.dispatch(command)
	}
	return nil
}

// dispatch hands a drop to the coordinator.
func (m *appModel) dispatch(c drag.Command) tea.Cmd {
	m.selectedID = c.NodeID
	switch c.Kind {
	case drag.CommandMove:
		return m.start(m.coord.RequestMove(c.NodeID, c.ToParentID, c.Index))
	default:
		return m.start(m.coord.RequestReorder(c.FromParentID, c.Level, c.SourceOrder))
	}
}
