package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"arborescence/internal/drag"
	"arborescence/internal/model"
	"arborescence/internal/mutate"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type mode int

const (
	modeNormal mode = iota
	modeCreate
	modeRename
	modeConfirmDelete
)

const (
	headerLines = 2
	footerLines = 3
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

type (
	loadedMsg  struct{ err error }
	settledMsg struct {
		res mutate.Result
		err error
	}
)

type appModel struct {
	ctx   context.Context
	coord *mutate.Coordinator
	drag  *drag.Controller
	// layout is shared with the drag controller; it always holds the rows
	// last computed by refreshRows.
	layout *rowLayout
	keys   keyMap
	help   help.Model
	log    *slog.Logger

	width  int
	height int

	selectedID string
	mode       mode
	input      textinput.Model

	// create target
	createParent string
	createLevel  model.Level

	status     string
	statusKind statusKind
	loaded     bool
}

func newAppModel(ctx context.Context, coord *mutate.Coordinator, opts Options) appModel {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	layout := &rowLayout{top: headerLines}
	d := drag.New(coord.Model(), layout)
	if opts.MinDragDistance > 0 {
		d.MinDistance = opts.MinDragDistance
	}

	in := textinput.New()
	in.CharLimit = model.MaxLabelLen
	in.Prompt = ""

	m := appModel{
		ctx:    ctx,
		coord:  coord,
		drag:   d,
		layout: layout,
		keys:   defaultKeyMap(),
		help:   help.New(),
		log:    log,
		input:  in,
		loaded: opts.SkipLoad,
	}
	m.refreshRows()
	return m
}

func (m appModel) Init() tea.Cmd {
	if m.loaded {
		return nil
	}
	return m.loadCmd()
}

func (m appModel) loadCmd() tea.Cmd {
	ctx, coord := m.ctx, m.coord
	return func() tea.Msg {
		return loadedMsg{err: coord.Load(ctx)}
	}
}

func (m appModel) refreshCmd() tea.Cmd {
	ctx, coord := m.ctx, m.coord
	return func() tea.Msg {
		return loadedMsg{err: coord.Refresh(ctx)}
	}
}

func runPending(ctx context.Context, p *mutate.Pending) tea.Cmd {
	return func() tea.Msg {
		res, err := p.Run(ctx)
		return settledMsg{res: res, err: err}
	}
}

// refreshRows recomputes the rendered rows and keeps the selection valid.
func (m *appModel) refreshRows() {
	m.layout.rows = flattenOutline(m.coord.Model(), m.drag, m.coord.Busy)
	if m.drag.Phase() == drag.PhaseDragging {
		if m.layout.hit == nil {
			m.layout.hit = flattenOutline(m.coord.Model(), nil, nil)
		}
	} else {
		m.layout.hit = nil
	}
	m.layout.width = m.width
	m.layout.visible = m.listHeight()
	dragged := m.drag.Dragging() && m.selectedID == m.drag.HiddenID()
	if m.layout.indexOf(m.selectedID) < 0 && !dragged {
		m.selectedID = ""
		for _, r := range m.layout.rows {
			if !r.placeholder {
				m.selectedID = r.node.ID
				break
			}
		}
	}
	m.scrollToSelection()
}

func (m *appModel) listHeight() int {
	if m.height <= 0 {
		return 0
	}
	footer := footerLines
	if m.help.ShowAll {
		footer = 2 + len(m.keys.FullHelp()[0])
	}
	return max(m.height-headerLines-footer, 1)
}

func (m *appModel) scrollToSelection() {
	vis := m.layout.visible
	if vis <= 0 {
		m.layout.offset = 0
		return
	}
	i := m.layout.indexOf(m.selectedID)
	if i < 0 {
		return
	}
	if i < m.layout.offset {
		m.layout.offset = i
	}
	if i >= m.layout.offset+vis {
		m.layout.offset = i - vis + 1
	}
	if maxOff := max(len(m.layout.rows)-vis, 0); m.layout.offset > maxOff {
		m.layout.offset = maxOff
	}
}

func (m *appModel) selected() (model.Node, bool) {
	if m.selectedID == "" {
		return model.Node{}, false
	}
	return m.coord.Model().Node(m.selectedID)
}

func (m *appModel) setStatus(kind statusKind, format string, args ...any) {
	m.statusKind = kind
	m.status = fmt.Sprintf(format, args...)
}

func (m appModel) View() string {
	w := m.width
	if w <= 0 {
		w = 80
	}
	var b strings.Builder

	title := styleTitle().Render("Arborescence")
	if !m.loaded {
		title += styleMuted().Render("  loading" + glyphPending())
	} else if n := m.coord.InFlight(); n > 0 {
		title += styleMuted().Render("  saving" + glyphPending())
	}
	b.WriteString(fitLine(title, w))
	b.WriteString("\n\n")

	rows := m.layout.rows
	if len(rows) == 0 && m.loaded {
		b.WriteString(styleMuted().Render("No sections yet. Press A to add one."))
		b.WriteString("\n")
	}
	end := len(rows)
	if vis := m.layout.visible; vis > 0 && m.layout.offset+vis < end {
		end = m.layout.offset + vis
	}
	for i := m.layout.offset; i < end; i++ {
		b.WriteString(m.renderRow(rows[i], w))
		b.WriteString("\n")
	}
	if m.height > 0 {
		for i := end - m.layout.offset; i < m.layout.visible; i++ {
			b.WriteString("\n")
		}
	}

	b.WriteString(m.renderFooter(w))
	return b.String()
}

func (m appModel) renderRow(r outlineRow, w int) string {
	indent := strings.Repeat("  ", r.depth)
	if r.placeholder {
		rule := strings.Repeat(glyphHRule(), 2)
		return fitLine(stylePlaceholder().Render(indent+rule+" "+r.node.Label+" "+rule), w)
	}

	label := r.node.Label
	if m.mode == modeRename && r.node.ID == m.selectedID {
		return renderInputLine(w, indent+glyphBullet(r.depth), m.input.View())
	}
	line := indent + glyphHandle() + " " + glyphBullet(r.depth) + " " + label
	if r.busy {
		line += " " + glyphPending()
	}
	line = fitLine(line, w)

	switch {
	case r.node.ID == m.selectedID && !m.drag.Dragging():
		return styleSelected().Render(lipgloss.PlaceHorizontal(w, lipgloss.Left, line))
	case r.node.ID == m.drag.Over():
		return lipgloss.NewStyle().Underline(true).Render(line)
	case r.busy:
		return styleMuted().Render(line)
	default:
		return styleLevel(r.depth).Render(line)
	}
}

func (m appModel) renderFooter(w int) string {
	var lines []string
	switch m.mode {
	case modeCreate:
		prompt := "New " + strings.ToLower(m.createLevel.Label())
		if p, ok := m.coord.Model().Node(m.createParent); ok {
			prompt += " in " + p.Label
		}
		lines = append(lines, renderInputLine(w, prompt+":", m.input.View()))
	case modeConfirmDelete:
		lines = append(lines, renderConfirmLine(w, m.confirmText()))
	default:
		lines = append(lines, m.renderStatus(w))
	}
	hint := styleMuted().Render(m.helpText())
	if !m.help.ShowAll {
		hint = fitLine(hint, w)
	}
	lines = append(lines, "", hint)
	return strings.Join(lines, "\n")
}

func (m appModel) renderStatus(w int) string {
	if m.status == "" {
		return ""
	}
	st := lipgloss.NewStyle()
	switch m.statusKind {
	case statusError:
		st = styleError()
	case statusWarn:
		st = styleWarn()
	}
	return fitLine(st.Render(m.status), w)
}

func (m appModel) helpText() string {
	if m.drag.Dragging() {
		return "release: drop   esc: cancel drag"
	}
	switch m.mode {
	case modeCreate, modeRename:
		return "enter: save   esc: cancel"
	case modeConfirmDelete:
		return "y: delete   n/esc: keep"
	}
	return m.help.View(m.keys)
}

func (m appModel) confirmText() string {
	n, ok := m.selected()
	if !ok {
		return ""
	}
	desc := len(m.coord.Model().Children(n.ID, childLevel(n.Level)))
	if desc > 0 {
		return fmt.Sprintf("Delete %s %q and everything under it?", strings.ToLower(n.Level.Label()), n.Label)
	}
	return fmt.Sprintf("Delete %s %q?", strings.ToLower(n.Level.Label()), n.Label)
}

func childLevel(l model.Level) model.Level {
	c, _ := l.ChildLevel()
	return c
}
