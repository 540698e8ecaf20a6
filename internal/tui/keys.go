package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	AddSibling key.Binding
	AddChild   key.Binding
	AddSection key.Binding
	Rename     key.Binding
	Delete     key.Binding
	MoveUp     key.Binding
	MoveDown   key.Binding
	Cancel     key.Binding
	Reload     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		AddSibling: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add sibling")),
		AddChild:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "add child")),
		AddSection: key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "add section")),
		Rename:     key.NewBinding(key.WithKeys("r", "enter"), key.WithHelp("r", "rename")),
		Delete:     key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		MoveUp:     key.NewBinding(key.WithKeys("alt+up", "K"), key.WithHelp("alt+↑", "move up")),
		MoveDown:   key.NewBinding(key.WithKeys("alt+down", "J"), key.WithHelp("alt+↓", "move down")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Reload:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp and FullHelp implement help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.AddSibling, k.AddChild, k.AddSection, k.Rename, k.Delete, k.MoveUp, k.MoveDown, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveUp, k.MoveDown},
		{k.AddSibling, k.AddChild, k.AddSection},
		{k.Rename, k.Delete, k.Cancel},
		{k.Reload, k.Help, k.Quit},
	}
}
