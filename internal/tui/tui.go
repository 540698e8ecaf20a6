package tui

import (
	"context"
	"log/slog"

	"arborescence/internal/mutate"

	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	Logger *slog.Logger
	// MinDragDistance is the pointer travel, in cells, before a press becomes a drag.
	MinDragDistance float64
	NoColor         bool
	// SkipLoad assumes the coordinator's model is already populated.
	SkipLoad bool
}

func Run(ctx context.Context, coord *mutate.Coordinator, opts Options) error {
	applyThemePreference()
	applyColorProfilePreference(opts.NoColor)
	applyGlyphPreference()

	m := newAppModel(ctx, coord, opts)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx)).Run()
	return err
}
