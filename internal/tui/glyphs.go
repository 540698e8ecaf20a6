package tui

import (
	"os"
	"strings"
	"sync"
)

// Unicode or ASCII affordances (drag handle, level markers), for fonts that
// render some glyphs poorly.

type glyphSet int

const (
	glyphSetUnicode glyphSet = iota
	glyphSetASCII
)

var (
	glyphsMu      sync.RWMutex
	currentGlyphs = glyphSetUnicode
)

func applyGlyphPreference() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ARBO_TUI_GLYPHS"))) {
	case "", "unicode", "utf8":
		setGlyphs(glyphSetUnicode)
	case "ascii":
		setGlyphs(glyphSetASCII)
	}
}

func setGlyphs(gs glyphSet) {
	glyphsMu.Lock()
	currentGlyphs = gs
	glyphsMu.Unlock()
}

func glyphs() glyphSet {
	glyphsMu.RLock()
	gs := currentGlyphs
	glyphsMu.RUnlock()
	return gs
}

func glyphHandle() string {
	if glyphs() == glyphSetASCII {
		return ":"
	}
	return "⠿"
}

func glyphBullet(depth int) string {
	if glyphs() == glyphSetASCII {
		return [...]string{"#", "-", "*"}[clampDepth(depth)]
	}
	return [...]string{"§", "•", "◦"}[clampDepth(depth)]
}

func glyphPending() string {
	if glyphs() == glyphSetASCII {
		return "..."
	}
	return "…"
}

func glyphHRule() string {
	if glyphs() == glyphSetASCII {
		return "-"
	}
	return "┈"
}

func clampDepth(d int) int {
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}
