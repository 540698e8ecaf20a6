package model

import (
	"fmt"
	"strings"
)

type Level string

const (
	LevelSection  Level = "SECTION"
	LevelTitle    Level = "TITLE"
	LevelSubTitle Level = "SUB_TITLE"
)

// Levels lists the hierarchy outermost first.
var Levels = []Level{LevelSection, LevelTitle, LevelSubTitle}

func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "SECTION", "SEC":
		return LevelSection, nil
	case "TITLE", "TIT":
		return LevelTitle, nil
	case "SUB_TITLE", "SUBTITLE", "SUB":
		return LevelSubTitle, nil
	default:
		return "", fmt.Errorf("invalid level: %q", s)
	}
}

func (l Level) Valid() bool {
	switch l {
	case LevelSection, LevelTitle, LevelSubTitle:
		return true
	default:
		return false
	}
}

// Depth is 0 for sections, 1 for titles and 2 for sub-titles.
func (l Level) Depth() int {
	switch l {
	case LevelSection:
		return 0
	case LevelTitle:
		return 1
	case LevelSubTitle:
		return 2
	default:
		return -1
	}
}

// ParentLevel returns the level a parent of l must have. Sections have none.
func (l Level) ParentLevel() (Level, bool) {
	switch l {
	case LevelTitle:
		return LevelSection, true
	case LevelSubTitle:
		return LevelTitle, true
	default:
		return "", false
	}
}

// ChildLevel returns the level of l's children. Sub-titles have none.
func (l Level) ChildLevel() (Level, bool) {
	switch l {
	case LevelSection:
		return LevelTitle, true
	case LevelTitle:
		return LevelSubTitle, true
	default:
		return "", false
	}
}

// IDPrefix is the prefix of server-assigned ids for the level.
func (l Level) IDPrefix() string {
	switch l {
	case LevelSection:
		return "sec"
	case LevelTitle:
		return "tit"
	default:
		return "sub"
	}
}

func (l Level) Label() string {
	switch l {
	case LevelSection:
		return "Section"
	case LevelTitle:
		return "Title"
	case LevelSubTitle:
		return "Sub-Title"
	default:
		return string(l)
	}
}

// Node is one entry of the arborescence. Children are never stored on the node;
// they are discovered by parent id.
type Node struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Level    Level   `json:"level"`
	ParentID *string `json:"parentId"`
	Index    int     `json:"index"`
}

// Parent returns the parent id, or "" for sections.
func (n Node) Parent() string {
	return ParentKey(n.ParentID)
}

// Same reports structural equality (pointer identity of ParentID is ignored).
func (n Node) Same(o Node) bool {
	return n.ID == o.ID &&
		n.Label == o.Label &&
		n.Level == o.Level &&
		n.Parent() == o.Parent() &&
		n.Index == o.Index
}

// Clone returns a copy that shares no memory with n.
func (n Node) Clone() Node {
	out := n
	out.ParentID = ParentPtr(n.Parent())
	return out
}

// ParentKey normalizes an optional parent id to the sibling-group key ("" = root).
func ParentKey(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// ParentPtr is the inverse of ParentKey.
func ParentPtr(key string) *string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &key
}

// Placement assigns an index to one node of a sibling group.
type Placement struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

type CreateRequest struct {
	Label    string  `json:"label"`
	Level    Level   `json:"level"`
	ParentID *string `json:"parentId"`
	Index    int     `json:"index"`
}

type RenameRequest struct {
	Label string `json:"label"`
}

// ReorderRequest is the authoritative index assignment for one sibling group.
// Listed nodes are (re)attached to ParentID.
type ReorderRequest struct {
	ParentID *string     `json:"parentId"`
	Order    []Placement `json:"order"`
}

type MoveRequest struct {
	NodeID       string  `json:"nodeId"`
	FromParentID *string `json:"fromParentId"`
	ToParentID   *string `json:"toParentId"`
	Index        int     `json:"index"`
}

type RefKind string

const (
	RefField    RefKind = "field"
	RefDocument RefKind = "document"
)

func ParseRefKind(s string) (RefKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "field", "fields":
		return RefField, nil
	case "document", "documents", "doc":
		return RefDocument, nil
	default:
		return "", fmt.Errorf("invalid ref kind: %q", s)
	}
}

// Ref records that a classified field or document points at a node.
type Ref struct {
	NodeID string  `json:"nodeId"`
	Kind   RefKind `json:"kind"`
	RefID  string  `json:"refId"`
}

// MaxLabelLen bounds node labels.
const MaxLabelLen = 200

// NormalizeLabel trims a label and validates it.
func NormalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("label is required")
	}
	if len([]rune(label)) > MaxLabelLen {
		return "", fmt.Errorf("label too long (max %d characters)", MaxLabelLen)
	}
	return label, nil
}
