package format

import (
	"bytes"
	"strings"
	"testing"

	"arborescence/internal/model"
	"arborescence/internal/tree"
)

func TestWriteJSON_Envelope(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Envelope(map[string]int{"n": 2}), "json", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"data":{"n":2}}` {
		t.Fatalf("unexpected output: %s", got)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, 1, "edn", false); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestWriteOutline_NestsNodes(t *testing.T) {
	m, err := tree.New([]model.Node{
		{ID: "sec-a", Label: "Finance", Level: model.LevelSection, Index: 0},
		{ID: "tit-a", Label: "Invoices", Level: model.LevelTitle, ParentID: model.ParentPtr("sec-a"), Index: 0},
		{ID: "sub-a", Label: "Overdue", Level: model.LevelSubTitle, ParentID: model.ParentPtr("tit-a"), Index: 0},
	})
	if err != nil {
		t.Fatalf("tree.New: %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, Envelope(tree.BuildOutline(m)), "outline", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "Finance  (") || !strings.HasPrefix(lines[1], "  Invoices  (") || !strings.HasPrefix(lines[2], "    Overdue  (") {
		t.Fatalf("unexpected indentation: %q", buf.String())
	}
	if !strings.Contains(lines[2], "sub-a #0") {
		t.Fatalf("expected id and index, got %q", lines[2])
	}
}

func TestWriteOutline_PlainMaps(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOutline(&buf, Envelope(map[string]any{"densified": 2, "topics": []string{"a"}})); err != nil {
		t.Fatalf("WriteOutline: %v", err)
	}
	if got := buf.String(); got != "densified: 2\ntopics:\n  - a\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}
