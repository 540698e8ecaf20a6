package store

import (
	"context"
	"strings"
	"testing"

	"arborescence/internal/model"
)

func TestNewRandomID_PrefixAndLength(t *testing.T) {
	id, err := newRandomID("sec")
	if err != nil {
		t.Fatalf("newRandomID: %v", err)
	}
	if !strings.HasPrefix(id, "sec-") {
		t.Fatalf("expected sec prefix, got %q", id)
	}
	suffix := strings.TrimPrefix(id, "sec-")
	if got, want := len(suffix), 8; got != want {
		t.Fatalf("expected id suffix len %d, got %d (%q)", want, got, suffix)
	}
	if strings.ToLower(suffix) != suffix {
		t.Fatalf("expected lowercase suffix, got %q", suffix)
	}
}

func TestNewNodeID_PrefixFollowsLevel(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	for _, l := range model.Levels {
		id, err := st.newNodeID(ctx, st.db, l)
		if err != nil {
			t.Fatalf("newNodeID(%s): %v", l, err)
		}
		if !strings.HasPrefix(id, l.IDPrefix()+"-") {
			t.Fatalf("expected %s prefix for %s, got %q", l.IDPrefix(), l, id)
		}
	}
}
