package corpus

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func loadTestSet(t *testing.T) *Set {
	t.Helper()
	root := t.TempDir()
	writeFixture(t, filepath.Join(root, "app"), map[string]string{
		"a.ts": "alpha",
		"b.ts": "beta",
	})
	set, err := Load(context.Background(), root, "app")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return set
}

func TestGlobalViewWithoutOverlay(t *testing.T) {
	set := loadTestSet(t)
	view := NewGlobalView(set, nil)

	if !reflect.DeepEqual(view.Names(), []string{"a.ts", "b.ts"}) {
		t.Errorf("Names() = %v", view.Names())
	}
	if content, ok := view.File("a.ts"); !ok || content != "alpha" {
		t.Errorf("File(a.ts) = %q, %v", content, ok)
	}
}

func TestGlobalViewOverlayWinsOnCollision(t *testing.T) {
	set := loadTestSet(t)
	view := NewGlobalView(set, map[string]string{
		"a.ts":     "shadowed",
		"extra.ts": "// x",
	})

	if content, _ := view.File("a.ts"); content != "shadowed" {
		t.Errorf("injected file should shadow the snapshot, got %q", content)
	}
	if content, ok := view.File("extra.ts"); !ok || content != "// x" {
		t.Errorf("File(extra.ts) = %q, %v", content, ok)
	}
	if !reflect.DeepEqual(view.Names(), []string{"a.ts", "b.ts", "extra.ts"}) {
		t.Errorf("Names() = %v", view.Names())
	}
	if view.Len() != 3 {
		t.Errorf("Len() = %d, want 3", view.Len())
	}
}

func TestSetAccessorsReturnCopies(t *testing.T) {
	set := loadTestSet(t)

	names := set.Names()
	names[0] = "mutated"
	if set.Names()[0] != "a.ts" {
		t.Error("Names() must return a copy")
	}
}
