package gallery

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "gallery.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, "transition", "/videos/t1.mp4", map[string]string{"from": "1", "to": "2"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := store.Save(ctx, "stitched", "/videos/final.mp4", nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}

	entries, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != "stitched" {
		t.Fatalf("newest first ordering violated: %+v", entries[0])
	}
	if entries[1].Metadata["from"] != "1" {
		t.Fatalf("metadata lost: %+v", entries[1].Metadata)
	}

	transitions, err := store.List(ctx, "transition", 10)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(transitions) != 1 || transitions[0].Ref != "/videos/t1.mp4" {
		t.Fatalf("kind filter wrong: %+v", transitions)
	}
}

func TestSaveRejectsEmptyFields(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Save(context.Background(), "", "/x", nil); err == nil {
		t.Fatal("empty kind accepted")
	}
	if _, err := store.Save(context.Background(), "chain", "  ", nil); err == nil {
		t.Fatal("empty ref accepted")
	}
}

func TestSaverIsFireAndForget(t *testing.T) {
	store := openTestStore(t)
	saver := NewSaver(store, nil)

	saver.SaveAsync(context.Background(), "batch", "/videos/b1.mp4", nil)
	saver.Flush()

	entries, err := store.List(context.Background(), "batch", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected saved entry, got %d", len(entries))
	}

	// A saver over a closed store must not panic or block.
	store.Close()
	saver.SaveAsync(context.Background(), "batch", "/videos/b2.mp4", nil)
	saver.Flush()
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Save(context.Background(), "chain", "/videos/c1.mp4", nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, _ := store.List(context.Background(), "", 0)
	if len(entries) != 0 {
		t.Fatalf("entry survived delete: %+v", entries)
	}
}
