package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKVRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || value != "v2" {
		t.Fatalf("get: value=%q ok=%v err=%v", value, ok, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("key survived delete")
	}
}

func TestJournalAppendAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		seq, err := store.AppendEvent(ctx, "borrow", `{"n":1}`, int64(1000+i))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if seq <= last {
			t.Fatalf("sequence not increasing: %d after %d", seq, last)
		}
		last = seq
	}

	entries, err := store.ListEvents(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("entries out of order")
		}
	}

	tail, err := store.ListEvents(ctx, entries[2].Seq, 10)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("got %d tail entries, want 2", len(tail))
	}
}
