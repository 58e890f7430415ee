package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	store, err := Open(context.Background(), "", maxEntries)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListNewestFirst(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := store.Record(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("SELECT %d", i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if _, err := store.Record(ctx, "s2", "other", "SELECT 99"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d", len(entries))
	}
	if entries[0].SQL != "SELECT 3" || entries[2].SQL != "SELECT 1" {
		t.Fatalf("entries not newest first: %+v", entries)
	}
	if entries[0].RowCount != nil {
		t.Fatalf("RowCount = %v, want nil before execution", *entries[0].RowCount)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be set")
	}
}

func TestRecordEvictsOldestBeyondCap(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := store.Record(ctx, "s1", "q", fmt.Sprintf("SELECT %d", i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	other, err := store.Record(ctx, "s2", "q", "SELECT 0")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].SQL != "SELECT 4" || entries[1].SQL != "SELECT 3" {
		t.Fatalf("entries = %+v", entries)
	}

	others, err := store.List(ctx, "s2")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(others) != 1 || others[0].ID != other.ID {
		t.Fatalf("other session affected by eviction: %+v", others)
	}
}

func TestSetRowCountAndErrorKind(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	entry, err := store.Record(ctx, "s1", "how many cities", "SELECT COUNT(*) FROM city")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.SetErrorKind(ctx, "s1", entry.ID, "ExecutionError"); err != nil {
		t.Fatalf("SetErrorKind() error = %v", err)
	}
	if err := store.SetRowCount(ctx, "s1", entry.ID, 1); err != nil {
		t.Fatalf("SetRowCount() error = %v", err)
	}

	entries, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if entries[0].RowCount == nil || *entries[0].RowCount != 1 {
		t.Fatalf("RowCount = %v", entries[0].RowCount)
	}
	if entries[0].ErrorKind != "" {
		t.Fatalf("ErrorKind = %q, want cleared", entries[0].ErrorKind)
	}

	if err := store.SetRowCount(ctx, "s2", entry.ID, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetRowCount() for another session error = %v, want ErrNotFound", err)
	}
}

func TestClearOnlyAffectsSession(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	for _, session := range []string{"s1", "s1", "s2"} {
		if _, err := store.Record(ctx, session, "q", "SELECT 1"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	removed, err := store.Clear(ctx, "s1")
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 2 {
		t.Fatalf("Clear() removed = %d", removed)
	}
	remaining, err := store.List(ctx, "s2")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("len(remaining) = %d", len(remaining))
	}
}

func TestOpenPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	store, err := Open(ctx, path, 5)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	if _, err := store.Record(ctx, "s1", "q", "SELECT 1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, path, 5)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	entries, err := reopened.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].CreatedAt.Equal(fixed) {
		t.Fatalf("entries = %+v", entries)
	}
}
