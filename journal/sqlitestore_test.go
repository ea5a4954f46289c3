package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// testDSN returns a unique shared-memory DSN for test isolation.
func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(testDSN(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSQLiteStore_AppendList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		e := Event{
			Kind:      KindToolInvoked,
			SessionID: "sess-1",
			Tool:      "perplexity-chat",
			Model:     "sonar",
			Format:    "markdown",
			Success:   i%2 == 0,
			ErrorCode: "UPSTREAM_FAILURE",
			Elapsed:   time.Duration(i) * time.Millisecond,
			Time:      baseTime.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	events, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}

	e := events[1]
	if e.ID != 2 {
		t.Errorf("ID = %d, want 2", e.ID)
	}
	if e.Kind != KindToolInvoked || e.SessionID != "sess-1" || e.Tool != "perplexity-chat" {
		t.Errorf("event = %+v", e)
	}
	if !e.Success {
		t.Errorf("Success = false, want true")
	}
	if e.Elapsed != 2*time.Millisecond {
		t.Errorf("Elapsed = %s, want 2ms", e.Elapsed)
	}
	if !e.Time.Equal(baseTime.Add(2 * time.Second)) {
		t.Errorf("Time = %s, want %s", e.Time, baseTime.Add(2*time.Second))
	}
}

func TestSQLiteStore_ListLimitKeepsMostRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: fmt.Sprintf("s-%d", i), Time: baseTime})
	}

	events, err := store.List(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"s-8", "s-9", "s-10"} {
		if events[i].SessionID != want {
			t.Errorf("events[%d].SessionID = %q, want %q", i, events[i].SessionID, want)
		}
	}
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: "a", Time: baseTime})
	_ = store.Append(ctx, Event{Kind: KindToolInvoked, SessionID: "a", Time: baseTime})
	_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: "b", Time: baseTime})

	bySession, err := store.List(ctx, Filter{SessionID: "a"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bySession) != 2 {
		t.Fatalf("session filter got %d events, want 2", len(bySession))
	}

	byKind, err := store.List(ctx, Filter{Kind: KindSessionOpened})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byKind) != 2 {
		t.Fatalf("kind filter got %d events, want 2", len(byKind))
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Fractional seconds of different widths must still order correctly.
	_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: "old", Time: baseTime.Add(100 * time.Millisecond)})
	_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: "new", Time: baseTime.Add(120 * time.Millisecond)})

	removed, err := store.Prune(ctx, baseTime.Add(110*time.Millisecond))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	events, _ := store.List(ctx, Filter{})
	if len(events) != 1 || events[0].SessionID != "new" {
		t.Fatalf("events after prune = %+v", events)
	}
}

func TestOpenFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	store, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer store.Close()

	if err := store.Append(context.Background(), Event{Kind: KindSessionOpened, Time: baseTime}); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestNewSQLiteStore_EmptyDSN(t *testing.T) {
	if _, err := NewSQLiteStore("  "); err == nil {
		t.Fatal("NewSQLiteStore(\"\") error = nil")
	}
}
