package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/petal-labs/perplexity-mcp/session"
	"github.com/petal-labs/perplexity-mcp/tool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_RecordsObservations(t *testing.T) {
	store := NewMemStore()
	rec, err := NewRecorder(RecorderConfig{
		Store:  store,
		Logger: discardLogger(),
		Now:    func() time.Time { return baseTime },
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.ObserveSession(session.Observation{Event: session.EventOpened, SessionID: "s1", Transport: "sse"})
	rec.ObserveInvoke(tool.InvokeObservation{
		ToolName:   tool.ChatToolName,
		SessionID:  "s1",
		Model:      "sonar",
		Format:     "markdown",
		DurationMS: 42,
		Success:    false,
		ErrorCode:  tool.ToolErrorCodeUpstreamFailure,
	})
	rec.ObserveSession(session.Observation{
		Event:     session.EventClosed,
		SessionID: "s1",
		Transport: "sse",
		Duration:  time.Second,
		Err:       errors.New("broken pipe"),
	})
	rec.Close()

	events, _ := store.List(context.Background(), Filter{})
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Kind != KindSessionOpened || events[0].Transport != "sse" {
		t.Errorf("events[0] = %+v", events[0])
	}
	invoked := events[1]
	if invoked.Kind != KindToolInvoked || invoked.Elapsed != 42*time.Millisecond || invoked.ErrorCode != tool.ToolErrorCodeUpstreamFailure {
		t.Errorf("events[1] = %+v", invoked)
	}
	if !invoked.Time.Equal(baseTime) {
		t.Errorf("events[1].Time = %s, want %s", invoked.Time, baseTime)
	}
	closed := events[2]
	if closed.Kind != KindSessionClosed || closed.Success || closed.Detail != "broken pipe" {
		t.Errorf("events[2] = %+v", closed)
	}
}

func TestRecorder_IgnoresAfterClose(t *testing.T) {
	store := NewMemStore()
	rec, _ := NewRecorder(RecorderConfig{Store: store, Logger: discardLogger()})
	rec.Close()
	rec.Close()

	rec.ObserveSession(session.Observation{Event: session.EventOpened, SessionID: "late"})

	events, _ := store.List(context.Background(), Filter{})
	if len(events) != 0 {
		t.Fatalf("got %d events after close, want 0", len(events))
	}
}

type blockingStore struct {
	*MemStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, e Event) error {
	<-s.release
	return s.MemStore.Append(ctx, e)
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	store := &blockingStore{MemStore: NewMemStore(), release: make(chan struct{})}
	rec, _ := NewRecorder(RecorderConfig{Store: store, Logger: discardLogger(), Buffer: 1})

	for i := 0; i < 10; i++ {
		rec.ObserveSession(session.Observation{Event: session.EventOpened, SessionID: "s"})
	}
	if rec.Dropped() == 0 {
		t.Fatal("Dropped() = 0, want events dropped while the store is blocked")
	}

	close(store.release)
	rec.Close()

	events, _ := store.List(context.Background(), Filter{})
	if int64(len(events))+rec.Dropped() != 10 {
		t.Fatalf("stored %d + dropped %d, want 10", len(events), rec.Dropped())
	}
}

type failingStore struct{ *MemStore }

func (failingStore) Append(context.Context, Event) error { return errors.New("disk full") }

func TestRecorder_StoreErrorIsContained(t *testing.T) {
	rec, _ := NewRecorder(RecorderConfig{Store: failingStore{NewMemStore()}, Logger: discardLogger()})
	rec.ObserveInvoke(tool.InvokeObservation{ToolName: tool.ChatToolName, Success: true})
	rec.Close()
}

func TestNewRecorder_RequiresStore(t *testing.T) {
	if _, err := NewRecorder(RecorderConfig{}); err == nil {
		t.Fatal("NewRecorder(nil store) error = nil")
	}
}

func TestPruner_RunOnce(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: "old", Time: baseTime.Add(-48 * time.Hour)})
	_ = store.Append(ctx, Event{Kind: KindSessionOpened, SessionID: "new", Time: baseTime.Add(-time.Hour)})

	p, err := StartPruner(PrunerConfig{
		Store:     store,
		Retention: 24 * time.Hour,
		Logger:    discardLogger(),
		Now:       func() time.Time { return baseTime },
	})
	if err != nil {
		t.Fatalf("StartPruner: %v", err)
	}
	defer p.Stop()

	removed, err := p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	events, _ := store.List(ctx, Filter{})
	if len(events) != 1 || events[0].SessionID != "new" {
		t.Fatalf("events = %+v", events)
	}
}

func TestPruner_DisabledWithoutRetention(t *testing.T) {
	store := NewMemStore()
	_ = store.Append(context.Background(), Event{Kind: KindSessionOpened, Time: time.Unix(0, 0)})

	p, err := StartPruner(PrunerConfig{Store: store, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("StartPruner: %v", err)
	}
	p.Stop()

	removed, _ := p.RunOnce(context.Background())
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestPruner_RejectsBadSchedule(t *testing.T) {
	_, err := StartPruner(PrunerConfig{
		Store:     NewMemStore(),
		Retention: time.Hour,
		Schedule:  "every tuesday",
		Logger:    discardLogger(),
	})
	if err == nil {
		t.Fatal("StartPruner(bad schedule) error = nil")
	}
}
