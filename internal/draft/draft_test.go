package draft_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/draft"
	"github.com/smallplates/collect/internal/kv"
)

func newSaver(t *testing.T) (*draft.Saver, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	return draft.NewSaver(store, time.Hour, 5*time.Millisecond), store
}

func TestSaveAndLoad(t *testing.T) {
	s, _ := newSaver(t)
	ctx := context.Background()

	snap := draft.Snapshot{
		StepIndex: 3,
		Draft:     domain.RecipeDraft{RecipeName: "Paella", Ingredients: "rice"},
	}
	if err := s.Save(ctx, "sess1", snap); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "sess1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("snapshot missing")
	}
	if got.StepIndex != 3 || got.Draft.RecipeName != "Paella" {
		t.Errorf("got %+v", got)
	}
}

func TestLoadAbsentReturnsNil(t *testing.T) {
	s, _ := newSaver(t)
	got, err := s.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("want nil for absent key, got %+v", got)
	}
}

func TestLoadCorruptSnapshotTreatedAsAbsent(t *testing.T) {
	s, store := newSaver(t)
	ctx := context.Background()
	if err := store.Set(ctx, "draft:sess1", []byte("{not json"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "sess1")
	if err != nil {
		t.Fatalf("corrupt snapshot must not error: %v", err)
	}
	if got != nil {
		t.Errorf("want nil, got %+v", got)
	}
}

func TestStoreFailureReportsPersistenceUnavailable(t *testing.T) {
	s, store := newSaver(t)
	store.SetFailing(true)

	err := s.Save(context.Background(), "sess1", draft.Snapshot{})
	if !errors.Is(err, domain.ErrPersistenceUnavailable) {
		t.Fatalf("want ErrPersistenceUnavailable, got %v", err)
	}
}

func TestCompleteDeletesAndTombstones(t *testing.T) {
	s, _ := newSaver(t)
	ctx := context.Background()

	snap := draft.Snapshot{StepIndex: 4, Draft: domain.RecipeDraft{RecipeName: "Soup"}}
	if err := s.Save(ctx, "sess1", snap); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, "sess1"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "sess1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("snapshot must be gone after completion")
	}

	// A late autosave must never resurrect a completed draft.
	if err := s.Save(ctx, "sess1", snap); err != nil {
		t.Fatalf("late save should be dropped silently: %v", err)
	}
	got, err = s.Load(ctx, "sess1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("late autosave resurrected a completed draft")
	}
}

func TestReopenAllowsNewDraftAfterCompletion(t *testing.T) {
	s, _ := newSaver(t)
	ctx := context.Background()

	if err := s.Save(ctx, "sess1", draft.Snapshot{StepIndex: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, "sess1"); err != nil {
		t.Fatal(err)
	}
	s.Reopen("sess1")

	if err := s.Save(ctx, "sess1", draft.Snapshot{StepIndex: 3, Draft: domain.RecipeDraft{RecipeName: "Next"}}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "sess1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Draft.RecipeName != "Next" {
		t.Errorf("reopened key should accept writes, got %+v", got)
	}
}

func TestStatusSettlesToSaved(t *testing.T) {
	s, _ := newSaver(t)
	ctx := context.Background()

	if got := s.Status("sess1"); got != draft.StatusIdle {
		t.Fatalf("initial status %q", got)
	}

	if err := s.Save(ctx, "sess1", draft.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	if got := s.Status("sess1"); got != draft.StatusSaving {
		t.Fatalf("status right after save %q", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := s.Status("sess1"); got != draft.StatusSaved {
		t.Errorf("status after settle %q", got)
	}
}
