package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInMemoryStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
	if _, err := store.Load(context.Background(), "  "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestInMemoryStoreSaveAndLoadClones(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()

	st := NewAppState("s1", "u1", now)
	st.Apply(Patch{Profile: &ProfilePatch{Assessment: map[string]any{"overall": "good"}}}, now)
	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("save: %v", err)
	}

	// mutating the saved-in value must not affect the stored record
	st.Profile.Assessment["overall"] = "tampered"

	loaded, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Profile.Assessment["overall"] != "good" {
		t.Fatalf("store did not clone on save: %v", loaded.Profile.Assessment)
	}

	// and mutating the loaded value must not affect the next load
	loaded.Profile.Assessment["overall"] = "tampered"
	again, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if again.Profile.Assessment["overall"] != "good" {
		t.Fatalf("store did not clone on load: %v", again.Profile.Assessment)
	}
}

func TestInMemoryStoreSaveValidation(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilSessionState) {
		t.Fatalf("expected ErrNilSessionState, got %v", err)
	}
	if err := store.Save(context.Background(), &AppState{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestInMemoryStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := NewAppState("shared", "u1", now)
			_ = store.Save(context.Background(), st)
			_, _ = store.Load(context.Background(), "shared")
		}()
	}
	wg.Wait()

	if _, err := store.Load(context.Background(), "shared"); err != nil {
		t.Fatalf("load after concurrent writes: %v", err)
	}
}
