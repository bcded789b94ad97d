package execstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/unicon/grader-go/pkg/types"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	rec := &types.ExecutionRecord{
		ID:        "exec-1",
		TaskID:    "task-1",
		Status:    types.ExecutionStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != types.ExecutionStatusQueued || got.TaskID != "task-1" {
		t.Fatalf("record = %+v", got)
	}

	// The store holds a copy; the caller's record can mutate freely.
	rec.Status = types.ExecutionStatusRunning
	got, _ = s.Get(ctx, "exec-1")
	if got.Status != types.ExecutionStatusQueued {
		t.Fatalf("stored record aliased the caller's: %s", got.Status)
	}

	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ = s.Get(ctx, "exec-1")
	if got.Status != types.ExecutionStatusRunning {
		t.Fatalf("status = %s after update", got.Status)
	}
}

func TestMemoryStoreUpdateUnknown(t *testing.T) {
	s := NewMemoryStore(nil)
	err := s.Update(context.Background(), &types.ExecutionRecord{ID: "nope"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update unknown = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, &types.ExecutionRecord{ID: id, Status: types.ExecutionStatusQueued}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("List = %v", ids)
	}
}

func TestMemoryStoreExpiresFinished(t *testing.T) {
	s := NewMemoryStore(&Config{TTL: time.Nanosecond})
	ctx := context.Background()

	if err := s.Create(ctx, &types.ExecutionRecord{ID: "done", Status: types.ExecutionStatusCompleted}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, &types.ExecutionRecord{ID: "live", Status: types.ExecutionStatusRunning}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	// Finished records expire; in-flight ones never do.
	if _, err := s.Get(ctx, "done"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finished record survived the TTL: %v", err)
	}
	if _, err := s.Get(ctx, "live"); err != nil {
		t.Fatalf("running record expired: %v", err)
	}
	ids, _ := s.List(ctx)
	if len(ids) != 1 || ids[0] != "live" {
		t.Fatalf("List = %v", ids)
	}
}
