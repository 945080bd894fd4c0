package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/storage"
	"github.com/rhuss/runcode/pkg/transport"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeRecord(id, session string, offset time.Duration) *api.ExecutionRecord {
	return &api.ExecutionRecord{
		ID:         id,
		SessionID:  session,
		CodeHash:   "abc123",
		Code:       "print(1)",
		Output:     "Standard Output:\n1",
		Status:     api.ExecutionStatusSuccess,
		Backend:    "e2b",
		SandboxID:  "sbx-" + id,
		DurationMs: 420,
		CreatedAt:  base.Add(offset),
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := makeRecord("exec_1", "s1", 0)
	if err := s.SaveExecution(ctx, rec); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}

	got, err := s.GetExecution(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Object != "execution" || got.SessionID != "s1" || got.Output != rec.Output || got.DurationMs != 420 {
		t.Errorf("got %+v", got)
	}

	// The store keeps its own copy.
	got.Output = "mutated"
	again, _ := s.GetExecution(ctx, "exec_1")
	if again.Output == "mutated" {
		t.Error("returned record aliases stored data")
	}
}

func TestSaveConflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	_ = s.SaveExecution(ctx, makeRecord("exec_1", "s1", 0))
	if err := s.SaveExecution(ctx, makeRecord("exec_1", "s1", 0)); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestGetAndDeleteNotFound(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if _, err := s.GetExecution(ctx, "exec_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteExecution(ctx, "exec_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	_ = s.SaveExecution(ctx, makeRecord("exec_del", "s1", 0))
	if err := s.DeleteExecution(ctx, "exec_del"); err != nil {
		t.Fatalf("DeleteExecution failed: %v", err)
	}
	if _, err := s.GetExecution(ctx, "exec_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(0)
	ctxA := storage.WithTenant(context.Background(), "tenant-a")
	ctxB := storage.WithTenant(context.Background(), "tenant-b")

	_ = s.SaveExecution(ctxA, makeRecord("exec_a", "s1", 0))

	got, err := s.GetExecution(ctxA, "exec_a")
	if err != nil || got.TenantID != "tenant-a" {
		t.Fatalf("tenant A read = (%+v, %v)", got, err)
	}
	if _, err := s.GetExecution(ctxB, "exec_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B should not see tenant A's record, got %v", err)
	}
	if err := s.DeleteExecution(ctxB, "exec_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B should not delete tenant A's record, got %v", err)
	}

	list, _ := s.ListExecutions(ctxB, transport.ListOptions{})
	if len(list.Data) != 0 {
		t.Errorf("tenant B list = %d records, want 0", len(list.Data))
	}

	// No tenant in context sees everything (single-tenant mode).
	if _, err := s.GetExecution(context.Background(), "exec_a"); err != nil {
		t.Errorf("untenanted read failed: %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	_ = s.SaveExecution(ctx, makeRecord("exec_1", "s", 0))
	_ = s.SaveExecution(ctx, makeRecord("exec_2", "s", time.Second))

	// Touch exec_1 so exec_2 becomes least recently used.
	if _, err := s.GetExecution(ctx, "exec_1"); err != nil {
		t.Fatal(err)
	}
	_ = s.SaveExecution(ctx, makeRecord("exec_3", "s", 2*time.Second))

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if _, err := s.GetExecution(ctx, "exec_2"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("exec_2 should have been evicted")
	}
	if _, err := s.GetExecution(ctx, "exec_1"); err != nil {
		t.Error("exec_1 should have survived")
	}
}

func TestListExecutions(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.SaveExecution(ctx, makeRecord(fmt.Sprintf("exec_%d", i), "s1", time.Duration(i)*time.Second))
	}
	_ = s.SaveExecution(ctx, makeRecord("exec_other", "s2", time.Hour))

	tests := []struct {
		name        string
		opts        transport.ListOptions
		wantIDs     []string
		wantHasMore bool
	}{
		{
			name:    "session filter newest first",
			opts:    transport.ListOptions{SessionID: "s1"},
			wantIDs: []string{"exec_4", "exec_3", "exec_2", "exec_1", "exec_0"},
		},
		{
			name:        "limit",
			opts:        transport.ListOptions{SessionID: "s1", Limit: 2},
			wantIDs:     []string{"exec_4", "exec_3"},
			wantHasMore: true,
		},
		{
			name:        "after cursor",
			opts:        transport.ListOptions{SessionID: "s1", Limit: 2, After: "exec_3"},
			wantIDs:     []string{"exec_2", "exec_1"},
			wantHasMore: true,
		},
		{
			name:    "ascending",
			opts:    transport.ListOptions{SessionID: "s1", Order: "asc", Limit: 3},
			wantIDs: []string{"exec_0", "exec_1", "exec_2"},
			wantHasMore: true,
		},
		{
			name:    "unknown cursor",
			opts:    transport.ListOptions{After: "exec_missing"},
			wantIDs: []string{},
		},
		{
			name:    "all sessions",
			opts:    transport.ListOptions{Limit: 1},
			wantIDs: []string{"exec_other"},
			wantHasMore: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListExecutions(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListExecutions failed: %v", err)
			}
			if list.Object != "list" || list.Data == nil {
				t.Errorf("list envelope = %+v", list)
			}
			if len(list.Data) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %d", len(list.Data), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if list.Data[i].ID != id {
					t.Errorf("Data[%d].ID = %q, want %q", i, list.Data[i].ID, id)
				}
			}
			if list.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v, want %v", list.HasMore, tt.wantHasMore)
			}
			if len(tt.wantIDs) > 0 && (list.FirstID != tt.wantIDs[0] || list.LastID != tt.wantIDs[len(tt.wantIDs)-1]) {
				t.Errorf("FirstID/LastID = %q/%q", list.FirstID, list.LastID)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("exec_%d", i)
			_ = s.SaveExecution(ctx, makeRecord(id, "s", time.Duration(i)))
			_, _ = s.GetExecution(ctx, id)
			_, _ = s.ListExecutions(ctx, transport.ListOptions{Limit: 5})
		}(i)
	}
	wg.Wait()

	if s.Len() > 50 {
		t.Errorf("Len = %d, should not exceed max size 50", s.Len())
	}
}

func TestHealthAndClose(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
