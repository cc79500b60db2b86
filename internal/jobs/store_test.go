package jobs

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

func advance(t *testing.T, s *MemoryStore, id string, statuses ...Status) {
	t.Helper()
	for _, st := range statuses {
		if _, err := s.Update(id, Update{Status: st, Message: string(st)}); err != nil {
			t.Fatalf("Update to %s failed: %v", st, err)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusDownloading, false},
		{StatusProcessing, false},
		{StatusChunking, false},
		{StatusEmbedding, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusDownloading, true},
		{StatusDownloading, StatusProcessing, true},
		{StatusProcessing, StatusChunking, true},
		{StatusChunking, StatusEmbedding, true},
		{StatusEmbedding, StatusCompleted, true},
		{StatusEmbedding, StatusEmbedding, true},
		{StatusPending, StatusFailed, true},
		{StatusChunking, StatusFailed, true},
		{StatusPending, StatusProcessing, false},
		{StatusDownloading, StatusCompleted, false},
		{StatusChunking, StatusDownloading, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusPending, Status("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.ok {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestMemoryStore_Create(t *testing.T) {
	s := NewMemoryStore()

	job := s.Create("github.com/org/repo", "org_repo", "session-1")

	if job.ID == "" {
		t.Fatal("Expected job ID to be generated")
	}
	if job.Status != StatusPending {
		t.Errorf("Status = %q, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() || !job.CreatedAt.Equal(job.UpdatedAt) {
		t.Errorf("Expected equal non-zero timestamps, got %v / %v", job.CreatedAt, job.UpdatedAt)
	}

	other := s.Create("github.com/org/repo", "org_repo", "session-1")
	if other.ID == job.ID {
		t.Error("Expected unique job IDs")
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.Get("missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if _, err := s.Update("missing", Update{Status: StatusDownloading}); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if err := s.AppendDiagnostic("missing", "note"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateReplacesAndMerges(t *testing.T) {
	s := NewMemoryStore()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	job := s.Create("github.com/org/repo", "org_repo", "s")
	advance(t, s, job.ID, StatusDownloading)

	updated, err := s.Update(job.ID, Update{
		Status:  StatusProcessing,
		Message: "Scanning",
		Result:  &Fragment{Commit: "abc123"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Message != "Scanning" || updated.Commit != "abc123" {
		t.Errorf("Unexpected job after update: %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Error("Expected UpdatedAt to advance")
	}

	advance(t, s, job.ID, StatusChunking, StatusEmbedding)

	chunks := []domain.ChunkMeta{{ID: "a.go:1-2", FilePath: "a.go", StartLine: 1, EndLine: 2, Language: "go", ContentLength: 10}}
	final, err := s.Update(job.ID, Update{
		Status:  StatusCompleted,
		Message: "Done",
		Result: &Fragment{
			ChunkCount: IntPtr(1),
			Index:      &IndexSummary{Collection: "repo_x", StoredCount: 1},
			Chunks:     chunks,
		},
	})
	if err != nil {
		t.Fatalf("Completion failed: %v", err)
	}

	if final.Commit != "abc123" {
		t.Errorf("Commit should survive later updates, got %q", final.Commit)
	}
	if final.ChunkCount == nil || *final.ChunkCount != 1 {
		t.Errorf("ChunkCount = %v, want 1", final.ChunkCount)
	}
	if final.Index == nil || final.Index.Collection != "repo_x" || final.Index.StoredCount != 1 {
		t.Errorf("Index = %+v", final.Index)
	}
	if len(final.Chunks) != 1 {
		t.Errorf("Expected 1 chunk meta, got %d", len(final.Chunks))
	}
}

func TestMemoryStore_RejectsRegressionAndSkips(t *testing.T) {
	s := NewMemoryStore()
	job := s.Create("u", "r", "s")

	if _, err := s.Update(job.ID, Update{Status: StatusChunking}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected skip to be rejected, got %v", err)
	}

	advance(t, s, job.ID, StatusDownloading, StatusProcessing)

	if _, err := s.Update(job.ID, Update{Status: StatusDownloading}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected regression to be rejected, got %v", err)
	}

	got, _ := s.Get(job.ID)
	if got.Status != StatusProcessing {
		t.Errorf("Rejected update must not change status, got %q", got.Status)
	}
}

func TestMemoryStore_TerminalIsFinal(t *testing.T) {
	s := NewMemoryStore()
	job := s.Create("u", "r", "s")

	if _, err := s.Update(job.ID, Update{Status: StatusFailed, Error: "boom"}); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if _, err := s.Update(job.ID, Update{Status: StatusFailed, Error: "again"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected update of failed job to be rejected, got %v", err)
	}

	if err := s.AppendDiagnostic(job.ID, "workspace cleanup failed"); err != nil {
		t.Fatalf("AppendDiagnostic failed: %v", err)
	}

	got, _ := s.Get(job.ID)
	if got.Error != "boom" {
		t.Errorf("Error = %q, want 'boom'", got.Error)
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0] != "workspace cleanup failed" {
		t.Errorf("Diagnostics = %v", got.Diagnostics)
	}
}

func TestMemoryStore_ChunksOnlyOnCompletion(t *testing.T) {
	s := NewMemoryStore()
	job := s.Create("u", "r", "s")
	advance(t, s, job.ID, StatusDownloading)

	_, err := s.Update(job.ID, Update{
		Status: StatusFailed,
		Result: &Fragment{Chunks: []domain.ChunkMeta{{ID: "a:1-1"}}},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected chunk metadata on failure to be rejected, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	job := s.Create("u", "r", "s")

	job.Status = StatusCompleted
	job.Message = "tampered"

	got, _ := s.Get(job.ID)
	if got.Status != StatusPending || got.Message == "tampered" {
		t.Errorf("Store state was mutated through a returned copy: %+v", got)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}

	first := s.Create("u1", "r1", "s")
	second := s.Create("u2", "r2", "s")

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("Expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestMemoryStore_ConcurrentJobs(t *testing.T) {
	s := NewMemoryStore()

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = s.Create("u", "r", "s").ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, st := range []Status{StatusDownloading, StatusProcessing, StatusChunking, StatusEmbedding, StatusCompleted} {
				if _, err := s.Update(id, Update{Status: st, Message: string(st)}); err != nil {
					t.Errorf("Update %s failed: %v", st, err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for range 20 {
				job, err := s.Get(id)
				if err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
				if job.Message != "" && job.Message != "Job created" && job.Message != string(job.Status) {
					t.Errorf("Observed torn update: status %q with message %q", job.Status, job.Message)
				}
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		job, _ := s.Get(id)
		if job.Status != StatusCompleted {
			t.Errorf("Job %s ended in %q, want completed", id, job.Status)
		}
	}
}
