package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/pageforge/api/internal/model"
)

func seedJob(t *testing.T, reg Registry, id string, status model.JobStatus) *model.Job {
	t.Helper()
	job := &model.Job{ID: id, Status: status, SourceContent: "content"}
	if err := reg.Create(context.Background(), job); err != nil {
		t.Fatalf("Create(%s) failed: %v", id, err)
	}
	return job
}

func TestCreate_DuplicateRejected(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusDraft)

	err := reg.Create(context.Background(), &model.Job{ID: "job-1"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	reg := NewMemoryRegistry()
	_, err := reg.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusDraft)
	ctx := context.Background()

	a, _ := reg.Get(ctx, "job-1")
	a.Status = model.JobStatusApproved

	b, _ := reg.Get(ctx, "job-1")
	if b.Status != model.JobStatusDraft {
		t.Errorf("mutation through a read leaked into the store: %s", b.Status)
	}
}

func TestUpdate_CASAcceptsNextVersion(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusDraft)
	ctx := context.Background()

	job, _ := reg.Get(ctx, "job-1")
	job.Status = model.JobStatusProcessing
	job.Version++

	if err := reg.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stored, _ := reg.Get(ctx, "job-1")
	if stored.Status != model.JobStatusProcessing || stored.Version != 1 {
		t.Errorf("stored job = {%s, v%d}, want {processing, v1}", stored.Status, stored.Version)
	}
}

func TestUpdate_CASRejectsStaleWrite(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusDraft)
	ctx := context.Background()

	// Two writers read the same version.
	first, _ := reg.Get(ctx, "job-1")
	second, _ := reg.Get(ctx, "job-1")

	first.Status = model.JobStatusProcessing
	first.Version++
	if err := reg.Update(ctx, first); err != nil {
		t.Fatalf("first writer failed: %v", err)
	}

	second.Status = model.JobStatusRejected
	second.Version++
	err := reg.Update(ctx, second)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	stored, _ := reg.Get(ctx, "job-1")
	if stored.Status != model.JobStatusProcessing {
		t.Errorf("stale writer overwrote the winner: %s", stored.Status)
	}
}

func TestUpdate_CASRejectsSkippedVersion(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusDraft)
	ctx := context.Background()

	job, _ := reg.Get(ctx, "job-1")
	job.Version += 2

	if err := reg.Update(ctx, job); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	reg := NewMemoryRegistry()
	err := reg.Update(context.Background(), &model.Job{ID: "missing", Version: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_PipelineResultSurvivesPersistence(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusProcessing)
	ctx := context.Background()

	result := []byte(`{"passed":true,"artifact":"<!doctype html>","score":91}`)
	job, _ := reg.Get(ctx, "job-1")
	job.Status = model.JobStatusReadyForReview
	job.Version++
	job.PipelineResult = result

	if err := reg.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stored, _ := reg.Get(ctx, "job-1")
	if string(stored.PipelineResult) != string(result) {
		t.Errorf("pipeline result lost in the round-trip: %q", stored.PipelineResult)
	}
}

func TestListByStatus(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusProcessing)
	seedJob(t, reg, "job-2", model.JobStatusDraft)
	seedJob(t, reg, "job-3", model.JobStatusProcessing)

	ids, err := reg.ListByStatus(context.Background(), model.JobStatusProcessing)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "job-1" || ids[1] != "job-3" {
		t.Errorf("ids = %v, want [job-1 job-3]", ids)
	}
}

func TestUpdate_ConcurrentWritersSingleWinner(t *testing.T) {
	reg := NewMemoryRegistry()
	seedJob(t, reg, "job-1", model.JobStatusDraft)
	ctx := context.Background()

	// Every writer starts from the same observed version.
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := reg.Get(ctx, "job-1")
			if err != nil {
				errs[i] = err
				return
			}
			job.Status = model.JobStatusProcessing
			job.Version = 1
			errs[i] = reg.Update(ctx, job)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}

	stored, _ := reg.Get(ctx, "job-1")
	if stored.Version != 1 {
		t.Errorf("version = %d, want 1", stored.Version)
	}
}
