package app

import (
	"path/filepath"
	"testing"

	"github.com/skyhookml/distrain/distrain"
)

func initTestDb(t *testing.T) {
	t.Helper()
	Init(filepath.Join(t.TempDir(), "test.sqlite3"))
}

func TestJobLifecycle(t *testing.T) {
	initTestDb(t)

	job := NewJob("mnist run", "asynchronous", "http", 4, `{"frequency":"epoch"}`)
	if job == nil {
		t.Fatalf("NewJob returned nil")
	}
	if job.UUID == "" {
		t.Errorf("job has no uuid")
	}
	if job.Done {
		t.Errorf("new job is already done")
	}

	got := GetJob(job.ID)
	if got == nil {
		t.Fatalf("GetJob(%d) returned nil", job.ID)
	}
	if got.Name != "mnist run" || got.Mode != "asynchronous" || got.Transport != "http" || got.NumWorkers != 4 {
		t.Errorf("GetJob returned %+v", got)
	}

	job.SetDone("")
	got = GetJob(job.ID)
	if !got.Done || got.Error != "" {
		t.Errorf("after SetDone: done=%v error=%q", got.Done, got.Error)
	}
}

func TestSetDoneWithError(t *testing.T) {
	initTestDb(t)
	job := NewJob("bad run", "synchronous", "http", 2, "{}")
	job.SetDone("worker 1 failed")
	got := GetJob(job.ID)
	if !got.Done || got.Error != "worker 1 failed" {
		t.Errorf("after SetDone: done=%v error=%q", got.Done, got.Error)
	}
}

func TestGetJobMissing(t *testing.T) {
	initTestDb(t)
	if job := GetJob(12345); job != nil {
		t.Errorf("GetJob on missing id returned %+v", job)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	initTestDb(t)
	first := NewJob("first", "hogwild", "socket", 1, "{}")
	second := NewJob("second", "hogwild", "socket", 1, "{}")

	jobs := ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("ListJobs returned %d jobs; want 2", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Errorf("ListJobs order: got [%d %d]; want [%d %d]", jobs[0].ID, jobs[1].ID, second.ID, first.ID)
	}
}

func TestHistoriesRoundTrip(t *testing.T) {
	initTestDb(t)
	job := NewJob("run", "synchronous", "http", 2, "{}")
	job.AppendHistories([]distrain.History{
		{"loss": []float64{1.5, 0.5}},
		{"loss": []float64{2.0}, "val_loss": []float64{2.5}},
	})

	histories := job.Histories()
	if len(histories) != 2 {
		t.Fatalf("got %d histories; want 2", len(histories))
	}
	if len(histories[0]["loss"]) != 2 || histories[0]["loss"][1] != 0.5 {
		t.Errorf("history 0 = %v", histories[0])
	}
	if histories[1]["val_loss"][0] != 2.5 {
		t.Errorf("history 1 = %v", histories[1])
	}

	// histories are per job
	other := NewJob("other", "synchronous", "http", 2, "{}")
	if got := other.Histories(); len(got) != 0 {
		t.Errorf("fresh job has %d histories", len(got))
	}
}
