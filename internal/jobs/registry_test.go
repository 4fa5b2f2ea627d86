package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
)

func TestRegistryCreateInitialState(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	job := reg.Create(domain.Job{SourcePath: "/nas/media/movie.mkv", TorrentPath: "/out/movie.mkv.torrent"})

	if job.ID == "" {
		t.Fatal("expected generated id")
	}
	if job.Status != domain.JobStatusRunning || job.Progress != 2 {
		t.Fatalf("unexpected initial state: %s %d", job.Status, job.Progress)
	}
	if len(job.Logs) != 1 {
		t.Fatalf("expected a single log line, got %v", job.Logs)
	}

	got, err := reg.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SourcePath != "/nas/media/movie.mkv" || got.TorrentPath != "/out/movie.mkv.torrent" {
		t.Fatalf("paths not kept: %+v", got)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	job := reg.Create(domain.Job{})
	job.Logs[0] = "tampered"

	got, _ := reg.Get(job.ID)
	if got.Logs[0] != "Job started" {
		t.Fatalf("registry state leaked through copy: %v", got.Logs)
	}
}

func TestRegistryTerminalTransitions(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})

	ok := reg.Create(domain.Job{})
	done, err := reg.Complete(ok.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != domain.JobStatusCompleted || done.Progress != 100 || done.FinishedAt == nil {
		t.Fatalf("unexpected completed job: %+v", done)
	}
	if _, err := reg.Fail(ok.ID, "late"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}

	bad := reg.Create(domain.Job{})
	failed, err := reg.Fail(bad.ID, "")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != domain.JobStatusFailed || failed.Error == "" {
		t.Fatalf("failed job must carry an error: %+v", failed)
	}
	if _, err := reg.AppendLog(bad.ID, "more"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal on append, got %v", err)
	}
}

func TestRegistryUnknownJob(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	if _, err := reg.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := reg.Update("nope", func(*domain.Job) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistrySweepEvictsOnlyOldTerminalJobs(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Retention: time.Hour})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }

	running := reg.Create(domain.Job{})
	finished := reg.Create(domain.Job{})
	if _, err := reg.Complete(finished.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if n := reg.Sweep(base.Add(30 * time.Minute)); n != 0 {
		t.Fatalf("expected nothing evicted inside retention, got %d", n)
	}
	if n := reg.Sweep(base.Add(2 * time.Hour)); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, err := reg.Get(finished.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finished job should be evicted, got %v", err)
	}
	if _, err := reg.Get(running.ID); err != nil {
		t.Fatalf("running job must survive sweeps: %v", err)
	}
}
