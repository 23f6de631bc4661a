package scan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-ds-analysis-report-ui/internal/connectors/jobstore"
)

func TestService_RecordsFinishedJob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), 2048)
	writeFile(t, filepath.Join(root, "b.png"), 100)

	store, err := jobstore.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	runner, _ := NewRunner(Options{})
	svc := NewService(runner, store, time.Minute)
	defer svc.Close()

	ctx := context.Background()
	id, err := svc.Start(ctx, root)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.State != jobstore.StateFinished || job.Files != 2 || job.TotalBytes != 2148 {
		t.Fatalf("unexpected job: %+v", job)
	}
	stats, err := store.TypeStats(ctx, id)
	if err != nil || len(stats) != 2 {
		t.Fatalf("expected 2 type stats, got %v (%v)", stats, err)
	}
}

func TestService_RecordsFailure(t *testing.T) {
	store, err := jobstore.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	runner, _ := NewRunner(Options{})
	svc := NewService(runner, store, time.Minute)
	defer svc.Close()

	ctx := context.Background()
	id, err := svc.Start(ctx, filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.State != jobstore.StateFailed {
		t.Fatalf("expected failed state, got %s", job.State)
	}
	if _, err := store.LatestFinished(ctx, job.Source); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected no finished job, got %v", err)
	}
}
