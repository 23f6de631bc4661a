package mysql

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"go-ds-analysis-report-ui/internal/config"
)

func TestParseSizes(t *testing.T) {
	got, err := ParseSizes([]byte(`[1024, 2048.7, 0]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int64{1024, 2048, 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	for _, raw := range []string{"", "null"} {
		got, err := ParseSizes([]byte(raw))
		if err != nil || len(got) != 0 {
			t.Fatalf("%q: expected no sizes, got %v (%v)", raw, got, err)
		}
	}

	if _, err := ParseSizes([]byte(`{"a":1}`)); err == nil {
		t.Fatalf("expected error for non-array payload")
	}
}

func TestNewStore_RejectsBadTableNames(t *testing.T) {
	cfg := config.Config{DBJobTable: "jobs; DROP TABLE x", DBTypeStatsTable: "type_stats"}
	_, err := NewStore(cfg)
	if err == nil || !strings.Contains(err.Error(), "invalid job table name") {
		t.Fatalf("expected table name error, got %v", err)
	}

	cfg = config.Config{DBJobTable: "analysis_job", DBTypeStatsTable: "1stats"}
	if _, err := NewStore(cfg); err == nil {
		t.Fatalf("expected error for invalid type stats table")
	}
}

// newTestStore backs a Store with SQLite; the queries stay within the SQL
// both engines accept.
func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "scanner.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE analysis_job (id INTEGER PRIMARY KEY, scanner_id INTEGER NOT NULL, exec_state TEXT NOT NULL, finished_at DATETIME)`,
		`CREATE TABLE type_stats (id INTEGER PRIMARY KEY, analysis_job_id INTEGER NOT NULL, mime_type TEXT NOT NULL, sizes TEXT)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
	return newStore(db, "analysis_job", "type_stats", 5*time.Second), db
}

func TestLatestFinishedTypeStats(t *testing.T) {
	store, db := newTestStore(t)

	for _, stmt := range []string{
		`INSERT INTO analysis_job (id, scanner_id, exec_state, finished_at) VALUES
			(1, 7, 'finished', '2026-01-01 10:00:00'),
			(2, 7, 'finished', '2026-02-01 10:00:00'),
			(3, 7, 'running', NULL),
			(4, 8, 'finished', '2026-03-01 10:00:00')`,
		`INSERT INTO type_stats (analysis_job_id, mime_type, sizes) VALUES
			(1, 'application/pdf', '[1]'),
			(2, 'text/plain', '[10, 20.9]'),
			(2, 'application/pdf', '[4096]'),
			(2, 'image/png', NULL),
			(4, 'image/png', '[5]')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	jobID, stats, err := store.LatestFinishedTypeStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != 2 {
		t.Fatalf("expected job 2, got %d", jobID)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 type stats, got %d: %+v", len(stats), stats)
	}
	wantTypes := []string{"application/pdf", "image/png", "text/plain"}
	for i, ts := range stats {
		if ts.MimeType != wantTypes[i] {
			t.Fatalf("row %d: expected %s, got %s", i, wantTypes[i], ts.MimeType)
		}
	}
	if !reflect.DeepEqual(stats[0].Sizes, []int64{4096}) || len(stats[1].Sizes) != 0 || !reflect.DeepEqual(stats[2].Sizes, []int64{10, 20}) {
		t.Fatalf("unexpected sizes: %+v", stats)
	}
}

func TestLatestFinishedTypeStats_NoFinishedJob(t *testing.T) {
	store, db := newTestStore(t)
	if _, err := db.Exec(`INSERT INTO analysis_job (id, scanner_id, exec_state) VALUES (1, 9, 'running')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, scannerID := range []int64{9, 42} {
		_, _, err := store.LatestFinishedTypeStats(context.Background(), scannerID)
		if !errors.Is(err, ErrNoFinishedJob) {
			t.Fatalf("scanner %d: expected ErrNoFinishedJob, got %v", scannerID, err)
		}
	}
}

func TestLatestFinishedTypeStats_BadSizes(t *testing.T) {
	store, db := newTestStore(t)
	for _, stmt := range []string{
		`INSERT INTO analysis_job (id, scanner_id, exec_state, finished_at) VALUES (1, 3, 'finished', '2026-01-01 10:00:00')`,
		`INSERT INTO type_stats (analysis_job_id, mime_type, sizes) VALUES (1, 'application/pdf', 'not json')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	_, _, err := store.LatestFinishedTypeStats(context.Background(), 3)
	if err == nil || !strings.Contains(err.Error(), "sizes for application/pdf") {
		t.Fatalf("expected sizes error, got %v", err)
	}
}
