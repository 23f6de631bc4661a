package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go-ds-analysis-report-ui/internal/analysis"
)

const (
	StateWaiting   = "waiting"
	StateRunning   = "running"
	StateFinished  = "finished"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

var (
	ErrNotFound   = errors.New("analysis job not found")
	ErrJobRunning = errors.New("an analysis job is already running for this source")
)

// Job is a persisted analysis run.
type Job struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	State      string     `json:"state"`
	Files      int        `json:"files"`
	TotalBytes int64      `json:"total_bytes"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store keeps analysis jobs and their per-type size statistics in SQLite.
type Store struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	db, err := sql.Open("sqlite", path+sep+"_time_format=sqlite")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	for _, stmt := range []string{`
CREATE TABLE IF NOT EXISTS analysis_jobs (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  state TEXT NOT NULL,
  files INTEGER NOT NULL DEFAULT 0,
  total_bytes INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL,
  finished_at DATETIME
);`,
		`CREATE INDEX IF NOT EXISTS idx_aj_source_state ON analysis_jobs(source, state);`,
		`
CREATE TABLE IF NOT EXISTS type_stats (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_id TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  sizes_json TEXT NOT NULL,
  UNIQUE(job_id, mime_type)
);`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob registers a running job for source. It fails with ErrJobRunning
// while another job for the same source is waiting or running.
func (s *Store) CreateJob(ctx context.Context, id, source string) error {
	id = strings.TrimSpace(id)
	source = strings.TrimSpace(source)
	if id == "" || source == "" {
		return fmt.Errorf("job id and source are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var active int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM analysis_jobs
WHERE source = ? AND state IN (?, ?);
`, source, StateWaiting, StateRunning).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return ErrJobRunning
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO analysis_jobs (id, source, state, created_at)
VALUES (?, ?, ?, ?);
`, id, source, StateRunning, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishJob moves a job to a terminal state and stores its statistics.
// Stats are only kept for finished jobs.
func (s *Store) FinishJob(ctx context.Context, id, state string, stats []analysis.TypeStats) error {
	switch state {
	case StateFinished, StateFailed, StateCancelled:
	default:
		return fmt.Errorf("unsupported terminal state: %s", state)
	}

	var (
		files int
		total int64
	)
	if state == StateFinished {
		for _, ts := range stats {
			files += ts.Count()
			total += ts.TotalSize()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE analysis_jobs
SET state = ?, files = ?, total_bytes = ?, finished_at = ?
WHERE id = ?;
`, state, files, total, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if state == StateFinished {
		for _, ts := range stats {
			sizes := ts.Sizes
			if sizes == nil {
				sizes = []int64{}
			}
			raw, err := json.Marshal(sizes)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO type_stats (job_id, mime_type, sizes_json)
VALUES (?, ?, ?)
ON CONFLICT(job_id, mime_type) DO UPDATE SET sizes_json = excluded.sizes_json;
`, id, ts.MimeType, string(raw)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

const jobColumns = `id, source, state, files, total_bytes, created_at, finished_at`

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?;`, strings.TrimSpace(id))
	return scanJob(row)
}

// LatestFinished returns the most recently finished job for source.
func (s *Store) LatestFinished(ctx context.Context, source string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM analysis_jobs
WHERE source = ? AND state = ?
ORDER BY finished_at DESC, rowid DESC
LIMIT 1;
`, strings.TrimSpace(source), StateFinished)
	return scanJob(row)
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM analysis_jobs
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Job, 0, limit)
	for rows.Next() {
		item, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TypeStats returns the statistics of a job ordered by mime type.
func (s *Store) TypeStats(ctx context.Context, jobID string) ([]analysis.TypeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT mime_type, sizes_json
FROM type_stats
WHERE job_id = ?
ORDER BY mime_type ASC;
`, strings.TrimSpace(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]analysis.TypeStats, 0)
	for rows.Next() {
		var (
			item analysis.TypeStats
			raw  string
		)
		if err := rows.Scan(&item.MimeType, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &item.Sizes); err != nil {
			return nil, fmt.Errorf("decode sizes for %s: %w", item.MimeType, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		item       Job
		createdAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(&item.ID, &item.Source, &item.State, &item.Files, &item.TotalBytes, &createdAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	if createdAt.Valid {
		t := createdAt.Time.UTC()
		item.CreatedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		item.FinishedAt = &t
	}
	return item, nil
}
