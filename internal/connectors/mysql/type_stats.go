package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"go-ds-analysis-report-ui/internal/analysis"
	"go-ds-analysis-report-ui/internal/config"
)

// ErrNoFinishedJob is returned when a scanner has never completed an
// analysis run.
var ErrNoFinishedJob = errors.New("no finished analysis job for scanner")

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Store reads analysis results from the data scanner's admin database.
//
// The job table needs id, scanner_id, exec_state and finished_at columns;
// the type stats table needs analysis_job_id, mime_type and sizes (a JSON
// array of byte counts).
type Store struct {
	db             *sql.DB
	jobTable       string
	typeStatsTable string
	queryTimeout   time.Duration
}

func NewStore(cfg config.Config) (*Store, error) {
	if !identifierRe.MatchString(cfg.DBJobTable) {
		return nil, fmt.Errorf("invalid job table name %q", cfg.DBJobTable)
	}
	if !identifierRe.MatchString(cfg.DBTypeStatsTable) {
		return nil, fmt.Errorf("invalid type stats table name %q", cfg.DBTypeStatsTable)
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db, cfg.DBJobTable, cfg.DBTypeStatsTable, cfg.DBQueryTimeout), nil
}

func newStore(db *sql.DB, jobTable, typeStatsTable string, queryTimeout time.Duration) *Store {
	return &Store{
		db:             db,
		jobTable:       jobTable,
		typeStatsTable: typeStatsTable,
		queryTimeout:   queryTimeout,
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LatestFinishedTypeStats returns the per-type sizes of the most recent
// finished analysis job of a scanner, ordered by mime type.
func (s *Store) LatestFinishedTypeStats(ctx context.Context, scannerID int64) (int64, []analysis.TypeStats, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	var jobID int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id
FROM %s
WHERE scanner_id = ? AND exec_state = 'finished'
ORDER BY finished_at DESC, id DESC
LIMIT 1`, s.jobTable), scannerID).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNoFinishedJob
	}
	if err != nil {
		return 0, nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT mime_type, sizes
FROM %s
WHERE analysis_job_id = ?
ORDER BY mime_type ASC`, s.typeStatsTable), jobID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	out := make([]analysis.TypeStats, 0)
	for rows.Next() {
		var (
			mimeType string
			raw      sql.RawBytes
		)
		if err := rows.Scan(&mimeType, &raw); err != nil {
			return 0, nil, err
		}
		sizes, err := ParseSizes(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("sizes for %s: %w", mimeType, err)
		}
		out = append(out, analysis.TypeStats{MimeType: mimeType, Sizes: sizes})
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	return jobID, out, nil
}

// ParseSizes decodes a JSON array of byte counts. NULL and empty columns
// decode to no sizes. Fractional values are truncated.
func ParseSizes(raw []byte) ([]int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []int64{}, nil
	}
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out, nil
}
