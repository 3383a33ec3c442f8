// Package store keeps the history of finished scans in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrNotFound = errors.New("scan not found")

// DefaultListLimit applies when ListScans gets a non-positive limit.
const DefaultListLimit = 50

// Scan is one stored scan with its step results.
type Scan struct {
	ID           string                 `json:"id"`
	URL          string                 `json:"url"`
	CanonicalURL string                 `json:"canonical_url"`
	Plan         string                 `json:"plan"`
	Status       string                 `json:"status"`
	Passed       int                    `json:"passed"`
	Failed       int                    `json:"failed"`
	Total        int                    `json:"total"`
	Error        string                 `json:"error,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      time.Time              `json:"ended_at,omitzero"`
	Steps        []model.TestStepResult `json:"steps"`
}

// Snapshot rebuilds the results payload the scan was served as.
func (s *Scan) Snapshot() *model.ResultSnapshot {
	return &model.ResultSnapshot{
		Summary: model.Summary{Passed: s.Passed, Failed: s.Failed},
		Details: &model.Details{
			Tests:  append([]model.TestStepResult(nil), s.Steps...),
			URL:    s.URL,
			ScanID: s.ID,
			Status: s.Status,
			Total:  s.Total,
		},
	}
}

// Store is the SQLite scan history.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, logger logging.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "store"})}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveScan inserts or replaces a scan by ID.
func (s *Store) SaveScan(ctx context.Context, scan *Scan) error {
	if scan == nil || scan.ID == "" {
		return fmt.Errorf("scan id is required")
	}
	steps := scan.Steps
	if steps == nil {
		steps = []model.TestStepResult{}
	}
	report, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scans (id, url, canonical_url, plan, status, passed, failed, total, error, started_at, ended_at, report)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             url = excluded.url,
             canonical_url = excluded.canonical_url,
             plan = excluded.plan,
             status = excluded.status,
             passed = excluded.passed,
             failed = excluded.failed,
             total = excluded.total,
             error = excluded.error,
             started_at = excluded.started_at,
             ended_at = excluded.ended_at,
             report = excluded.report`,
		scan.ID, scan.URL, scan.CanonicalURL, scan.Plan, scan.Status,
		scan.Passed, scan.Failed, scan.Total, scan.Error,
		toUnix(scan.StartedAt), toUnix(scan.EndedAt), string(report),
	)
	if err != nil {
		return fmt.Errorf("save scan %s: %w", scan.ID, err)
	}
	s.logger.Debug("saved scan",
		logging.Field{Key: "scan_id", Value: scan.ID},
		logging.Field{Key: "status", Value: scan.Status})
	return nil
}

const selectScan = `SELECT id, url, canonical_url, plan, status, passed, failed, total, error, started_at, ended_at, report FROM scans`

// GetScan returns the scan with id or ErrNotFound.
func (s *Store) GetScan(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx, selectScan+` WHERE id = ? LIMIT 1`, id)
	return scanRow(row)
}

// ListScans returns the newest scans first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectScan+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []*Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// PreviousScan returns the newest scan of canonicalURL that started
// strictly before before, or ErrNotFound.
func (s *Store) PreviousScan(ctx context.Context, canonicalURL string, before time.Time) (*Scan, error) {
	row := s.db.QueryRowContext(ctx,
		selectScan+` WHERE canonical_url = ? AND started_at < ? ORDER BY started_at DESC LIMIT 1`,
		canonicalURL, toUnix(before))
	return scanRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*Scan, error) {
	var sc Scan
	var started, ended int64
	var report string
	if err := r.Scan(&sc.ID, &sc.URL, &sc.CanonicalURL, &sc.Plan, &sc.Status,
		&sc.Passed, &sc.Failed, &sc.Total, &sc.Error, &started, &ended, &report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sc.StartedAt = fromUnix(started)
	sc.EndedAt = fromUnix(ended)
	if err := json.Unmarshal([]byte(report), &sc.Steps); err != nil {
		return nil, fmt.Errorf("decode report of scan %s: %w", sc.ID, err)
	}
	return &sc, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
