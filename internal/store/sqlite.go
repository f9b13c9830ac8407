// Package store keeps a local SQLite history of triage runs and the outcome
// of every message they considered.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/teemow/rejectfewer/internal/triage"
)

// ErrNotFound is returned when no trashed outcome matches a message id.
var ErrNotFound = errors.New("no matching history entry")

// Run is a stored RunSummary.
type Run struct {
	ID         string    `db:"id" json:"id"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	Considered int       `db:"considered" json:"considered"`
	Completed  int       `db:"completed" json:"completed"`
	Trashed    int       `db:"trashed" json:"trashed"`
	Skipped    int       `db:"skipped" json:"skipped"`
	Failed     int       `db:"failed" json:"failed"`
	DryRun     bool      `db:"dry_run" json:"dry_run"`
	Error      string    `db:"error" json:"error,omitempty"`
}

// Duration returns the run duration.
func (r Run) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Outcome is a stored MessageOutcome.
type Outcome struct {
	RunID           string     `db:"run_id" json:"run_id"`
	MessageID       string     `db:"message_id" json:"message_id"`
	Subject         string     `db:"subject" json:"subject"`
	Sender          string     `db:"sender" json:"sender"`
	Outcome         string     `db:"outcome" json:"outcome"`
	ToolStatus      string     `db:"tool_status" json:"tool_status,omitempty"`
	Detail          string     `db:"detail" json:"detail,omitempty"`
	SnippetFallback bool       `db:"snippet_fallback" json:"snippet_fallback,omitempty"`
	RestoredAt      *time.Time `db:"restored_at" json:"restored_at,omitempty"`
}

// SQLiteStore records run history in SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ triage.HistoryRecorder = (*SQLiteStore)(nil)

// DefaultPath returns ~/.local/share/rejectfewer/history.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".local", "share", "rejectfewer", "history.db")
}

// NewSQLiteStore opens or creates the database at dbPath, enables WAL and
// foreign keys, and applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	current, err := s.schemaVersion()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) schemaVersion() (int, error) {
	var tables int
	err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return 0, fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	if err := s.db.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// RecordRun stores a run and its per-message outcomes in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, summary triage.RunSummary, outcomes []triage.MessageOutcome) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, duration_ms,
			considered, completed, trashed, skipped, failed,
			dry_run, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.StartedAt.UTC(), summary.Duration.Milliseconds(),
		summary.Considered, summary.Completed, summary.Trashed, summary.Skipped, summary.Failed,
		boolToInt(summary.DryRun), summary.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", summary.RunID, err)
	}

	if len(outcomes) > 0 {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT OR REPLACE INTO outcomes (
				run_id, message_id, subject, sender,
				outcome, tool_status, detail, snippet_fallback
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing outcome statement: %w", err)
		}
		defer stmt.Close()

		for _, o := range outcomes {
			_, err := stmt.ExecContext(ctx,
				summary.RunID, o.MessageID, o.Subject, o.Sender,
				o.Outcome, o.ToolStatus, o.Detail, boolToInt(o.SnippetFallback),
			)
			if err != nil {
				return fmt.Errorf("inserting outcome %s: %w", o.MessageID, err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns the outcomes of one run in insertion order.
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	var out []Outcome
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM outcomes WHERE run_id = ? ORDER BY rowid", runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes for run %s: %w", runID, err)
	}
	return out, nil
}

// Trashed returns messages that were moved to Trash by a non-dry run and
// have not been restored, newest first.
func (s *SQLiteStore) Trashed(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Outcome
	err := s.db.SelectContext(ctx, &out, `
		SELECT o.* FROM outcomes o
		JOIN runs r ON r.id = o.run_id
		WHERE o.tool_status = ? AND r.dry_run = 0 AND o.restored_at IS NULL
		ORDER BY r.started_at DESC
		LIMIT ?`, triage.StatusSuccess, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trashed messages: %w", err)
	}
	return out, nil
}

// MarkRestored flags every trashed outcome of messageID as restored.
func (s *SQLiteStore) MarkRestored(ctx context.Context, messageID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outcomes SET restored_at = ?
		WHERE message_id = ? AND tool_status = ? AND restored_at IS NULL`,
		at.UTC(), messageID, triage.StatusSuccess)
	if err != nil {
		return fmt.Errorf("marking %s restored: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking %s restored: %w", messageID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, messageID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
