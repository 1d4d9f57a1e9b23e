// Package history persists step execution records to a SQLite database so
// past runs can be inspected and failure-prone actions identified.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Record is one step execution outcome.
type Record struct {
	ID          int64
	TaskID      string
	StepID      string
	Description string
	Action      string
	Tool        string
	Success     bool
	Skipped     bool
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Store manages the SQLite execution-history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database and initializes
// the schema. Pass ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStep inserts one step execution record.
func (s *Store) RecordStep(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_executions
			(task_id, step_id, description, action, tool, success, skipped, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.StepID, rec.Description, rec.Action, rec.Tool,
		boolToInt(rec.Success), boolToInt(rec.Skipped), rec.Error,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record step execution: %w", err)
	}
	return nil
}

// TaskRecords returns the records for one task in insertion order.
func (s *Store) TaskRecords(ctx context.Context, taskID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, step_id, description, action, tool, success, skipped, error, duration_ms, created_at
		FROM step_executions
		WHERE task_id = ?
		ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query task records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var success, skipped int
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.StepID, &rec.Description, &rec.Action,
			&rec.Tool, &success, &skipped, &rec.Error, &durationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		rec.Success = success != 0
		rec.Skipped = skipped != 0
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FailureCountByAction returns how many non-skipped failures each action has
// accumulated across all recorded tasks.
func (s *Store) FailureCountByAction(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM step_executions
		WHERE success = 0 AND skipped = 0
		GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[action] = count
	}
	return counts, rows.Err()
}

// Prune deletes records older than keepDays days.
func (s *Store) Prune(ctx context.Context, keepDays int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM step_executions
		WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", keepDays))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
