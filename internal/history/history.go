// Package history persists finished tasks and workflows to SQLite so
// outcomes survive orchestrator restarts and retention sweeps.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Store wraps an SQLite database holding the execution journal.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens the journal at the given path, creating parent directories
// and applying pending migrations. WAL mode is enabled for concurrent
// reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending schema migrations.
func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2Workflows},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	capability TEXT NOT NULL,
	agent_id TEXT,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 2,
	retry_count INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	result TEXT,
	created_at DATETIME NOT NULL,
	completed_at DATETIME,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON tasks(completed_at);
`

const migrationV2Workflows = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	steps_total INTEGER NOT NULL DEFAULT 0,
	steps_done INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
CREATE INDEX IF NOT EXISTS idx_workflows_completed_at ON workflows(completed_at);
`

// TaskRecord is one journaled task outcome.
type TaskRecord struct {
	ID          string
	Name        string
	Capability  string
	AgentID     string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	RetryCount  int
	Error       string
	Result      models.Result
	CreatedAt   time.Time
	CompletedAt *time.Time
	Duration    time.Duration
}

// WorkflowRecord is one journaled workflow outcome.
type WorkflowRecord struct {
	ID          string
	Name        string
	Status      models.WorkflowStatus
	Error       string
	StepsTotal  int
	StepsDone   int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// RecordTask upserts a terminal task into the journal.
func (s *Store) RecordTask(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resultJSON []byte
	if task.Result != nil {
		var err error
		resultJSON, err = json.Marshal(task.Result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
	}

	var completedAt, duration any
	if task.CompletedAt != nil {
		completedAt = formatTime(*task.CompletedAt)
		if task.StartedAt != nil {
			duration = task.CompletedAt.Sub(*task.StartedAt).Milliseconds()
		}
	}
	if duration == nil {
		duration = int64(0)
	}

	_, err := s.conn.Exec(`
		INSERT INTO tasks (id, name, capability, agent_id, status, priority, retry_count, error, result, created_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			agent_id = excluded.agent_id,
			retry_count = excluded.retry_count,
			error = excluded.error,
			result = excluded.result,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms
	`, task.ID, task.Name, task.Capability, task.AssignedAgent, string(task.Status),
		int(task.Priority), task.RetryCount, task.Error, string(resultJSON),
		formatTime(task.CreatedAt), completedAt, duration)
	if err != nil {
		return fmt.Errorf("record task %s: %w", task.ID, err)
	}
	return nil
}

// RecordWorkflow upserts a terminal workflow into the journal.
func (s *Store) RecordWorkflow(wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := 0
	for _, step := range wf.Steps {
		if step.Status == models.StepStatusCompleted || step.Status == models.StepStatusSkipped {
			done++
		}
	}

	var completedAt any
	if wf.CompletedAt != nil {
		completedAt = formatTime(*wf.CompletedAt)
	}

	_, err := s.conn.Exec(`
		INSERT INTO workflows (id, name, status, error, steps_total, steps_done, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			steps_done = excluded.steps_done,
			completed_at = excluded.completed_at
	`, wf.ID, wf.Name, string(wf.Status), wf.Error, len(wf.Steps), done,
		formatTime(wf.CreatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("record workflow %s: %w", wf.ID, err)
	}
	return nil
}

// RecentTasks returns up to limit task records, newest first.
func (s *Store) RecentTasks(limit int) ([]TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT id, name, capability, agent_id, status, priority, retry_count, error, result, created_at, completed_at, duration_ms
		FROM tasks
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent tasks: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var (
			rec         TaskRecord
			agentID     sql.NullString
			errMsg      sql.NullString
			result      sql.NullString
			priority    int
			status      string
			createdAt   string
			completedAt sql.NullString
			durationMS  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Capability, &agentID, &status,
			&priority, &rec.RetryCount, &errMsg, &result, &createdAt, &completedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		rec.AgentID = agentID.String
		rec.Error = errMsg.String
		rec.Status = models.TaskStatus(status)
		rec.Priority = models.TaskPriority(priority)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if result.Valid && result.String != "" {
			if err := json.Unmarshal([]byte(result.String), &rec.Result); err != nil {
				return nil, fmt.Errorf("decode result for task %s: %w", rec.ID, err)
			}
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for task %s: %w", rec.ID, err)
		}
		rec.CompletedAt = parseNullableTime(completedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentWorkflows returns up to limit workflow records, newest first.
func (s *Store) RecentWorkflows(limit int) ([]WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT id, name, status, error, steps_total, steps_done, created_at, completed_at
		FROM workflows
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent workflows: %w", err)
	}
	defer rows.Close()

	var records []WorkflowRecord
	for rows.Next() {
		var (
			rec         WorkflowRecord
			errMsg      sql.NullString
			status      string
			createdAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &status, &errMsg,
			&rec.StepsTotal, &rec.StepsDone, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		rec.Status = models.WorkflowStatus(status)
		rec.Error = errMsg.String
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for workflow %s: %w", rec.ID, err)
		}
		rec.CompletedAt = parseNullableTime(completedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TaskCounts returns how many journaled tasks sit in each status.
func (s *Store) TaskCounts() (map[models.TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query("SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[models.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// Purge deletes journaled tasks and workflows whose completion is older
// than the given retention windows. Returns how many rows were removed.
func (s *Store) Purge(taskRetention, workflowRetention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	res, err := s.conn.Exec("DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < ?",
		formatTime(time.Now().Add(-taskRetention)))
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.conn.Exec("DELETE FROM workflows WHERE completed_at IS NOT NULL AND completed_at < ?",
		formatTime(time.Now().Add(-workflowRetention)))
	if err != nil {
		return 0, fmt.Errorf("purge workflows: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	return total, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
