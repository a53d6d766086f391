package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/nbsync/internal/domain"
)

// HistoryFileName is the sqlite database inside the data directory
const HistoryFileName = "history.db"

// Manager persists the run history of sync commands
type Manager struct {
	db *sql.DB
}

// ExecutionRecord represents one command run against a notebook
type ExecutionRecord struct {
	ID        int64         `json:"id" yaml:"id"`
	RunID     string        `json:"runId" yaml:"runId"`
	Target    string        `json:"target" yaml:"target"`
	Operation string        `json:"operation" yaml:"operation"`
	StartTime time.Time     `json:"startTime" yaml:"startTime"`
	EndTime   time.Time     `json:"endTime" yaml:"endTime"`
	Status    domain.Status `json:"status" yaml:"status"`
	Uploaded  int           `json:"uploaded" yaml:"uploaded"`
	Removed   int           `json:"removed" yaml:"removed"`
	Failures  int           `json:"failures" yaml:"failures"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewManager opens (or creates) the history database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, HistoryFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection avoids "database is locked" between our own statements
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}
	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		target TEXT NOT NULL,
		operation TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		uploaded INTEGER DEFAULT 0,
		removed INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target_time ON runs(target, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveExecution records a run
func (m *Manager) SaveExecution(record ExecutionRecord) error {
	switch record.Status {
	case domain.StatusSuccess, domain.StatusDryRun, domain.StatusPartial, domain.StatusFailed:
	default:
		return fmt.Errorf("invalid status: %q", record.Status)
	}
	if record.Target == "" {
		return fmt.Errorf("target cannot be empty")
	}

	_, err := m.db.Exec(`
		INSERT INTO runs (run_id, target, operation, start_time, end_time, status, uploaded, removed, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID,
		record.Target,
		record.Operation,
		record.StartTime.UTC(),
		record.EndTime.UTC(),
		string(record.Status),
		record.Uploaded,
		record.Removed,
		record.Failures,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}

	return nil
}

const selectRuns = `
	SELECT id, run_id, target, operation, start_time, end_time, status, uploaded, removed, failures, error
	FROM runs`

// GetHistory returns the most recent runs against target
func (m *Manager) GetHistory(target string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectRuns+`
		WHERE target = ?
		ORDER BY start_time DESC
		LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanRecords(rows)
}

// GetLastSuccess returns the last successful run against target, or nil
func (m *Manager) GetLastSuccess(target string) (*ExecutionRecord, error) {
	rows, err := m.db.Query(selectRuns+`
		WHERE target = ? AND status = ?
		ORDER BY start_time DESC
		LIMIT 1`, target, string(domain.StatusSuccess))
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// GetAllHistory returns the most recent runs across all targets
func (m *Manager) GetAllHistory(limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectRuns+`
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all history: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]ExecutionRecord, error) {
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var (
			record ExecutionRecord
			status string
			errMsg sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.Target,
			&record.Operation,
			&record.StartTime,
			&record.EndTime,
			&status,
			&record.Uploaded,
			&record.Removed,
			&record.Failures,
			&errMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Status = domain.Status(status)
		record.Error = errMsg.String
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
