package issue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
)

// fixed-width so created_at sorts lexically
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores issues in a single SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (and migrates) the database at path.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS issues (
		id                TEXT PRIMARY KEY,
		description       TEXT NOT NULL,
		category          TEXT NOT NULL DEFAULT '',
		severity          TEXT NOT NULL,
		suggested_actions TEXT NOT NULL DEFAULT '[]',
		vehicle_model     TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Create(ctx context.Context, record issue.Record) (issue.Record, error) {
	record.ID = uuid.NewString()
	if record.SuggestedActions == nil {
		record.SuggestedActions = []string{}
	}

	actions, err := json.Marshal(record.SuggestedActions)
	if err != nil {
		return issue.Record{}, fmt.Errorf("encode suggested actions: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO issues (id, description, category, severity, suggested_actions, vehicle_model, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Description, record.Category, string(record.Severity), string(actions),
		record.VehicleModel, record.Status, record.CreatedAt.UTC().Format(storedTimeLayout),
	)
	if err != nil {
		return issue.Record{}, fmt.Errorf("insert issue: %w", err)
	}
	return record, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (issue.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, description, category, severity, suggested_actions, vehicle_model, status, created_at
		 FROM issues WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return issue.Record{}, ErrIssueNotFound
	}
	return record, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]issue.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, description, category, severity, suggested_actions, vehicle_model, status, created_at
		 FROM issues ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []issue.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (issue.Record, error) {
	var (
		record    issue.Record
		severity  string
		actions   string
		createdAt string
	)
	if err := row.Scan(&record.ID, &record.Description, &record.Category, &severity, &actions,
		&record.VehicleModel, &record.Status, &createdAt); err != nil {
		return issue.Record{}, err
	}

	record.Severity = issue.Severity(severity)
	if err := json.Unmarshal([]byte(actions), &record.SuggestedActions); err != nil {
		return issue.Record{}, fmt.Errorf("decode suggested actions: %w", err)
	}
	if record.SuggestedActions == nil {
		record.SuggestedActions = []string{}
	}
	created, err := time.Parse(storedTimeLayout, createdAt)
	if err != nil {
		return issue.Record{}, fmt.Errorf("decode created_at: %w", err)
	}
	record.CreatedAt = created
	return record, nil
}
