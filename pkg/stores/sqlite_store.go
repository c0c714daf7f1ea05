package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.AuditStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveExecution inserts or updates an execution record.
func (s *SQLiteStore) SaveExecution(ctx context.Context, rec *engine.Record) error {
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, opportunity_id, resource_id, optimization_type, status,
			started_at, completed_at, actual_savings, execution_log,
			error_message, rollback_required, rollback_completed, executed_by, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			actual_savings = excluded.actual_savings,
			execution_log = excluded.execution_log,
			error_message = excluded.error_message,
			rollback_required = excluded.rollback_required,
			rollback_completed = excluded.rollback_completed,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.OpportunityID,
		rec.ResourceID,
		string(rec.OptimizationType),
		string(rec.Status),
		rec.StartedAt.UTC(),
		nullableTime(rec.CompletedAt),
		rec.ActualSavings,
		string(logJSON),
		nullableString(rec.ErrorMessage),
		boolToInt(rec.RollbackRequired),
		boolToInt(rec.RollbackCompleted),
		rec.ExecutedBy,
	)

	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

// GetExecution retrieves an execution record by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*engine.Record, error) {
	query := `
		SELECT id, opportunity_id, resource_id, optimization_type, status,
			   started_at, completed_at, actual_savings, execution_log,
			   error_message, rollback_required, rollback_completed, executed_by
		FROM executions
		WHERE id = ?
	`

	rec, err := scanExecution(s.db.QueryRowContext(ctx, query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewPermanentError(fmt.Sprintf("execution not found: %s", executionID), nil).
			WithCode(engine.ErrCodeNotFound).
			WithOperation("get_execution")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return rec, nil
}

// ListExecutions retrieves execution records matching the filter, most
// recent first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, filter engine.RecordFilter) ([]*engine.Record, error) {
	var conds []string
	var args []interface{}

	if filter.OpportunityID != "" {
		conds = append(conds, "opportunity_id = ?")
		args = append(args, filter.OpportunityID)
	}
	if filter.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.OptimizationType != "" {
		conds = append(conds, "optimization_type = ?")
		args = append(args, string(filter.OptimizationType))
	}

	query := `
		SELECT id, opportunity_id, resource_id, optimization_type, status,
			   started_at, completed_at, actual_savings, execution_log,
			   error_message, rollback_required, rollback_completed, executed_by
		FROM executions
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	records := []*engine.Record{}
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

// SaveEvent appends a lifecycle event to the audit trail.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *engine.Event) error {
	var detailsJSON *string
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		str := string(b)
		detailsJSON = &str
	}

	query := `
		INSERT INTO events (id, execution_id, step_id, resource_id, type, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.ExecutionID,
		nullableString(event.StepID),
		nullableString(event.ResourceID),
		string(event.Type),
		event.Level,
		event.Message,
		detailsJSON,
		event.Timestamp.UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	return nil
}

// ListEvents retrieves events for an execution in chronological order.
func (s *SQLiteStore) ListEvents(ctx context.Context, executionID string) ([]*engine.Event, error) {
	query := `
		SELECT id, execution_id, step_id, resource_id, type, level, message, details, timestamp
		FROM events
		WHERE execution_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*engine.Event{}
	for rows.Next() {
		event := &engine.Event{}
		var eventType string
		var stepID, resourceID, details sql.NullString
		err := rows.Scan(
			&event.ID,
			&event.ExecutionID,
			&stepID,
			&resourceID,
			&eventType,
			&event.Level,
			&event.Message,
			&details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = engine.EventType(eventType)
		event.StepID = stepID.String
		event.ResourceID = resourceID.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event details: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// SummarizeSavings aggregates realized savings for completed executions,
// grouped by optimization type.
func (s *SQLiteStore) SummarizeSavings(ctx context.Context) ([]SavingsSummary, error) {
	query := `
		SELECT optimization_type, COUNT(*), COALESCE(SUM(actual_savings), 0)
		FROM executions
		WHERE status = ?
		GROUP BY optimization_type
		ORDER BY optimization_type
	`

	rows, err := s.db.QueryContext(ctx, query, string(engine.ExecutionStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize savings: %w", err)
	}
	defer rows.Close()

	summaries := []SavingsSummary{}
	for rows.Next() {
		var sum SavingsSummary
		if err := rows.Scan(&sum.OptimizationType, &sum.Executions, &sum.TotalSavings); err != nil {
			return nil, fmt.Errorf("failed to scan savings summary: %w", err)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating savings summaries: %w", err)
	}

	return summaries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*engine.Record, error) {
	rec := &engine.Record{}
	var optimizationType, status, logJSON string
	var completedAt sql.NullTime
	var errorMessage sql.NullString
	var rollbackRequired, rollbackCompleted int

	err := row.Scan(
		&rec.ID,
		&rec.OpportunityID,
		&rec.ResourceID,
		&optimizationType,
		&status,
		&rec.StartedAt,
		&completedAt,
		&rec.ActualSavings,
		&logJSON,
		&errorMessage,
		&rollbackRequired,
		&rollbackCompleted,
		&rec.ExecutedBy,
	)
	if err != nil {
		return nil, err
	}

	rec.OptimizationType = engine.OptimizationType(optimizationType)
	rec.Status = engine.ExecutionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	rec.ErrorMessage = errorMessage.String
	rec.RollbackRequired = rollbackRequired != 0
	rec.RollbackCompleted = rollbackCompleted != 0
	if err := json.Unmarshal([]byte(logJSON), &rec.Log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
	}

	return rec, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
