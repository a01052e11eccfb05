package store

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
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID                  string  `db:"id"`
	Root                string  `db:"root"`
	Status              string  `db:"status"`
	TreeChecksum        string  `db:"tree_checksum"`
	ErrorMessage        string  `db:"error_message"`
	FailedPhase         string  `db:"failed_phase"`
	StartedAt           string  `db:"started_at"`
	FinishedAt          *string `db:"finished_at"`
	ArtifactCount       int     `db:"artifact_count"`
	ConflictCount       int     `db:"conflict_count"`
	RecommendationCount int     `db:"recommendation_count"`
}

func runToRow(run *domain.Run) runRow {
	row := runRow{
		ID:                  run.ID,
		Root:                run.Root,
		Status:              string(run.Status),
		TreeChecksum:        run.TreeChecksum,
		ErrorMessage:        run.ErrorMessage,
		FailedPhase:         run.FailedPhase,
		StartedAt:           run.StartedAt.UTC().Format(time.RFC3339Nano),
		ArtifactCount:       run.ArtifactCount,
		ConflictCount:       run.ConflictCount,
		RecommendationCount: run.RecommendationCount,
	}
	if run.FinishedAt != nil {
		finished := run.FinishedAt.UTC().Format(time.RFC3339Nano)
		row.FinishedAt = &finished
	}
	return row
}

func rowToRun(row runRow) (*domain.Run, error) {
	started, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, NewStoreError("rowToRun", "run", row.ID, "invalid started_at", ErrInvalidData)
	}
	run := &domain.Run{
		ID:                  row.ID,
		Root:                row.Root,
		Status:              domain.RunStatus(row.Status),
		TreeChecksum:        row.TreeChecksum,
		ErrorMessage:        row.ErrorMessage,
		FailedPhase:         row.FailedPhase,
		StartedAt:           started,
		ArtifactCount:       row.ArtifactCount,
		ConflictCount:       row.ConflictCount,
		RecommendationCount: row.RecommendationCount,
	}
	if row.FinishedAt != nil {
		finished, err := time.Parse(time.RFC3339Nano, *row.FinishedAt)
		if err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "invalid finished_at", ErrInvalidData)
		}
		run.FinishedAt = &finished
	}
	return run, nil
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	row := runToRow(run)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, root, status, tree_checksum, error_message, failed_phase,
			started_at, finished_at, artifact_count, conflict_count, recommendation_count)
		VALUES (:id, :root, :status, :tree_checksum, :error_message, :failed_phase,
			:started_at, :finished_at, :artifact_count, :conflict_count, :recommendation_count)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return NewStoreError("CreateRun", "run", run.ID, "duplicate id", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetRun", "run", id, "not found", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}
	return rowToRun(row)
}

// UpdateRun stores the current run state.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	row := runToRow(run)
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE runs SET status = :status, tree_checksum = :tree_checksum,
			error_message = :error_message, failed_phase = :failed_phase,
			finished_at = :finished_at, artifact_count = :artifact_count,
			conflict_count = :conflict_count, recommendation_count = :recommendation_count
		WHERE id = :id`,
		row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "not found", ErrNotFound)
	}
	return nil
}

// ListRuns returns runs ordered most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}
	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// LatestChecksum returns the tree checksum of the most recent completed run
// for the given root, empty when there is none.
func (s *SQLiteStore) LatestChecksum(ctx context.Context, root string) (string, error) {
	var checksum string
	err := s.db.GetContext(ctx, &checksum, `
		SELECT tree_checksum FROM runs
		WHERE root = ? AND status = ? AND tree_checksum != ''
		ORDER BY started_at DESC LIMIT 1`,
		root, string(domain.StatusDone))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", NewStoreError("LatestChecksum", "run", "", err.Error(), err)
	}
	return checksum, nil
}

// =============================================================================
// Report Operations
// =============================================================================

// SaveReport stores the JSON report for a run, replacing an existing one.
func (s *SQLiteStore) SaveReport(ctx context.Context, runID string, report *engine.Report) error {
	content, err := json.Marshal(report)
	if err != nil {
		return NewStoreError("SaveReport", "report", runID, "failed to marshal report", ErrInvalidData)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (run_id, content, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET content = excluded.content, created_at = excluded.created_at`,
		runID, string(content), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return NewStoreError("SaveReport", "report", runID, err.Error(), err)
	}
	return nil
}

// GetReport fetches the stored report for a run.
func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*engine.Report, error) {
	var content string
	err := s.db.GetContext(ctx, &content, `SELECT content FROM reports WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetReport", "report", runID, "not found", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetReport", "report", runID, err.Error(), err)
	}
	var report engine.Report
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, NewStoreError("GetReport", "report", runID, "failed to unmarshal report", ErrInvalidData)
	}
	return &report, nil
}

// =============================================================================
// Helpers
// =============================================================================

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
