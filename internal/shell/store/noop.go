package store

import (
	"context"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/engine"
)

// =============================================================================
// Store Opening
// =============================================================================

// Open returns the run history store for the configured DSN. An empty DSN
// disables history: writes become no-ops and lookups report not found, so
// analyses run without any database.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return Noop{}, nil
	}
	return NewSQLiteStore(dsn)
}

// =============================================================================
// Noop Store
// =============================================================================

// Noop is the store used when run history is disabled. Every run looks like
// a first run: no previous checksum, no stored reports.
type Noop struct{}

func (Noop) CreateRun(ctx context.Context, run *domain.Run) error { return nil }

func (Noop) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return nil, NewStoreError("GetRun", "run", id, "run history is disabled", ErrNotFound)
}

func (Noop) UpdateRun(ctx context.Context, run *domain.Run) error { return nil }

func (Noop) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return nil, nil
}

func (Noop) LatestChecksum(ctx context.Context, root string) (string, error) {
	return "", nil
}

func (Noop) SaveReport(ctx context.Context, runID string, report *engine.Report) error {
	return nil
}

func (Noop) GetReport(ctx context.Context, runID string) (*engine.Report, error) {
	return nil, NewStoreError("GetReport", "report", runID, "run history is disabled", ErrNotFound)
}

func (Noop) Close() error { return nil }
