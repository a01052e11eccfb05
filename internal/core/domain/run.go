package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Run Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// =============================================================================
// Run Status
// =============================================================================

// RunStatus is the phase of an analysis run. A run moves strictly forward:
// scanning -> mapping -> detecting -> recommending -> (reconciling)? ->
// done | failed.
type RunStatus string

const (
	StatusPending      RunStatus = "pending"
	StatusScanning     RunStatus = "scanning"
	StatusMapping      RunStatus = "mapping"
	StatusDetecting    RunStatus = "detecting"
	StatusRecommending RunStatus = "recommending"
	StatusReconciling  RunStatus = "reconciling"
	StatusDone         RunStatus = "done"
	StatusFailed       RunStatus = "failed"
)

// validTransitions defines the allowed phase transitions. Reconciling is
// optional: recommending may go straight to done. Any non-terminal phase
// may fail.
var validTransitions = map[RunStatus][]RunStatus{
	StatusPending:      {StatusScanning, StatusFailed},
	StatusScanning:     {StatusMapping, StatusFailed},
	StatusMapping:      {StatusDetecting, StatusFailed},
	StatusDetecting:    {StatusRecommending, StatusFailed},
	StatusRecommending: {StatusReconciling, StatusDone, StatusFailed},
	StatusReconciling:  {StatusDone, StatusFailed},
	StatusDone:         {}, // Terminal state
	StatusFailed:       {}, // Terminal state
}

// ValidateTransition checks if a run status transition is valid.
func ValidateTransition(from, to RunStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// IsTerminal reports whether the status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// =============================================================================
// Run
// =============================================================================

// Run records one analysis run over a repository tree.
type Run struct {
	ID           string     `json:"id"`
	Root         string     `json:"root"`
	Status       RunStatus  `json:"status"`
	TreeChecksum string     `json:"tree_checksum,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	FailedPhase  string     `json:"failed_phase,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	ArtifactCount       int `json:"artifact_count"`
	ConflictCount       int `json:"conflict_count"`
	RecommendationCount int `json:"recommendation_count"`
}

// NewRun creates a pending run for the given root.
func NewRun(root string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Root:      root,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
}

// Transition attempts to move the run to a new status.
func (r *Run) Transition(to RunStatus) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	if to.IsTerminal() {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	return nil
}

// Fail moves the run to failed, recording the originating phase.
func (r *Run) Fail(phase, message string) {
	r.FailedPhase = phase
	r.ErrorMessage = message
	r.Status = StatusFailed
	now := time.Now().UTC()
	r.FinishedAt = &now
}
