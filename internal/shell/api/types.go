package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// AnalyzeRequest is the request body for starting an analysis.
type AnalyzeRequest struct {
	// Root is the repository tree to analyze. Required.
	Root string `json:"root"`
}

// =============================================================================
// Response Types
// =============================================================================

// RunResponse is the API representation of an analysis run.
type RunResponse struct {
	ID                  string     `json:"id"`
	Root                string     `json:"root"`
	Status              string     `json:"status"`
	TreeChecksum        string     `json:"tree_checksum,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	FailedPhase         string     `json:"failed_phase,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	ArtifactCount       int        `json:"artifact_count"`
	ConflictCount       int        `json:"conflict_count"`
	RecommendationCount int        `json:"recommendation_count"`
}

// RunListResponse is the paginated run list.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
