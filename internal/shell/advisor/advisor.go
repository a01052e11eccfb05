// Package advisor talks to an external advisory collaborator during the
// optional reconciliation phase. The collaborator is strictly advisory:
// its proposals are re-verified locally and a failure here never fails a
// run.
package advisor

import (
	"context"

	"github.com/artpar/shipmap/internal/core/domain"
)

// Request carries one conflict with its context to the collaborator.
type Request struct {
	Conflict  domain.Conflict             `json:"conflict"`
	Involved  []domain.DeploymentArtifact `json:"involved_artifacts"`
	Heuristic domain.Recommendation       `json:"heuristic_recommendation"`
}

// Response is the collaborator's proposal for one conflict. A nil Proposed
// means the collaborator had nothing better than the heuristic.
type Response struct {
	Proposed  *domain.ServiceDeclaration `json:"proposed_service_declaration,omitempty"`
	Rationale string                     `json:"rationale,omitempty"`
}

// Advisor reviews conflicts and proposes resolutions.
type Advisor interface {
	Review(ctx context.Context, req Request) (*Response, error)
}

// =============================================================================
// Noop Advisor
// =============================================================================

// Noop is the advisor used when reconciliation is disabled. It proposes
// nothing, leaving every recommendation at heuristic confidence.
type Noop struct{}

func (Noop) Review(ctx context.Context, req Request) (*Response, error) {
	return nil, nil
}
