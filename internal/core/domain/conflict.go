package domain

// =============================================================================
// Conflict
// =============================================================================

// ConflictKind identifies the kind of inconsistency detected between
// deployment artifacts.
type ConflictKind string

const (
	ConflictPortCollision        ConflictKind = "port-collision"
	ConflictDuplicateServiceName ConflictKind = "duplicate-service-name"
	ConflictEnvMismatch          ConflictKind = "env-mismatch"
	ConflictImageVersionMismatch ConflictKind = "image-version-mismatch"
	ConflictNetworkNameCollision ConflictKind = "network-naming-collision"
	ConflictOrphanedReference    ConflictKind = "orphaned-reference"
)

// conflictKindOrder fixes the sort order of conflict kinds in reports.
var conflictKindOrder = map[ConflictKind]int{
	ConflictPortCollision:        0,
	ConflictDuplicateServiceName: 1,
	ConflictEnvMismatch:          2,
	ConflictImageVersionMismatch: 3,
	ConflictNetworkNameCollision: 4,
	ConflictOrphanedReference:    5,
}

// KindOrder returns the fixed ordinal of a conflict kind for stable sorting.
func KindOrder(k ConflictKind) int {
	if o, ok := conflictKindOrder[k]; ok {
		return o
	}
	return len(conflictKindOrder)
}

// Severity classifies how strongly a conflict affects plan emission.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// Involved identifies one (artifact, service) pair participating in a
// conflict. ServiceName is empty for artifact-level involvement.
type Involved struct {
	ArtifactPath string `json:"artifact_path"`
	ServiceName  string `json:"service_name,omitempty"`
}

// Conflict is a detected inconsistency between artifacts. Conflicts are
// created fresh each run by the detector and never mutated.
type Conflict struct {
	// ID is a deterministic identifier assigned after the conflict list is
	// sorted; stable across runs over the same map.
	ID string `json:"id"`

	Kind     ConflictKind `json:"kind"`
	Severity Severity     `json:"severity"`

	// Involved lists the participating (artifact, service) pairs, sorted by
	// path then service name. Size >= 2 for all kinds except
	// orphaned-reference (size >= 1).
	Involved []Involved `json:"involved"`

	// Description is generated deterministically from the kind and the
	// involved data - never free text from an external model.
	Description string `json:"description"`

	// Subject carries the colliding value (port, variable name, network
	// name, or missing reference) for recommendation heuristics.
	Subject string `json:"subject,omitempty"`
}

// SmallestPath returns the lexicographically smallest involved artifact
// path, used as the secondary sort key for deterministic ordering.
func (c Conflict) SmallestPath() string {
	if len(c.Involved) == 0 {
		return ""
	}
	smallest := c.Involved[0].ArtifactPath
	for _, inv := range c.Involved[1:] {
		if inv.ArtifactPath < smallest {
			smallest = inv.ArtifactPath
		}
	}
	return smallest
}

// =============================================================================
// Recommendation
// =============================================================================

// Confidence classifies how a recommendation was produced. Heuristic
// recommendations come from local rules; verified ones only after a
// reconciliation pass confirmed the change resolves the conflict without
// introducing a new one.
type Confidence string

const (
	ConfidenceHeuristic Confidence = "heuristic"
	ConfidenceVerified  Confidence = "verified"
)

// Recommendation is a suggested resolution tied to conflicts by ID. It
// references conflicts, never owns them.
type Recommendation struct {
	// ConflictIDs are the conflicts this recommendation addresses.
	ConflictIDs []string `json:"conflict_ids"`

	// ProposedChange is a human-readable description of the change.
	ProposedChange string `json:"proposed_change"`

	// Proposed is the concrete resolved declaration, when the heuristic can
	// produce one (nil otherwise).
	Proposed *ServiceDeclaration `json:"proposed,omitempty"`

	// ProposedArtifactPath names the artifact the proposal applies to.
	ProposedArtifactPath string `json:"proposed_artifact_path,omitempty"`

	Confidence Confidence `json:"confidence"`

	// ManualReview marks a recommendation that carries no actionable
	// proposal: the conflict is flagged for a human, not resolved.
	ManualReview bool `json:"manual_review,omitempty"`

	// Rationale is set by the advisory collaborator on verified
	// recommendations.
	Rationale string `json:"rationale,omitempty"`
}

// =============================================================================
// Deployment Plan
// =============================================================================

// DeploymentPlan is the consolidated output for one target environment:
// a mapping from service name to a single resolved declaration, free of
// blocking conflicts among its entries.
type DeploymentPlan struct {
	Environment string                        `json:"environment"`
	Services    map[string]ServiceDeclaration `json:"services"`
	Networks    []NetworkDeclaration          `json:"networks,omitempty"`
	Volumes     []string                      `json:"volumes,omitempty"`
}
