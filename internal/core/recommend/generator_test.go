package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipmap/internal/core/conflict"
	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/core/mapping"
)

func detect(t *testing.T, artifacts ...domain.DeploymentArtifact) (domain.DeploymentMap, []domain.Conflict) {
	t.Helper()
	m := mapping.BuildMap(artifacts)
	conflicts, err := conflict.Detect(m)
	require.NoError(t, err)
	return m, conflicts
}

func TestGenerateOneRecommendationPerConflict(t *testing.T) {
	m, conflicts := detect(t,
		domain.DeploymentArtifact{
			Path:   "apps/a/docker-compose.yml",
			Format: domain.FormatCompose,
			Services: []domain.ServiceDeclaration{{
				Name:        "web",
				Image:       "nginx:1.25",
				Ports:       []domain.PortBinding{{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}},
				Environment: map[string]string{"MODE": "a"},
			}},
		},
		domain.DeploymentArtifact{
			Path:   "apps/b/docker-compose.yml",
			Format: domain.FormatCompose,
			Services: []domain.ServiceDeclaration{
				{
					Name:  "api",
					Image: "acme/api:v1",
					Ports: []domain.PortBinding{{HostPort: 8080, ContainerPort: 8080, Protocol: "tcp"}},
				},
				{
					Name:        "web",
					Image:       "nginx:1.26",
					Environment: map[string]string{"MODE": "b"},
				},
			},
		},
	)
	require.NotEmpty(t, conflicts)

	recs := Generate(m, conflicts)
	require.Len(t, recs, len(conflicts))
	for i, rec := range recs {
		assert.Equal(t, []string{conflicts[i].ID}, rec.ConflictIDs)
		assert.Equal(t, domain.ConfidenceHeuristic, rec.Confidence)
		assert.NotEmpty(t, rec.ProposedChange)
	}
}

func TestPortRemapToNextFreePort(t *testing.T) {
	m, conflicts := detect(t,
		domain.DeploymentArtifact{
			Path:   "apps/a/docker-compose.yml",
			Format: domain.FormatCompose,
			Services: []domain.ServiceDeclaration{{
				Name:  "web",
				Ports: []domain.PortBinding{{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}},
			}},
		},
		domain.DeploymentArtifact{
			Path:   "apps/b/docker-compose.yml",
			Format: domain.FormatCompose,
			Services: []domain.ServiceDeclaration{{
				Name: "api",
				Ports: []domain.PortBinding{
					{HostPort: 8080, ContainerPort: 8080, Protocol: "tcp"},
					{HostPort: 8081, ContainerPort: 9090, Protocol: "tcp"},
				},
			}},
		},
	)
	require.Len(t, conflicts, 1)
	require.Equal(t, domain.ConflictPortCollision, conflicts[0].Kind)

	recs := Generate(m, conflicts)
	require.Len(t, recs, 1)

	rec := recs[0]
	require.NotNil(t, rec.Proposed)
	assert.Equal(t, "apps/b/docker-compose.yml", rec.ProposedArtifactPath)
	assert.Equal(t, "api", rec.Proposed.Name)

	// 8081 is already taken by the same service, so the remap skips to 8082.
	assert.Equal(t, []int{8081, 8082}, rec.Proposed.HostPorts())
	assert.Contains(t, rec.ProposedChange, "8082")
}

func TestPortRemapDoesNotMutateOriginal(t *testing.T) {
	a := domain.DeploymentArtifact{
		Path:   "apps/a/docker-compose.yml",
		Format: domain.FormatCompose,
		Services: []domain.ServiceDeclaration{{
			Name:  "web",
			Ports: []domain.PortBinding{{HostPort: 9000, ContainerPort: 80, Protocol: "tcp"}},
		}},
	}
	b := domain.DeploymentArtifact{
		Path:   "apps/b/docker-compose.yml",
		Format: domain.FormatCompose,
		Services: []domain.ServiceDeclaration{{
			Name:  "api",
			Ports: []domain.PortBinding{{HostPort: 9000, ContainerPort: 9000, Protocol: "tcp"}},
		}},
	}
	m, conflicts := detect(t, a, b)
	require.Len(t, conflicts, 1)

	recs := Generate(m, conflicts)
	require.NotNil(t, recs[0].Proposed)
	assert.Equal(t, 9001, recs[0].Proposed.Ports[0].HostPort)
	assert.Equal(t, 9000, b.Services[0].Ports[0].HostPort, "proposal works on a copy")
}

func TestDuplicatePromotesNewestArtifact(t *testing.T) {
	older := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	m, conflicts := detect(t,
		domain.DeploymentArtifact{
			Path:     "apps/a/docker-compose.yml",
			Format:   domain.FormatCompose,
			ModTime:  older,
			Services: []domain.ServiceDeclaration{{Name: "cache", Image: "redis:6"}},
		},
		domain.DeploymentArtifact{
			Path:     "apps/b/docker-compose.yml",
			Format:   domain.FormatCompose,
			ModTime:  newer,
			Services: []domain.ServiceDeclaration{{Name: "cache", Image: "redis:7"}},
		},
	)

	var dup domain.Conflict
	for _, c := range conflicts {
		if c.Kind == domain.ConflictDuplicateServiceName {
			dup = c
		}
	}
	require.NotEmpty(t, dup.ID)

	recs := Generate(m, []domain.Conflict{dup})
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Proposed)
	assert.Equal(t, "redis:7", recs[0].Proposed.Image)
	assert.Equal(t, "apps/b/docker-compose.yml", recs[0].ProposedArtifactPath)
}

func TestEnvMajorityValue(t *testing.T) {
	svc := func(val string) domain.ServiceDeclaration {
		return domain.ServiceDeclaration{
			Name:        "api",
			Image:       "acme/api:v1",
			Environment: map[string]string{"LOG_LEVEL": val},
		}
	}
	m, conflicts := detect(t,
		domain.DeploymentArtifact{Path: "apps/a/docker-compose.yml", Format: domain.FormatCompose, Services: []domain.ServiceDeclaration{svc("info")}},
		domain.DeploymentArtifact{Path: "apps/b/docker-compose.yml", Format: domain.FormatCompose, Services: []domain.ServiceDeclaration{svc("debug")}},
		domain.DeploymentArtifact{Path: "apps/c/docker-compose.yml", Format: domain.FormatCompose, Services: []domain.ServiceDeclaration{svc("info")}},
	)

	var mismatch domain.Conflict
	for _, c := range conflicts {
		if c.Kind == domain.ConflictEnvMismatch {
			mismatch = c
		}
	}
	require.Equal(t, "LOG_LEVEL", mismatch.Subject)

	recs := Generate(m, []domain.Conflict{mismatch})
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].ProposedChange, `"info"`)
	assert.Contains(t, recs[0].ProposedChange, "majority")
}

func TestEnvCredentialValueRedacted(t *testing.T) {
	svc := func(val string) domain.ServiceDeclaration {
		return domain.ServiceDeclaration{
			Name:        "api",
			Image:       "acme/api:v1",
			Environment: map[string]string{"DB_PASSWORD": val},
		}
	}
	m, conflicts := detect(t,
		domain.DeploymentArtifact{Path: "apps/a/docker-compose.yml", Format: domain.FormatCompose, Services: []domain.ServiceDeclaration{svc("hunter2")}},
		domain.DeploymentArtifact{Path: "apps/b/docker-compose.yml", Format: domain.FormatCompose, Services: []domain.ServiceDeclaration{svc("s3cret")}},
	)

	var mismatch domain.Conflict
	for _, c := range conflicts {
		if c.Kind == domain.ConflictEnvMismatch {
			mismatch = c
		}
	}
	require.Equal(t, "DB_PASSWORD", mismatch.Subject)

	recs := Generate(m, []domain.Conflict{mismatch})
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].ProposedChange, "redacted")
	assert.NotContains(t, recs[0].ProposedChange, "hunter2")
	assert.NotContains(t, recs[0].ProposedChange, "s3cret")
	assert.Nil(t, recs[0].Proposed)
	assert.True(t, recs[0].ManualReview, "a redacted alignment is a flag, not a proposal")
}

func TestManualReviewFlagSeparatesFlagsFromProposals(t *testing.T) {
	unknown := domain.Conflict{ID: "mystery-001", Kind: domain.ConflictKind("mystery")}
	recs := Generate(domain.DeploymentMap{}, []domain.Conflict{unknown})
	require.Len(t, recs, 1)
	assert.True(t, recs[0].ManualReview)
	assert.Nil(t, recs[0].Proposed)

	m, conflicts := detect(t,
		domain.DeploymentArtifact{
			Path: "apps/a/docker-compose.yml", Format: domain.FormatCompose,
			Services: []domain.ServiceDeclaration{{Name: "web", Image: "nginx:1.25",
				Ports: []domain.PortBinding{{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}}}},
		},
		domain.DeploymentArtifact{
			Path: "apps/b/docker-compose.yml", Format: domain.FormatCompose,
			Services: []domain.ServiceDeclaration{{Name: "api", Image: "acme/api:v1",
				Ports: []domain.PortBinding{{HostPort: 8080, ContainerPort: 8080, Protocol: "tcp"}}}},
		},
	)
	recs = Generate(m, conflicts)
	require.NotEmpty(t, recs)
	assert.False(t, recs[0].ManualReview, "a concrete port remap is actionable")
	assert.NotNil(t, recs[0].Proposed)
}

func TestImagePinPrefersPinnedTag(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	m, conflicts := detect(t,
		domain.DeploymentArtifact{
			Path: "apps/a/docker-compose.yml", Format: domain.FormatCompose, ModTime: newer,
			Services: []domain.ServiceDeclaration{{Name: "api", Image: "acme/api:latest"}},
		},
		domain.DeploymentArtifact{
			Path: "apps/b/docker-compose.yml", Format: domain.FormatCompose, ModTime: older,
			Services: []domain.ServiceDeclaration{{Name: "api", Image: "acme/api:v1.4.2"}},
		},
	)

	var mismatch domain.Conflict
	for _, c := range conflicts {
		if c.Kind == domain.ConflictImageVersionMismatch {
			mismatch = c
		}
	}
	require.Equal(t, "acme/api", mismatch.Subject)

	recs := Generate(m, []domain.Conflict{mismatch})
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].ProposedChange, "acme/api:v1.4.2",
		"a pinned tag beats a floating one even from an older artifact")
}

func TestNetworkRenameProposesTargetPrefixes(t *testing.T) {
	a := domain.DeploymentArtifact{
		Path: "apps/a/docker-compose.yml", Format: domain.FormatCompose,
		Services: []domain.ServiceDeclaration{{Name: "web"}},
		Networks: []domain.NetworkDeclaration{{Name: "edge", External: true}},
	}
	b := domain.DeploymentArtifact{
		Path: "apps/b/docker-compose.yml", Format: domain.FormatCompose,
		Services: []domain.ServiceDeclaration{{Name: "api"}},
		Networks: []domain.NetworkDeclaration{{Name: "edge", External: true}},
	}
	m, conflicts := detect(t, a, b)

	var collision domain.Conflict
	for _, c := range conflicts {
		if c.Kind == domain.ConflictNetworkNameCollision {
			collision = c
		}
	}
	require.Equal(t, "edge", collision.Subject)

	recs := Generate(m, []domain.Conflict{collision})
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].ProposedChange, "apps_a_edge")
	assert.Contains(t, recs[0].ProposedChange, "apps_b_edge")
}

func TestOrphanedReferenceFixes(t *testing.T) {
	m, conflicts := detect(t, domain.DeploymentArtifact{
		Path:   "apps/a/docker-compose.yml",
		Format: domain.FormatCompose,
		Services: []domain.ServiceDeclaration{{
			Name:      "api",
			Image:     "acme/api:v1",
			Networks:  []string{"backend"},
			DependsOn: []string{"db"},
			Volumes:   []domain.VolumeMount{{Source: "pgdata", Target: "/data", Named: true}},
		}},
	})

	orphans := make(map[string]domain.Conflict)
	for _, c := range conflicts {
		if c.Kind == domain.ConflictOrphanedReference {
			orphans[c.Subject] = c
		}
	}
	require.Len(t, orphans, 3)

	recs := Generate(m, []domain.Conflict{orphans["backend"], orphans["pgdata"], orphans["db"]})
	require.Len(t, recs, 3)
	assert.Contains(t, recs[0].ProposedChange, `declare network "backend"`)
	assert.Contains(t, recs[1].ProposedChange, `declare volume "pgdata"`)
	assert.Contains(t, recs[2].ProposedChange, "depends_on")
}
