package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipmap/internal/core/domain"
)

func composeArtifact(path string, services ...string) domain.DeploymentArtifact {
	a := domain.DeploymentArtifact{Path: path, Format: domain.FormatCompose}
	for _, name := range services {
		a.Services = append(a.Services, domain.ServiceDeclaration{Name: name})
	}
	return a
}

func TestBuildMapCategoryGrouping(t *testing.T) {
	artifacts := []domain.DeploymentArtifact{
		composeArtifact("docker-compose.yml", "web"),
		{Path: "k8s/deployment.yaml", Format: domain.FormatManifest},
		{Path: "Procfile", Format: domain.FormatProcfile},
	}

	m := BuildMap(artifacts)

	require.Len(t, m.Categories, 3)
	assert.Equal(t, "docker-compose", m.Categories[0].Name)
	assert.Equal(t, "kubernetes", m.Categories[1].Name)
	assert.Equal(t, "procfile", m.Categories[2].Name)
	assert.Equal(t, 3, m.ArtifactCount())
}

func TestBuildMapDeterministic(t *testing.T) {
	forward := []domain.DeploymentArtifact{
		composeArtifact("apps/web/docker-compose.yml", "web"),
		composeArtifact("apps/api/docker-compose.yml", "api"),
		{Path: "k8s/svc.yaml", Format: domain.FormatManifest},
	}
	reversed := []domain.DeploymentArtifact{forward[2], forward[1], forward[0]}

	assert.Equal(t, BuildMap(forward), BuildMap(reversed))
}

func TestClusterTargetsNestedDirs(t *testing.T) {
	artifacts := []domain.DeploymentArtifact{
		composeArtifact("apps/api/docker-compose.yml", "api"),
		composeArtifact("apps/api/overrides/docker-compose.prod.yml", "api"),
		composeArtifact("apps/web/docker-compose.yml", "web"),
	}

	m := BuildMap(artifacts)
	require.Len(t, m.Categories, 1)
	targets := m.Categories[0].Targets

	require.Len(t, targets, 2)
	assert.Equal(t, "apps/api", targets[0].Dir)
	assert.Len(t, targets[0].Artifacts, 2, "nested override joins the parent target")
	assert.Equal(t, "apps/web", targets[1].Dir)
}

func TestClusterTargetsRootDoesNotAbsorb(t *testing.T) {
	artifacts := []domain.DeploymentArtifact{
		composeArtifact("docker-compose.yml", "web"),
		composeArtifact("services/db/docker-compose.yml", "db"),
	}

	m := BuildMap(artifacts)
	targets := m.Categories[0].Targets

	require.Len(t, targets, 2)
	assert.Equal(t, ".", targets[0].Dir)
	assert.Equal(t, "services/db", targets[1].Dir)
}

func TestClusterTargetsSiblingPrefixNotNested(t *testing.T) {
	// "apps/api-v2" shares a string prefix with "apps/api" but is a
	// sibling directory, not a subdirectory.
	artifacts := []domain.DeploymentArtifact{
		composeArtifact("apps/api/docker-compose.yml", "api"),
		composeArtifact("apps/api-v2/docker-compose.yml", "api"),
	}

	m := BuildMap(artifacts)
	require.Len(t, m.Categories[0].Targets, 2)
}

func TestBuildMapEnvironments(t *testing.T) {
	artifacts := []domain.DeploymentArtifact{
		composeArtifact("deploy/prod/docker-compose.yml", "web"),
		composeArtifact("deploy/staging/docker-compose.yml", "web"),
		composeArtifact("apps/web/docker-compose.yml", "web"),
	}

	m := BuildMap(artifacts)
	targets := m.Categories[0].Targets
	require.Len(t, targets, 3)

	envs := make(map[string]string)
	for _, tgt := range targets {
		envs[tgt.Dir] = tgt.Environment
	}
	assert.Equal(t, "production", envs["deploy/prod"])
	assert.Equal(t, "staging", envs["deploy/staging"])
	assert.Equal(t, "local", envs["apps/web"])
}
