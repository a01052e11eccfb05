package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/engine"
)

func sampleReport() *engine.Report {
	return &engine.Report{
		RunID:         "run-1",
		Root:          "/repos/acme",
		GeneratedAt:   time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC),
		TreeChecksum:  "abc123",
		ArtifactCount: 1,
		CategoryCounts: map[string]int{
			"docker-compose": 1,
		},
		Map: domain.DeploymentMap{
			Categories: []domain.CategoryGroup{{
				Name: "docker-compose",
				Targets: []domain.Target{{
					Dir:         "apps/web",
					Environment: "local",
					Artifacts: []domain.DeploymentArtifact{{
						Path:     "apps/web/docker-compose.yml",
						Format:   domain.FormatCompose,
						Services: []domain.ServiceDeclaration{{Name: "web", Image: "nginx:1.25"}},
					}},
				}},
			}},
		},
		Conflicts: []domain.Conflict{{
			ID:          "env-mismatch-001",
			Kind:        domain.ConflictEnvMismatch,
			Severity:    domain.SeverityWarning,
			Subject:     "LOG_LEVEL",
			Description: `variable "LOG_LEVEL" has 2 different values`,
			Involved: []domain.Involved{
				{ArtifactPath: "apps/web/docker-compose.yml", ServiceName: "web"},
			},
		}},
		Recommendations: []domain.Recommendation{{
			ConflictIDs:    []string{"env-mismatch-001"},
			ProposedChange: `set variable "LOG_LEVEL" to "info"`,
			Confidence:     domain.ConfidenceHeuristic,
		}},
		Plans: []domain.DeploymentPlan{{
			Environment: "local",
			Services: map[string]domain.ServiceDeclaration{
				"web": {
					Name:  "web",
					Image: "nginx:1.25",
					Ports: []domain.PortBinding{
						{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"},
						{HostPort: 5353, ContainerPort: 53, Protocol: "udp"},
					},
					Networks: []string{"edge"},
				},
			},
			Networks: []domain.NetworkDeclaration{{Name: "edge", External: true}},
			Volumes:  []string{"webdata"},
		}},
		ParseWarnings: []engine.ParseWarning{
			{Path: "broken/docker-compose.yml", Message: "invalid YAML syntax"},
		},
	}
}

func TestWriterWritesAllFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWriter("", nil)

	require.NoError(t, w.Write(root, sampleReport()))

	jsonPath := filepath.Join(root, ".shipmap", "analysis", "report.json")
	mdPath := filepath.Join(root, ".shipmap", "analysis", "DEPLOYMENT_MAPPING.md")
	planPath := filepath.Join(root, ".shipmap", "deploy", "local", "docker-compose.yml")

	for _, p := range []string{jsonPath, mdPath, planPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded engine.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, "abc123", decoded.TreeChecksum)
}

func TestWriterCustomDir(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(".analysis-out", nil)

	require.NoError(t, w.Write(root, sampleReport()))

	_, err := os.Stat(filepath.Join(root, ".analysis-out", "analysis", "report.json"))
	assert.NoError(t, err)
}

func TestWriterOverwritesPreviousRun(t *testing.T) {
	root := t.TempDir()
	w := NewWriter("", nil)

	require.NoError(t, w.Write(root, sampleReport()))

	updated := sampleReport()
	updated.RunID = "run-2"
	require.NoError(t, w.Write(root, updated))

	raw, err := os.ReadFile(filepath.Join(root, ".shipmap", "analysis", "report.json"))
	require.NoError(t, err)
	var decoded engine.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-2", decoded.RunID)
}

func TestRenderMarkdownSections(t *testing.T) {
	md := renderMarkdown(sampleReport())

	assert.Contains(t, md, "# Deployment Mapping\n")
	assert.Contains(t, md, "Generated: 2026-08-15 09:30:00 UTC")
	assert.Contains(t, md, "## Artifacts by Category")
	assert.Contains(t, md, "### docker-compose")
	assert.Contains(t, md, "`apps/web` (environment: local)")
	assert.Contains(t, md, "## Conflicts")
	assert.Contains(t, md, "**warning** `env-mismatch-001`")
	assert.Contains(t, md, "## Recommendations")
	assert.Contains(t, md, "(heuristic) env-mismatch-001:")
	assert.Contains(t, md, "## Deployment Plans")
	assert.Contains(t, md, "### local")
	assert.Contains(t, md, "1 services: web")
	assert.Contains(t, md, "## Parse Warnings")
	assert.Contains(t, md, "`broken/docker-compose.yml`: invalid YAML syntax")
}

func TestRenderMarkdownEmptyReport(t *testing.T) {
	md := renderMarkdown(&engine.Report{GeneratedAt: time.Now().UTC()})

	assert.Contains(t, md, "No deployment artifacts found.")
	assert.Contains(t, md, "None detected.")
	assert.Contains(t, md, "No plans emitted.")
	assert.NotContains(t, md, "## Parse Warnings")
}

func TestRenderPlanYAML(t *testing.T) {
	plan := sampleReport().Plans[0]
	content, err := renderPlanYAML(plan)
	require.NoError(t, err)

	var doc struct {
		Services map[string]struct {
			Image    string   `yaml:"image"`
			Ports    []string `yaml:"ports"`
			Networks []string `yaml:"networks"`
		} `yaml:"services"`
		Networks map[string]struct {
			External bool `yaml:"external"`
		} `yaml:"networks"`
		Volumes map[string]struct{} `yaml:"volumes"`
	}
	require.NoError(t, yaml.Unmarshal(content, &doc))

	web, ok := doc.Services["web"]
	require.True(t, ok)
	assert.Equal(t, "nginx:1.25", web.Image)
	assert.Equal(t, []string{"5353:53/udp", "8080:80"}, web.Ports)
	assert.Equal(t, []string{"edge"}, web.Networks)

	assert.True(t, doc.Networks["edge"].External)
	assert.Contains(t, doc.Volumes, "webdata")
}
