package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artpar/shipmap/internal/core/domain"
)

func TestServiceSimilarityIdentical(t *testing.T) {
	svc := domain.ServiceDeclaration{
		Name:  "api",
		Image: "ghcr.io/acme/api:v2",
		Ports: []domain.PortBinding{{HostPort: 8000, ContainerPort: 8000, Protocol: "tcp"}},
		Environment: map[string]string{
			"DB_HOST": "db",
			"MODE":    "prod",
		},
	}
	assert.InDelta(t, 1.0, ServiceSimilarity(svc, svc), 1e-9)
	assert.True(t, SameLogicalService(svc, svc))
}

func TestServiceSimilarityNameAndImage(t *testing.T) {
	a := domain.ServiceDeclaration{Name: "cache", Image: "redis:7"}
	b := domain.ServiceDeclaration{Name: "cache", Image: "redis:7.2"}

	// Same name, same repo, both portless and env-less: every component
	// scores full weight.
	assert.InDelta(t, 1.0, ServiceSimilarity(a, b), 1e-9)
}

func TestServiceSimilarityThresholdBoundary(t *testing.T) {
	// Same name plus matching ports and env keys, different image repos:
	// 0.4 + 0 + 0.2 + 0.1 = 0.7, above threshold.
	a := domain.ServiceDeclaration{
		Name:        "web",
		Image:       "nginx:1.25",
		Ports:       []domain.PortBinding{{HostPort: 80, ContainerPort: 80, Protocol: "tcp"}},
		Environment: map[string]string{"TLS": "on"},
	}
	b := domain.ServiceDeclaration{
		Name:        "web",
		Image:       "caddy:2",
		Ports:       []domain.PortBinding{{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}},
		Environment: map[string]string{"TLS": "off"},
	}
	assert.InDelta(t, 0.7, ServiceSimilarity(a, b), 1e-9)
	assert.True(t, SameLogicalService(a, b))

	// Different names with no shared tokens, different repos, disjoint
	// ports and env keys: nothing scores.
	c := domain.ServiceDeclaration{
		Name:        "worker",
		Image:       "acme/worker:v1",
		Ports:       []domain.PortBinding{{HostPort: 9000, ContainerPort: 9000, Protocol: "tcp"}},
		Environment: map[string]string{"QUEUE": "jobs"},
	}
	assert.False(t, SameLogicalService(a, c))
}

func TestServiceSimilarityTokenOverlap(t *testing.T) {
	a := domain.ServiceDeclaration{Name: "web-prod", Image: "nginx:1.25"}
	b := domain.ServiceDeclaration{Name: "web", Image: "nginx:latest"}

	// Partial name credit (0.2) plus repo match (0.3) plus empty-port and
	// empty-env agreement (0.2 + 0.1) lands exactly on the threshold.
	assert.InDelta(t, 0.8, ServiceSimilarity(a, b), 1e-9)
	assert.True(t, SameLogicalService(a, b))
}

func TestServiceSimilaritySymmetric(t *testing.T) {
	a := domain.ServiceDeclaration{
		Name:  "api",
		Image: "acme/api:v1",
		Ports: []domain.PortBinding{{ContainerPort: 8000}, {ContainerPort: 9090}},
	}
	b := domain.ServiceDeclaration{
		Name:        "api-gateway",
		Image:       "acme/gateway:v1",
		Ports:       []domain.PortBinding{{ContainerPort: 8000}},
		Environment: map[string]string{"UPSTREAM": "api"},
	}
	assert.Equal(t, ServiceSimilarity(a, b), ServiceSimilarity(b, a))
}

func TestJaccardInts(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardInts(nil, nil), 1e-9)
	assert.InDelta(t, 1.0, jaccardInts([]int{80, 443}, []int{443, 80}), 1e-9)
	assert.InDelta(t, 1.0/3.0, jaccardInts([]int{80, 443}, []int{80, 8080}), 1e-9, "one of three in the union")
	assert.InDelta(t, 0.0, jaccardInts([]int{80}, []int{9000}), 1e-9)
	assert.InDelta(t, 0.0, jaccardInts([]int{80}, nil), 1e-9)
}

func TestJaccardKeys(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardKeys(nil, nil), 1e-9)
	assert.InDelta(t, 1.0,
		jaccardKeys(map[string]string{"A": "1"}, map[string]string{"A": "2"}), 1e-9,
		"values do not matter, only key shape")
	assert.InDelta(t, 1.0/3.0,
		jaccardKeys(map[string]string{"A": "1", "B": "2"}, map[string]string{"B": "3", "C": "4"}), 1e-9)
}
