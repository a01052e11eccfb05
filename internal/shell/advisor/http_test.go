package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipmap/internal/core/domain"
)

func reviewRequest() Request {
	return Request{
		Conflict: domain.Conflict{
			ID:       "port-collision-001",
			Kind:     domain.ConflictPortCollision,
			Severity: domain.SeverityBlocking,
			Subject:  "8080",
			Involved: []domain.Involved{
				{ArtifactPath: "apps/a/docker-compose.yml", ServiceName: "web"},
				{ArtifactPath: "apps/b/docker-compose.yml", ServiceName: "api"},
			},
		},
		Heuristic: domain.Recommendation{
			ConflictIDs:    []string{"port-collision-001"},
			ProposedChange: "remap to 8081",
			Confidence:     domain.ConfidenceHeuristic,
		},
	}
}

func TestHTTPClientReview(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(Response{
			Proposed: &domain.ServiceDeclaration{
				Name:  "api",
				Ports: []domain.PortBinding{{HostPort: 8081, ContainerPort: 8080, Protocol: "tcp"}},
			},
			Rationale: "8081 is unclaimed in every target",
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIKey: "test-key"})
	resp, err := client.Review(context.Background(), reviewRequest())
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/review", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "port-collision-001", gotReq.Conflict.ID)
	assert.Equal(t, "remap to 8081", gotReq.Heuristic.ProposedChange)

	require.NotNil(t, resp.Proposed)
	assert.Equal(t, 8081, resp.Proposed.Ports[0].HostPort)
	assert.Equal(t, "8081 is unclaimed in every target", resp.Rationale)
}

func TestHTTPClientNoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Response{})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := client.Review(context.Background(), reviewRequest())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestHTTPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := client.Review(context.Background(), reviewRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestHTTPClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := client.Review(context.Background(), reviewRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestHTTPClientContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := client.Review(ctx, reviewRequest())
	assert.Error(t, err)
}

func TestNoopAdvisor(t *testing.T) {
	resp, err := Noop{}.Review(context.Background(), reviewRequest())
	assert.NoError(t, err)
	assert.Nil(t, resp)
}
