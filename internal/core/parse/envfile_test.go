package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipmap/internal/core/domain"
)

func TestEnvFileParse(t *testing.T) {
	content := "DB_HOST=db\nDB_PORT=5432\nSECRET_KEY=abc123\n"
	artifact, err := Parse(domain.FormatEnvFile, "services/api/.env", []byte(content), time.Now())
	require.NoError(t, err)

	require.Len(t, artifact.Services, 1)
	svc := artifact.Services[0]
	assert.Equal(t, "api", svc.Name, "named after the containing directory")
	assert.Equal(t, "db", svc.Environment["DB_HOST"])
	assert.Equal(t, "5432", svc.Environment["DB_PORT"])
	assert.Len(t, svc.Environment, 3)
}

func TestEnvFileEmptyDocument(t *testing.T) {
	_, err := Parse(domain.FormatEnvFile, ".env", []byte("# nothing here\n"), time.Now())
	assert.Error(t, err)
}

func TestEnvServiceName(t *testing.T) {
	tests := []struct {
		path string
		name string
	}{
		{"services/api/.env", "api"},
		{"worker/.env.production", "worker"},
		{".env.production", "production"},
		{".env", "app"},
		{"database.env", "database"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, envServiceName(tt.path), "path %q", tt.path)
	}
}
