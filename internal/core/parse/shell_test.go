package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipmap/internal/core/domain"
)

const launchScript = `#!/bin/sh
set -e

docker run -d --name cache -p 6379:6379 redis:7
docker run -d --name api -p 8000:8000 -e MODE=prod -e DB_HOST=db --network backend ghcr.io/acme/api:v2.1.0
`

func TestShellParseDockerRun(t *testing.T) {
	artifact, err := Parse(domain.FormatShellLauncher, "scripts/start.sh", []byte(launchScript), time.Now())
	require.NoError(t, err)

	require.Len(t, artifact.Services, 2)

	cache := artifact.Services[0]
	assert.Equal(t, "cache", cache.Name)
	assert.Equal(t, "redis:7", cache.Image)
	require.Len(t, cache.Ports, 1)
	assert.Equal(t, 6379, cache.Ports[0].HostPort)

	api := artifact.Services[1]
	assert.Equal(t, "api", api.Name)
	assert.Equal(t, "ghcr.io/acme/api:v2.1.0", api.Image)
	assert.Equal(t, "prod", api.Environment["MODE"])
	assert.Equal(t, "db", api.Environment["DB_HOST"])
	assert.Equal(t, []string{"backend"}, api.Networks)
}

func TestShellParseUnnamedContainer(t *testing.T) {
	script := "docker run -p 8080:80 nginx:1.25 nginx -g 'daemon off;'\n"
	artifact, err := Parse(domain.FormatShellLauncher, "scripts/web.sh", []byte(script), time.Now())
	require.NoError(t, err)

	require.Len(t, artifact.Services, 1)
	assert.Equal(t, "nginx", artifact.Services[0].Name, "falls back to the image repo")
	assert.Equal(t, "nginx:1.25", artifact.Services[0].Image)
}

func TestShellParsePortExportOnly(t *testing.T) {
	script := "#!/bin/bash\nexport PORT=3000\nnpm start\n"
	artifact, err := Parse(domain.FormatShellLauncher, "scripts/run-web.sh", []byte(script), time.Now())
	require.NoError(t, err)

	require.Len(t, artifact.Services, 1)
	svc := artifact.Services[0]
	assert.Equal(t, "run-web", svc.Name)
	assert.Equal(t, "3000", svc.Environment["PORT"])
	require.Len(t, svc.Ports, 1)
	assert.Equal(t, 3000, svc.Ports[0].HostPort)
}

func TestShellParseNothingLaunchable(t *testing.T) {
	_, err := Parse(domain.FormatShellLauncher, "scripts/cleanup.sh", []byte("#!/bin/sh\nrm -rf /tmp/cache\n"), time.Now())
	assert.ErrorIs(t, err, ErrNoServices)
}

func TestTrailingImageRef(t *testing.T) {
	tests := []struct {
		args  string
		image string
	}{
		{"-d --name web -p 80:80 nginx:1.25", "nginx:1.25"},
		{"--rm -e KEY=value ghcr.io/acme/api:v2 serve --verbose", "ghcr.io/acme/api:v2"},
		{"-p 6379:6379 redis", "redis"},
		{"-d --name only-flags", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.image, trailingImageRef(tt.args), "args %q", tt.args)
	}
}
