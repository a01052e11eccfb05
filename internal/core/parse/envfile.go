package parse

import (
	"path"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/subosito/gotenv"
)

// =============================================================================
// Env File Parser
// =============================================================================

// envFileParser parses dotenv-style files. An env file declares no service
// of its own; it contributes one declaration named after its directory so
// variable values can be cross-checked against other declarations of the
// same deployment target.
type envFileParser struct{}

func (envFileParser) Format() domain.Format { return domain.FormatEnvFile }

func (p envFileParser) Parse(filePath string, content []byte) (*domain.DeploymentArtifact, error) {
	env, err := gotenv.StrictParse(strings.NewReader(string(content)))
	if err != nil {
		// Tolerate partially-invalid files: keep the lines gotenv accepts.
		env = gotenv.Parse(strings.NewReader(string(content)))
		if len(env) == 0 {
			return nil, NewParseError(domain.FormatEnvFile, filePath, err.Error(), ErrNotAManifest)
		}
	}
	if len(env) == 0 {
		return nil, NewParseError(domain.FormatEnvFile, filePath, "no variables defined", ErrNoServices)
	}

	decl := domain.ServiceDeclaration{
		Name:        envServiceName(filePath),
		Environment: map[string]string(env),
	}

	artifact := &domain.DeploymentArtifact{
		Services: []domain.ServiceDeclaration{decl},
	}
	var warnings []string
	if err != nil {
		warnings = append(warnings, "malformed lines skipped: "+err.Error())
	}
	artifact.Warnings = warnings
	return artifact, nil
}

// envServiceName derives the declaration name from the artifact location:
// the containing directory, or the env-file suffix for root-level files
// like ".env.production".
func envServiceName(filePath string) string {
	dir := path.Dir(filePath)
	if dir != "." && dir != "/" {
		return path.Base(dir)
	}
	base := path.Base(filePath)
	if suffix, found := strings.CutPrefix(base, ".env."); found && suffix != "" {
		return suffix
	}
	if stem, found := strings.CutSuffix(base, ".env"); found && stem != "" {
		return stem
	}
	return "app"
}
