package parse

import (
	"strings"
	"time"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Parser Registry
// =============================================================================

// Parser turns raw file content into a normalized DeploymentArtifact.
// Implementations are pure functions over their input. A parser either
// returns an artifact (possibly with salvage warnings) or fails with a
// *ParseError.
type Parser interface {
	Format() domain.Format
	Parse(path string, content []byte) (*domain.DeploymentArtifact, error)
}

// parsers is the format dispatch table. New formats register a new entry;
// there is no subclassing involved.
var parsers = map[domain.Format]Parser{
	domain.FormatCompose:       composeParser{},
	domain.FormatManifest:      manifestParser{},
	domain.FormatProcfile:      procfileParser{},
	domain.FormatEnvFile:       envFileParser{},
	domain.FormatShellLauncher: shellParser{},
}

// Parse dispatches content to the parser registered for the format and
// stamps the resulting artifact with its checksum and modification time.
func Parse(format domain.Format, path string, content []byte, modTime time.Time) (*domain.DeploymentArtifact, error) {
	p, ok := parsers[format]
	if !ok {
		return nil, NewParseError(format, path, "unknown format", ErrUnknownFormat)
	}

	if strings.TrimSpace(string(content)) == "" {
		return nil, NewParseError(format, path, "empty file", ErrEmptyInput)
	}

	artifact, err := p.Parse(path, content)
	if err != nil {
		return nil, err
	}

	artifact.Path = path
	artifact.Format = format
	artifact.RawChecksum = domain.Checksum(content)
	artifact.ModTime = modTime
	return artifact, nil
}

// SupportedFormats returns the formats with a registered parser.
func SupportedFormats() []domain.Format {
	formats := make([]domain.Format, 0, len(parsers))
	for f := range parsers {
		formats = append(formats, f)
	}
	return formats
}
