package scanner

import (
	"path"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Format Signatures
// =============================================================================

// signature declares the file-name, extension and content patterns one
// format claims. Candidates are dispatched to the first matching signature
// in priority order, most specific first.
type signature struct {
	format domain.Format

	// names are exact base-name matches (case-insensitive).
	names []string

	// prefixes are base-name prefix matches, e.g. "docker-compose".
	prefixes []string

	// extensions the signature claims ("" matches extensionless files).
	extensions []string

	// contentAny requires at least one of these substrings in the head of
	// the file when non-empty.
	contentAny []string

	// contentAll requires all of these substrings when non-empty.
	contentAll []string
}

// signatures is the dispatch table, in priority order. Compose claims its
// well-known file names before the generic manifest signature can see the
// .yml extension; env files and Procfiles are matched by name; shell
// launchers require a deployment-relevant content signature so ordinary
// scripts are not swallowed.
var signatures = []signature{
	{
		format:     domain.FormatCompose,
		prefixes:   []string{"docker-compose", "compose"},
		extensions: []string{".yml", ".yaml"},
		contentAny: []string{"services:"},
	},
	{
		format:     domain.FormatManifest,
		extensions: []string{".yml", ".yaml"},
		contentAll: []string{"apiVersion:", "kind:"},
	},
	{
		format:   domain.FormatProcfile,
		names:    []string{"Procfile"},
		prefixes: []string{"Procfile."},
	},
	{
		format:     domain.FormatEnvFile,
		names:      []string{".env"},
		prefixes:   []string{".env."},
		extensions: []string{".env"},
	},
	{
		format:     domain.FormatShellLauncher,
		extensions: []string{".sh"},
		contentAny: []string{"docker run", "docker compose", "docker-compose", "PORT="},
	},
}

// sniffLen is how much of a file the classifier reads for content signatures.
const sniffLen = 8192

// Classify determines the deployment format of a candidate file from its
// base name and the head of its content. The second return value is false
// when no signature claims the file.
func Classify(filePath string, head []byte) (domain.Format, bool) {
	base := path.Base(filePath)
	lowerBase := strings.ToLower(base)
	ext := strings.ToLower(path.Ext(base))
	content := string(head)

	for _, sig := range signatures {
		if !sig.matchesName(base, lowerBase, ext) {
			continue
		}
		if !sig.matchesContent(content) {
			continue
		}
		return sig.format, true
	}
	return "", false
}

// NeedsContent reports whether classification of this file name requires a
// content peek. Name-only signatures (Procfile, .env) never need one.
func NeedsContent(filePath string) bool {
	base := path.Base(filePath)
	lowerBase := strings.ToLower(base)
	ext := strings.ToLower(path.Ext(base))

	for _, sig := range signatures {
		if !sig.matchesName(base, lowerBase, ext) {
			continue
		}
		if len(sig.contentAny) > 0 || len(sig.contentAll) > 0 {
			return true
		}
		return false
	}
	return false
}

func (s signature) matchesName(base, lowerBase, ext string) bool {
	for _, n := range s.names {
		if strings.EqualFold(base, n) {
			return true
		}
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(base, p) || strings.HasPrefix(lowerBase, strings.ToLower(p)) {
			return true
		}
	}
	if len(s.names) > 0 || len(s.prefixes) > 0 {
		// Named signatures fall through to extensions only when declared.
		if len(s.extensions) == 0 {
			return false
		}
	}
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s signature) matchesContent(content string) bool {
	if len(s.contentAll) > 0 {
		for _, want := range s.contentAll {
			if !strings.Contains(content, want) {
				return false
			}
		}
	}
	if len(s.contentAny) > 0 {
		for _, want := range s.contentAny {
			if strings.Contains(content, want) {
				return true
			}
		}
		return false
	}
	return true
}
