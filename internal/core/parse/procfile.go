package parse

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Procfile Parser
// =============================================================================

// procfileParser parses Heroku-style process files: one "name: command"
// entry per line. Port declarations are recovered from --port/-p flags and
// PORT= assignments in the command.
type procfileParser struct{}

// procEntryRegex matches a process entry line.
var procEntryRegex = regexp.MustCompile(`^([A-Za-z0-9_-]+):\s*(.+)$`)

// procPortRegexes recover a listen port from a process command.
var procPortRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?:--port|-p|--listen)[=\s](\d{2,5})`),
	regexp.MustCompile(`\bPORT=(\d{2,5})`),
	regexp.MustCompile(`:(\d{4,5})\b`),
}

func (procfileParser) Format() domain.Format { return domain.FormatProcfile }

func (p procfileParser) Parse(path string, content []byte) (*domain.DeploymentArtifact, error) {
	artifact := &domain.DeploymentArtifact{}
	var warnings []string

	sc := bufio.NewScanner(strings.NewReader(string(content)))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := procEntryRegex.FindStringSubmatch(line)
		if m == nil {
			warnings = append(warnings, fmt.Sprintf("line %d: not a process entry, skipped", lineNo))
			continue
		}
		decl := domain.ServiceDeclaration{
			Name:        m[1],
			Command:     strings.TrimSpace(m[2]),
			Environment: make(map[string]string),
		}
		if port := commandPort(decl.Command); port > 0 {
			decl.Ports = append(decl.Ports, domain.PortBinding{
				HostPort:      port,
				ContainerPort: port,
				Protocol:      "tcp",
			})
		}
		artifact.Services = append(artifact.Services, decl)
	}

	if len(artifact.Services) == 0 {
		return nil, NewParseError(domain.FormatProcfile, path, "no process entries", ErrNoServices)
	}
	artifact.Warnings = warnings
	return artifact, nil
}

// commandPort extracts the first recognizable listen port from a command.
func commandPort(command string) int {
	for _, re := range procPortRegexes {
		if m := re.FindStringSubmatch(command); m != nil {
			if port, err := strconv.Atoi(m[1]); err == nil && port > 0 && port <= 65535 {
				return port
			}
		}
	}
	return 0
}
