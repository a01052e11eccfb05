package parse

import (
	"bufio"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Shell Launcher Parser
// =============================================================================

// shellParser recovers service declarations from shell launch scripts:
// `docker run` invocations with their -p/--name/-e flags, and bare PORT=
// exports that describe a locally launched process.
type shellParser struct{}

var (
	dockerRunRegex  = regexp.MustCompile(`docker\s+run\s+(.*)$`)
	namedFlagRegex  = regexp.MustCompile(`--name[= ]([A-Za-z0-9_.-]+)`)
	publishRegex    = regexp.MustCompile(`(?:-p|--publish)[= ](?:(\d{1,5}):)?(\d{1,5})(?:/(tcp|udp))?`)
	envFlagRegex    = regexp.MustCompile(`(?:-e|--env)[= ]([A-Za-z_][A-Za-z0-9_]*)=([^\s"']+)`)
	networkRegex    = regexp.MustCompile(`--network[= ]([A-Za-z0-9_.-]+)`)
	portExportRegex = regexp.MustCompile(`^(?:export\s+)?PORT=(\d{2,5})\b`)

	// imageRefRegex matches the trailing image reference of a docker run
	// line, after all flags.
	imageRefRegex = regexp.MustCompile(`\s([a-z0-9][a-z0-9_.\-/]*(?::[A-Za-z0-9_.\-]+)?)\s*(?:$|\s)`)
)

func (shellParser) Format() domain.Format { return domain.FormatShellLauncher }

func (p shellParser) Parse(filePath string, content []byte) (*domain.DeploymentArtifact, error) {
	artifact := &domain.DeploymentArtifact{}

	sc := bufio.NewScanner(strings.NewReader(string(content)))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	var exportedPort int
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := portExportRegex.FindStringSubmatch(line); m != nil {
			if port, err := strconv.Atoi(m[1]); err == nil {
				exportedPort = port
			}
			continue
		}

		m := dockerRunRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		decl := parseDockerRun(m[1])
		if decl.Name == "" {
			decl.Name = scriptServiceName(filePath, len(artifact.Services))
		}
		artifact.Services = append(artifact.Services, decl)
	}

	// A script that only exports PORT= describes one locally run service.
	if len(artifact.Services) == 0 && exportedPort > 0 {
		artifact.Services = append(artifact.Services, domain.ServiceDeclaration{
			Name:        scriptServiceName(filePath, 0),
			Environment: map[string]string{"PORT": strconv.Itoa(exportedPort)},
			Ports: []domain.PortBinding{
				{HostPort: exportedPort, ContainerPort: exportedPort, Protocol: "tcp"},
			},
		})
	}

	if len(artifact.Services) == 0 {
		return nil, NewParseError(domain.FormatShellLauncher, filePath, "no launch commands found", ErrNoServices)
	}
	return artifact, nil
}

// parseDockerRun extracts a declaration from the arguments of a docker run
// invocation.
func parseDockerRun(args string) domain.ServiceDeclaration {
	decl := domain.ServiceDeclaration{
		Environment: make(map[string]string),
	}

	if m := namedFlagRegex.FindStringSubmatch(args); m != nil {
		decl.Name = m[1]
	}
	for _, m := range publishRegex.FindAllStringSubmatch(args, -1) {
		binding := domain.PortBinding{Protocol: "tcp"}
		if m[3] != "" {
			binding.Protocol = m[3]
		}
		if target, err := strconv.Atoi(m[2]); err == nil {
			binding.ContainerPort = target
		}
		if m[1] != "" {
			if host, err := strconv.Atoi(m[1]); err == nil {
				binding.HostPort = host
			}
		} else {
			binding.HostPort = binding.ContainerPort
		}
		decl.Ports = append(decl.Ports, binding)
	}
	sortPorts(decl.Ports)

	for _, m := range envFlagRegex.FindAllStringSubmatch(args, -1) {
		decl.Environment[m[1]] = m[2]
	}
	if m := networkRegex.FindStringSubmatch(args); m != nil {
		decl.Networks = append(decl.Networks, m[1])
	}

	decl.Image = trailingImageRef(args)
	if decl.Name == "" && decl.Image != "" {
		repo, _ := domain.SplitImageRef(decl.Image)
		decl.Name = path.Base(repo)
	}
	return decl
}

// trailingImageRef returns the first positional token of a docker run
// line, which by convention is the image reference. Flags and their value
// arguments are skipped; anything after the image is the container command.
func trailingImageRef(args string) string {
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		if strings.HasPrefix(tok, "-") {
			if !strings.Contains(tok, "=") && consumesValue(tok) {
				i++ // skip the flag value
			}
			continue
		}
		if imageRefRegex.MatchString(" " + tok + " ") {
			return tok
		}
		return ""
	}
	return ""
}

// scriptServiceName derives a service name from the script location when
// the launch command names no container: the script stem, suffixed with an
// ordinal for second and later anonymous services in the same script.
func scriptServiceName(filePath string, ordinal int) string {
	base := path.Base(filePath)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "app"
	}
	if ordinal > 0 {
		base += "-" + strconv.Itoa(ordinal+1)
	}
	return base
}

// consumesValue reports whether a docker run flag takes a separate value
// argument.
func consumesValue(flag string) bool {
	switch flag {
	case "-p", "--publish", "-e", "--env", "--name", "--network", "-v", "--volume",
		"--restart", "--label", "-l", "--memory", "-m", "--cpus", "--entrypoint",
		"--hostname", "-h", "--user", "-u", "--workdir", "-w", "--add-host",
		"--env-file", "--health-cmd":
		return true
	}
	return false
}
