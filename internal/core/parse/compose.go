package parse

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Compose Parser
// =============================================================================

// composeParser parses Docker Compose documents via compose-go. When the
// whole-document load fails but the YAML itself is structurally valid, it
// falls back to salvaging well-formed service blocks one by one so a single
// malformed service does not reject the artifact.
type composeParser struct{}

func (composeParser) Format() domain.Format { return domain.FormatCompose }

func (p composeParser) Parse(path string, content []byte) (*domain.DeploymentArtifact, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, NewParseError(domain.FormatCompose, path, "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError(domain.FormatCompose, path, "empty document", ErrInvalidYAML)
	}
	if _, ok := dict["services"]; !ok {
		return nil, NewParseError(domain.FormatCompose, path, "no services section", ErrNotAManifest)
	}

	project, err := loadComposeProject(content, dict)
	if err == nil {
		return convertComposeProject(project), nil
	}

	// Whole-document load failed; salvage service blocks individually.
	artifact, warnings := salvageComposeServices(dict)
	if len(artifact.Services) == 0 {
		return nil, NewParseError(domain.FormatCompose, path, err.Error(), ErrNoServices)
	}
	artifact.Warnings = warnings
	return artifact, nil
}

// loadComposeProject loads a compose document using compose-go.
func loadComposeProject(content []byte, dict map[string]interface{}) (*types.Project, error) {
	return loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: content,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("shipmap-analysis", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true // Keep ${VAR} placeholders as declared
		opts.SkipNormalization = true
		opts.SkipExtends = true // Never read files outside the artifact
	})
}

// convertComposeProject converts a loaded project into a normalized
// artifact. Services are sorted by name: compose-go hands them back in map
// order.
func convertComposeProject(project *types.Project) *domain.DeploymentArtifact {
	artifact := &domain.DeploymentArtifact{
		Services: make([]domain.ServiceDeclaration, 0, len(project.Services)),
	}

	for _, svc := range project.Services {
		artifact.Services = append(artifact.Services, convertComposeService(svc))
	}
	sort.Slice(artifact.Services, func(i, j int) bool {
		return artifact.Services[i].Name < artifact.Services[j].Name
	})

	for name, net := range project.Networks {
		artifact.Networks = append(artifact.Networks, domain.NetworkDeclaration{
			Name:     name,
			External: bool(net.External),
		})
	}
	sort.Slice(artifact.Networks, func(i, j int) bool {
		return artifact.Networks[i].Name < artifact.Networks[j].Name
	})

	for name := range project.Volumes {
		artifact.Volumes = append(artifact.Volumes, name)
	}
	sort.Strings(artifact.Volumes)

	return artifact
}

func convertComposeService(svc types.ServiceConfig) domain.ServiceDeclaration {
	decl := domain.ServiceDeclaration{
		Name:        svc.Name,
		Image:       svc.Image,
		Environment: make(map[string]string),
	}

	if svc.Build != nil {
		decl.Build = svc.Build.Context
	}
	if len(svc.Command) > 0 {
		decl.Command = strings.Join(svc.Command, " ")
	}

	for _, p := range svc.Ports {
		published := 0
		if p.Published != "" {
			if pub, err := strconv.Atoi(p.Published); err == nil {
				published = pub
			}
		}
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		decl.Ports = append(decl.Ports, domain.PortBinding{
			HostPort:      published,
			ContainerPort: int(p.Target),
			Protocol:      proto,
		})
	}
	sortPorts(decl.Ports)

	for k, v := range svc.Environment {
		if v != nil {
			decl.Environment[k] = *v
		} else {
			decl.Environment[k] = ""
		}
	}

	for _, v := range svc.Volumes {
		named := v.Type == "volume"
		if v.Type == "" {
			named = !strings.HasPrefix(v.Source, "./") && !strings.HasPrefix(v.Source, "/") && !strings.HasPrefix(v.Source, "~")
		}
		decl.Volumes = append(decl.Volumes, domain.VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			Named:    named,
			ReadOnly: v.ReadOnly,
		})
	}

	for net := range svc.Networks {
		decl.Networks = append(decl.Networks, net)
	}
	sort.Strings(decl.Networks)

	for dep := range svc.DependsOn {
		decl.DependsOn = append(decl.DependsOn, dep)
	}
	sort.Strings(decl.DependsOn)

	return decl
}

// =============================================================================
// Salvage Path
// =============================================================================

// salvageComposeServices extracts whatever service blocks are well-formed
// from a generically decoded compose document, recording the rest as
// warnings. Top-level networks and volumes are carried over when present.
func salvageComposeServices(dict map[string]interface{}) (*domain.DeploymentArtifact, []string) {
	artifact := &domain.DeploymentArtifact{}
	var warnings []string

	services, ok := dict["services"].(map[string]interface{})
	if !ok {
		return artifact, []string{"services section is not a mapping"}
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		block, ok := services[name].(map[string]interface{})
		if !ok {
			warnings = append(warnings, fmt.Sprintf("service %q: not a mapping, skipped", name))
			continue
		}
		decl, err := salvageService(name, block)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("service %q: %v, skipped", name, err))
			continue
		}
		artifact.Services = append(artifact.Services, decl)
	}

	if networks, ok := dict["networks"].(map[string]interface{}); ok {
		names := make([]string, 0, len(networks))
		for name := range networks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			external := false
			if body, ok := networks[name].(map[string]interface{}); ok {
				switch e := body["external"].(type) {
				case bool:
					external = e
				case map[string]interface{}:
					external = true
				}
			}
			artifact.Networks = append(artifact.Networks, domain.NetworkDeclaration{Name: name, External: external})
		}
	}

	if volumes, ok := dict["volumes"].(map[string]interface{}); ok {
		for name := range volumes {
			artifact.Volumes = append(artifact.Volumes, name)
		}
		sort.Strings(artifact.Volumes)
	}

	return artifact, warnings
}

// salvageService extracts one service declaration from a generic map.
func salvageService(name string, block map[string]interface{}) (domain.ServiceDeclaration, error) {
	decl := domain.ServiceDeclaration{
		Name:        name,
		Environment: make(map[string]string),
	}

	if img, ok := block["image"]; ok {
		s, ok := img.(string)
		if !ok {
			return decl, fmt.Errorf("image is not a string")
		}
		decl.Image = s
	}
	if build, ok := block["build"]; ok {
		switch b := build.(type) {
		case string:
			decl.Build = b
		case map[string]interface{}:
			if ctx, ok := b["context"].(string); ok {
				decl.Build = ctx
			}
		default:
			return decl, fmt.Errorf("build is neither string nor mapping")
		}
	}
	if decl.Image == "" && decl.Build == "" {
		return decl, fmt.Errorf("service has neither image nor build")
	}

	if cmd, ok := block["command"]; ok {
		switch c := cmd.(type) {
		case string:
			decl.Command = c
		case []interface{}:
			parts := make([]string, 0, len(c))
			for _, p := range c {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			decl.Command = strings.Join(parts, " ")
		}
	}

	if ports, ok := block["ports"].([]interface{}); ok {
		for _, raw := range ports {
			binding, err := salvagePort(raw)
			if err != nil {
				return decl, err
			}
			decl.Ports = append(decl.Ports, binding)
		}
		sortPorts(decl.Ports)
	}

	switch env := block["environment"].(type) {
	case map[string]interface{}:
		for k, v := range env {
			decl.Environment[k] = scalarString(v)
		}
	case []interface{}:
		for _, raw := range env {
			if s, ok := raw.(string); ok {
				if k, v, found := strings.Cut(s, "="); found {
					decl.Environment[k] = v
				} else {
					decl.Environment[s] = ""
				}
			}
		}
	}

	if vols, ok := block["volumes"].([]interface{}); ok {
		for _, raw := range vols {
			s, ok := raw.(string)
			if !ok {
				continue
			}
			parts := strings.SplitN(s, ":", 3)
			mount := domain.VolumeMount{Source: parts[0]}
			if len(parts) > 1 {
				mount.Target = parts[1]
			}
			if len(parts) > 2 && parts[2] == "ro" {
				mount.ReadOnly = true
			}
			mount.Named = !strings.HasPrefix(mount.Source, "./") && !strings.HasPrefix(mount.Source, "/") && !strings.HasPrefix(mount.Source, "~")
			decl.Volumes = append(decl.Volumes, mount)
		}
	}

	if nets, ok := block["networks"].([]interface{}); ok {
		for _, raw := range nets {
			if s, ok := raw.(string); ok {
				decl.Networks = append(decl.Networks, s)
			}
		}
		sort.Strings(decl.Networks)
	} else if nets, ok := block["networks"].(map[string]interface{}); ok {
		for n := range nets {
			decl.Networks = append(decl.Networks, n)
		}
		sort.Strings(decl.Networks)
	}

	if deps, ok := block["depends_on"].([]interface{}); ok {
		for _, raw := range deps {
			if s, ok := raw.(string); ok {
				decl.DependsOn = append(decl.DependsOn, s)
			}
		}
		sort.Strings(decl.DependsOn)
	} else if deps, ok := block["depends_on"].(map[string]interface{}); ok {
		for d := range deps {
			decl.DependsOn = append(decl.DependsOn, d)
		}
		sort.Strings(decl.DependsOn)
	}

	return decl, nil
}

// salvagePort parses a short-form ("8080:80/tcp") or long-form port entry.
func salvagePort(raw interface{}) (domain.PortBinding, error) {
	binding := domain.PortBinding{Protocol: "tcp"}

	switch p := raw.(type) {
	case string:
		spec := p
		if i := strings.IndexByte(spec, '/'); i >= 0 {
			binding.Protocol = spec[i+1:]
			spec = spec[:i]
		}
		parts := strings.Split(spec, ":")
		switch len(parts) {
		case 1:
			target, err := strconv.Atoi(parts[0])
			if err != nil {
				return binding, fmt.Errorf("invalid port %q", p)
			}
			binding.ContainerPort = target
		case 2, 3:
			// host:container or ip:host:container
			hostIdx, targetIdx := 0, 1
			if len(parts) == 3 {
				hostIdx, targetIdx = 1, 2
			}
			host, err := strconv.Atoi(parts[hostIdx])
			if err != nil {
				return binding, fmt.Errorf("invalid host port %q", p)
			}
			target, err := strconv.Atoi(parts[targetIdx])
			if err != nil {
				return binding, fmt.Errorf("invalid container port %q", p)
			}
			binding.HostPort = host
			binding.ContainerPort = target
		default:
			return binding, fmt.Errorf("invalid port %q", p)
		}
	case int:
		binding.ContainerPort = p
	case map[string]interface{}:
		if published, ok := p["published"]; ok {
			if n, err := strconv.Atoi(scalarString(published)); err == nil {
				binding.HostPort = n
			}
		}
		if target, ok := p["target"]; ok {
			if n, err := strconv.Atoi(scalarString(target)); err == nil {
				binding.ContainerPort = n
			}
		}
		if proto, ok := p["protocol"].(string); ok && proto != "" {
			binding.Protocol = proto
		}
	default:
		return binding, fmt.Errorf("unrecognized port entry")
	}

	if binding.ContainerPort <= 0 || binding.ContainerPort > 65535 {
		return binding, fmt.Errorf("container port out of range")
	}
	if binding.HostPort < 0 || binding.HostPort > 65535 {
		return binding, fmt.Errorf("host port out of range")
	}
	return binding, nil
}

// =============================================================================
// Helpers
// =============================================================================

func sortPorts(ports []domain.PortBinding) {
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].HostPort != ports[j].HostPort {
			return ports[i].HostPort < ports[j].HostPort
		}
		return ports[i].ContainerPort < ports[j].ContainerPort
	})
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
