package report

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Compose Plan Rendering
// =============================================================================

// composeDoc is the compose-file shape a deployment plan renders to. Maps
// marshal with sorted keys, so plan files are deterministic.
type composeDoc struct {
	Services map[string]composeService `yaml:"services"`
	Networks map[string]composeNetwork `yaml:"networks,omitempty"`
	Volumes  map[string]struct{}       `yaml:"volumes,omitempty"`
}

type composeService struct {
	Image       string            `yaml:"image,omitempty"`
	Build       string            `yaml:"build,omitempty"`
	Command     string            `yaml:"command,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	Networks    []string          `yaml:"networks,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

type composeNetwork struct {
	External bool `yaml:"external,omitempty"`
}

// renderPlanYAML renders an environment plan as a compose file.
func renderPlanYAML(plan domain.DeploymentPlan) ([]byte, error) {
	doc := composeDoc{Services: make(map[string]composeService, len(plan.Services))}

	for name, svc := range plan.Services {
		doc.Services[name] = composeService{
			Image:       svc.Image,
			Build:       svc.Build,
			Command:     svc.Command,
			Ports:       renderPorts(svc.Ports),
			Environment: svc.Environment,
			Volumes:     renderVolumes(svc.Volumes),
			Networks:    sortedCopy(svc.Networks),
			DependsOn:   sortedCopy(svc.DependsOn),
		}
	}

	if len(plan.Networks) > 0 {
		doc.Networks = make(map[string]composeNetwork, len(plan.Networks))
		for _, n := range plan.Networks {
			doc.Networks[n.Name] = composeNetwork{External: n.External}
		}
	}
	if len(plan.Volumes) > 0 {
		doc.Volumes = make(map[string]struct{}, len(plan.Volumes))
		for _, v := range plan.Volumes {
			doc.Volumes[v] = struct{}{}
		}
	}

	return yaml.Marshal(doc)
}

func renderPorts(ports []domain.PortBinding) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		var spec string
		switch {
		case p.HostPort > 0:
			spec = fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
		default:
			spec = fmt.Sprintf("%d", p.ContainerPort)
		}
		if p.Protocol != "" && p.Protocol != "tcp" {
			spec += "/" + p.Protocol
		}
		out = append(out, spec)
	}
	sort.Strings(out)
	return out
}

func renderVolumes(mounts []domain.VolumeMount) []string {
	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		spec := m.Source + ":" + m.Target
		if m.ReadOnly {
			spec += ":ro"
		}
		out = append(out, spec)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
