package parse

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/artpar/shipmap/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Orchestrator Manifest Parser
// =============================================================================

// manifestParser extracts service declarations from Kubernetes-style
// manifests. Workload kinds yield one declaration per container; Service
// kinds contribute nodePort/port exposure. Documents of other kinds are
// ignored, malformed documents become salvage warnings.
type manifestParser struct{}

// workloadKinds are the manifest kinds that carry a pod template.
var workloadKinds = map[string]bool{
	"Deployment":  true,
	"StatefulSet": true,
	"DaemonSet":   true,
	"ReplicaSet":  true,
	"Job":         true,
	"Pod":         true,
}

func (manifestParser) Format() domain.Format { return domain.FormatManifest }

func (p manifestParser) Parse(path string, content []byte) (*domain.DeploymentArtifact, error) {
	artifact := &domain.DeploymentArtifact{}
	var warnings []string

	dec := yaml.NewDecoder(bytes.NewReader(content))
	docIndex := 0
	sawDocument := false

	for {
		var doc map[string]interface{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		docIndex++
		if err != nil {
			if !sawDocument && docIndex == 1 {
				return nil, NewParseError(domain.FormatManifest, path, "invalid YAML syntax", ErrInvalidYAML)
			}
			warnings = append(warnings, fmt.Sprintf("document %d: invalid YAML, skipped", docIndex))
			// The decoder cannot recover mid-stream; stop here.
			break
		}
		if doc == nil {
			continue
		}
		sawDocument = true

		kind, _ := doc["kind"].(string)
		if kind == "" {
			warnings = append(warnings, fmt.Sprintf("document %d: missing kind, skipped", docIndex))
			continue
		}

		switch {
		case workloadKinds[kind]:
			decls, warn := parseWorkload(kind, doc, docIndex)
			artifact.Services = append(artifact.Services, decls...)
			warnings = append(warnings, warn...)
		case kind == "Service":
			decl, warn := parseKubeService(doc, docIndex)
			if decl != nil {
				artifact.Services = append(artifact.Services, *decl)
			}
			warnings = append(warnings, warn...)
		default:
			// ConfigMaps, CRDs and the rest carry no service declaration.
		}
	}

	if len(artifact.Services) == 0 {
		return nil, NewParseError(domain.FormatManifest, path, "no workload or service documents", ErrNoServices)
	}

	sort.Slice(artifact.Services, func(i, j int) bool {
		return artifact.Services[i].Name < artifact.Services[j].Name
	})
	artifact.Warnings = warnings
	return artifact, nil
}

// parseWorkload extracts container declarations from a workload document.
func parseWorkload(kind string, doc map[string]interface{}, docIndex int) ([]domain.ServiceDeclaration, []string) {
	name := metadataName(doc)
	if name == "" {
		return nil, []string{fmt.Sprintf("document %d: %s without metadata.name, skipped", docIndex, kind)}
	}

	podSpec := nestedMap(doc, "spec")
	if kind != "Pod" {
		podSpec = nestedMap(nestedMap(podSpec, "template"), "spec")
	}
	containers, _ := podSpec["containers"].([]interface{})
	if len(containers) == 0 {
		return nil, []string{fmt.Sprintf("document %d: %s %q has no containers, skipped", docIndex, kind, name)}
	}

	var decls []domain.ServiceDeclaration
	var warnings []string
	for i, raw := range containers {
		c, ok := raw.(map[string]interface{})
		if !ok {
			warnings = append(warnings, fmt.Sprintf("document %d: %s %q container %d malformed, skipped", docIndex, kind, name, i))
			continue
		}
		decl := domain.ServiceDeclaration{
			Name:        name,
			Environment: make(map[string]string),
		}
		if cname, ok := c["name"].(string); ok && len(containers) > 1 {
			decl.Name = name + "-" + cname
		}
		decl.Image, _ = c["image"].(string)
		if decl.Image == "" {
			warnings = append(warnings, fmt.Sprintf("document %d: %s %q container %d has no image, skipped", docIndex, kind, name, i))
			continue
		}

		if ports, ok := c["ports"].([]interface{}); ok {
			for _, rp := range ports {
				pm, ok := rp.(map[string]interface{})
				if !ok {
					continue
				}
				binding := domain.PortBinding{Protocol: "tcp"}
				binding.ContainerPort = intValue(pm["containerPort"])
				binding.HostPort = intValue(pm["hostPort"])
				if proto, ok := pm["protocol"].(string); ok && proto != "" {
					binding.Protocol = lowerProto(proto)
				}
				if binding.ContainerPort > 0 {
					decl.Ports = append(decl.Ports, binding)
				}
			}
			sortPorts(decl.Ports)
		}

		if env, ok := c["env"].([]interface{}); ok {
			for _, re := range env {
				em, ok := re.(map[string]interface{})
				if !ok {
					continue
				}
				key, _ := em["name"].(string)
				if key == "" {
					continue
				}
				decl.Environment[key] = scalarString(em["value"])
			}
		}

		decls = append(decls, decl)
	}
	return decls, warnings
}

// parseKubeService extracts host-port exposure from a Service document.
// Only nodePort declarations claim a host port; plain cluster ports are
// recorded as container ports with no host binding.
func parseKubeService(doc map[string]interface{}, docIndex int) (*domain.ServiceDeclaration, []string) {
	name := metadataName(doc)
	if name == "" {
		return nil, []string{fmt.Sprintf("document %d: Service without metadata.name, skipped", docIndex)}
	}

	decl := &domain.ServiceDeclaration{
		Name:        name,
		Environment: make(map[string]string),
	}

	spec := nestedMap(doc, "spec")
	if ports, ok := spec["ports"].([]interface{}); ok {
		for _, rp := range ports {
			pm, ok := rp.(map[string]interface{})
			if !ok {
				continue
			}
			binding := domain.PortBinding{Protocol: "tcp"}
			binding.ContainerPort = intValue(pm["port"])
			binding.HostPort = intValue(pm["nodePort"])
			if proto, ok := pm["protocol"].(string); ok && proto != "" {
				binding.Protocol = lowerProto(proto)
			}
			if binding.ContainerPort > 0 || binding.HostPort > 0 {
				decl.Ports = append(decl.Ports, binding)
			}
		}
		sortPorts(decl.Ports)
	}

	if len(decl.Ports) == 0 {
		return nil, nil
	}
	return decl, nil
}

// =============================================================================
// Helpers
// =============================================================================

func metadataName(doc map[string]interface{}) string {
	name, _ := nestedMap(doc, "metadata")["name"].(string)
	return name
}

func nestedMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]interface{})
	return sub
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}

func lowerProto(p string) string {
	switch p {
	case "TCP", "tcp":
		return "tcp"
	case "UDP", "udp":
		return "udp"
	case "SCTP", "sctp":
		return "sctp"
	}
	return p
}
