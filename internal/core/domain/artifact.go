// Package domain contains the core types of the deployment analysis engine.
// All types here are plain values - no I/O, no external dependencies beyond IDs.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// =============================================================================
// Artifact Format
// =============================================================================

// Format identifies the deployment-definition format of an artifact.
type Format string

const (
	FormatCompose       Format = "compose"
	FormatManifest      Format = "orchestrator-manifest"
	FormatProcfile      Format = "process-file"
	FormatEnvFile       Format = "env-file"
	FormatShellLauncher Format = "shell-launcher"
)

// Category returns the deployment-map category an artifact of this format
// belongs to. Categories are non-overlapping partitions of the artifact set.
func (f Format) Category() string {
	switch f {
	case FormatCompose:
		return "docker-compose"
	case FormatManifest:
		return "kubernetes"
	case FormatProcfile:
		return "procfile"
	case FormatEnvFile:
		return "env"
	case FormatShellLauncher:
		return "scripts"
	default:
		return "unknown"
	}
}

// =============================================================================
// Service Declaration
// =============================================================================

// PortBinding represents a declared port mapping.
type PortBinding struct {
	HostPort      int    `json:"host_port,omitempty"` // 0 = not published on the host
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol,omitempty"` // tcp, udp
}

// VolumeMount represents a volume mount in a service declaration.
type VolumeMount struct {
	Source   string `json:"source"` // path or named-volume reference
	Target   string `json:"target"`
	Named    bool   `json:"named"` // true when Source references a named volume
	ReadOnly bool   `json:"readonly,omitempty"`
}

// ServiceDeclaration is one service as declared by a single artifact.
type ServiceDeclaration struct {
	Name        string            `json:"name"`
	Image       string            `json:"image,omitempty"`
	Build       string            `json:"build,omitempty"` // build context reference
	Command     string            `json:"command,omitempty"`
	Ports       []PortBinding     `json:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty"`
	Networks    []string          `json:"networks,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
}

// ImageRepo returns the image reference without its tag.
func (s ServiceDeclaration) ImageRepo() string {
	repo, _ := SplitImageRef(s.Image)
	return repo
}

// ImageTag returns the tag portion of the image reference, empty if untagged.
func (s ServiceDeclaration) ImageTag() string {
	_, tag := SplitImageRef(s.Image)
	return tag
}

// SplitImageRef splits an image reference into repository and tag.
// A digest reference (repo@sha256:...) is treated as a pinned tag.
func SplitImageRef(ref string) (repo, tag string) {
	if ref == "" {
		return "", ""
	}
	if i := lastIndexByte(ref, '@'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	// The colon must come after the last slash, otherwise it is a registry port.
	slash := lastIndexByte(ref, '/')
	colon := lastIndexByte(ref, ':')
	if colon > slash {
		return ref[:colon], ref[colon+1:]
	}
	return ref, ""
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// HostPorts returns the declared host ports of the service, sorted.
func (s ServiceDeclaration) HostPorts() []int {
	var ports []int
	for _, p := range s.Ports {
		if p.HostPort > 0 {
			ports = append(ports, p.HostPort)
		}
	}
	sort.Ints(ports)
	return ports
}

// Clone returns a deep copy. Recommendation proposals mutate the copy, so
// the originating artifact must never share backing storage with it.
func (s ServiceDeclaration) Clone() ServiceDeclaration {
	out := s
	if s.Ports != nil {
		out.Ports = append([]PortBinding(nil), s.Ports...)
	}
	if s.Environment != nil {
		out.Environment = make(map[string]string, len(s.Environment))
		for k, v := range s.Environment {
			out.Environment[k] = v
		}
	}
	if s.Volumes != nil {
		out.Volumes = append([]VolumeMount(nil), s.Volumes...)
	}
	if s.Networks != nil {
		out.Networks = append([]string(nil), s.Networks...)
	}
	if s.DependsOn != nil {
		out.DependsOn = append([]string(nil), s.DependsOn...)
	}
	return out
}

// Equal reports whether two declarations are identical in every field the
// conflict detector considers material: image, ports, environment, volumes,
// networks and dependencies.
func (s ServiceDeclaration) Equal(other ServiceDeclaration) bool {
	if s.Name != other.Name || s.Image != other.Image || s.Build != other.Build || s.Command != other.Command {
		return false
	}
	if len(s.Ports) != len(other.Ports) || len(s.Environment) != len(other.Environment) ||
		len(s.Volumes) != len(other.Volumes) || len(s.Networks) != len(other.Networks) ||
		len(s.DependsOn) != len(other.DependsOn) {
		return false
	}
	for i := range s.Ports {
		if s.Ports[i] != other.Ports[i] {
			return false
		}
	}
	for k, v := range s.Environment {
		if ov, ok := other.Environment[k]; !ok || ov != v {
			return false
		}
	}
	for i := range s.Volumes {
		if s.Volumes[i] != other.Volumes[i] {
			return false
		}
	}
	for i := range s.Networks {
		if s.Networks[i] != other.Networks[i] {
			return false
		}
	}
	for i := range s.DependsOn {
		if s.DependsOn[i] != other.DependsOn[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Network / Volume Declarations
// =============================================================================

// NetworkDeclaration is a top-level network declared by an artifact.
type NetworkDeclaration struct {
	Name     string `json:"name"`
	External bool   `json:"external"`
}

// =============================================================================
// Deployment Artifact
// =============================================================================

// DeploymentArtifact is one parsed deployment-definition file. It is created
// once per scan pass by a parser and immutable thereafter.
type DeploymentArtifact struct {
	// Path is the repository-relative location of the file (identity).
	Path string `json:"path"`

	// Format is the declared deployment format.
	Format Format `json:"format"`

	// Services are the declarations extracted from the file, in declaration
	// order (sorted by name for formats without a stable document order).
	Services []ServiceDeclaration `json:"services"`

	// Networks and Volumes are the top-level declarations of the artifact.
	Networks []NetworkDeclaration `json:"networks,omitempty"`
	Volumes  []string             `json:"volumes,omitempty"`

	// RawChecksum is the SHA-256 of the file content, used for the
	// unchanged-tree idempotence check across re-runs.
	RawChecksum string `json:"raw_checksum"`

	// ModTime is the file modification time, used by the "promote most
	// recently modified" recommendation heuristic.
	ModTime time.Time `json:"mod_time"`

	// Warnings records service blocks that could not be parsed while the
	// rest of the document was salvaged.
	Warnings []string `json:"warnings,omitempty"`
}

// Dir returns the directory portion of the artifact path ("." for root files).
func (a DeploymentArtifact) Dir() string {
	for i := len(a.Path) - 1; i >= 0; i-- {
		if a.Path[i] == '/' {
			return a.Path[:i]
		}
	}
	return "."
}

// DeclaresNetwork reports whether the artifact declares the named network.
func (a DeploymentArtifact) DeclaresNetwork(name string) bool {
	for _, n := range a.Networks {
		if n.Name == name {
			return true
		}
	}
	return false
}

// DeclaresVolume reports whether the artifact declares the named volume.
func (a DeploymentArtifact) DeclaresVolume(name string) bool {
	for _, v := range a.Volumes {
		if v == name {
			return true
		}
	}
	return false
}

// Checksum computes the SHA-256 checksum of raw artifact content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
