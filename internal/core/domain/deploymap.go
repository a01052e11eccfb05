package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// =============================================================================
// Deployment Map
// =============================================================================

// Target is the logical unit of deployable services a group of artifacts
// collectively describes, identified by the longest common directory prefix
// of its members.
type Target struct {
	// Dir is the common directory prefix of the member artifacts.
	Dir string `json:"dir"`

	// Environment is the deployment environment the target appears to
	// describe (local, staging, production), derived from path segments.
	Environment string `json:"environment"`

	// Artifacts are the member artifacts, sorted by path.
	Artifacts []DeploymentArtifact `json:"artifacts"`
}

// Services returns all service declarations of the target paired with the
// path of the artifact that declared them.
func (t Target) Services() []ServiceRef {
	var refs []ServiceRef
	for _, a := range t.Artifacts {
		for _, s := range a.Services {
			refs = append(refs, ServiceRef{ArtifactPath: a.Path, Service: s})
		}
	}
	return refs
}

// ServiceRef pairs a service declaration with its declaring artifact.
type ServiceRef struct {
	ArtifactPath string
	Service      ServiceDeclaration
}

// CategoryGroup holds all targets of one category.
type CategoryGroup struct {
	// Name is the category name, e.g. "docker-compose" or "kubernetes".
	Name string `json:"name"`

	// Targets are the deployment targets of the category, sorted by dir.
	Targets []Target `json:"targets"`
}

// DeploymentMap is the aggregate of all artifacts for one analysis run.
// Every artifact appears in exactly one category.
type DeploymentMap struct {
	Categories []CategoryGroup `json:"categories"`
}

// Artifacts returns every artifact in the map in deterministic order
// (category name, then artifact path).
func (m DeploymentMap) Artifacts() []DeploymentArtifact {
	var all []DeploymentArtifact
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			all = append(all, t.Artifacts...)
		}
	}
	return all
}

// ArtifactCount returns the number of artifacts in the map.
func (m DeploymentMap) ArtifactCount() int {
	n := 0
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			n += len(t.Artifacts)
		}
	}
	return n
}

// CategoryCounts returns the number of artifacts per category.
func (m DeploymentMap) CategoryCounts() map[string]int {
	counts := make(map[string]int, len(m.Categories))
	for _, c := range m.Categories {
		n := 0
		for _, t := range c.Targets {
			n += len(t.Artifacts)
		}
		counts[c.Name] = n
	}
	return counts
}

// TreeChecksum computes an aggregate checksum over all artifact checksums.
// Two runs over an unchanged tree produce the same value.
func (m DeploymentMap) TreeChecksum() string {
	var lines []string
	for _, a := range m.Artifacts() {
		lines = append(lines, a.Path+"\x00"+a.RawChecksum)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// EnvironmentOf returns the environment of the target owning the artifact
// at the given path, or "local" when the path is not in the map.
func (m DeploymentMap) EnvironmentOf(artifactPath string) string {
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				if a.Path == artifactPath {
					return t.Environment
				}
			}
		}
	}
	return "local"
}

// DeclaredNetworks returns the set of all network names declared anywhere
// in the map.
func (m DeploymentMap) DeclaredNetworks() map[string]bool {
	declared := make(map[string]bool)
	for _, a := range m.Artifacts() {
		for _, n := range a.Networks {
			declared[n.Name] = true
		}
	}
	return declared
}

// DeclaredVolumes returns the set of all named volumes declared anywhere
// in the map.
func (m DeploymentMap) DeclaredVolumes() map[string]bool {
	declared := make(map[string]bool)
	for _, a := range m.Artifacts() {
		for _, v := range a.Volumes {
			declared[v] = true
		}
	}
	return declared
}

// UsedHostPorts returns the set of host ports declared by any service in
// the map.
func (m DeploymentMap) UsedHostPorts() map[int]bool {
	used := make(map[int]bool)
	for _, a := range m.Artifacts() {
		for _, s := range a.Services {
			for _, p := range s.HostPorts() {
				used[p] = true
			}
		}
	}
	return used
}

// =============================================================================
// Environment Derivation
// =============================================================================

// environmentAliases maps path segments to canonical environment names.
var environmentAliases = map[string]string{
	"local":       "local",
	"dev":         "local",
	"development": "local",
	"staging":     "staging",
	"stage":       "staging",
	"prod":        "production",
	"production":  "production",
}

// EnvironmentForDir derives the deployment environment from a directory
// path. The last matching path segment wins; unmatched paths default to
// "local".
func EnvironmentForDir(dir string) string {
	env := "local"
	for _, seg := range strings.Split(dir, "/") {
		if canonical, ok := environmentAliases[strings.ToLower(seg)]; ok {
			env = canonical
		}
	}
	return env
}
