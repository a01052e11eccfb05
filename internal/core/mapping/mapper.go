package mapping

import (
	"sort"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Deployment Mapper
// =============================================================================

// BuildMap aggregates parsed artifacts into a deployment map. The output is
// deterministic for a fixed artifact set regardless of input order:
// categories are sorted by name, targets by directory, artifacts by path.
func BuildMap(artifacts []domain.DeploymentArtifact) domain.DeploymentMap {
	byCategory := make(map[string][]domain.DeploymentArtifact)
	for _, a := range artifacts {
		cat := a.Format.Category()
		byCategory[cat] = append(byCategory[cat], a)
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	var m domain.DeploymentMap
	for _, name := range names {
		group := byCategory[name]
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })
		m.Categories = append(m.Categories, domain.CategoryGroup{
			Name:    name,
			Targets: clusterTargets(group),
		})
	}
	return m
}

// clusterTargets groups a category's artifacts (sorted by path) into
// deployment targets by the longest-common-prefix heuristic: an artifact
// joins the current target when its directory equals the target directory
// or lies beneath it. Overlapping compose files in nested directories thus
// describe the same target even before conflict detection runs.
//
// Root-level artifacts form their own target and never absorb
// subdirectories - otherwise one compose file at the repository root would
// collapse every other directory into a single target.
func clusterTargets(artifacts []domain.DeploymentArtifact) []domain.Target {
	var targets []domain.Target

	for _, a := range artifacts {
		dir := a.Dir()
		if n := len(targets); n > 0 {
			current := &targets[n-1]
			if dir == current.Dir || (current.Dir != "." && strings.HasPrefix(dir, current.Dir+"/")) {
				current.Artifacts = append(current.Artifacts, a)
				continue
			}
		}
		targets = append(targets, domain.Target{
			Dir:         dir,
			Environment: domain.EnvironmentForDir(dir),
			Artifacts:   []domain.DeploymentArtifact{a},
		})
	}

	return targets
}
