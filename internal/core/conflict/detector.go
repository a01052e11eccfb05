// Package conflict detects structural inconsistencies in a deployment map.
// The detector is a pure function over its input: running it twice on the
// same map yields an identical ordered conflict list.
package conflict

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/core/mapping"
)

// =============================================================================
// Detector Errors
// =============================================================================

var (
	// ErrInvariantViolation indicates the deployment map broke a structural
	// invariant the detector relies on. This should not occur for maps
	// built by the mapper; any occurrence fails the run rather than
	// emitting an unreliable report.
	ErrInvariantViolation = errors.New("deployment map invariant violated")
)

// =============================================================================
// Escalation Patterns
// =============================================================================

// credentialNameRegex recognizes security-sensitive variable names. An
// env-mismatch on a matching variable escalates from warning to blocking.
var credentialNameRegex = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|private[_-]?key|credential|auth)`)

// floatingTags are image tags that do not pin a version. A version
// mismatch that mixes a floating tag with a pinned one escalates from info
// to warning.
var floatingTags = map[string]bool{
	"":        true,
	"latest":  true,
	"main":    true,
	"master":  true,
	"edge":    true,
	"nightly": true,
	"dev":     true,
}

// builtinNetworks are compose-managed networks that need no declaration.
var builtinNetworks = map[string]bool{
	"default": true,
	"host":    true,
	"bridge":  true,
	"none":    true,
}

// =============================================================================
// Detection
// =============================================================================

// entry is one service declaration located in the map.
type entry struct {
	category string
	target   string
	path     string
	service  domain.ServiceDeclaration
}

// groupKey groups entries by category and service name.
type groupKey struct{ category, name string }

// Detect returns the ordered conflict list for a deployment map. The order
// is stable: by kind, then by the lexicographically smallest involved
// artifact path, then by subject.
func Detect(m domain.DeploymentMap) ([]domain.Conflict, error) {
	if err := checkInvariants(m); err != nil {
		return nil, err
	}

	entries := collectEntries(m)

	var conflicts []domain.Conflict
	conflicts = append(conflicts, detectPortCollisions(entries)...)
	conflicts = append(conflicts, detectDuplicateNames(entries)...)
	conflicts = append(conflicts, detectEnvMismatches(entries)...)
	conflicts = append(conflicts, detectImageMismatches(entries)...)
	conflicts = append(conflicts, detectNetworkCollisions(m)...)
	conflicts = append(conflicts, detectOrphanedReferences(m)...)

	sortConflicts(conflicts)
	assignIDs(conflicts)
	return conflicts, nil
}

// checkInvariants verifies each artifact appears in exactly one category.
func checkInvariants(m domain.DeploymentMap) error {
	seen := make(map[string]string)
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				if prev, ok := seen[a.Path]; ok {
					return fmt.Errorf("%w: artifact %s in categories %s and %s",
						ErrInvariantViolation, a.Path, prev, c.Name)
				}
				seen[a.Path] = c.Name
			}
		}
	}
	return nil
}

func collectEntries(m domain.DeploymentMap) []entry {
	var entries []entry
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				for _, s := range a.Services {
					entries = append(entries, entry{
						category: c.Name,
						target:   t.Dir,
						path:     a.Path,
						service:  s,
					})
				}
			}
		}
	}
	return entries
}

// =============================================================================
// Port Collisions
// =============================================================================

// detectPortCollisions finds host ports claimed by services with disjoint
// identity in different deployment targets of the same category. Those
// targets are intended to run concurrently, so the collision is blocking.
func detectPortCollisions(entries []entry) []domain.Conflict {
	type key struct {
		category string
		port     int
	}
	groups := make(map[key][]entry)
	for _, e := range entries {
		for _, port := range e.service.HostPorts() {
			k := key{e.category, port}
			groups[k] = append(groups[k], e)
		}
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].port < keys[j].port
	})

	var conflicts []domain.Conflict
	for _, k := range keys {
		group := groups[k]
		if !hasCrossTargetPair(group) {
			continue
		}
		involved := make([]domain.Involved, 0, len(group))
		for _, e := range group {
			involved = append(involved, domain.Involved{ArtifactPath: e.path, ServiceName: e.service.Name})
		}
		sortInvolved(involved)
		conflicts = append(conflicts, domain.Conflict{
			Kind:     domain.ConflictPortCollision,
			Severity: domain.SeverityBlocking,
			Involved: involved,
			Subject:  strconv.Itoa(k.port),
			Description: fmt.Sprintf("host port %d is declared by %d services across deployment targets in category %q",
				k.port, len(group), k.category),
		})
	}
	return conflicts
}

// hasCrossTargetPair reports whether the group contains two services with
// different names in different targets.
func hasCrossTargetPair(group []entry) bool {
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if group[i].target != group[j].target && group[i].service.Name != group[j].service.Name {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Duplicate Service Names
// =============================================================================

// detectDuplicateNames finds the same service name declared with materially
// different images, ports or environment across artifacts of one category.
// Identical declarations are intentional redundancy, not a conflict.
func detectDuplicateNames(entries []entry) []domain.Conflict {
	groups := make(map[groupKey][]entry)
	for _, e := range entries {
		k := groupKey{e.category, e.service.Name}
		groups[k] = append(groups[k], e)
	}

	keys := sortedKeys(groups)

	var conflicts []domain.Conflict
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 || !anyMateriallyDifferent(group) {
			continue
		}
		involved := make([]domain.Involved, 0, len(group))
		for _, e := range group {
			involved = append(involved, domain.Involved{ArtifactPath: e.path, ServiceName: e.service.Name})
		}
		sortInvolved(involved)
		conflicts = append(conflicts, domain.Conflict{
			Kind:     domain.ConflictDuplicateServiceName,
			Severity: domain.SeverityWarning,
			Involved: involved,
			Subject:  k.name,
			Description: fmt.Sprintf("service %q is declared %d times in category %q with materially different definitions",
				k.name, len(group), k.category),
		})
	}
	return conflicts
}

// materiallyDifferent compares the fields the duplicate rule cares about:
// image, ports and environment.
func materiallyDifferent(a, b domain.ServiceDeclaration) bool {
	if a.Image != b.Image {
		return true
	}
	if len(a.Ports) != len(b.Ports) {
		return true
	}
	for i := range a.Ports {
		if a.Ports[i] != b.Ports[i] {
			return true
		}
	}
	if len(a.Environment) != len(b.Environment) {
		return true
	}
	for k, v := range a.Environment {
		if bv, ok := b.Environment[k]; !ok || bv != v {
			return true
		}
	}
	return false
}

func anyMateriallyDifferent(group []entry) bool {
	for i := 1; i < len(group); i++ {
		if materiallyDifferent(group[0].service, group[i].service) {
			return true
		}
	}
	return false
}

// =============================================================================
// Environment Mismatches
// =============================================================================

// detectEnvMismatches finds variables declared with different values for
// the same service name within a category. Credential-like variable names
// escalate to blocking.
func detectEnvMismatches(entries []entry) []domain.Conflict {
	groups := make(map[groupKey][]entry)
	for _, e := range entries {
		k := groupKey{e.category, e.service.Name}
		groups[k] = append(groups[k], e)
	}

	keys := sortedKeys(groups)

	var conflicts []domain.Conflict
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}

		varNames := make(map[string]bool)
		for _, e := range group {
			for name := range e.service.Environment {
				varNames[name] = true
			}
		}
		sortedVars := make([]string, 0, len(varNames))
		for v := range varNames {
			sortedVars = append(sortedVars, v)
		}
		sort.Strings(sortedVars)

		for _, varName := range sortedVars {
			values := make(map[string]bool)
			var involved []domain.Involved
			for _, e := range group {
				if v, ok := e.service.Environment[varName]; ok {
					values[v] = true
					involved = append(involved, domain.Involved{ArtifactPath: e.path, ServiceName: e.service.Name})
				}
			}
			if len(values) < 2 {
				continue
			}
			severity := domain.SeverityWarning
			if credentialNameRegex.MatchString(varName) {
				severity = domain.SeverityBlocking
			}
			sortInvolved(involved)
			conflicts = append(conflicts, domain.Conflict{
				Kind:     domain.ConflictEnvMismatch,
				Severity: severity,
				Involved: involved,
				Subject:  varName,
				Description: fmt.Sprintf("variable %q has %d different values across declarations of service %q in category %q",
					varName, len(values), k.name, k.category),
			})
		}
	}
	return conflicts
}

// =============================================================================
// Image Version Mismatches
// =============================================================================

// detectImageMismatches finds the same logical service referenced with
// different image tags across targets within a category. Info severity,
// escalated to warning when a floating tag (latest et al.) sits alongside
// a pinned one.
func detectImageMismatches(entries []entry) []domain.Conflict {
	type key struct{ category, repo string }
	groups := make(map[key][]entry)
	for _, e := range entries {
		repo := e.service.ImageRepo()
		if repo == "" {
			continue
		}
		k := key{e.category, repo}
		groups[k] = append(groups[k], e)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].repo < keys[j].repo
	})

	var conflicts []domain.Conflict
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}

		tags := make(map[string]bool)
		var involved []domain.Involved
		matched := false
		for i, e := range group {
			tags[e.service.ImageTag()] = true
			involved = append(involved, domain.Involved{ArtifactPath: e.path, ServiceName: e.service.Name})
			for j := 0; j < i; j++ {
				if group[j].target != e.target && mapping.SameLogicalService(group[j].service, e.service) {
					matched = true
				}
			}
		}
		if len(tags) < 2 || !matched {
			continue
		}

		severity := domain.SeverityInfo
		hasFloating, hasPinned := false, false
		for tag := range tags {
			if floatingTags[tag] {
				hasFloating = true
			} else {
				hasPinned = true
			}
		}
		if hasFloating && hasPinned {
			severity = domain.SeverityWarning
		}

		tagList := make([]string, 0, len(tags))
		for tag := range tags {
			if tag == "" {
				tag = "(untagged)"
			}
			tagList = append(tagList, tag)
		}
		sort.Strings(tagList)

		sortInvolved(involved)
		conflicts = append(conflicts, domain.Conflict{
			Kind:     domain.ConflictImageVersionMismatch,
			Severity: severity,
			Involved: involved,
			Subject:  k.repo,
			Description: fmt.Sprintf("image %q is referenced with diverging tags (%s) in category %q",
				k.repo, strings.Join(tagList, ", "), k.category),
		})
	}
	return conflicts
}

// =============================================================================
// Network Naming Collisions
// =============================================================================

// detectNetworkCollisions finds the same external network name declared by
// unrelated deployment targets.
func detectNetworkCollisions(m domain.DeploymentMap) []domain.Conflict {
	type site struct{ target, path string }
	byName := make(map[string][]site)
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				for _, n := range a.Networks {
					if n.External {
						byName[n.Name] = append(byName[n.Name], site{t.Dir, a.Path})
					}
				}
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var conflicts []domain.Conflict
	for _, name := range names {
		sites := byName[name]
		targets := make(map[string]bool)
		for _, s := range sites {
			targets[s.target] = true
		}
		if len(targets) < 2 {
			continue
		}
		involved := make([]domain.Involved, 0, len(sites))
		for _, s := range sites {
			involved = append(involved, domain.Involved{ArtifactPath: s.path})
		}
		sortInvolved(involved)
		conflicts = append(conflicts, domain.Conflict{
			Kind:     domain.ConflictNetworkNameCollision,
			Severity: domain.SeverityWarning,
			Involved: involved,
			Subject:  name,
			Description: fmt.Sprintf("external network %q is declared by %d unrelated deployment targets",
				name, len(targets)),
		})
	}
	return conflicts
}

// =============================================================================
// Orphaned References
// =============================================================================

// detectOrphanedReferences finds services depending on networks, volumes
// or upstream services that are not declared. Networks and volumes resolve
// map-wide; depends_on resolves within the service's own deployment target,
// since a startup ordering can only hold between services launched
// together.
func detectOrphanedReferences(m domain.DeploymentMap) []domain.Conflict {
	declaredNetworks := m.DeclaredNetworks()
	declaredVolumes := m.DeclaredVolumes()

	var conflicts []domain.Conflict
	emit := func(path string, svc domain.ServiceDeclaration, refKind, ref string) {
		conflicts = append(conflicts, domain.Conflict{
			Kind:     domain.ConflictOrphanedReference,
			Severity: domain.SeverityWarning,
			Involved: []domain.Involved{{ArtifactPath: path, ServiceName: svc.Name}},
			Subject:  ref,
			Description: fmt.Sprintf("service %q references %s %q which is not declared anywhere in the deployment map",
				svc.Name, refKind, ref),
		})
	}

	for _, c := range m.Categories {
		for _, t := range c.Targets {
			// Service names declared anywhere in this target.
			targetServices := make(map[string]bool)
			for _, a := range t.Artifacts {
				for _, s := range a.Services {
					targetServices[s.Name] = true
				}
			}

			for _, a := range t.Artifacts {
				for _, s := range a.Services {
					for _, net := range s.Networks {
						if builtinNetworks[net] || declaredNetworks[net] {
							continue
						}
						emit(a.Path, s, "network", net)
					}
					for _, v := range s.Volumes {
						if !v.Named || declaredVolumes[v.Source] {
							continue
						}
						emit(a.Path, s, "volume", v.Source)
					}
					for _, dep := range s.DependsOn {
						if targetServices[dep] {
							continue
						}
						emit(a.Path, s, "service", dep)
					}
				}
			}
		}
	}
	return conflicts
}

// =============================================================================
// Ordering
// =============================================================================

func sortInvolved(involved []domain.Involved) {
	sort.Slice(involved, func(i, j int) bool {
		if involved[i].ArtifactPath != involved[j].ArtifactPath {
			return involved[i].ArtifactPath < involved[j].ArtifactPath
		}
		return involved[i].ServiceName < involved[j].ServiceName
	})
}

// sortConflicts orders the list by kind, then smallest involved path, then
// subject - the stable order the determinism invariant requires.
func sortConflicts(conflicts []domain.Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		oi, oj := domain.KindOrder(conflicts[i].Kind), domain.KindOrder(conflicts[j].Kind)
		if oi != oj {
			return oi < oj
		}
		pi, pj := conflicts[i].SmallestPath(), conflicts[j].SmallestPath()
		if pi != pj {
			return pi < pj
		}
		return conflicts[i].Subject < conflicts[j].Subject
	})
}

// assignIDs stamps deterministic per-kind ordinal identifiers onto the
// sorted conflict list.
func assignIDs(conflicts []domain.Conflict) {
	counts := make(map[domain.ConflictKind]int)
	for i := range conflicts {
		counts[conflicts[i].Kind]++
		conflicts[i].ID = fmt.Sprintf("%s-%03d", conflicts[i].Kind, counts[conflicts[i].Kind])
	}
}

// =============================================================================
// Grouping Helpers
// =============================================================================

func sortedKeys[V any](groups map[groupKey]V) []groupKey {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].name < keys[j].name
	})
	return keys
}
