// Package recommend derives resolution proposals for detected conflicts.
// Every heuristic here is a deterministic local rule; proposals start at
// heuristic confidence and are only upgraded by a reconciliation pass.
package recommend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// maxHostPort is the upper bound of the port remap scan.
const maxHostPort = 65535

// Generate produces at most one recommendation per conflict, in conflict
// order. Conflicts with no workable heuristic still get a recommendation
// flagging them for manual review, so the report accounts for every
// conflict.
func Generate(m domain.DeploymentMap, conflicts []domain.Conflict) []domain.Recommendation {
	idx := indexArtifacts(m)
	usedPorts := m.UsedHostPorts()

	recs := make([]domain.Recommendation, 0, len(conflicts))
	for _, c := range conflicts {
		var rec domain.Recommendation
		switch c.Kind {
		case domain.ConflictPortCollision:
			rec = recommendPortRemap(c, idx, usedPorts)
		case domain.ConflictDuplicateServiceName:
			rec = recommendCanonicalDeclaration(c, idx)
		case domain.ConflictEnvMismatch:
			rec = recommendMajorityValue(c, idx)
		case domain.ConflictImageVersionMismatch:
			rec = recommendPinnedTag(c, idx)
		case domain.ConflictNetworkNameCollision:
			rec = recommendNetworkRename(c, idx)
		case domain.ConflictOrphanedReference:
			rec = recommendReferenceFix(c)
		default:
			rec = domain.Recommendation{
				ProposedChange: fmt.Sprintf("no automated resolution for conflict kind %q; manual review required", c.Kind),
				ManualReview:   true,
			}
		}
		rec.ConflictIDs = []string{c.ID}
		rec.Confidence = domain.ConfidenceHeuristic
		recs = append(recs, rec)
	}
	return recs
}

// =============================================================================
// Artifact Index
// =============================================================================

type artifactIndex struct {
	artifacts map[string]domain.DeploymentArtifact
	targets   map[string]string
}

func indexArtifacts(m domain.DeploymentMap) artifactIndex {
	idx := artifactIndex{
		artifacts: make(map[string]domain.DeploymentArtifact),
		targets:   make(map[string]string),
	}
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				idx.artifacts[a.Path] = a
				idx.targets[a.Path] = t.Dir
			}
		}
	}
	return idx
}

// service resolves an involved (artifact, service) pair to its declaration.
func (idx artifactIndex) service(inv domain.Involved) (domain.ServiceDeclaration, bool) {
	a, ok := idx.artifacts[inv.ArtifactPath]
	if !ok {
		return domain.ServiceDeclaration{}, false
	}
	for _, s := range a.Services {
		if s.Name == inv.ServiceName {
			return s, true
		}
	}
	return domain.ServiceDeclaration{}, false
}

// =============================================================================
// Port Collisions
// =============================================================================

// recommendPortRemap keeps the declaration in the smallest-path artifact on
// the contested port and moves the lexicographically last one to the next
// free host port above it.
func recommendPortRemap(c domain.Conflict, idx artifactIndex, used map[int]bool) domain.Recommendation {
	port, err := strconv.Atoi(c.Subject)
	if err != nil || len(c.Involved) < 2 {
		return manualReview(c)
	}

	mover := c.Involved[len(c.Involved)-1]
	svc, ok := idx.service(mover)
	if !ok {
		return manualReview(c)
	}

	next := nextFreePort(port, used)
	if next == 0 {
		return manualReview(c)
	}

	proposed := svc.Clone()
	for i, p := range proposed.Ports {
		if p.HostPort == port {
			proposed.Ports[i].HostPort = next
		}
	}
	used[next] = true

	return domain.Recommendation{
		ProposedChange: fmt.Sprintf("remap service %q in %s from host port %d to %d",
			mover.ServiceName, mover.ArtifactPath, port, next),
		Proposed:             &proposed,
		ProposedArtifactPath: mover.ArtifactPath,
	}
}

func nextFreePort(from int, used map[int]bool) int {
	for p := from + 1; p <= maxHostPort; p++ {
		if !used[p] {
			return p
		}
	}
	return 0
}

// =============================================================================
// Duplicate Service Names
// =============================================================================

// recommendCanonicalDeclaration promotes the declaration from the most
// recently modified artifact as canonical. Ties fall to the smallest path,
// which the involved sort already put first.
func recommendCanonicalDeclaration(c domain.Conflict, idx artifactIndex) domain.Recommendation {
	winner := c.Involved[0]
	for _, inv := range c.Involved[1:] {
		wa, wok := idx.artifacts[winner.ArtifactPath]
		ca, cok := idx.artifacts[inv.ArtifactPath]
		if wok && cok && ca.ModTime.After(wa.ModTime) {
			winner = inv
		}
	}
	svc, ok := idx.service(winner)
	if !ok {
		return manualReview(c)
	}
	proposed := svc.Clone()
	return domain.Recommendation{
		ProposedChange: fmt.Sprintf("adopt the declaration of %q from %s (most recently modified) as canonical",
			winner.ServiceName, winner.ArtifactPath),
		Proposed:             &proposed,
		ProposedArtifactPath: winner.ArtifactPath,
	}
}

// =============================================================================
// Environment Mismatches
// =============================================================================

// recommendMajorityValue aligns a diverging variable on its most common
// value. Ties fall to the value held by the smallest-path artifact.
func recommendMajorityValue(c domain.Conflict, idx artifactIndex) domain.Recommendation {
	varName := c.Subject
	counts := make(map[string]int)
	first := make(map[string]string)
	for _, inv := range c.Involved {
		svc, ok := idx.service(inv)
		if !ok {
			continue
		}
		v, ok := svc.Environment[varName]
		if !ok {
			continue
		}
		counts[v]++
		if _, seen := first[v]; !seen {
			first[v] = inv.ArtifactPath
		}
	}
	if len(counts) < 2 {
		return manualReview(c)
	}

	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return first[values[i]] < first[values[j]]
	})
	chosen := values[0]

	if credentialLike(varName) {
		// Never print credential values in a report.
		return domain.Recommendation{
			ProposedChange: fmt.Sprintf("align variable %q across all declarations of service %q; value redacted, review manually",
				varName, c.Involved[0].ServiceName),
			ManualReview: true,
		}
	}

	return domain.Recommendation{
		ProposedChange: fmt.Sprintf("set variable %q to %q (majority value) in all declarations of service %q",
			varName, chosen, c.Involved[0].ServiceName),
	}
}

func credentialLike(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range []string{"password", "passwd", "secret", "token", "key", "credential", "auth"} {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// =============================================================================
// Image Version Mismatches
// =============================================================================

// recommendPinnedTag prefers a pinned tag over a floating one. Among
// pinned tags it picks the one from the most recently modified artifact.
func recommendPinnedTag(c domain.Conflict, idx artifactIndex) domain.Recommendation {
	type candidate struct {
		inv domain.Involved
		svc domain.ServiceDeclaration
	}
	var pinned, floating []candidate
	for _, inv := range c.Involved {
		svc, ok := idx.service(inv)
		if !ok {
			continue
		}
		tag := svc.ImageTag()
		switch tag {
		case "", "latest", "main", "master", "edge", "nightly", "dev":
			floating = append(floating, candidate{inv, svc})
		default:
			pinned = append(pinned, candidate{inv, svc})
		}
	}

	pool := pinned
	if len(pool) == 0 {
		pool = floating
	}
	if len(pool) == 0 {
		return manualReview(c)
	}

	winner := pool[0]
	for _, cand := range pool[1:] {
		wa, wok := idx.artifacts[winner.inv.ArtifactPath]
		ca, cok := idx.artifacts[cand.inv.ArtifactPath]
		if wok && cok && ca.ModTime.After(wa.ModTime) {
			winner = cand
		}
	}

	return domain.Recommendation{
		ProposedChange: fmt.Sprintf("pin all references of image %q to %q (from %s)",
			c.Subject, winner.svc.Image, winner.inv.ArtifactPath),
		ProposedArtifactPath: winner.inv.ArtifactPath,
	}
}

// =============================================================================
// Network Naming Collisions
// =============================================================================

// recommendNetworkRename proposes target-prefixed names so the colliding
// external networks stop shadowing each other.
func recommendNetworkRename(c domain.Conflict, idx artifactIndex) domain.Recommendation {
	renames := make([]string, 0, len(c.Involved))
	seen := make(map[string]bool)
	for _, inv := range c.Involved {
		target := idx.targets[inv.ArtifactPath]
		prefix := targetSlug(target)
		renamed := prefix + "_" + c.Subject
		if seen[renamed] {
			continue
		}
		seen[renamed] = true
		renames = append(renames, fmt.Sprintf("%s -> %q", inv.ArtifactPath, renamed))
	}
	return domain.Recommendation{
		ProposedChange: fmt.Sprintf("rename external network %q per deployment target to avoid shadowing: %s",
			c.Subject, strings.Join(renames, "; ")),
	}
}

func targetSlug(dir string) string {
	if dir == "" || dir == "." {
		return "root"
	}
	slug := strings.ReplaceAll(dir, "/", "_")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, slug)
}

// =============================================================================
// Orphaned References
// =============================================================================

// recommendReferenceFix proposes declaring the missing resource or removing
// the dangling reference, based on what the description says is missing.
func recommendReferenceFix(c domain.Conflict) domain.Recommendation {
	if len(c.Involved) == 0 {
		return manualReview(c)
	}
	site := c.Involved[0]
	kind := referenceKind(c.Description)
	var change string
	switch kind {
	case "service":
		change = fmt.Sprintf("remove the depends_on entry %q from service %q in %s, or add the missing service to the same deployment target",
			c.Subject, site.ServiceName, site.ArtifactPath)
	case "volume":
		change = fmt.Sprintf("declare volume %q in %s, or drop the mount from service %q",
			c.Subject, site.ArtifactPath, site.ServiceName)
	default:
		change = fmt.Sprintf("declare network %q in %s, or detach service %q from it",
			c.Subject, site.ArtifactPath, site.ServiceName)
	}
	return domain.Recommendation{
		ProposedChange:       change,
		ProposedArtifactPath: site.ArtifactPath,
	}
}

func referenceKind(description string) string {
	switch {
	case strings.Contains(description, "references service"):
		return "service"
	case strings.Contains(description, "references volume"):
		return "volume"
	default:
		return "network"
	}
}

// =============================================================================
// Fallback
// =============================================================================

func manualReview(c domain.Conflict) domain.Recommendation {
	return domain.Recommendation{
		ProposedChange: fmt.Sprintf("conflict %s (%s) needs manual review; no heuristic produced a concrete resolution",
			c.ID, c.Kind),
		ManualReview: true,
	}
}
