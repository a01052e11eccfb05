package engine

import (
	"sort"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Plan Assembly
// =============================================================================

// severityRank orders severities for the blocking policy.
var severityRank = map[domain.Severity]int{
	domain.SeverityInfo:     0,
	domain.SeverityWarning:  1,
	domain.SeverityBlocking: 2,
}

// assemblePlans consolidates the map into one deployment plan per target
// environment. Plan emission is all-or-nothing per environment: an
// environment holding a conflict at or above the blockOn severity gets no
// plan at all unless a verified recommendation resolves that conflict, in
// which case the verified declaration is used. When the same name survives
// from several artifacts, the most recently modified declaration wins,
// matching the duplicate-name heuristic.
func assemblePlans(m domain.DeploymentMap, conflicts []domain.Conflict, recs []domain.Recommendation, blockOn domain.Severity) []domain.DeploymentPlan {
	pathEnv := artifactEnvironments(m)
	blockedEnvs, verified := classifyResolutions(conflicts, recs, blockOn, pathEnv)

	type chosen struct {
		svc  domain.ServiceDeclaration
		from domain.DeploymentArtifact
	}
	byEnv := make(map[string]map[string]chosen)
	envNetworks := make(map[string]map[string]domain.NetworkDeclaration)
	envVolumes := make(map[string]map[string]bool)

	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				env := t.Environment
				if blockedEnvs[env] {
					continue
				}
				if byEnv[env] == nil {
					byEnv[env] = make(map[string]chosen)
					envNetworks[env] = make(map[string]domain.NetworkDeclaration)
					envVolumes[env] = make(map[string]bool)
				}
				for _, n := range a.Networks {
					envNetworks[env][n.Name] = n
				}
				for _, v := range a.Volumes {
					envVolumes[env][v] = true
				}
				for _, s := range a.Services {
					decl := s
					if proposal, ok := verified[siteKey(a.Path, s.Name)]; ok {
						decl = proposal
					}
					prev, exists := byEnv[env][s.Name]
					if !exists || a.ModTime.After(prev.from.ModTime) {
						byEnv[env][s.Name] = chosen{svc: decl, from: a}
					}
				}
			}
		}
	}

	envs := make([]string, 0, len(byEnv))
	for env := range byEnv {
		envs = append(envs, env)
	}
	sort.Strings(envs)

	plans := make([]domain.DeploymentPlan, 0, len(envs))
	for _, env := range envs {
		plan := domain.DeploymentPlan{
			Environment: env,
			Services:    make(map[string]domain.ServiceDeclaration, len(byEnv[env])),
		}
		for name, ch := range byEnv[env] {
			plan.Services[name] = ch.svc
		}

		// Cross-category merges can bind the same host port twice even
		// when the detector saw no same-category collision. Such an
		// environment is dropped like any other blocked one.
		if hasHostPortClash(plan.Services) {
			continue
		}

		names := make([]string, 0, len(envNetworks[env]))
		for name := range envNetworks[env] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			plan.Networks = append(plan.Networks, envNetworks[env][name])
		}

		for v := range envVolumes[env] {
			plan.Volumes = append(plan.Volumes, v)
		}
		sort.Strings(plan.Volumes)

		plans = append(plans, plan)
	}
	return plans
}

// artifactEnvironments maps each artifact path to its target environment.
func artifactEnvironments(m domain.DeploymentMap) map[string]string {
	envs := make(map[string]string)
	for _, c := range m.Categories {
		for _, t := range c.Targets {
			for _, a := range t.Artifacts {
				envs[a.Path] = t.Environment
			}
		}
	}
	return envs
}

// classifyResolutions finds the environments still holding an unresolved
// conflict at or above the blockOn severity, plus the declaration sites
// rescued by a verified recommendation.
func classifyResolutions(conflicts []domain.Conflict, recs []domain.Recommendation, blockOn domain.Severity, pathEnv map[string]string) (blockedEnvs map[string]bool, verified map[string]domain.ServiceDeclaration) {
	blockedEnvs = make(map[string]bool)
	verified = make(map[string]domain.ServiceDeclaration)

	resolvedConflicts := make(map[string]*domain.Recommendation)
	for i := range recs {
		if recs[i].Confidence != domain.ConfidenceVerified || recs[i].Proposed == nil {
			continue
		}
		for _, id := range recs[i].ConflictIDs {
			resolvedConflicts[id] = &recs[i]
		}
	}

	threshold, ok := severityRank[blockOn]
	if !ok {
		threshold = severityRank[domain.SeverityBlocking]
	}

	for _, c := range conflicts {
		if severityRank[c.Severity] < threshold {
			continue
		}
		rec := resolvedConflicts[c.ID]
		if rec != nil {
			verified[siteKey(rec.ProposedArtifactPath, rec.Proposed.Name)] = rec.Proposed.Clone()
			continue
		}
		for _, inv := range c.Involved {
			if env, known := pathEnv[inv.ArtifactPath]; known {
				blockedEnvs[env] = true
			}
		}
	}
	return blockedEnvs, verified
}

// hasHostPortClash reports whether two services of one plan bind the same
// host port.
func hasHostPortClash(services map[string]domain.ServiceDeclaration) bool {
	seen := make(map[int]bool)
	for _, svc := range services {
		for _, port := range svc.HostPorts() {
			if seen[port] {
				return true
			}
			seen[port] = true
		}
	}
	return false
}

func siteKey(path, name string) string {
	return path + "\x00" + name
}
