package engine

import (
	"context"
	"time"

	"github.com/artpar/shipmap/internal/core/conflict"
	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/shell/advisor"
)

// =============================================================================
// Reconciliation Phase
// =============================================================================

// reconcile offers each conflict to the advisory collaborator and verifies
// any returned proposal by re-running detection on a copy of the map with
// the proposal applied. Only proposals that remove their conflict without
// introducing a new one are upgraded to verified confidence. Advisor
// failures and the phase timeout leave the heuristic recommendations
// untouched.
func (e *Engine) reconcile(ctx context.Context, m domain.DeploymentMap, conflicts []domain.Conflict, recs []domain.Recommendation) []domain.Recommendation {
	phaseCtx, cancel := context.WithTimeout(ctx, e.cfg.ReconcileTimeout)
	defer cancel()

	byID := make(map[string]domain.Conflict, len(conflicts))
	for _, c := range conflicts {
		byID[c.ID] = c
	}
	baseline := conflictSignatures(conflicts)

	started := time.Now()
	verified := 0
	for i := range recs {
		if phaseCtx.Err() != nil {
			e.logger.Warn("reconciliation timed out, remaining recommendations stay heuristic",
				"reviewed", i, "total", len(recs), "elapsed", time.Since(started))
			break
		}
		if len(recs[i].ConflictIDs) == 0 {
			continue
		}
		c, ok := byID[recs[i].ConflictIDs[0]]
		if !ok {
			continue
		}

		resp, err := e.advisor.Review(phaseCtx, advisor.Request{
			Conflict:  c,
			Involved:  involvedArtifacts(m, c),
			Heuristic: recs[i],
		})
		if err != nil {
			e.logger.Warn("advisor review failed, keeping heuristic", "conflict", c.ID, "error", err)
			continue
		}
		if resp == nil || resp.Proposed == nil {
			continue
		}

		target := recs[i].ProposedArtifactPath
		if target == "" {
			target = c.SmallestPath()
		}
		applied := applyProposal(m, target, *resp.Proposed)
		reDetected, err := conflict.Detect(applied)
		if err != nil {
			e.logger.Warn("verification detect failed, keeping heuristic", "conflict", c.ID, "error", err)
			continue
		}
		if !resolves(c, baseline, reDetected) {
			e.logger.Debug("advisor proposal rejected by verification", "conflict", c.ID)
			continue
		}

		proposed := resp.Proposed.Clone()
		recs[i].Proposed = &proposed
		recs[i].ProposedArtifactPath = target
		recs[i].Confidence = domain.ConfidenceVerified
		recs[i].Rationale = resp.Rationale
		verified++
	}

	e.logger.Info("reconciliation finished", "verified", verified, "total", len(recs), "elapsed", time.Since(started))
	return recs
}

// resolves checks that the original conflict is gone and no conflict
// outside the original baseline appeared.
func resolves(original domain.Conflict, baseline map[string]bool, reDetected []domain.Conflict) bool {
	origSig := conflictSignature(original)
	for _, c := range reDetected {
		sig := conflictSignature(c)
		if sig == origSig {
			return false
		}
		if !baseline[sig] {
			return false
		}
	}
	return true
}

// conflictSignature identifies a conflict independently of its ordinal ID,
// which shifts when the conflict list changes.
func conflictSignature(c domain.Conflict) string {
	return string(c.Kind) + "|" + c.Subject + "|" + c.SmallestPath()
}

func conflictSignatures(conflicts []domain.Conflict) map[string]bool {
	sigs := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		sigs[conflictSignature(c)] = true
	}
	return sigs
}

// =============================================================================
// Proposal Application
// =============================================================================

// applyProposal returns a deep copy of the map with the proposed
// declaration substituted into the target artifact. An unknown target or
// service name leaves the copy equal to the original, which verification
// then rejects.
func applyProposal(m domain.DeploymentMap, artifactPath string, proposed domain.ServiceDeclaration) domain.DeploymentMap {
	out := domain.DeploymentMap{Categories: make([]domain.CategoryGroup, len(m.Categories))}
	for ci, c := range m.Categories {
		group := domain.CategoryGroup{Name: c.Name, Targets: make([]domain.Target, len(c.Targets))}
		for ti, t := range c.Targets {
			target := domain.Target{Dir: t.Dir, Environment: t.Environment, Artifacts: make([]domain.DeploymentArtifact, len(t.Artifacts))}
			for ai, a := range t.Artifacts {
				clone := a
				clone.Services = make([]domain.ServiceDeclaration, len(a.Services))
				for si, s := range a.Services {
					if a.Path == artifactPath && s.Name == proposed.Name {
						clone.Services[si] = proposed.Clone()
					} else {
						clone.Services[si] = s.Clone()
					}
				}
				target.Artifacts[ai] = clone
			}
			group.Targets[ti] = target
		}
		out.Categories[ci] = group
	}
	return out
}

// involvedArtifacts collects the artifacts a conflict references, for the
// advisor payload.
func involvedArtifacts(m domain.DeploymentMap, c domain.Conflict) []domain.DeploymentArtifact {
	wanted := make(map[string]bool, len(c.Involved))
	for _, inv := range c.Involved {
		wanted[inv.ArtifactPath] = true
	}
	var out []domain.DeploymentArtifact
	for _, a := range m.Artifacts() {
		if wanted[a.Path] {
			out = append(out, a)
		}
	}
	return out
}
