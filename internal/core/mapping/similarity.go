// Package mapping aggregates parsed artifacts into the deployment map.
// This is part of the functional core - all functions are pure with no I/O.
package mapping

import (
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Service Similarity
// =============================================================================

// SimilarityThreshold is the score at or above which two declarations are
// considered the same logical service. Tunable: raising it makes grouping
// stricter (fewer cross-file matches), lowering it groups more aggressively.
// 0.6 requires either an exact name match plus one corroborating signal,
// or agreement on image, ports and environment shape.
const SimilarityThreshold = 0.6

// Similarity weights. Name identity dominates; image repository is the
// strongest secondary signal.
const (
	weightName  = 0.4
	weightImage = 0.3
	weightPorts = 0.2
	weightEnv   = 0.1
)

// ServiceSimilarity scores how likely two declarations describe the same
// logical service, in [0, 1]. The score is symmetric. This is an explicit
// heuristic, not equality: callers compare against SimilarityThreshold.
func ServiceSimilarity(a, b domain.ServiceDeclaration) float64 {
	score := 0.0

	switch {
	case a.Name == b.Name:
		score += weightName
	case nameTokenOverlap(a.Name, b.Name) > 0:
		score += weightName / 2
	}

	if a.ImageRepo() != "" && a.ImageRepo() == b.ImageRepo() {
		score += weightImage
	}

	score += weightPorts * jaccardInts(containerPorts(a), containerPorts(b))
	score += weightEnv * jaccardKeys(a.Environment, b.Environment)

	return score
}

// SameLogicalService reports whether two declarations clear the similarity
// threshold.
func SameLogicalService(a, b domain.ServiceDeclaration) bool {
	return ServiceSimilarity(a, b) >= SimilarityThreshold
}

// nameTokenOverlap counts shared tokens between two service names split on
// the usual separators, so "web-prod" and "web" still register.
func nameTokenOverlap(a, b string) int {
	tokens := func(s string) map[string]bool {
		set := make(map[string]bool)
		for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		}) {
			set[t] = true
		}
		return set
	}
	setA, setB := tokens(a), tokens(b)
	n := 0
	for t := range setA {
		if setB[t] {
			n++
		}
	}
	return n
}

func containerPorts(s domain.ServiceDeclaration) []int {
	var ports []int
	for _, p := range s.Ports {
		if p.ContainerPort > 0 {
			ports = append(ports, p.ContainerPort)
		}
	}
	return ports
}

// jaccardInts computes the Jaccard index of two int sets. Two empty sets
// score 1: absence of ports on both sides is agreement, not disagreement.
func jaccardInts(a, b []int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[int]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	union := len(setA)
	inter := 0
	seen := make(map[int]bool, len(b))
	for _, v := range b {
		if seen[v] {
			continue
		}
		seen[v] = true
		if setA[v] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// jaccardKeys computes the Jaccard index of two environment key sets.
func jaccardKeys(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	union := len(a)
	inter := 0
	for k := range b {
		if _, ok := a[k]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}
