// Package engine orchestrates analysis runs: scan, parse, map, detect,
// recommend, optionally reconcile, and assemble per-environment plans.
// Each phase is a strict state-machine transition on the run record.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/shipmap/internal/core/conflict"
	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/core/mapping"
	"github.com/artpar/shipmap/internal/core/parse"
	"github.com/artpar/shipmap/internal/core/recommend"
	"github.com/artpar/shipmap/internal/shell/advisor"
	"github.com/artpar/shipmap/internal/shell/scanner"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds engine configuration.
type Config struct {
	// Scan configures the tree walk.
	Scan scanner.Config

	// Concurrency bounds the parse worker pool; 0 means NumCPU.
	Concurrency int

	// ReconcileEnabled turns on the advisory reconciliation phase.
	ReconcileEnabled bool

	// ReconcileTimeout bounds the whole reconciliation phase. On expiry the
	// run completes with heuristic-only recommendations.
	ReconcileTimeout time.Duration

	// BlockOn is the minimum severity that keeps a service out of a
	// deployment plan. Defaults to blocking.
	BlockOn domain.Severity
}

// Engine runs the analysis pipeline.
type Engine struct {
	cfg     Config
	scanner *scanner.Scanner
	advisor advisor.Advisor
	logger  *slog.Logger
}

// New creates an engine. A nil advisor disables reconciliation regardless
// of configuration.
func New(cfg Config, adv advisor.Advisor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.BlockOn == "" {
		cfg.BlockOn = domain.SeverityBlocking
	}
	if cfg.ReconcileTimeout == 0 {
		cfg.ReconcileTimeout = 60 * time.Second
	}
	if adv == nil {
		adv = advisor.Noop{}
	}
	return &Engine{
		cfg:     cfg,
		scanner: scanner.New(cfg.Scan, logger),
		advisor: adv,
		logger:  logger.With("component", "engine"),
	}
}

// =============================================================================
// Report
// =============================================================================

// ParseWarning records a file that was skipped or partially salvaged.
type ParseWarning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Report is the complete output of one analysis run.
type Report struct {
	RunID           string                  `json:"run_id"`
	Root            string                  `json:"root"`
	GeneratedAt     time.Time               `json:"generated_at"`
	TreeChecksum    string                  `json:"tree_checksum"`
	Unchanged       bool                    `json:"unchanged"`
	ArtifactCount   int                     `json:"artifact_count"`
	CategoryCounts  map[string]int          `json:"category_counts"`
	Map             domain.DeploymentMap    `json:"deployment_map"`
	Conflicts       []domain.Conflict       `json:"conflicts"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Plans           []domain.DeploymentPlan `json:"plans"`
	ParseWarnings   []ParseWarning          `json:"parse_warnings,omitempty"`
}

// =============================================================================
// Analysis Pipeline
// =============================================================================

// Analyze runs the full pipeline over the tree at root. previousChecksum,
// when non-empty, is compared against the new tree checksum to flag an
// unchanged tree in the report. The returned run always reflects the final
// state, including failures.
func (e *Engine) Analyze(ctx context.Context, root, previousChecksum string) (*domain.Run, *Report, error) {
	run := domain.NewRun(root)
	started := time.Now()

	// ----- Scan + Parse -----
	if err := run.Transition(domain.StatusScanning); err != nil {
		return run, nil, err
	}
	artifacts, warnings, err := e.scanAndParse(ctx, root)
	if err != nil {
		run.Fail(string(domain.StatusScanning), err.Error())
		return run, nil, err
	}
	e.logger.Info("scan complete", "run_id", run.ID, "artifacts", len(artifacts), "warnings", len(warnings))

	// ----- Map -----
	if err := run.Transition(domain.StatusMapping); err != nil {
		return run, nil, err
	}
	if err := ctx.Err(); err != nil {
		run.Fail(string(domain.StatusMapping), err.Error())
		return run, nil, err
	}
	m := mapping.BuildMap(artifacts)
	run.TreeChecksum = m.TreeChecksum()
	run.ArtifactCount = m.ArtifactCount()

	// ----- Detect -----
	if err := run.Transition(domain.StatusDetecting); err != nil {
		return run, nil, err
	}
	if err := ctx.Err(); err != nil {
		run.Fail(string(domain.StatusDetecting), err.Error())
		return run, nil, err
	}
	conflicts, err := conflict.Detect(m)
	if err != nil {
		run.Fail(string(domain.StatusDetecting), err.Error())
		return run, nil, err
	}
	run.ConflictCount = len(conflicts)

	// ----- Recommend -----
	if err := run.Transition(domain.StatusRecommending); err != nil {
		return run, nil, err
	}
	if err := ctx.Err(); err != nil {
		run.Fail(string(domain.StatusRecommending), err.Error())
		return run, nil, err
	}
	recs := recommend.Generate(m, conflicts)
	run.RecommendationCount = len(recs)

	// ----- Reconcile (optional, advisory) -----
	if e.cfg.ReconcileEnabled && len(conflicts) > 0 {
		if err := run.Transition(domain.StatusReconciling); err != nil {
			return run, nil, err
		}
		recs = e.reconcile(ctx, m, conflicts, recs)
	}

	// ----- Plans + Report -----
	plans := assemblePlans(m, conflicts, recs, e.cfg.BlockOn)

	if err := run.Transition(domain.StatusDone); err != nil {
		return run, nil, err
	}

	report := &Report{
		RunID:           run.ID,
		Root:            root,
		GeneratedAt:     time.Now().UTC(),
		TreeChecksum:    run.TreeChecksum,
		Unchanged:       previousChecksum != "" && previousChecksum == run.TreeChecksum,
		ArtifactCount:   run.ArtifactCount,
		CategoryCounts:  m.CategoryCounts(),
		Map:             m,
		Conflicts:       conflicts,
		Recommendations: recs,
		Plans:           plans,
		ParseWarnings:   warnings,
	}

	e.logger.Info("analysis complete",
		"run_id", run.ID,
		"artifacts", run.ArtifactCount,
		"conflicts", run.ConflictCount,
		"recommendations", run.RecommendationCount,
		"unchanged", report.Unchanged,
		"duration", time.Since(started))
	return run, report, nil
}

// =============================================================================
// Scan + Parse Phase
// =============================================================================

// scanAndParse streams scanner candidates into a bounded parse pool. Scan
// failures abort; parse failures downgrade to warnings so a malformed file
// never sinks the run.
func (e *Engine) scanAndParse(ctx context.Context, root string) ([]domain.DeploymentArtifact, []ParseWarning, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	var (
		mu        sync.Mutex
		artifacts []domain.DeploymentArtifact
		warnings  []ParseWarning
	)

	scanErr := e.scanner.Scan(gctx, root, func(c scanner.Candidate) error {
		// Group membership back-pressures the scan when all workers are busy.
		g.Go(func() error {
			artifact, warn := e.parseCandidate(c)
			mu.Lock()
			defer mu.Unlock()
			if warn != nil {
				warnings = append(warnings, *warn)
			}
			if artifact != nil {
				if len(artifact.Warnings) > 0 {
					for _, w := range artifact.Warnings {
						warnings = append(warnings, ParseWarning{Path: c.Path, Message: w})
					}
				}
				artifacts = append(artifacts, *artifact)
			}
			return nil
		})
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if scanErr != nil {
		return nil, nil, scanErr
	}

	// Workers finish out of order; restore the deterministic scan order.
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Path != warnings[j].Path {
			return warnings[i].Path < warnings[j].Path
		}
		return warnings[i].Message < warnings[j].Message
	})
	return artifacts, warnings, nil
}

// parseCandidate reads and parses one candidate. Failures are reported as
// warnings, never as errors.
func (e *Engine) parseCandidate(c scanner.Candidate) (*domain.DeploymentArtifact, *ParseWarning) {
	info, err := os.Stat(c.AbsPath)
	if err != nil {
		return nil, &ParseWarning{Path: c.Path, Message: fmt.Sprintf("stat failed: %v", err)}
	}
	content, err := os.ReadFile(c.AbsPath)
	if err != nil {
		return nil, &ParseWarning{Path: c.Path, Message: fmt.Sprintf("read failed: %v", err)}
	}

	artifact, err := parse.Parse(c.Format, c.Path, content, info.ModTime())
	if err != nil {
		e.logger.Warn("skipping unparsable artifact", "path", c.Path, "format", c.Format, "error", err)
		return nil, &ParseWarning{Path: c.Path, Message: err.Error()}
	}
	return artifact, nil
}
