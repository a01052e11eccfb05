// Package report renders analysis output to the repository tree: a machine
// readable report.json, a human readable DEPLOYMENT_MAPPING.md, and one
// compose file per environment plan.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/shipmap/internal/engine"
)

const (
	analysisDir  = "analysis"
	deployDir    = "deploy"
	reportFile   = "report.json"
	markdownFile = "DEPLOYMENT_MAPPING.md"
	planFile     = "docker-compose.yml"
)

// Writer persists reports under <root>/<dir>/ (.shipmap by default).
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a report writer. dir is the output directory name
// relative to the analyzed root.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if dir == "" {
		dir = ".shipmap"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger.With("component", "report")}
}

// Write renders report.json, the markdown summary and the per-environment
// plan files. Each file lands atomically via a temp file and rename, so a
// crashed run never leaves a truncated report behind.
func (w *Writer) Write(root string, report *engine.Report) error {
	base := filepath.Join(root, w.dir)

	analysisPath := filepath.Join(base, analysisDir)
	if err := os.MkdirAll(analysisPath, 0o755); err != nil {
		return fmt.Errorf("failed to create analysis dir: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := writeAtomic(filepath.Join(analysisPath, reportFile), append(jsonBytes, '\n')); err != nil {
		return err
	}

	md := renderMarkdown(report)
	if err := writeAtomic(filepath.Join(analysisPath, markdownFile), []byte(md)); err != nil {
		return err
	}

	for _, plan := range report.Plans {
		planPath := filepath.Join(base, deployDir, plan.Environment)
		if err := os.MkdirAll(planPath, 0o755); err != nil {
			return fmt.Errorf("failed to create plan dir for %s: %w", plan.Environment, err)
		}
		content, err := renderPlanYAML(plan)
		if err != nil {
			return fmt.Errorf("failed to render plan for %s: %w", plan.Environment, err)
		}
		if err := writeAtomic(filepath.Join(planPath, planFile), content); err != nil {
			return err
		}
	}

	w.logger.Info("report written", "dir", base, "plans", len(report.Plans))
	return nil
}

// writeAtomic writes content to a sibling temp file and renames it over
// the destination.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
