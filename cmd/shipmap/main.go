package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/artpar/shipmap/internal/shell/report"
	"github.com/artpar/shipmap/internal/shell/store"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	root := flag.String("root", ".", "Repository root to analyze (one-shot mode)")
	serve := flag.Bool("serve", false, "Run the HTTP API server instead of a one-shot analysis")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("shipmap %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg)
	logger.Info("starting shipmap",
		"version", Version,
		"config", *configPath,
		"serve", *serve,
	)

	if *serve {
		return runServe(cfg, logger)
	}
	return runOnce(cfg, logger, *root)
}

// runServe starts the HTTP API server.
func runServe(cfg *Config, logger *slog.Logger) int {
	server, err := NewServer(cfg, logger)
	if err != nil {
		var sErr *ServerError
		if errors.As(err, &sErr) {
			logger.Error("failed to create server", "error", sErr.Err, "operation", sErr.Op)
			return sErr.ExitCode
		}
		logger.Error("failed to create server", "error", err)
		return ExitConfigError
	}

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		var sErr *ServerError
		if errors.As(err, &sErr) {
			logger.Error("server error", "error", sErr.Err, "operation", sErr.Op)
			return sErr.ExitCode
		}
		logger.Error("server error", "error", err)
		return ExitHTTPServerError
	}

	return ExitSuccess
}

// oneShotSummary is the JSON printed to stdout in one-shot mode.
type oneShotSummary struct {
	Success         bool   `json:"success"`
	RunID           string `json:"run_id"`
	FoldersAnalyzed int    `json:"folders_analyzed"`
	Artifacts       int    `json:"artifacts"`
	Conflicts       int    `json:"conflicts"`
	Recommendations int    `json:"recommendations"`
	Unchanged       bool   `json:"unchanged"`
	Error           string `json:"error,omitempty"`
}

// runOnce analyzes a single tree, persists the run and writes the report
// files, then prints a JSON summary to stdout.
func runOnce(cfg *Config, logger *slog.Logger, root string) int {
	s, err := store.Open(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open run history", "error", err)
		return ExitDatabaseError
	}
	defer s.Close()

	ctx := context.Background()
	previous, err := s.LatestChecksum(ctx, root)
	if err != nil {
		logger.Warn("previous checksum lookup failed", "error", err)
	}

	eng := buildEngine(cfg, logger)
	run, rep, analyzeErr := eng.Analyze(ctx, root, previous)

	if err := s.CreateRun(ctx, run); err != nil {
		logger.Error("failed to persist run", "run_id", run.ID, "error", err)
	}

	if analyzeErr != nil {
		logger.Error("analysis failed", "run_id", run.ID, "phase", run.FailedPhase, "error", analyzeErr)
		printSummary(oneShotSummary{Success: false, RunID: run.ID, Error: analyzeErr.Error()})
		return ExitAnalysisError
	}

	if err := s.SaveReport(ctx, run.ID, rep); err != nil {
		logger.Error("failed to persist report", "run_id", run.ID, "error", err)
	}

	writer := report.NewWriter(cfg.Report.Dir, logger)
	if err := writer.Write(root, rep); err != nil {
		logger.Error("failed to write report files", "run_id", run.ID, "error", err)
		printSummary(oneShotSummary{Success: false, RunID: run.ID, Error: err.Error()})
		return ExitAnalysisError
	}

	folders := 0
	for _, c := range rep.Map.Categories {
		folders += len(c.Targets)
	}
	printSummary(oneShotSummary{
		Success:         true,
		RunID:           run.ID,
		FoldersAnalyzed: folders,
		Artifacts:       rep.ArtifactCount,
		Conflicts:       len(rep.Conflicts),
		Recommendations: len(rep.Recommendations),
		Unchanged:       rep.Unchanged,
	})
	return ExitSuccess
}

func printSummary(summary oneShotSummary) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)
}
