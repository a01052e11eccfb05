package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Scanner Configuration
// =============================================================================

// defaultExcludes are directory names never descended into: version-control
// metadata, dependency/vendor trees and our own generated-report directory.
var defaultExcludes = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"vendor",
	".shipmap",
}

// Config configures a tree scan.
type Config struct {
	// ExcludePatterns are extra glob patterns matched against each path
	// segment and against the repository-relative path.
	ExcludePatterns []string

	// MaxDepth bounds directory depth below the root; 0 means unbounded.
	MaxDepth int

	// FollowSymlinks enables descending into symlinked directories. Cycles
	// back into a visited ancestor always fail the scan.
	FollowSymlinks bool
}

// Candidate is one classified file emitted by the scanner.
type Candidate struct {
	// Path is the repository-relative path, slash-separated.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	// Format is the classified deployment format.
	Format domain.Format
}

// Scanner walks a directory tree and emits classified candidates.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a scanner with the given configuration.
func New(cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{cfg: cfg, logger: logger.With("component", "scanner")}
}

// =============================================================================
// Scanning
// =============================================================================

// Scan walks the tree rooted at root and calls emit for every classified
// candidate, in deterministic order (directory entries sorted by name).
// The tree is scanned incrementally - no candidate list is materialized.
// Any filesystem failure or symlink cycle aborts with a *ScanError.
func (s *Scanner) Scan(ctx context.Context, root string, emit func(Candidate) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return NewScanError(root, "resolve root", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return NewScanError(root, "stat root", err)
	}
	if !info.IsDir() {
		return NewScanError(root, "not a directory", ErrRootNotDir)
	}

	// Ancestors holds the resolved real paths of the directories currently
	// on the walk stack, for symlink cycle detection.
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return NewScanError(root, "resolve root", err)
	}
	ancestors := map[string]bool{resolvedRoot: true}

	return s.walkDir(ctx, absRoot, "", 0, ancestors, emit)
}

func (s *Scanner) walkDir(ctx context.Context, absDir, relDir string, depth int, ancestors map[string]bool, emit func(Candidate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return NewScanError(relDir, "read directory", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		absPath := filepath.Join(absDir, name)
		relPath := name
		if relDir != "" {
			relPath = relDir + "/" + name
		}

		isDir := entry.IsDir()
		isSymlink := entry.Type()&os.ModeSymlink != 0

		if isSymlink {
			target, err := os.Stat(absPath)
			if err != nil {
				// Dangling symlink; skip.
				s.logger.Debug("skipping dangling symlink", "path", relPath)
				continue
			}
			if target.IsDir() {
				if !s.cfg.FollowSymlinks {
					continue
				}
				resolved, err := filepath.EvalSymlinks(absPath)
				if err != nil {
					return NewScanError(relPath, "resolve symlink", err)
				}
				if s.cyclesBack(resolved, ancestors) {
					return NewScanError(relPath, "symlink cycles back into "+resolved, ErrCyclicSymlink)
				}
				isDir = true
			}
		}

		if isDir {
			if s.excluded(name, relPath) {
				continue
			}
			if s.cfg.MaxDepth > 0 && depth+1 >= s.cfg.MaxDepth {
				continue
			}
			resolved := absPath
			if isSymlink {
				resolved, _ = filepath.EvalSymlinks(absPath)
			}
			ancestors[resolved] = true
			if err := s.walkDir(ctx, absPath, relPath, depth+1, ancestors, emit); err != nil {
				return err
			}
			delete(ancestors, resolved)
			continue
		}

		if s.excluded(name, relPath) {
			continue
		}

		format, ok := s.classify(relPath, absPath)
		if !ok {
			continue
		}

		if err := emit(Candidate{Path: relPath, AbsPath: absPath, Format: format}); err != nil {
			return err
		}
	}

	return nil
}

// cyclesBack reports whether the resolved path is, or is an ancestor of,
// a directory currently on the walk stack.
func (s *Scanner) cyclesBack(resolved string, ancestors map[string]bool) bool {
	if ancestors[resolved] {
		return true
	}
	for anc := range ancestors {
		if strings.HasPrefix(anc, resolved+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// excluded applies default and configured exclusion rules.
func (s *Scanner) excluded(name, relPath string) bool {
	for _, d := range defaultExcludes {
		if name == d {
			return true
		}
	}
	for _, pattern := range s.cfg.ExcludePatterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		if ok, _ := path.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// classify determines the candidate format, peeking at file content only
// when the matching signature requires it.
func (s *Scanner) classify(relPath, absPath string) (domain.Format, bool) {
	var head []byte
	if NeedsContent(relPath) {
		f, err := os.Open(absPath)
		if err != nil {
			s.logger.Debug("cannot open candidate", "path", relPath, "error", err)
			return "", false
		}
		head = make([]byte, sniffLen)
		n, err := io.ReadFull(f, head)
		f.Close()
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return "", false
		}
		head = head[:n]
	}
	return Classify(relPath, head)
}
