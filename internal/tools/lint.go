package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/augur-audit/augur/internal/state"
)

// QuickLinter scans Solidity sources for cheap heuristic signals without any
// external tool. Its findings carry "heuristic" confidence and never count as
// proven issues.
type QuickLinter struct {
	ArtifactsDir string
	Name         string
}

// NewQuickLinter returns the default TODO/FIXME linter.
func NewQuickLinter(artifactsDir string) *QuickLinter {
	return &QuickLinter{ArtifactsDir: artifactsDir, Name: "quick_linter"}
}

// LogPath returns where the lint summary artifact lives.
func (l *QuickLinter) LogPath() string {
	return filepath.Join(l.ArtifactsDir, "quick_lint.log")
}

// Run lints every Solidity file under the target path, in deterministic
// order, and writes a summary log artifact.
func (l *QuickLinter) Run(targetPath string) ([]state.Finding, error) {
	if err := os.MkdirAll(l.ArtifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	logPath := l.LogPath()

	files, err := solidityFiles(targetPath)
	if err != nil {
		return nil, err
	}

	var findings []state.Finding
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read solidity file: %w", err)
		}
		for i, line := range strings.Split(string(data), "\n") {
			if !strings.Contains(line, "TODO") && !strings.Contains(line, "FIXME") {
				continue
			}
			findings = append(findings, state.Finding{
				Category:      "lint",
				Check:         "todo_comment",
				Description:   "TODO/FIXME marker found in Solidity source.",
				Path:          file,
				Lines:         []int{i + 1},
				SourceTool:    l.Name,
				ArtifactPaths: []string{logPath},
				Confidence:    "heuristic",
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Lines[0] < findings[j].Lines[0]
	})

	summary := fmt.Sprintf("# Quick Lint Summary\nFindings: %d\n", len(findings))
	if err := os.WriteFile(logPath, []byte(summary), 0o644); err != nil {
		return nil, fmt.Errorf("write lint log: %w", err)
	}
	return findings, nil
}

// solidityFiles resolves the target to a sorted list of .sol files: the file
// itself, or a recursive glob under the directory. A missing target yields an
// empty list.
func solidityFiles(targetPath string) ([]string, error) {
	info, err := os.Stat(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() {
		if strings.HasSuffix(targetPath, ".sol") {
			return []string{targetPath}, nil
		}
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(targetPath), "**/*.sol")
	if err != nil {
		return nil, fmt.Errorf("glob solidity files: %w", err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(targetPath, m))
	}
	sort.Strings(files)
	return files, nil
}
