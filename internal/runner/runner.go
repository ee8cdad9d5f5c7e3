// Package runner executes batches of tool jobs either sequentially or with a
// bounded worker pool, and merges their outputs deterministically. The merge
// layer guarantees byte-identical state regardless of execution mode or
// goroutine scheduling: results come back sorted by job name, and merged
// findings and artifacts are sorted by stable composite keys.
package runner

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/augur-audit/augur/internal/state"
)

// Job is one named unit of tool work.
type Job struct {
	Name string
	Run  func(ctx context.Context) (Output, error)
}

// Output is what a job contributes to the run.
type Output struct {
	Findings  []state.Finding
	Artifacts []string
}

// Result pairs a job name with its output or error. A failed job never aborts
// the batch; the error is carried per-result.
type Result struct {
	Name   string
	Output Output
	Err    error
}

// Runner controls execution mode. Zero value runs sequentially.
type Runner struct {
	// Parallel enables the bounded worker pool.
	Parallel bool
	// MaxWorkers caps pool size; <= 0 defaults to runtime.NumCPU().
	MaxWorkers int
}

// Run executes all jobs and returns results sorted by job name.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Result {
	if len(jobs) == 0 {
		return nil
	}

	results := make([]Result, len(jobs))
	if r.Parallel {
		r.runParallel(ctx, jobs, results)
	} else {
		for i, j := range jobs {
			results[i] = run(ctx, j)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (r *Runner) runParallel(ctx context.Context, jobs []Job, results []Result) {
	workers := r.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	type indexed struct {
		index int
		job   Job
	}

	queue := make(chan indexed, len(jobs))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range queue {
				results[it.index] = run(ctx, it.job)
			}
		}()
	}
	for i, j := range jobs {
		queue <- indexed{index: i, job: j}
	}
	close(queue)
	wg.Wait()
}

func run(ctx context.Context, j Job) Result {
	out, err := j.Run(ctx)
	return Result{Name: j.Name, Output: out, Err: err}
}

// MergeFindings collects findings from all results and sorts them by the
// composite key (source_tool, category, check, description, path, lines).
func MergeFindings(results []Result) []state.Finding {
	var findings []state.Finding
	for _, r := range results {
		findings = append(findings, r.Output.Findings...)
	}
	SortFindings(findings)
	return findings
}

// SortFindings orders findings in place by the composite key used everywhere
// findings are persisted.
func SortFindings(findings []state.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findingLess(findings[i], findings[j])
	})
}

func findingLess(a, b state.Finding) bool {
	if a.SourceTool != b.SourceTool {
		return a.SourceTool < b.SourceTool
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.Check != b.Check {
		return a.Check < b.Check
	}
	if a.Description != b.Description {
		return a.Description < b.Description
	}
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return linesLess(a.Lines, b.Lines)
}

func linesLess(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// MergeArtifacts collects artifact paths from all results, deduplicated and
// sorted.
func MergeArtifacts(results []Result) []string {
	var paths []string
	for _, r := range results {
		paths = append(paths, r.Output.Artifacts...)
	}
	return DedupeArtifacts(paths)
}

// DedupeArtifacts returns the unique paths in sorted order.
func DedupeArtifacts(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
