package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augur-audit/augur/internal/state"
)

func jobFor(name string, out Output, err error, delay time.Duration) Job {
	return Job{
		Name: name,
		Run: func(ctx context.Context) (Output, error) {
			if delay > 0 {
				time.Sleep(delay)
			}
			return out, err
		},
	}
}

func TestRunSortsResultsByName(t *testing.T) {
	jobs := []Job{
		jobFor("fuzz", Output{}, nil, 0),
		jobFor("static_scan", Output{}, nil, 0),
		jobFor("graph_analysis", Output{}, nil, 0),
	}

	results := (&Runner{}).Run(context.Background(), jobs)
	require.Len(t, results, 3)
	assert.Equal(t, "fuzz", results[0].Name)
	assert.Equal(t, "graph_analysis", results[1].Name)
	assert.Equal(t, "static_scan", results[2].Name)
}

func TestJobErrorDoesNotAbortBatch(t *testing.T) {
	boom := errors.New("tool unavailable")
	jobs := []Job{
		jobFor("a", Output{Artifacts: []string{"artifacts/a.json"}}, nil, 0),
		jobFor("b", Output{}, boom, 0),
	}

	results := (&Runner{}).Run(context.Background(), jobs)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
}

func TestParallelMatchesSequentialByteForByte(t *testing.T) {
	var jobs []Job
	for i := 0; i < 8; i++ {
		i := i
		out := Output{
			Findings: []state.Finding{{
				Category:    "reentrancy",
				Description: fmt.Sprintf("issue %d", i),
				SourceTool:  "slither",
			}},
			Artifacts: []string{fmt.Sprintf("artifacts/job-%d.json", i), "artifacts/shared.json"},
		}
		// Reverse-order delays so parallel completion order differs from
		// submission order.
		jobs = append(jobs, jobFor(fmt.Sprintf("job-%02d", 7-i), out, nil, time.Duration(i)*time.Millisecond))
	}

	seq := (&Runner{}).Run(context.Background(), jobs)
	par := (&Runner{Parallel: true, MaxWorkers: 4}).Run(context.Background(), jobs)

	seqJSON, err := json.Marshal(struct {
		Findings  []state.Finding
		Artifacts []string
	}{MergeFindings(seq), MergeArtifacts(seq)})
	require.NoError(t, err)
	parJSON, err := json.Marshal(struct {
		Findings  []state.Finding
		Artifacts []string
	}{MergeFindings(par), MergeArtifacts(par)})
	require.NoError(t, err)

	assert.Equal(t, string(seqJSON), string(parJSON))
}

func TestMergeFindingsCompositeOrder(t *testing.T) {
	results := []Result{{
		Name: "batch",
		Output: Output{Findings: []state.Finding{
			{SourceTool: "slither", Category: "reentrancy", Check: "b", Description: "z"},
			{SourceTool: "fuzz", Category: "assertion", Description: "a"},
			{SourceTool: "slither", Category: "reentrancy", Check: "a", Description: "z", Path: "b.sol"},
			{SourceTool: "slither", Category: "reentrancy", Check: "a", Description: "z", Path: "a.sol", Lines: []int{9}},
			{SourceTool: "slither", Category: "reentrancy", Check: "a", Description: "z", Path: "a.sol", Lines: []int{2}},
		}},
	}}

	merged := MergeFindings(results)
	require.Len(t, merged, 5)
	assert.Equal(t, "fuzz", merged[0].SourceTool)
	assert.Equal(t, []int{2}, merged[1].Lines)
	assert.Equal(t, []int{9}, merged[2].Lines)
	assert.Equal(t, "b.sol", merged[3].Path)
	assert.Equal(t, "b", merged[4].Check)
}

func TestMergeArtifactsDedupesAndSorts(t *testing.T) {
	results := []Result{
		{Output: Output{Artifacts: []string{"b", "a"}}},
		{Output: Output{Artifacts: []string{"a", "c"}}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, MergeArtifacts(results))
	assert.Nil(t, MergeArtifacts(nil))
}

func TestRunEmpty(t *testing.T) {
	assert.Nil(t, (&Runner{Parallel: true}).Run(context.Background(), nil))
}
