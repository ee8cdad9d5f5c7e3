package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRunPathsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{}"), 0o644))

	statePath, artifactsDir := resolveRunPaths(dir)

	assert.Equal(t, filepath.Join(dir, "state.json"), statePath)
	assert.Equal(t, filepath.Join(dir, "artifacts"), artifactsDir)
}

func TestResolveRunPathsStateFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	statePath, artifactsDir := resolveRunPaths(file)

	assert.Equal(t, file, statePath)
	assert.Equal(t, filepath.Join(dir, "artifacts"), artifactsDir)
}

func TestResolveRunPathsMissingPathTreatedAsFile(t *testing.T) {
	statePath, artifactsDir := resolveRunPaths("/nonexistent/run/state.json")

	assert.Equal(t, "/nonexistent/run/state.json", statePath)
	assert.Equal(t, "/nonexistent/run/artifacts", artifactsDir)
}
