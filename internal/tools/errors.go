package tools

import "errors"

// Sentinel errors for classifying external tool failures. Runners translate
// these into skip/fail dispositions instead of aborting the run.
var (
	// ErrToolNotFound means the binary (or docker) is not installed.
	ErrToolNotFound = errors.New("tool binary not found")

	// ErrToolTimeout means the tool exceeded its deadline.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrToolFailed means the tool ran but exited non-zero.
	ErrToolFailed = errors.New("tool exited with failure")
)
