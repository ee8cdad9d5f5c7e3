package state

import "errors"

// Sentinel errors for the state package. Sentinels instead of ad-hoc
// fmt.Errorf let callers match with errors.Is.
var (
	// ErrCorruptState is returned when the state file cannot be decoded.
	ErrCorruptState = errors.New("state file is not valid JSON")
)
