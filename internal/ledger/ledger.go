// Package ledger maintains the capability ledger: a per-stage record of
// whether each capability executed or was skipped, and why. The canonical
// storage shape is the map form embedded in the state record; ListView adapts
// it to a deterministic list for report rendering.
package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/augur-audit/augur/internal/state"
)

// Dispositions for ListView entries.
const (
	DispositionExecuted = "executed"
	DispositionSkipped  = "skipped"
)

// Ledger records capability dispositions into a state record's ledger.
// NewID is injectable for deterministic tests.
type Ledger struct {
	caps  *state.Capabilities
	NewID func() string
}

// New returns a ledger writing into the given state record, allocating the
// capability buckets if the record does not have them yet.
func New(st *state.State) *Ledger {
	if st.Capabilities == nil {
		st.Capabilities = state.NewCapabilities()
	}
	caps := st.Capabilities
	if caps.Executed == nil {
		caps.Executed = map[string]state.ExecutedCapability{}
	}
	if caps.Skipped == nil {
		caps.Skipped = map[string]state.SkippedCapability{}
	}
	return &Ledger{caps: caps, NewID: uuid.NewString}
}

// Executed records that a capability ran. Re-recording the same capability
// replaces the detail but keeps the original entry id, and clears any earlier
// skip for the same name: a capability has exactly one disposition.
func (l *Ledger) Executed(name, status string, started, finished time.Time, artifacts []string) {
	if artifacts == nil {
		artifacts = []string{}
	}
	entry := state.ExecutedCapability{
		ID:            l.entryID(name),
		Status:        status,
		StartedAt:     started.UTC().Format(time.RFC3339),
		FinishedAt:    finished.UTC().Format(time.RFC3339),
		ArtifactPaths: artifacts,
	}
	delete(l.caps.Skipped, name)
	l.caps.Executed[name] = entry
}

// Skipped records that a capability did not run, with the reason and any
// evidence for the decision. An executed disposition wins over a skip: once a
// capability has run, recording a skip for it is a no-op.
func (l *Ledger) Skipped(name, reason, evidence string) {
	if _, ran := l.caps.Executed[name]; ran {
		return
	}
	l.caps.Skipped[name] = state.SkippedCapability{
		ID:       l.entryID(name),
		Reason:   reason,
		Evidence: evidence,
	}
}

// entryID reuses the id of any existing entry for the name so idempotent
// re-records do not mint fresh ids.
func (l *Ledger) entryID(name string) string {
	if e, ok := l.caps.Executed[name]; ok && e.ID != "" {
		return e.ID
	}
	if e, ok := l.caps.Skipped[name]; ok && e.ID != "" {
		return e.ID
	}
	return l.NewID()
}

// Entry is the list-shaped view of one capability disposition.
type Entry struct {
	Name          string   `json:"name"`
	Disposition   string   `json:"disposition"`
	Status        string   `json:"status,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Evidence      string   `json:"evidence,omitempty"`
	StartedAt     string   `json:"started_at,omitempty"`
	FinishedAt    string   `json:"finished_at,omitempty"`
	ArtifactPaths []string `json:"artifact_paths,omitempty"`
}

// ListView flattens the ledger into a single list sorted by capability name,
// so consumers iterating the ledger see a stable order.
func ListView(caps *state.Capabilities) []Entry {
	if caps == nil {
		return nil
	}
	entries := make([]Entry, 0, len(caps.Executed)+len(caps.Skipped))
	for name, e := range caps.Executed {
		entries = append(entries, Entry{
			Name:          name,
			Disposition:   DispositionExecuted,
			Status:        e.Status,
			StartedAt:     e.StartedAt,
			FinishedAt:    e.FinishedAt,
			ArtifactPaths: e.ArtifactPaths,
		})
	}
	for name, e := range caps.Skipped {
		entries = append(entries, Entry{
			Name:        name,
			Disposition: DispositionSkipped,
			Reason:      e.Reason,
			Evidence:    e.Evidence,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
