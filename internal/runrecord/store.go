// Package runrecord implements the run record store: an
// append-only per-run artifact whose canonical JSON serialization is
// what replay verification hashes. Grounded on the
// internal/agent/tape package (record-then-replay for LLM-free
// testing), adapted from "recorded provider chunks" to "recorded
// RunOutcome + per-envelope digests".
package runrecord

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Record is the canonical run record persisted to
// state_dir/runs/<run_id>/record.json. EnvelopeDigests maps each tool
// call id to the sha256 of its canonical ToolResultEnvelope, which
// replay re-derives and compares.
type Record struct {
	Outcome         ltypes.RunOutcome `json:"outcome"`
	EnvelopeDigests map[string]string `json:"envelope_digests"`
	EventLogDigest  string            `json:"event_log_digest,omitempty"`
}

// Store persists and loads run records under a state directory.
type Store struct {
	stateDir string
}

// NewStore roots a Store at stateDir (created on demand).
func NewStore(stateDir string) *Store {
	return &Store{stateDir: stateDir}
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.stateDir, "runs", runID)
}

// RecordPath is state_dir/runs/<run_id>/record.json.
func (s *Store) RecordPath(runID string) string {
	return filepath.Join(s.runDir(runID), "record.json")
}

// EventsPath is state_dir/runs/<run_id>/events.jsonl.
func (s *Store) EventsPath(runID string) string {
	return filepath.Join(s.runDir(runID), "events.jsonl")
}

// Prepare creates the run's directory so the event sink can begin
// appending before the run finishes.
func (s *Store) Prepare(runID string) error {
	return os.MkdirAll(s.runDir(runID), 0o755)
}

// Save canonical-JSON-serializes rec and atomically writes it to
// record.json via write-then-rename, matching the write-then-rename requirement
// that the Approvals Store and run record never leave a partial file
// visible to a concurrent reader.
func (s *Store) Save(runID string, rec Record) error {
	if err := s.Prepare(runID); err != nil {
		return err
	}
	b, err := canonjson.Marshal(rec)
	if err != nil {
		return fmt.Errorf("runrecord: marshal: %w", err)
	}
	final := s.RecordPath(runID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("runrecord: write temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("runrecord: rename: %w", err)
	}
	return nil
}

// Load reads back a previously saved record.
func (s *Store) Load(runID string) (Record, error) {
	var rec Record
	b, err := os.ReadFile(s.RecordPath(runID))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("runrecord: unmarshal: %w", err)
	}
	return rec, nil
}

// EnvelopeDigest computes the sha256 of env's canonical serialization —
// the digest recorded alongside each executed
// tool call and re-derived on replay.
func EnvelopeDigest(env ltypes.ToolResultEnvelope) (string, error) {
	return canonjson.SHA256Hex(env)
}

// BuildEnvelopeDigests computes EnvelopeDigest for every envelope
// keyed by tool call id.
func BuildEnvelopeDigests(envelopes map[string]ltypes.ToolResultEnvelope) (map[string]string, error) {
	out := make(map[string]string, len(envelopes))
	for id, env := range envelopes {
		d, err := EnvelopeDigest(env)
		if err != nil {
			return nil, err
		}
		out[id] = d
	}
	return out, nil
}
