package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EntriesDir returns <stateDir>/learn/entries, one JSON file per entry.
func EntriesDir(stateDir string) string {
	return filepath.Join(stateDir, "learn", "entries")
}

// EntryPath returns the path a given entry ID is stored at.
func EntryPath(stateDir, id string) string {
	return filepath.Join(EntriesDir(stateDir), id+".json")
}

// Save writes entry to its content-addressed path, creating the
// entries directory if needed, via a write-to-temp-then-rename so a
// reader never observes a partially written file.
func Save(stateDir string, entry Entry) error {
	dir := EntriesDir(stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("learning: create entries dir: %w", err)
	}
	path := EntryPath(stateDir, entry.ID)
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("learning: marshal entry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("learning: write entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("learning: rename entry: %w", err)
	}
	return nil
}

// Load reads one entry by ID, rejecting a file whose stored ID doesn't
// match the requested one — a sign the entries directory was tampered
// with or copied incorrectly.
func Load(stateDir, id string) (Entry, error) {
	path := EntryPath(stateDir, id)
	b, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("learning: read entry %s: %w", id, err)
	}
	var entry Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		return Entry{}, fmt.Errorf("learning: parse entry %s: %w", id, err)
	}
	if entry.ID != id {
		return Entry{}, fmt.Errorf("learning: entry id mismatch for %s (file id=%s, entry id=%s)", path, id, entry.ID)
	}
	return entry, nil
}

// List returns every entry under stateDir's entries directory, sorted
// by ID, or an empty slice if the directory doesn't exist yet.
func List(stateDir string) ([]Entry, error) {
	dir := EntriesDir(stateDir)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("learning: read entries dir: %w", err)
	}

	var paths []string
	for _, d := range dirEntries {
		if d.IsDir() || filepath.Ext(d.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, d.Name()))
	}
	sort.Strings(paths)

	out := make([]Entry, 0, len(paths))
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("learning: read entry %s: %w", path, err)
		}
		var entry Entry
		if err := json.Unmarshal(b, &entry); err != nil {
			return nil, fmt.Errorf("learning: parse entry %s: %w", path, err)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetStatus transitions a stored entry to a new status and re-saves
// it; the entry's hash is identity, not status, so this never changes
// EntryHashHex.
func SetStatus(stateDir, id string, status Status) (Entry, error) {
	entry, err := Load(stateDir, id)
	if err != nil {
		return Entry{}, err
	}
	entry.Status = status
	if err := Save(stateDir, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
