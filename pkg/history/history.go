// Package history reads and appends the shared session history log
// (history.jsonl) maintained jointly with the Claude CLI, and reads per
// session transcript files written by the CLI.
//
// The log is newline-delimited JSON; each line is independent. Malformed
// lines are dropped with a warning rather than failing the read, because the
// file is shared with another writer.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one session record from the history log.
type Entry struct {
	SessionID string `json:"sessionId"`
	Display   string `json:"display"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	Project   string `json:"project"`
}

// Index provides read/filter/append over one history log file.
type Index struct {
	path string
	log  *slog.Logger
}

// NewIndex creates an index over the history log at path.
func NewIndex(path string) *Index {
	return &Index{
		path: path,
		log:  slog.With("component", "history", "path", path),
	}
}

// Read parses the log and returns surviving entries sorted newest-first.
// A missing file yields an empty slice.
func (i *Index) Read() []Entry {
	entries, _ := i.readCounted()
	return entries
}

// readCounted returns the surviving entries plus the count of malformed
// non-empty lines, for the health check.
func (i *Index) readCounted() ([]Entry, int) {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if !os.IsNotExist(err) {
			i.log.Warn("Failed to read history log", "error", err)
		}
		return nil, 0
	}

	var entries []Entry
	malformed := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Display is a pointer so a missing key is distinguishable from
		// an empty value; entries without it are malformed.
		var raw struct {
			SessionID string  `json:"sessionId"`
			Display   *string `json:"display"`
			Timestamp int64   `json:"timestamp"`
			Project   string  `json:"project"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil ||
			raw.SessionID == "" || raw.Display == nil || raw.Project == "" || raw.Timestamp == 0 {
			malformed++
			i.log.Warn("Dropping malformed history line")
			continue
		}
		entries = append(entries, Entry{
			SessionID: raw.SessionID,
			Display:   *raw.Display,
			Timestamp: raw.Timestamp,
			Project:   raw.Project,
		})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Timestamp > entries[b].Timestamp
	})
	return entries, malformed
}

// FilterByDirectory keeps entries whose project resolves to the same
// canonical path as dir, preserving newest-first order. String equality is
// the fallback when canonicalization fails.
func (i *Index) FilterByDirectory(entries []Entry, dir string) []Entry {
	want := canonical(dir)
	var out []Entry
	for _, e := range entries {
		if canonical(e.Project) == want || e.Project == dir {
			out = append(out, e)
		}
	}
	return out
}

// Latest returns the most recent entry for dir, or false when none exists.
func (i *Index) Latest(dir string) (Entry, bool) {
	filtered := i.FilterByDirectory(i.Read(), dir)
	if len(filtered) == 0 {
		return Entry{}, false
	}
	return filtered[0], true
}

// List returns up to limit entries for dir, newest first. A non-positive
// limit returns all of them.
func (i *Index) List(dir string, limit int) []Entry {
	filtered := i.FilterByDirectory(i.Read(), dir)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// Find returns the first entry with the given session id.
func (i *Index) Find(sessionID string) (Entry, bool) {
	for _, e := range i.Read() {
		if e.SessionID == sessionID {
			return e, true
		}
	}
	return Entry{}, false
}

// HealthWarning reports a warning message when the majority of non-empty
// lines are malformed, empty string otherwise.
func (i *Index) HealthWarning() string {
	entries, malformed := i.readCounted()
	total := len(entries) + malformed
	if total == 0 || malformed*2 <= total {
		return ""
	}
	return fmt.Sprintf("history log unhealthy: %d of %d lines malformed", malformed, total)
}

// Append writes one entry with the current timestamp. Best-effort: failures
// are logged and swallowed, because the log is advisory.
func (i *Index) Append(sessionID, display, project string) {
	e := Entry{
		SessionID: sessionID,
		Display:   display,
		Timestamp: time.Now().UnixMilli(),
		Project:   project,
	}
	data, err := json.Marshal(e)
	if err != nil {
		i.log.Warn("Failed to marshal history entry", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		i.log.Warn("Failed to create history directory", "error", err)
		return
	}
	f, err := os.OpenFile(i.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		i.log.Warn("Failed to open history log for append", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		i.log.Warn("Failed to append history entry", "error", err)
	}
}

// canonical resolves a path to its absolute, symlink-free form, falling back
// to the input when resolution fails.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
