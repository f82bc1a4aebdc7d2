// Package journal provides the append-only change journal for forge.
// Entries are stored in an append-only JSONL file read by humans and
// agents; entries are never mutated, only appended.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the journal entry schema version.
const SchemaVersion = "1.0"

// Entry statuses written by forge. External writers may use others
// (notably "in_progress" while a run is being worked on).
const (
	StatusFailed     = "failed"
	StatusInProgress = "in_progress"
)

// Entry is a single journal record.
// This is the public contract for the journal file format.
type Entry struct {
	SchemaVersion  string   `json:"schema_version"`
	ID             string   `json:"id"`        // UUIDv7
	Timestamp      string   `json:"timestamp"` // RFC3339
	Status         string   `json:"status"`
	Summary        string   `json:"summary"`
	Files          []string `json:"files,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	StartedAt      string   `json:"started_at,omitempty"`
	EndedAt        string   `json:"ended_at,omitempty"`
	ExitCode       int      `json:"exit_code,omitempty"`
	ArchivePath    string   `json:"archive_path,omitempty"`
}

// NewEntry creates an entry with a fresh id and timestamp.
func NewEntry(now time.Time, status, summary string) Entry {
	return Entry{
		SchemaVersion: SchemaVersion,
		ID:            uuid.Must(uuid.NewV7()).String(),
		Timestamp:     now.UTC().Format(time.RFC3339),
		Status:        status,
		Summary:       summary,
	}
}

// Append appends a single entry to the journal file.
// The file is created lazily if it doesn't exist.
// Each entry is written as a single JSON line followed by newline.
func Append(path string, e Entry) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Tail returns the last entry in the journal, if any. A missing journal
// is (zero, false, nil). An unparseable final line is also reported as
// absent; the journal is advisory and must not block runs.
func Tail(path string) (Entry, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, false, err
	}
	if last == "" {
		return Entry{}, false, nil
	}

	var e Entry
	if err := json.Unmarshal([]byte(last), &e); err != nil {
		return Entry{}, false, nil
	}
	return e, true, nil
}
