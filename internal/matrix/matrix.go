// Package matrix maintains the dependency matrix: the persisted,
// direct-edge audit graph of step relationships and lock statuses.
//
// The matrix is advisory metadata for operators and agents. It is always
// regenerated wholesale from the step registry and live lock state, never
// patched incrementally, so the persisted document can not drift from
// reality. It is never consulted for execution ordering.
package matrix

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/forgeci/forge/internal/errors"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
	"github.com/forgeci/forge/internal/steps"
)

// SchemaVersion is the matrix document schema version.
const SchemaVersion = "1.0"

// Entry is the matrix row for one step.
type Entry struct {
	StepID      string           `json:"step_id"`
	Status      lockstore.Status `json:"status"`
	Artifact    string           `json:"artifact,omitempty"`
	LastSuccess string           `json:"last_success,omitempty"` // RFC3339, lock time

	// Upstream is copied from the step registry, order preserved.
	Upstream []string `json:"upstream"`

	// Downstream holds direct reverse edges only: B is listed under A
	// iff A appears in B's upstream list. No transitive closure.
	Downstream []string `json:"downstream"`
}

// Document is the persisted dependency matrix, keyed by step id.
type Document struct {
	SchemaVersion string           `json:"schema_version"`
	GeneratedAt   string           `json:"generated_at"` // RFC3339
	Entries       map[string]Entry `json:"entries"`
}

// Status returns a step's status in the document.
func (d Document) Status(stepID string) (lockstore.Status, bool) {
	e, ok := d.Entries[stepID]
	return e.Status, ok
}

// Upstream returns a step's direct upstream ids.
func (d Document) Upstream(stepID string) []string {
	return d.Entries[stepID].Upstream
}

// Downstream returns a step's direct downstream dependents.
func (d Document) Downstream(stepID string) []string {
	return d.Entries[stepID].Downstream
}

// Manager regenerates and persists the matrix document.
type Manager struct {
	fsys     forgefs.FS
	registry *steps.Registry
	store    *lockstore.Store
	path     string
	now      func() time.Time
}

// NewManager creates a Manager writing the document to path.
func NewManager(fsys forgefs.FS, registry *steps.Registry, store *lockstore.Store, path string, now func() time.Time) *Manager {
	return &Manager{
		fsys:     fsys,
		registry: registry,
		store:    store,
		path:     path,
		now:      now,
	}
}

// Regenerate rebuilds the whole document from the registry and live lock
// state, persists it atomically, and returns it.
func (m *Manager) Regenerate() (Document, error) {
	doc := Document{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   m.now().UTC().Format(time.RFC3339),
		Entries:       make(map[string]Entry),
	}

	for _, step := range m.registry.All() {
		entry := Entry{
			StepID:   step.ID,
			Status:   m.store.Check(step.ID),
			Upstream: append([]string(nil), step.Upstream...),
		}
		if rec, ok, err := m.store.Record(step.ID); err != nil {
			return Document{}, err
		} else if ok {
			entry.Artifact = rec.ArtifactName
			entry.LastSuccess = rec.LockedAt
		}
		doc.Entries[step.ID] = entry
	}

	// Derive direct reverse edges.
	downstream := make(map[string]map[string]bool)
	for _, step := range m.registry.All() {
		for _, up := range step.Upstream {
			if downstream[up] == nil {
				downstream[up] = make(map[string]bool)
			}
			downstream[up][step.ID] = true
		}
	}
	for id, deps := range downstream {
		entry := doc.Entries[id]
		for dep := range deps {
			entry.Downstream = append(entry.Downstream, dep)
		}
		sort.Strings(entry.Downstream)
		doc.Entries[id] = entry
	}

	if err := m.save(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Sync implements lockstore.MatrixSyncer: a full regenerate, discarding
// the document.
func (m *Manager) Sync() error {
	_, err := m.Regenerate()
	return err
}

// Load reads the persisted document. Callers wanting guaranteed-fresh data
// should use Regenerate instead.
func (m *Manager) Load() (Document, error) {
	data, err := m.fsys.ReadFile(m.path)
	if err != nil {
		return Document{}, errors.Wrap(errors.EStoreCorrupt, "failed to read matrix document", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, errors.Wrap(errors.EStoreCorrupt, "invalid matrix document", err)
	}
	return doc, nil
}

func (m *Manager) save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.EMatrixWriteFailed, "failed to encode matrix document", err)
	}
	data = append(data, '\n')
	if err := m.fsys.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.Wrap(errors.EMatrixWriteFailed, "failed to create matrix directory", err)
	}
	if err := forgefs.WriteFileAtomic(m.fsys, m.path, data, 0o644); err != nil {
		return errors.Wrap(errors.EMatrixWriteFailed, "failed to write matrix document", err)
	}
	return nil
}
