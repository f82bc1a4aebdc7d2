package matrix

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
	"github.com/forgeci/forge/internal/steps"
)

// fixture builds a registry, lock store, and manager over a temp tree.
type fixture struct {
	reg          *steps.Registry
	store        *lockstore.Store
	mgr          *Manager
	artifactsDir string
	matrixPath   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	scriptsDir := filepath.Join(dir, "scripts")
	artifactsDir := filepath.Join(dir, "dist")
	require.NoError(t, os.MkdirAll(scriptsDir, 0o755))
	require.NoError(t, os.MkdirAll(artifactsDir, 0o755))

	reg := steps.Builtin()
	for _, s := range reg.All() {
		require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, s.Script), []byte("#!/bin/sh\n"), 0o755))
	}

	tick := 0
	now := func() time.Time {
		tick++
		return time.Date(2026, 2, 1, 9, 0, tick-1, 0, time.UTC)
	}

	fsys := forgefs.NewRealFS()
	store := lockstore.New(fsys, &exec.FakeRunner{}, scriptsDir, filepath.Join(dir, "backups"), false, now)
	matrixPath := filepath.Join(dir, "matrix.json")
	mgr := NewManager(fsys, reg, store, matrixPath, now)
	store.SetMatrixSyncer(mgr)

	return &fixture{reg: reg, store: store, mgr: mgr, artifactsDir: artifactsDir, matrixPath: matrixPath}
}

func TestRegenerate(t *testing.T) {
	t.Run("downstream is the exact reverse of upstream", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.mgr.Regenerate()
		require.NoError(t, err)

		// For any steps A, B: B in downstream(A) iff A in upstream(B).
		for _, a := range f.reg.All() {
			for _, b := range f.reg.All() {
				inDown := contains(doc.Downstream(a.ID), b.ID)
				inUp := contains(doc.Upstream(b.ID), a.ID)
				assert.Equal(t, inUp, inDown, "A=%s B=%s", a.ID, b.ID)
			}
		}
	})

	t.Run("reflects live lock state", func(t *testing.T) {
		f := newFixture(t)
		pt, _ := f.reg.Get("pytorch")
		_, err := f.store.Lock(context.Background(), pt, "torch-2.5.0.whl")
		require.NoError(t, err)

		doc, err := f.mgr.Regenerate()
		require.NoError(t, err)

		st, ok := doc.Status("pytorch")
		require.True(t, ok)
		assert.Equal(t, lockstore.Locked, st)
		assert.Equal(t, "torch-2.5.0.whl", doc.Entries["pytorch"].Artifact)
		assert.NotEmpty(t, doc.Entries["pytorch"].LastSuccess)

		st, _ = doc.Status("torchvision")
		assert.Equal(t, lockstore.Unlocked, st)
	})

	t.Run("persists a versioned document", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Regenerate()
		require.NoError(t, err)

		data, err := os.ReadFile(f.matrixPath)
		require.NoError(t, err)

		var doc Document
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, SchemaVersion, doc.SchemaVersion)
		assert.NotEmpty(t, doc.GeneratedAt)
		assert.Len(t, doc.Entries, len(f.reg.All()))
	})

	t.Run("rebuilds wholesale after unlock", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		pt, _ := f.reg.Get("pytorch")

		_, err := f.store.Lock(ctx, pt, "torch-2.5.0.whl")
		require.NoError(t, err)
		require.NoError(t, f.store.Unlock("pytorch"))

		doc, err := f.mgr.Load()
		require.NoError(t, err)
		st, _ := doc.Status("pytorch")
		assert.Equal(t, lockstore.Unlocked, st, "unlock hook must refresh the document")
		assert.Empty(t, doc.Entries["pytorch"].Artifact)
	})
}

func TestScanArtifacts(t *testing.T) {
	t.Run("locks matching unlocked steps", func(t *testing.T) {
		f := newFixture(t)
		writeArtifact(t, f.artifactsDir, "torch-2.5.0+rocm6.2.whl")
		writeArtifact(t, f.artifactsDir, "torchvision-0.20.0.whl")
		writeArtifact(t, f.artifactsDir, "numpy-2.1.0.whl") // no rule

		result, err := f.mgr.ScanArtifacts(context.Background(), f.artifactsDir)
		require.NoError(t, err)

		assert.Len(t, result.Locked, 2)
		assert.Equal(t, []string{"numpy-2.1.0.whl"}, result.Unmatched)
		assert.Equal(t, lockstore.Locked, f.store.Check("pytorch"))
		assert.Equal(t, lockstore.Locked, f.store.Check("torchvision"))
		assert.Equal(t, lockstore.Unlocked, f.store.Check("torchaudio"))
	})

	t.Run("second scan is a no-op", func(t *testing.T) {
		f := newFixture(t)
		writeArtifact(t, f.artifactsDir, "torch-2.5.0.whl")
		ctx := context.Background()

		first, err := f.mgr.ScanArtifacts(ctx, f.artifactsDir)
		require.NoError(t, err)
		require.Len(t, first.Locked, 1)

		rec1, ok, err := f.store.Record("pytorch")
		require.NoError(t, err)
		require.True(t, ok)

		second, err := f.mgr.ScanArtifacts(ctx, f.artifactsDir)
		require.NoError(t, err)
		assert.Empty(t, second.Locked, "already-locked step must not relock")

		rec2, _, err := f.store.Record("pytorch")
		require.NoError(t, err)
		assert.Equal(t, rec1, rec2, "record must be untouched by rescan")
	})

	t.Run("missing directory scans as empty", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.mgr.ScanArtifacts(context.Background(), filepath.Join(f.artifactsDir, "absent"))
		require.NoError(t, err)
		assert.Empty(t, result.Locked)
	})
}

func writeArtifact(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("wheel"), 0o644))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
