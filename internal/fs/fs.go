// Package fs provides the filesystem seam for forge.
// Components take an FS so tests can run against t.TempDir without stubs
// leaking into production paths.
package fs

import (
	"os"
	"path/filepath"
)

// FS is the filesystem interface used by forge components.
type FS interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
	Rename(oldpath, newpath string) error
	ReadDir(name string) ([]os.DirEntry, error)
	Glob(pattern string) ([]string, error)
}

// RealFS implements FS against the host filesystem.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() RealFS { return RealFS{} }

func (RealFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (RealFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (RealFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (RealFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (RealFS) Remove(name string) error { return os.Remove(name) }

func (RealFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (RealFS) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

func (RealFS) Glob(pattern string) ([]string, error) { return filepath.Glob(pattern) }

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partial document.
func WriteFileAtomic(fsys FS, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}

// Exists reports whether the path exists. Errors other than not-exist are
// treated as existing so callers fail on the subsequent real operation.
func Exists(fsys FS, path string) bool {
	_, err := fsys.Stat(path)
	return !os.IsNotExist(err)
}
