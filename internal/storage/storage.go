// Package storage persists uploaded files on the local filesystem.
//
// Files are written atomically: content lands in a temporary file in the
// upload directory, is synced, and is then renamed into place. A crash
// mid-write leaves only a temporary file that the orphan sweeper cleans
// up; readers never observe a partially written upload.
package storage

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// tempPattern names in-flight writes. The dot prefix keeps them apart
// from stored uploads so directory listings can tell the two kinds of
// file apart.
const tempPattern = ".upload-*"

// Dir is a handle to the upload directory. All stored files live
// directly under its root.
type Dir struct {
	root string
}

// New resolves root to an absolute path, creates the directory if it
// does not exist, and returns a handle to it.
func New(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute path of the upload directory.
func (d *Dir) Root() string {
	return d.root
}

// NewName generates a storage filename: 32 lowercase hex characters from
// a fresh random UUID, plus the extension. Collisions are as unlikely as
// UUID collisions, so concurrent writers never race on a name.
func NewName(ext string) string {
	id := uuid.New()
	return hex.EncodeToString(id[:]) + ext
}

// Write stores content under a freshly generated name and returns both
// the name and the absolute path. The file appears at the returned path
// with its full content or not at all.
func (d *Dir) Write(content []byte, ext string) (name, absPath string, err error) {
	name = NewName(ext)
	absPath = filepath.Join(d.root, name)

	tmp, err := os.CreateTemp(d.root, tempPattern)
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return "", "", fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return "", "", fmt.Errorf("sync %s: %w", name, err)
	}
	// Close before rename; Windows refuses to rename an open file.
	if err = tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close %s: %w", name, err)
	}
	if err = os.Rename(tmp.Name(), absPath); err != nil {
		return "", "", fmt.Errorf("rename into place: %w", err)
	}
	// Sync the directory to commit the rename. Not every filesystem
	// supports this, so failures are ignored.
	if dir, openErr := os.Open(d.root); openErr == nil {
		dir.Sync()
		dir.Close()
	}

	return name, absPath, nil
}

// Delete removes a stored file. It refuses paths outside the upload
// directory so a corrupted database row cannot reach into the rest of
// the filesystem.
func (d *Dir) Delete(absPath string) error {
	if filepath.Dir(filepath.Clean(absPath)) != d.root {
		return fmt.Errorf("delete %s: outside upload dir", absPath)
	}
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("delete %s: %w", filepath.Base(absPath), err)
	}
	return nil
}
