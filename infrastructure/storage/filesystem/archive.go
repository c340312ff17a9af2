// Package filesystem stores sequence documents on the local filesystem and
// writes the actions file read by the robot controller.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/robotflow/domain/sequence"
)

// Archive implements sequence.Archive in a directory tree.
type Archive struct {
	basePath string
}

// NewArchive creates the base directory if needed.
func NewArchive(basePath string) (*Archive, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Archive{basePath: basePath}, nil
}

func (a *Archive) path(runID string) string {
	return filepath.Join(a.basePath, filepath.FromSlash(sequence.Key("", runID)))
}

// Put writes the document and returns its path.
func (a *Archive) Put(ctx context.Context, runID string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if runID == "" || filepath.Base(runID) != runID {
		return "", sequence.ErrInvalidRunID
	}
	p := a.path(runID)
	if err := WriteFileAtomic(p, content); err != nil {
		return "", err
	}
	return p, nil
}

// Get reads the document for a run.
func (a *Archive) Get(ctx context.Context, runID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID == "" || filepath.Base(runID) != runID {
		return nil, sequence.ErrInvalidRunID
	}
	data, err := os.ReadFile(a.path(runID))
	if os.IsNotExist(err) {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}
	return data, nil
}

// WriteFileAtomic replaces path with content through a temp file and rename,
// so a controller polling the file never sees a partial document.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

var _ sequence.Archive = (*Archive)(nil)
