// Package archive provides path-addressed blob storage for raw
// request/response traffic and derived transcripts.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Get when no blob exists at the given path.
var ErrNotFound = errors.New("archive: not found")

// Store is the blob archive interface: hierarchical path-addressed
// get/put. Internal durability mechanics are the store's concern.
type Store interface {
	Get(path string) ([]byte, error)
	Put(path string, data []byte) error
	Delete(path string) error
}

// FSStore keeps blobs as files under a root directory. Archive paths use
// forward slashes regardless of platform.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns a store.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("archive: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// resolve maps an archive path to a filesystem path, rejecting escapes
// from the root.
func (s *FSStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("archive: invalid path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Get returns the blob at path, or ErrNotFound.
func (s *FSStore) Get(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}
	return data, nil
}

// Put writes the blob at path, creating parent directories and
// overwriting any existing blob.
func (s *FSStore) Put(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	return nil
}

// Delete removes the blob at path. Missing blobs are not an error.
func (s *FSStore) Delete(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive: delete %s: %w", path, err)
	}
	return nil
}
