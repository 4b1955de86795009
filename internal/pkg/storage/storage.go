package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrFileNotFound = errors.New("file not found")

// Store keeps uploaded documents. Paths returned by Save are relative to the
// store root and are what gets persisted on the owning row.
type Store interface {
	Save(ctx context.Context, prefix, originalName string, r io.Reader) (string, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// LocalStore writes files under a root directory on local disk
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Save stores r as <prefix>-<uuid><ext>
func (s *LocalStore) Save(ctx context.Context, prefix, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), strings.ToLower(filepath.Ext(originalName)))
	f, err := os.OpenFile(filepath.Join(s.root, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

// Open returns a reader for a stored file
func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	return f, err
}

// Remove deletes a stored file; a missing file is not an error
func (s *LocalStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// resolve keeps lookups inside root
func (s *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Base(filepath.Clean(path))
	if clean == "." || clean == string(filepath.Separator) || clean != path {
		return "", ErrFileNotFound
	}
	return filepath.Join(s.root, clean), nil
}
