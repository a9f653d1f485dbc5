package receipt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by a Store when no document exists for an id.
var ErrNotFound = errors.New("receipt document not found")

// Store persists rendered receipts keyed by receipt id. Ids reaching a Store
// have already passed ValidID.
type Store interface {
	Put(ctx context.Context, id string, pdf []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
}

// FileStore keeps receipts as files in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create receipt dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".pdf")
}

// Put writes through a temp file and rename so readers never see a partial
// document.
func (s *FileStore) Put(_ context.Context, id string, pdf []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".receipt-*")
	if err != nil {
		return fmt.Errorf("create temp receipt: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp receipt: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("store receipt %s: %w", id, err)
	}
	return nil
}

// Get reads a stored receipt.
func (s *FileStore) Get(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read receipt %s: %w", id, err)
	}
	return data, nil
}
