// Package storage provides the blob store for uploaded and normalized
// statement files, addressable by the generated path persisted on the job.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("stored file not found")

// Storage stores normalized statement bytes per user.
type Storage interface {
	// Save writes the blob and returns the generated storage path.
	Save(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error)

	// Open returns a sequential reader for a previously saved blob.
	Open(ctx context.Context, userID uuid.UUID, path string) (io.ReadCloser, error)

	// Delete removes a stored blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, userID uuid.UUID, path string) error
}

// Config holds storage configuration.
type Config struct {
	BasePath string
}

// New creates the storage backend.
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.BasePath)
}
