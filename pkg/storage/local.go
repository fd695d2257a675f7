package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStorage implements Storage on the local filesystem. Files live under
// basePath/<userID>/<8-char-id>_<sanitized-name>.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a local filesystem storage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes the blob and returns the path relative to the user directory.
func (s *LocalStorage) Save(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error) {
	userDir := filepath.Join(s.basePath, userID.String())
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}

	stored := fmt.Sprintf("%s_%s", uuid.NewString()[:8], sanitizeFilename(filename))
	fullPath := filepath.Join(userDir, stored)

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return stored, nil
}

// Open returns a reader for a stored blob.
func (s *LocalStorage) Open(ctx context.Context, userID uuid.UUID, path string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(userID, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes a stored blob.
func (s *LocalStorage) Delete(ctx context.Context, userID uuid.UUID, path string) error {
	fullPath, err := s.resolve(userID, path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// resolve joins and re-checks the path so a stored name cannot escape the
// user directory.
func (s *LocalStorage) resolve(userID uuid.UUID, path string) (string, error) {
	userDir := filepath.Join(s.basePath, userID.String())
	fullPath := filepath.Join(userDir, path)
	if !strings.HasPrefix(fullPath, userDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid storage path %q", path)
	}
	return fullPath, nil
}

// sanitizeFilename removes unsafe characters from filenames.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	cleaned := replacer.Replace(name)
	if cleaned == "" {
		cleaned = "upload"
	}
	return cleaned
}
