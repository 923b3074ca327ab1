// Package storage keeps generated files on local disk or in S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage persists a named object and returns where it was written
type Storage interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// LocalStorage writes objects under a base directory
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the directory when missing
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Save writes body to dir/key
func (l *LocalStorage) Save(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	// rooting the key keeps it inside dir
	path := filepath.Join(l.dir, filepath.Clean("/"+key))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}
