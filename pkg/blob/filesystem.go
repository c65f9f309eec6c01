package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore persists blobs on disk under baseDir/container/key.
type FilesystemStore struct {
	baseDir string
}

// NewFilesystemStore ensures the base directory exists and returns a handle.
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

// Put writes the object and returns its locator.
func (s *FilesystemStore) Put(ctx context.Context, container, key string, data []byte, contentType string) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return Locator{}, err
	}
	path, err := s.resolve(container, key)
	if err != nil {
		return Locator{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Locator{}, fmt.Errorf("prepare blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Locator{}, fmt.Errorf("write blob %s/%s: %w", container, key, err)
	}
	return Locator{
		Container:   container,
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Checksum:    Checksum(data),
	}, nil
}

// Get reads the object bytes.
func (s *FilesystemStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(container, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blob %s/%s: %w", container, key, err)
	}
	return data, nil
}

// Delete removes the object if present. A missing object is not an error.
func (s *FilesystemStore) Delete(ctx context.Context, container, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(container, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s/%s: %w", container, key, err)
	}
	return nil
}

func (s *FilesystemStore) resolve(container, key string) (string, error) {
	if container == "" || key == "" {
		return "", fmt.Errorf("blob locator incomplete: container=%q key=%q", container, key)
	}
	path := filepath.Join(s.baseDir, container, filepath.FromSlash(key))
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob key escapes base directory: %q", key)
	}
	return clean, nil
}
