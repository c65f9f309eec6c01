package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BranchRepo abstracts the external branch workspace that conversion tooling
// checks revisions out into, one directory tree per source. Removal runs
// inside the source delete cascade and is best-effort there.
type BranchRepo interface {
	RemoveSource(ctx context.Context, workID, sourceID string) error
}

// FilesystemBranchRepo keeps branch workspaces on local disk under
// <baseDir>/<workID>/<sourceID>.
type FilesystemBranchRepo struct {
	baseDir string
}

// NewFilesystemBranchRepo ensures the base directory exists.
func NewFilesystemBranchRepo(baseDir string) (*FilesystemBranchRepo, error) {
	if baseDir == "" {
		baseDir = "./branches"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create branch workspace dir: %w", err)
	}
	return &FilesystemBranchRepo{baseDir: baseDir}, nil
}

// RemoveSource deletes the source's workspace tree. A missing tree is not an
// error; the source may never have been checked out.
func (r *FilesystemBranchRepo) RemoveSource(ctx context.Context, workID, sourceID string) error {
	if workID == "" || sourceID == "" {
		return fmt.Errorf("work and source ids are required")
	}
	path := filepath.Join(r.baseDir, workID, sourceID)
	rel, err := filepath.Rel(r.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("workspace path escapes base dir")
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove branch workspace: %w", err)
	}
	return nil
}
