package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemBranchRepoRemovesWorkspace(t *testing.T) {
	base := t.TempDir()
	repo, err := NewFilesystemBranchRepo(base)
	require.NoError(t, err)

	dir := filepath.Join(base, "work-1", "src-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "score.musicxml"), []byte("<score/>"), 0o644))

	require.NoError(t, repo.RemoveSource(context.Background(), "work-1", "src-1"))
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	// Sources that were never checked out have no workspace to remove.
	require.NoError(t, repo.RemoveSource(context.Background(), "work-1", "src-2"))
}

func TestFilesystemBranchRepoRejectsEscapingPaths(t *testing.T) {
	repo, err := NewFilesystemBranchRepo(t.TempDir())
	require.NoError(t, err)

	require.Error(t, repo.RemoveSource(context.Background(), "", "src-1"))
	require.Error(t, repo.RemoveSource(context.Background(), "work-1", ""))
	require.Error(t, repo.RemoveSource(context.Background(), "..", ".."))
}
