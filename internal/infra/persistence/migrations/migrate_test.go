package migrations

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDirSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db", "migrations")
	require.NoError(t, os.MkdirAll(path, 0o755))

	resolved, err := resolveDir(path)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(resolved))
	require.Equal(t, filepath.Clean(resolved), resolved)
}

func TestResolveDirMissing(t *testing.T) {
	_, err := resolveDir(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestResolveDirFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	_, err := resolveDir(path)
	require.True(t, errors.Is(err, errNotDirectory), "got %v", err)
}

func TestFileURLUnixAndWindows(t *testing.T) {
	for _, path := range []string{
		"/tmp/migrations",
		"/Users/example/project/db/migrations",
		"C:/tmp/migrations",
	} {
		got := fileURL(path)
		require.True(t, strings.HasPrefix(got, "file://"), got)
		require.Greater(t, len(got), len("file://"))
	}
}

func TestEmbeddedSourceListsMigrations(t *testing.T) {
	src, path, err := openSource("")
	require.NoError(t, err)
	defer src.Close()
	require.Equal(t, embeddedPath, path)

	first, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	next, err := src.Next(first)
	require.NoError(t, err)
	require.EqualValues(t, 2, next)

	body, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer body.Close()
}

func TestApplyValidatesPathBeforeConnecting(t *testing.T) {
	err := Apply(context.Background(), "postgresql://invalid", "does-not-exist", nil)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRollbackValidatesPathBeforeConnecting(t *testing.T) {
	err := Rollback(context.Background(), "postgresql://invalid", "still-missing", 1, nil)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
