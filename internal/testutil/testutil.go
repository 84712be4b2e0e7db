// Package testutil builds the fixture tree shared by this module's
// package tests.
//
// Grounded on common/src/testutils.rs's setup_test_dir: the same
// foo/{0.txt, bar/{1.txt,2.txt,3.txt}, baz/{4.txt,5.txt->../bar/2.txt,
// 6.txt->$bar/3.txt (absolute)}} tree, built with os.WriteFile/os.Symlink
// in place of tokio::fs's async calls.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupTree creates the fixture tree under a fresh t.TempDir() and
// returns the path to its "foo" root:
//
//	foo
//	|- 0.txt
//	|- bar
//	|  |- 1.txt
//	|  |- 2.txt
//	|  |- 3.txt
//	|- baz
//	   |- 4.txt
//	   |- 5.txt -> ../bar/2.txt
//	   |- 6.txt -> <absolute path to> foo/bar/3.txt
func SetupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	foo := filepath.Join(root, "foo")
	require.NoError(t, os.Mkdir(foo, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "0.txt"), []byte("0"), 0o644))

	bar := filepath.Join(foo, "bar")
	require.NoError(t, os.Mkdir(bar, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bar, "1.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bar, "2.txt"), []byte("2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bar, "3.txt"), []byte("3"), 0o644))

	baz := filepath.Join(foo, "baz")
	require.NoError(t, os.Mkdir(baz, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baz, "4.txt"), []byte("4"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join("..", "bar", "2.txt"), filepath.Join(baz, "5.txt")))
	require.NoError(t, os.Symlink(filepath.Join(bar, "3.txt"), filepath.Join(baz, "6.txt")))

	return foo
}

// SetupSmallTree creates a trimmed, symlink-free variant of SetupTree's
// fixture (just foo/{0.txt, bar/{1.txt,2.txt}, baz/3.txt}) for tests that
// only need one file per directory and don't exercise symlink handling.
func SetupSmallTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	foo := filepath.Join(root, "foo")
	require.NoError(t, os.MkdirAll(filepath.Join(foo, "bar"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(foo, "baz"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "0.txt"), []byte("0"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "bar", "1.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "bar", "2.txt"), []byte("2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "baz", "3.txt"), []byte("3"), 0o644))
	return foo
}
