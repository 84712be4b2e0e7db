package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRlinkHardlinksWhenNoUpdate(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(root, "b.txt")

	var f rlinkFlags
	require.NoError(t, runRlink(&cobra.Command{}, []string{src, dst}, &f))

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestRunRlinkCopiesFromUpdateRootWhenDiffers(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("old"), 0o644))
	updateRoot := filepath.Join(root, "update")
	require.NoError(t, os.Mkdir(updateRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(updateRoot, "a.txt"), []byte("new"), 0o644))
	newer := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(updateRoot, "a.txt"), newer, newer))
	dst := filepath.Join(root, "b.txt")

	f := rlinkFlags{update: filepath.Join(updateRoot, "a.txt"), updateCompare: "mtime"}
	require.NoError(t, runRlink(&cobra.Command{}, []string{src, dst}, &f))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.False(t, os.SameFile(srcInfo, dstInfo))
}

func TestRunRlinkRejectsTooFewArgs(t *testing.T) {
	var f rlinkFlags
	err := runRlink(&cobra.Command{}, []string{"onlyone"}, &f)
	assert.Error(t, err)
}
