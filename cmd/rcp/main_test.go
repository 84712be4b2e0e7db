package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{}
}

func TestRunRcpCopiesSingleFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(root, "b.txt")

	var f rcpFlags
	cmd := newTestCmd()
	require.NoError(t, runRcp(cmd, []string{src, dst}, &f))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRunRcpMultipleSourcesRequireExistingDstDir(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))
	dst := filepath.Join(root, "nope")

	var f rcpFlags
	cmd := newTestCmd()
	err := runRcp(cmd, []string{a, b, dst}, &f)
	assert.Error(t, err)
}

func TestRunRcpMultipleSourcesIntoDirectory(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))
	dst := filepath.Join(root, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	var f rcpFlags
	cmd := newTestCmd()
	require.NoError(t, runRcp(cmd, []string{a, b, dst}, &f))

	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := os.Stat(filepath.Join(dst, name))
		require.NoError(t, err)
	}
}

func TestRunRcpRejectsTooFewArgs(t *testing.T) {
	var f rcpFlags
	cmd := newTestCmd()
	err := runRcp(cmd, []string{"onlyone"}, &f)
	assert.Error(t, err)
}

func TestRunRcpProtocolVersionPrintsAndSkipsArgs(t *testing.T) {
	var f rcpFlags
	f.protocolVersion = true
	cmd := newTestCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, runRcp(cmd, nil, &f))
	assert.NotEmpty(t, out.String())
}
