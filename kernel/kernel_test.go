package kernel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/pathspec"
	"github.com/wykurz/rcp-sub001/preserve"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/walk"
)

func gather(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.Counter.GetValue()
}

func setupS1(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	foo := filepath.Join(root, "foo")
	require.NoError(t, os.MkdirAll(filepath.Join(foo, "bar"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(foo, "baz"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "0.txt"), []byte("0"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "bar", "1.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "bar", "2.txt"), []byte("2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(foo, "baz", "3.txt"), []byte("3"), 0o644))
	return root
}

func TestCopyOpsReproducesTree(t *testing.T) {
	root := setupS1(t)
	src := filepath.Join(root, "foo")
	dst := filepath.Join(root, "dst")

	ops := &CopyOps{
		Throttle: throttle.New(throttle.Config{}),
		Preserve: fsobj.PreserveDefaultCp(),
		Applier:  preserve.NewApplier(nil),
		Stats:    stats.New(),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: ops.Stats}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	for _, rel := range []string{"0.txt", "bar/1.txt", "bar/2.txt", "baz/3.txt"} {
		data, err := os.ReadFile(filepath.Join(dst, rel))
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(rel)[:1], string(data[:1]))
	}
	assert.Equal(t, float64(4), gather(ops.Stats.FilesCopied))
	assert.Equal(t, float64(3), gather(ops.Stats.DirsCreated))
}

func TestCopyOpsPreservesModeWhenRequested(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o741))
	dst := filepath.Join(root, "dst")

	policy, err := pathspec.ParsePreserveSpec("f:mode d:mode")
	require.NoError(t, err)

	ops := &CopyOps{
		Throttle: throttle.New(throttle.Config{}),
		Preserve: policy,
		Applier:  preserve.NewApplier(nil),
		Stats:    stats.New(),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: ops.Stats}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	info, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o741), info.Mode().Perm())
}

func TestCopyOpsOverwriteSkipsWhenEqual(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o644))
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f"), []byte("already-there"), 0o644))

	srcInfo, err := os.Stat(filepath.Join(src, "f"))
	require.NoError(t, err)
	require.NoError(t, os.Truncate(filepath.Join(dst, "f"), srcInfo.Size()))
	require.NoError(t, os.Chtimes(filepath.Join(dst, "f"), srcInfo.ModTime(), srcInfo.ModTime()))

	st := stats.New()
	ops := &CopyOps{
		Throttle:         throttle.New(throttle.Config{}),
		Preserve:         fsobj.PreserveDefaultCp(),
		Applier:          preserve.NewApplier(nil),
		Stats:            st,
		Overwrite:        true,
		OverwriteCompare: mustSimpleCompare(t, "mtime,size"),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: st}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	assert.Equal(t, float64(1), gather(st.Skipped))
	data, err := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.NotEqual(t, "x", string(data))
}

func TestCopyOpsFileFailsWhenDstExistsWithoutOverwrite(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o644))
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f"), []byte("already-there"), 0o644))

	ops := &CopyOps{Throttle: throttle.New(throttle.Config{}), Preserve: fsobj.PreserveDefaultCp(), Applier: preserve.NewApplier(nil), Stats: stats.New()}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: ops.Stats, FailEarly: true}
	err := walk.Walk(context.Background(), src, dst, opts)
	assert.Error(t, err)
	data, rerr := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, rerr)
	assert.Equal(t, "already-there", string(data))
}

func TestCopyOpsDirFailsWhenDstExistsWithoutOverwrite(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	ops := &CopyOps{Throttle: throttle.New(throttle.Config{}), Preserve: fsobj.PreserveDefaultCp(), Applier: preserve.NewApplier(nil), Stats: stats.New()}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: ops.Stats, FailEarly: true}
	err := walk.Walk(context.Background(), src, dst, opts)
	assert.Error(t, err)
}

func TestCopyOpsSymlinkSkipsWhenEqualUnderOverwriteCompare(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.Symlink("target", filepath.Join(src, "link")))
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.Symlink("target", filepath.Join(dst, "link")))

	st := stats.New()
	ops := &CopyOps{
		Throttle:         throttle.New(throttle.Config{}),
		Preserve:         fsobj.PreserveDefaultCp(),
		Applier:          preserve.NewApplier(nil),
		Stats:            st,
		Overwrite:        true,
		OverwriteCompare: mustSimpleCompare(t, ""),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: st}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))
	assert.Equal(t, float64(1), gather(st.Skipped))
}

func TestCompareOpsFindsDstMissingAndMismatch(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b"), []byte("bbb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a"), []byte("a"), 0o644)) // size differs

	policy, err := pathspec.ParseCompareSpec("f:size")
	require.NoError(t, err)

	ops := &CompareOps{Policy: policy, Stats: stats.New()}
	opts := walk.Options{Throttle: throttle.New(throttle.Config{}), Ops: ops, Stats: ops.Stats}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	tags := map[string]string{}
	for _, m := range ops.Findings {
		tags[m.Path] = m.Tag
	}
	assert.Equal(t, "DstMissing", tags["b"])
	assert.Equal(t, "MetaDiffer:size", tags["a"])
}

func TestCompareOpsExitEarlyCancels(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(src, string(rune('a'+i))), []byte("x"), 0o644))
	}

	defaultPolicy, err := pathspec.ParseCompareSpec(pathspec.DefaultCompareSpec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ops := &CompareOps{
		Policy:    defaultPolicy,
		Stats:     stats.New(),
		ExitEarly: true,
		Cancel:    cancel,
	}
	opts := walk.Options{Throttle: throttle.New(throttle.Config{}), Ops: ops, Stats: ops.Stats, MaxWorkers: 1}
	err = walk.Walk(ctx, src, dst, opts)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Less(t, len(ops.Findings), 20)
}

func TestCheckExtraneousFindsSrcMissing(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "extra"), []byte("x"), 0o644))

	ops := &CompareOps{Stats: stats.New()}
	require.NoError(t, ops.CheckExtraneous(context.Background(), src, dst))
	require.Len(t, ops.Findings, 1)
	assert.Equal(t, "SrcMissing", ops.Findings[0].Tag)
	assert.Equal(t, "extra", ops.Findings[0].Path)
}

func TestLinkOpsHardlinksFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("hi"), 0o644))

	ops := &LinkOps{Throttle: throttle.New(throttle.Config{}), Preserve: fsobj.PreserveDefaultCp(), Applier: preserve.NewApplier(nil), Stats: stats.New()}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: ops.Stats}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	srcInfo, err := os.Stat(filepath.Join(src, "f"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestLinkOpsUpdateHardlinksWhenCounterpartMatches(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	update := filepath.Join(root, "update")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(update, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(update, "f"), []byte("hi"), 0o644))

	srcInfo, err := os.Stat(filepath.Join(src, "f"))
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(filepath.Join(update, "f"), srcInfo.ModTime(), srcInfo.ModTime()))

	st := stats.New()
	ops := &LinkOps{
		Throttle:      throttle.New(throttle.Config{}),
		Preserve:      fsobj.PreserveDefaultCp(),
		Applier:       preserve.NewApplier(nil),
		Stats:         st,
		UpdateRoot:    update,
		UpdateCompare: mustSimpleCompare(t, "mtime,size"),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: st}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	dstInfo, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestLinkOpsUpdateCopiesFromCounterpartWhenDiffers(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	update := filepath.Join(root, "update")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(update, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(update, "f"), []byte("updated"), 0o644))

	st := stats.New()
	ops := &LinkOps{
		Throttle:      throttle.New(throttle.Config{}),
		Preserve:      fsobj.PreserveDefaultCp(),
		Applier:       preserve.NewApplier(nil),
		Stats:         st,
		UpdateRoot:    update,
		UpdateCompare: mustSimpleCompare(t, "mtime,size"),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: st}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))

	srcInfo, err := os.Stat(filepath.Join(src, "f"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.False(t, os.SameFile(srcInfo, dstInfo))
	content, err := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.Equal(t, "updated", string(content))
}

func TestLinkOpsOverwriteSkipsUpToDate(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f"), []byte("hi"), 0o644))

	srcInfo, err := os.Stat(filepath.Join(src, "f"))
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(filepath.Join(dst, "f"), srcInfo.ModTime(), srcInfo.ModTime()))

	st := stats.New()
	ops := &LinkOps{
		Throttle:         throttle.New(throttle.Config{}),
		Preserve:         fsobj.PreserveDefaultCp(),
		Applier:          preserve.NewApplier(nil),
		Stats:            st,
		Overwrite:        true,
		OverwriteCompare: mustSimpleCompare(t, "mtime,size"),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: st}
	require.NoError(t, walk.Walk(context.Background(), src, dst, opts))
	assert.Equal(t, float64(1), gather(st.Skipped))
}

func TestLinkOpsDirFailsWhenDstExistsWithoutOverwrite(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	ops := &LinkOps{Throttle: throttle.New(throttle.Config{}), Preserve: fsobj.PreserveDefaultCp(), Applier: preserve.NewApplier(nil), Stats: stats.New()}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: ops.Stats, FailEarly: true}
	err := walk.Walk(context.Background(), src, dst, opts)
	assert.Error(t, err)
}

func TestLinkOpsUpdateExclusiveRefusesEntriesMissingFromUpdateRoot(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	update := filepath.Join(root, "update")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(update, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("hi"), 0o644))

	st := stats.New()
	ops := &LinkOps{
		Throttle:        throttle.New(throttle.Config{}),
		Preserve:        fsobj.PreserveDefaultCp(),
		Applier:         preserve.NewApplier(nil),
		Stats:           st,
		UpdateRoot:      update,
		UpdateExclusive: true,
		UpdateCompare:   mustSimpleCompare(t, "mtime,size"),
	}
	opts := walk.Options{Throttle: ops.Throttle, Ops: ops, Stats: st, FailEarly: true}
	err := walk.Walk(context.Background(), src, dst, opts)
	assert.Error(t, err)
}

func TestRemovePostOrder(t *testing.T) {
	root := setupS1(t)
	src := filepath.Join(root, "foo")
	st := stats.New()
	require.NoError(t, Remove(context.Background(), src, throttle.New(throttle.Config{}), st, 0, false))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, float64(7), gather(st.Removed)) // 4 files + 2 subdirs + root dir
}

func mustSimpleCompare(t *testing.T, spec string) fsobj.ComparePolicy {
	t.Helper()
	p, err := pathspec.ParseSimpleCompareSpec(spec)
	require.NoError(t, err)
	return p
}
