package walk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
)

// Options configures a single Walk call.
type Options struct {
	Throttle    *throttle.Throttle
	Ops         Ops
	Stats       *stats.Counters
	MaxWorkers  int  // 0 = runtime.NumCPU()
	FailEarly   bool // stop scheduling new work after the first error
	Dereference bool // follow symlinks instead of recreating them
}

// Walk fans out over the tree rooted at src, mirroring its shape at dst,
// and drives opts.Ops for every entry. It implements spec.md §4.3's
// traversal engine: an open-files permit gates every entry, directories
// are created before their children are scheduled, and a directory's
// FinalizeDir call happens only once every child of that directory has
// fully committed (spec.md §3, §5).
//
// When opts.FailEarly is false, per-entry errors are recorded against
// opts.Stats and traversal continues; Walk itself returns nil unless a
// structural error (not classifiable against a single entry) occurs. When
// true, the first entry error cancels the whole traversal and is
// returned directly.
//
// Grounded on fs/sync/sync_test.go and fs/march/march_test.go's
// description of rclone's producer/consumer march over two trees, and on
// rcpd/src/directory_tracker.rs for the completion ordering.
func Walk(ctx context.Context, src, dst string, opts Options) error {
	if opts.Ops == nil {
		return fmt.Errorf("walk: Options.Ops must not be nil")
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	w := &walker{opts: opts, g: g, tracker: NewDirTracker(), rootDst: dst, workers: make(chan struct{}, opts.MaxWorkers)}
	g.Go(func() error {
		return w.visit(gctx, task{src: src, dst: dst})
	})

	err := g.Wait()
	if !w.tracker.Empty() {
		panic(fmt.Sprintf("walk: directory tracker non-empty at traversal end (%d pending)", w.tracker.Len()))
	}
	return err
}

type walker struct {
	opts    Options
	g       *errgroup.Group
	tracker *DirTracker
	rootDst string
	workers chan struct{}
}

func (w *walker) visit(ctx context.Context, t task) error {
	w.workers <- struct{}{}
	defer func() { <-w.workers }()
	if err := ctx.Err(); err != nil {
		// cancelled before this entry started: still count it against its
		// parent so the directory tracker drains.
		return w.commit(ctx, t, err)
	}

	permit, err := w.opts.Throttle.AcquireOpenFile(ctx)
	if err != nil {
		return w.report(ctx, err)
	}
	defer permit.Release()

	obj, err := w.stat(t.src, w.relPath(t.dst))
	if err != nil {
		return w.report(ctx, fserr.IO("lstat", t.src, err))
	}

	switch obj.Kind {
	case fsobj.KindFile:
		return w.visitFile(ctx, t, obj)
	case fsobj.KindSymlink:
		return w.visitSymlink(ctx, t, obj)
	case fsobj.KindDir:
		return w.visitDir(ctx, t, obj)
	default:
		return w.report(ctx, fmt.Errorf("walk: unknown entry kind for %q", t.src))
	}
}

func (w *walker) visitFile(ctx context.Context, t task, obj fsobj.Object) error {
	if err := w.opts.Throttle.ConsumeOp(ctx); err != nil {
		return w.report(ctx, err)
	}
	err := w.opts.Ops.File(ctx, t.src, t.dst, obj)
	return w.commit(ctx, t, err)
}

func (w *walker) visitSymlink(ctx context.Context, t task, obj fsobj.Object) error {
	if err := w.opts.Throttle.ConsumeOp(ctx); err != nil {
		return w.report(ctx, err)
	}
	err := w.opts.Ops.Symlink(ctx, t.src, t.dst, obj)
	return w.commit(ctx, t, err)
}

func (w *walker) visitDir(ctx context.Context, t task, obj fsobj.Object) error {
	if err := w.opts.Throttle.ConsumeOp(ctx); err != nil {
		return w.report(ctx, err)
	}
	if err := w.opts.Ops.Dir(ctx, t.src, t.dst, obj); err != nil {
		return w.report(ctx, err)
	}

	entries, err := os.ReadDir(t.src)
	if err != nil {
		return w.report(ctx, fserr.IO("readdir", t.src, err))
	}

	if len(entries) == 0 {
		return w.completeDir(ctx, t, obj)
	}

	w.tracker.Add(t.dst, uint64(len(entries)))
	for _, e := range entries {
		child := task{
			src:       filepath.Join(t.src, e.Name()),
			dst:       filepath.Join(t.dst, e.Name()),
			parentDst: t.dst,
			kindHint:  directoryEntryKind(e),
		}
		w.g.Go(func() error { return w.visit(ctx, child) })
	}
	return nil
}

// commit runs after a leaf (file or symlink) entry's kernel call returns,
// propagating completion up through the directory tracker.
func (w *walker) commit(ctx context.Context, t task, kernelErr error) error {
	if kernelErr != nil {
		kernelErr = w.report(ctx, kernelErr)
	}
	if t.parentDst != "" {
		if err := w.decrementAndCascade(ctx, filepath.Dir(t.src), t.parentDst); err != nil {
			return err
		}
	}
	return kernelErr
}

// completeDir finalizes a directory's own metadata and cascades the
// completion to its parent. Called directly for childless directories,
// and from decrementAndCascade once every child of a directory commits.
func (w *walker) completeDir(ctx context.Context, t task, obj fsobj.Object) error {
	finalizeErr := w.report(ctx, w.opts.Ops.FinalizeDir(ctx, t.src, t.dst, obj))
	if t.parentDst == "" {
		return finalizeErr
	}
	if err := w.decrementAndCascade(ctx, filepath.Dir(t.src), t.parentDst); err != nil {
		return err
	}
	return finalizeErr
}

func (w *walker) decrementAndCascade(ctx context.Context, parentSrc, parentDst string) error {
	completed, err := w.tracker.Decrement(parentDst)
	if err != nil {
		return w.report(ctx, err)
	}
	if !completed {
		return nil
	}
	obj, err := w.stat(parentSrc, w.relPath(parentDst))
	if err != nil {
		return w.report(ctx, fserr.IO("lstat", parentSrc, err))
	}
	grandparentDst := ""
	if parentDst != w.rootDst {
		grandparentDst = filepath.Dir(parentDst)
	}
	return w.completeDir(ctx, task{src: parentSrc, dst: parentDst, parentDst: grandparentDst}, obj)
}

// report records a per-entry error against opts.Stats (unless it is
// cooperative cancellation) and, in fail-early mode, returns it so the
// errgroup cancels the rest of the traversal; otherwise it swallows the
// error so traversal continues.
func (w *walker) report(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if fserr.IsCancelled(err) {
		return err
	}
	if w.opts.Stats != nil {
		w.opts.Stats.RecordError(err)
	}
	if w.opts.FailEarly {
		return err
	}
	return nil
}

// stat builds the Object for path, following symlinks when
// opts.Dereference is set (spec.md's --dereference: a symlink in the
// source tree is treated as whatever it points to, never recreated as a
// symlink at the destination).
func (w *walker) stat(path, relPath string) (fsobj.Object, error) {
	if w.opts.Dereference {
		return fsobj.Stat(path, relPath)
	}
	return fsobj.Lstat(path, relPath)
}

// relPath returns dst's path relative to the traversal root, the value
// fsobj.Object.Path carries (spec.md §3: "Path: relative path from the
// tree root"). src and dst always share the same relative substructure
// within one Walk call, so it is always derived from dst, never src.
func (w *walker) relPath(dst string) string {
	if dst == w.rootDst {
		return ""
	}
	rel, err := filepath.Rel(w.rootDst, dst)
	if err != nil {
		return dst
	}
	return rel
}

func directoryEntryKind(e os.DirEntry) fsobj.Kind {
	switch {
	case e.Type()&os.ModeSymlink != 0:
		return fsobj.KindSymlink
	case e.IsDir():
		return fsobj.KindDir
	default:
		return fsobj.KindFile
	}
}
