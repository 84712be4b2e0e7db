package kernel

import (
	"context"
	"os"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/walk"
)

// RemoveOps implements walk.Ops for rrm by reusing the traversal engine's
// directory-completion ordering with the destination tree set to the
// source tree itself: a directory is only ever removed, via FinalizeDir,
// once every one of its children has already been removed. Dir is a
// no-op since the directory already exists; there is nothing to create.
//
// Grounded on common/src/lib.rs's post-order remove_dir_all-equivalent
// recursion, reimplemented here directly on top of walk.Walk rather than
// as a separate recursive routine, since post-order removal is the same
// completion-ordering problem copy solves for directory metadata.
type RemoveOps struct {
	Stats *stats.Counters
}

func (r *RemoveOps) File(ctx context.Context, src, dst string, obj fsobj.Object) error {
	if err := os.Remove(src); err != nil {
		return fserr.IO("remove", src, err)
	}
	r.Stats.Removed.Inc()
	return nil
}

func (r *RemoveOps) Symlink(ctx context.Context, src, dst string, obj fsobj.Object) error {
	if err := os.Remove(src); err != nil {
		return fserr.IO("remove", src, err)
	}
	r.Stats.Removed.Inc()
	return nil
}

func (r *RemoveOps) Dir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return nil
}

func (r *RemoveOps) FinalizeDir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	if err := os.Remove(src); err != nil {
		return fserr.IO("rmdir", src, err)
	}
	r.Stats.Removed.Inc()
	return nil
}

// Remove deletes the entire tree rooted at path, applying t's open-files
// gate to bound concurrent file descriptors the same way copy does.
func Remove(ctx context.Context, path string, t *throttle.Throttle, st *stats.Counters, maxWorkers int, failEarly bool) error {
	ops := &RemoveOps{Stats: st}
	return walk.Walk(ctx, path, path, walk.Options{
		Throttle:   t,
		Ops:        ops,
		Stats:      st,
		MaxWorkers: maxWorkers,
		FailEarly:  failEarly,
	})
}
