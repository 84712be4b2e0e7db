package walk

import (
	"context"

	"github.com/wykurz/rcp-sub001/fsobj"
)

// Ops is the pluggable operation kernel (C4) that Walk drives for every
// entry it discovers. A single Walk call is shaped by one Ops
// implementation: copy, hardlink, compare and remove each provide their
// own, sharing the same traversal and directory-completion machinery.
//
// File and Symlink must perform the entry's full action, including any
// metadata application for that entry (copy/link preserve it, compare
// and remove never touch metadata). Dir is called the moment the
// destination directory itself should exist (or be inspected); it must
// not depend on any child having been processed yet. FinalizeDir is
// called exactly once per directory, after every child of that directory
// has committed, and is the only place directory metadata may be
// applied (spec.md §3, §4.2).
//
// Implementations must treat a context.Canceled error as cooperative
// shutdown, not a new failure: see fserr.IsCancelled.
type Ops interface {
	File(ctx context.Context, src, dst string, obj fsobj.Object) error
	Symlink(ctx context.Context, src, dst string, obj fsobj.Object) error
	Dir(ctx context.Context, src, dst string, obj fsobj.Object) error
	FinalizeDir(ctx context.Context, src, dst string, obj fsobj.Object) error
}
