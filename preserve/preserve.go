// Package preserve applies POSIX metadata (owner, group, mode, times) to a
// destination path according to a fsobj.Policy.
//
// Grounded directly on common/src/preserve.rs: timestamps are always set
// before owner/group ("owner changes are the most likely to fail ... should
// not prevent time restoration"), symlinks use no-follow syscalls and never
// have their mode written, and a mode mask of 0o7777 is treated as a
// passthrough to avoid perturbing bits the policy does not understand.
package preserve

import (
	"golang.org/x/sys/unix"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
)

// Applier dispatches metadata syscalls to a BlockingPool, since they may
// stall on slow backends (spec.md §4.2).
type Applier struct {
	pool *BlockingPool
}

// NewApplier wraps pool. A nil pool runs synchronously (used by tests and by
// call sites that already run on a dedicated goroutine).
func NewApplier(pool *BlockingPool) *Applier {
	return &Applier{pool: pool}
}

func (a *Applier) dispatch(fn func() error) error {
	if a.pool == nil {
		return fn()
	}
	return a.pool.Do(fn)
}

// SetFilePermissions applies settings.File to path using meta (the source
// snapshot).
func (a *Applier) SetFilePermissions(settings fsobj.Policy, meta fsobj.Meta, path string) error {
	return a.dispatch(func() error { return applyFile(settings, meta, path) })
}

// SetDirPermissions applies settings.Dir to path using meta.
func (a *Applier) SetDirPermissions(settings fsobj.Policy, meta fsobj.Meta, path string) error {
	return a.dispatch(func() error { return applyDir(settings, meta, path) })
}

// SetSymlinkPermissions applies settings.Symlink to path using meta. Mode is
// never written for a symlink.
func (a *Applier) SetSymlinkPermissions(settings fsobj.Policy, meta fsobj.Meta, path string) error {
	return a.dispatch(func() error { return applySymlink(settings, meta, path) })
}

func applyFile(settings fsobj.Policy, meta fsobj.Meta, path string) error {
	mode := effectiveMode(meta.Mode, settings.File.ModeMask)
	if err := unix.Chmod(path, mode); err != nil {
		return fserr.Metadata("chmod", path, err)
	}
	return setOwnerAndTime(settings.File.UserAndTime, meta, path)
}

func applyDir(settings fsobj.Policy, meta fsobj.Meta, path string) error {
	mode := effectiveMode(meta.Mode, settings.Dir.ModeMask)
	if err := unix.Chmod(path, mode); err != nil {
		return fserr.Metadata("chmod", path, err)
	}
	return setOwnerAndTime(settings.Dir.UserAndTime, meta, path)
}

func applySymlink(settings fsobj.Policy, meta fsobj.Meta, path string) error {
	// we don't set permissions for symlinks, only owner and time.
	return setOwnerAndTimeNoFollow(settings.Symlink.UserAndTime, meta, path)
}

// effectiveMode applies mode & mask. With mask 0o7777 every permission
// bit, setuid/setgid/sticky included, is kept (common/src/preserve.rs:
// "special case for default preserve"); bits above 0o7777 are dropped
// either way.
func effectiveMode(mode, mask uint32) uint32 {
	if mask == 0o7777 {
		return mode & 0o7777
	}
	return mode & mask
}

// setOwnerAndTime sets timestamps first, then owner/group, using no-follow
// syscalls so a path that happens to be a symlink at this moment is never
// traversed.
func setOwnerAndTime(settings fsobj.UserAndTime, meta fsobj.Meta, path string) error {
	return setOwnerAndTimeNoFollow(settings, meta, path)
}

func setOwnerAndTimeNoFollow(settings fsobj.UserAndTime, meta fsobj.Meta, path string) error {
	if settings.Time {
		ts := unix.NsecToTimespec(meta.Mtime.UnixNano())
		// atime has no independent field in the data model; mirror mtime,
		// the common compromise when only one timestamp is preserved.
		times := []unix.Timespec{ts, ts}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fserr.Metadata("utimes", path, err)
		}
	}
	if settings.UID || settings.GID {
		uid, gid := -1, -1
		if settings.UID {
			uid = int(meta.UID)
		}
		if settings.GID {
			gid = int(meta.GID)
		}
		if err := unix.Lchown(path, uid, gid); err != nil {
			return fserr.Metadata("chown", path, err)
		}
	}
	return nil
}
