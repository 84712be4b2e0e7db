package kernel

import (
	"context"
	"os"
	"path/filepath"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/preserve"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
)

// LinkOps implements walk.Ops for rlink: regular files are hardlinked
// into the destination tree rather than copied, so an unchanged file
// costs a directory entry, not a new inode. Directories and symlinks
// cannot be meaningfully hardlinked (a symlink's own inode would then
// alias two directory entries with no independent metadata) and are
// recreated the same way CopyOps does.
//
// Two staleness checks are orthogonal, per rlink/src/main.rs's separate
// --overwrite-compare and --update-compare flags:
//   - Overwrite/OverwriteCompare decide whether an existing destination
//     entry already matches the source closely enough to leave alone.
//   - UpdateRoot/UpdateCompare pick which tree an entry's content comes
//     from: when UpdateRoot is set, a source path s's counterpart u in
//     that tree is consulted; if u exists and differs from s under
//     UpdateCompare, the entry is byte-copied from u, otherwise it is
//     hardlinked from s. UpdateExclusive additionally refuses to create
//     an entry whose counterpart is missing from UpdateRoot, for
//     building a tree that only ever refreshes, never grows.
//
// Grounded on rlink/src/main.rs's --update/--update-exclusive/
// --update-compare flags and common/src/lib.rs's link-vs-copy dispatch.
type LinkOps struct {
	Throttle         *throttle.Throttle
	Preserve         fsobj.Policy
	Applier          *preserve.Applier
	Stats            *stats.Counters
	Overwrite        bool
	OverwriteCompare fsobj.ComparePolicy
	UpdateRoot       string
	UpdateExclusive  bool
	UpdateCompare    fsobj.ComparePolicy
}

// updateSource resolves which tree an entry's content should come from.
// With no UpdateRoot configured, every entry is hardlinked from src.
func (l *LinkOps) updateSource(relPath string, kind fsobj.Kind, srcObj fsobj.Object) (copyFrom string, copySize int64, fromUpdate bool, counterpartExists bool, err error) {
	if l.UpdateRoot == "" {
		return "", 0, false, true, nil
	}
	u := filepath.Join(l.UpdateRoot, filepath.FromSlash(relPath))
	uObj, statErr := fsobj.Lstat(u, relPath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", 0, false, false, nil
		}
		return "", 0, false, false, fserr.IO("lstat", u, statErr)
	}
	if uObj.Kind != kind || !fsobj.MetadataEqual(l.UpdateCompare.For(kind), srcObj.Meta, uObj.Meta, srcObj.Size, uObj.Size) {
		return u, uObj.Size, true, true, nil
	}
	return "", 0, false, true, nil
}

// dstUpToDate reports whether dst already exists and matches obj closely
// enough under OverwriteCompare that it can be left alone.
func (l *LinkOps) dstUpToDate(dst, relPath string, kind fsobj.Kind, obj fsobj.Object) (exists, upToDate bool, err error) {
	existing, statErr := fsobj.Lstat(dst, relPath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, false, nil
		}
		return false, false, fserr.IO("lstat", dst, statErr)
	}
	if !l.Overwrite || existing.Kind != kind {
		return true, false, nil
	}
	return true, fsobj.MetadataEqual(l.OverwriteCompare.For(kind), obj.Meta, existing.Meta, obj.Size, existing.Size), nil
}

func (l *LinkOps) File(ctx context.Context, src, dst string, obj fsobj.Object) error {
	copyFrom, copySize, fromUpdate, counterpartExists, err := l.updateSource(obj.Path, fsobj.KindFile, obj)
	if err != nil {
		return err
	}
	if !counterpartExists && l.UpdateExclusive {
		return fserr.IO("link", dst, errUpdateExclusiveMissing(dst))
	}
	exists, upToDate, err := l.dstUpToDate(dst, obj.Path, fsobj.KindFile, obj)
	if err != nil {
		return err
	}
	if exists {
		if upToDate {
			l.Stats.Skipped.Inc()
			return nil
		}
		if err := os.Remove(dst); err != nil {
			return fserr.IO("remove", dst, err)
		}
	}
	if fromUpdate {
		if err := streamCopy(ctx, l.Throttle, copyFrom, dst, copySize, l.Overwrite); err != nil {
			return err
		}
		if err := l.Applier.SetFilePermissions(l.Preserve, obj.Meta, dst); err != nil {
			return err
		}
		l.Stats.FilesCopied.Inc()
		l.Stats.AddBytes(copySize)
		return nil
	}
	if err := os.Link(src, dst); err != nil {
		return fserr.IO("link", dst, err)
	}
	l.Stats.FilesCopied.Inc()
	return nil
}

func (l *LinkOps) Symlink(ctx context.Context, src, dst string, obj fsobj.Object) error {
	_, _, _, counterpartExists, err := l.updateSource(obj.Path, fsobj.KindSymlink, obj)
	if err != nil {
		return err
	}
	if !counterpartExists && l.UpdateExclusive {
		return fserr.IO("symlink", dst, errUpdateExclusiveMissing(dst))
	}
	exists, upToDate, err := l.dstUpToDate(dst, obj.Path, fsobj.KindSymlink, obj)
	if err != nil {
		return err
	}
	if exists {
		if upToDate {
			l.Stats.Skipped.Inc()
			return nil
		}
		if err := os.Remove(dst); err != nil {
			return fserr.IO("remove", dst, err)
		}
	}
	if err := os.Symlink(obj.LinkTarget, dst); err != nil {
		return fserr.IO("symlink", dst, err)
	}
	if err := l.Applier.SetSymlinkPermissions(l.Preserve, obj.Meta, dst); err != nil {
		return err
	}
	l.Stats.SymlinksCreated.Inc()
	return nil
}

func (l *LinkOps) Dir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	if l.UpdateExclusive && l.UpdateRoot != "" {
		u := filepath.Join(l.UpdateRoot, filepath.FromSlash(obj.Path))
		if _, err := os.Lstat(u); err != nil {
			if os.IsNotExist(err) {
				return fserr.IO("mkdir", dst, errUpdateExclusiveMissing(dst))
			}
			return fserr.IO("lstat", u, err)
		}
	}
	if err := os.Mkdir(dst, 0o700); err != nil {
		if !os.IsExist(err) || !l.Overwrite {
			return fserr.IO("mkdir", dst, err)
		}
	}
	l.Stats.DirsCreated.Inc()
	return nil
}

func (l *LinkOps) FinalizeDir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return l.Applier.SetDirPermissions(l.Preserve, obj.Meta, dst)
}

type updateExclusiveMissingError struct{ path string }

func (e updateExclusiveMissingError) Error() string {
	return "update-exclusive: " + e.path + " has no counterpart in the update tree"
}

func errUpdateExclusiveMissing(path string) error { return updateExclusiveMissingError{path: path} }
