package fsobj

import (
	"fmt"
	"os"
	"syscall"
)

// Lstat builds an Object for the entry at path (no-follow), with Path set
// to relPath. Directory objects get NumEntries 0; callers that need the
// real child count (walk) fill it in separately once the directory has
// been read, since counting children requires a second syscall.
//
// Grounded on the POSIX struct stat fields recorded by
// common/src/lib.rs's Entry construction (st_mode, st_uid, st_gid,
// st_mtime, st_ctime, st_size).
func Lstat(path, relPath string) (Object, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Object{}, err
	}
	return fromFileInfo(path, relPath, info)
}

// Stat builds an Object the same way Lstat does, except a symlink is
// followed to whatever it ultimately resolves to (a regular file or
// directory; POSIX disallows a symlink resolving to another symlink).
// This is the --dereference variant of Lstat: the resulting Object never
// has Kind == KindSymlink.
func Stat(path, relPath string) (Object, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Object{}, err
	}
	return fromFileInfo(path, relPath, info)
}

func fromFileInfo(path, relPath string, info os.FileInfo) (Object, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Object{}, fmt.Errorf("fsobj: unsupported platform, no syscall.Stat_t for %q", path)
	}
	meta := Meta{
		Mode:  uint32(st.Mode) & 0o7777,
		UID:   st.Uid,
		GID:   st.Gid,
		Mtime: info.ModTime(),
		Ctime: statCtime(st),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return Object{}, err
		}
		return Symlink(relPath, meta, target), nil
	case info.IsDir():
		return Dir(relPath, meta, 0), nil
	default:
		return File(relPath, meta, info.Size()), nil
	}
}
