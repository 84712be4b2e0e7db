package fsobj

import "time"

// UserAndTime controls whether owner, group and timestamps are restored on
// a destination entry. Grounded on common/src/preserve.rs UserAndTimeSettings.
type UserAndTime struct {
	UID  bool
	GID  bool
	Time bool
}

// Any reports whether any axis is enabled.
func (s UserAndTime) Any() bool { return s.UID || s.GID || s.Time }

// FileSettings is the preservation policy for regular files.
type FileSettings struct {
	UserAndTime UserAndTime
	ModeMask    uint32 // 12-bit AND-mask applied before chmod
}

// DirSettings is the preservation policy for directories.
type DirSettings struct {
	UserAndTime UserAndTime
	ModeMask    uint32
}

// SymlinkSettings is the preservation policy for symlinks. Symlinks have no
// mode mask: mode is never written for a symlink.
type SymlinkSettings struct {
	UserAndTime UserAndTime
}

// Any reports whether any axis is enabled.
func (s SymlinkSettings) Any() bool { return s.UserAndTime.Any() }

// Policy is the full three-way preservation policy (file/dir/symlink).
type Policy struct {
	File    FileSettings
	Dir     DirSettings
	Symlink SymlinkSettings
}

// PreserveAll is the "all" preset: mask = 0o7777, every flag true.
func PreserveAll() Policy {
	uat := UserAndTime{UID: true, GID: true, Time: true}
	return Policy{
		File:    FileSettings{UserAndTime: uat, ModeMask: 0o7777},
		Dir:     DirSettings{UserAndTime: uat, ModeMask: 0o7777},
		Symlink: SymlinkSettings{UserAndTime: uat},
	}
}

// PreserveDefaultCp is the "default-cp" preset: mask = 0o0777 (strips
// setuid/setgid/sticky), no ownership/time restoration.
func PreserveDefaultCp() Policy {
	uat := UserAndTime{}
	return Policy{
		File:    FileSettings{UserAndTime: uat, ModeMask: 0o0777},
		Dir:     DirSettings{UserAndTime: uat, ModeMask: 0o0777},
		Symlink: SymlinkSettings{UserAndTime: uat},
	}
}

// CompareSettings is a set of metadata axes used to test equality of two
// entries of the same kind. Grounded on common/src/filecmp.rs
// MetadataCmpSettings.
type CompareSettings struct {
	UID   bool
	GID   bool
	Size  bool
	Mode  bool
	Mtime bool
	Ctime bool
}

// ComparePolicy holds distinct CompareSettings per entry kind, as spec.md §3
// permits ("Distinct policies per entry kind ... are permitted").
type ComparePolicy struct {
	File    CompareSettings
	Dir     CompareSettings
	Symlink CompareSettings
}

// For returns the CompareSettings for the given kind.
func (p ComparePolicy) For(k Kind) CompareSettings {
	switch k {
	case KindFile:
		return p.File
	case KindDir:
		return p.Dir
	case KindSymlink:
		return p.Symlink
	default:
		return CompareSettings{}
	}
}

// MetadataEqual reports whether two metadata snapshots are equal under the
// given axes. Sub-second times are compared only when both sides are
// non-zero, per spec.md §3.
func MetadataEqual(settings CompareSettings, a, b Meta, aSize, bSize int64) bool {
	if settings.UID && a.UID != b.UID {
		return false
	}
	if settings.GID && a.GID != b.GID {
		return false
	}
	if settings.Size && aSize != bSize {
		return false
	}
	if settings.Mode && (a.Mode&0o7777) != (b.Mode&0o7777) {
		return false
	}
	if settings.Mtime && !timeEqual(a.Mtime, b.Mtime) {
		return false
	}
	if settings.Ctime && !timeEqual(a.Ctime, b.Ctime) {
		return false
	}
	return true
}

// timeEqual compares two timestamps at second precision, and additionally
// at nanosecond precision only when both sides report a non-zero
// nanosecond component (some filesystems return 0 ns always).
func timeEqual(a, b time.Time) bool {
	if a.Unix() != b.Unix() {
		return false
	}
	an, bn := a.Nanosecond(), b.Nanosecond()
	if an != 0 && bn != 0 && an != bn {
		return false
	}
	return true
}
