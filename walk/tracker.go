// Package walk implements the parallel filesystem traversal engine (C3):
// Walk fans out over a source tree and drives a pluggable Ops
// implementation (the C4 operation kernels) per entry, under the
// directory-completion ordering invariant from spec.md §3/§5.
package walk

import (
	"fmt"
	"sync"
)

// DirTracker maps a destination directory path to its remaining-child
// count. A directory is complete when its count reaches zero; completion
// triggers the caller's metadata finalization. Guarded by a single mutex,
// held only for constant-time map operations, per spec.md §5.
//
// Grounded almost 1:1 on rcpd/src/directory_tracker.rs's
// remaining_dir_entries map and decrement_entry logic.
type DirTracker struct {
	mu       sync.Mutex
	remain   map[string]uint64
}

// NewDirTracker creates an empty tracker.
func NewDirTracker() *DirTracker {
	return &DirTracker{remain: make(map[string]uint64)}
}

// Add registers dst as a tracked directory with the given expected child
// count. Adding a directory with zero children is a caller error: the
// caller should finalize a childless directory directly instead.
func (t *DirTracker) Add(dst string, numEntries uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remain[dst] = numEntries
}

// Decrement records that one child of dir has committed. It returns true
// exactly when dir's count has just reached zero, in which case the entry
// has already been removed from the tracker and the caller must finalize
// dir's metadata.
func (t *DirTracker) Decrement(dir string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining, ok := t.remain[dir]
	if !ok {
		return false, fmt.Errorf("directory %q is not being tracked", dir)
	}
	remaining--
	if remaining == 0 {
		delete(t.remain, dir)
		return true, nil
	}
	t.remain[dir] = remaining
	return false, nil
}

// Empty reports whether every tracked directory has completed. A
// non-empty tracker at the end of a Walk call is a bug (spec.md §3).
func (t *DirTracker) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remain) == 0
}

// Len returns the number of directories still awaiting completion
// (diagnostic use only).
func (t *DirTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remain)
}
