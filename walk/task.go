package walk

import "github.com/wykurz/rcp-sub001/fsobj"

// task describes one unit of traversal work: a source/destination path
// pair discovered while walking, plus a backreference to the destination
// of the containing directory (empty for the root task, which has no
// tracked parent). kindHint carries the d_type-derived kind from the
// parent's directory read, letting the dispatch switch avoid a branch on
// an as-yet-unknown kind; it is advisory only; the authoritative kind and
// full metadata always come from the task's own no-follow stat.
type task struct {
	src       string
	dst       string
	parentDst string
	kindHint  fsobj.Kind
}
