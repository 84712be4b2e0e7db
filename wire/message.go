// Package wire implements the remote protocol's message types and framing:
// a CBOR-encoded, 4-byte-big-endian length-delimited stream, with every
// freshly opened stream beginning with a fixed HELLO_STREAM preamble.
//
// Grounded on common/src/wire.rs (the FsObject/MasterHello message shapes)
// and remote/src/protocol/mod.rs (the protocol's top-level message enum),
// and on rcpd/src/streams.rs for the preamble + framing design.
package wire

import "github.com/wykurz/rcp-sub001/fsobj"

// HelloStream is the fixed 12-byte ASCII preamble every newly opened
// stream must send before any length-prefixed message, letting the
// receiver distinguish a real protocol stream from a stray connection.
const HelloStream = "HELLO_STREAM"

// Kind discriminates Message's payload, since CBOR (like the wire formats
// it replaces here) has no native tagged-union support the way Rust's
// enum does.
type Kind string

const (
	KindFsObject          Kind = "fs_object"
	KindMasterHello       Kind = "master_hello"
	KindSourceMasterHello Kind = "source_master_hello"
	KindDirectoryCreated  Kind = "directory_created"
	KindDirectoryComplete Kind = "directory_complete"
	KindTracing           Kind = "tracing"
)

// Role identifies which side of the transfer a MasterHello is offering to
// play, mirroring the original's MasterHello::Source/Destination variants.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// Message is the single envelope type carried over a framed stream; Kind
// says which of the payload fields is populated.
type Message struct {
	Kind Kind `cbor:"kind"`

	FsObject          *FsObject          `cbor:"fs_object,omitempty"`
	MasterHello       *MasterHello       `cbor:"master_hello,omitempty"`
	SourceMasterHello *SourceMasterHello `cbor:"source_master_hello,omitempty"`
	DirectoryCreated  *DirectoryCreated  `cbor:"directory_created,omitempty"`
	DirectoryComplete *DirectoryComplete `cbor:"directory_complete,omitempty"`
	Tracing           *TracingMessage    `cbor:"tracing,omitempty"`
}

// FsObject is the wire representation of fsobj.Object. ObjKind mirrors
// fsobj.Kind numerically; see ToObject/FromObject for the conversion.
type FsObject struct {
	ObjKind    uint8  `cbor:"kind"`
	Path       string `cbor:"path"`
	Mode       uint32 `cbor:"mode"`
	UID        uint32 `cbor:"uid"`
	GID        uint32 `cbor:"gid"`
	MtimeSec   int64  `cbor:"mtime_sec"`
	MtimeNsec  int32  `cbor:"mtime_nsec"`
	CtimeSec   int64  `cbor:"ctime_sec"`
	CtimeNsec  int32  `cbor:"ctime_nsec"`
	Size       int64  `cbor:"size,omitempty"`
	LinkTarget string `cbor:"link_target,omitempty"`

	// NumEntries seeds the destination's directory-completion tracker
	// without an implicit end-of-children marker (SPEC_FULL.md §4.5 open
	// question resolution: robust to a directory's children being spread
	// across multiple concurrent streams).
	NumEntries uint64 `cbor:"num_entries,omitempty"`
}

// MasterHello is the first application message the coordinator sends each
// worker over its control stream, assigning the worker's role (source or
// destination) and carrying the job the coordinator determined from the
// CLI invocation.
//
// Dst and Job are populated for both roles; Src only when Role ==
// RoleSource. SessionName and SourceAddr are populated only when Role ==
// RoleDestination, naming the source worker's session and listener for
// the destination to dial (spec.md §4.5.1 step 3).
type MasterHello struct {
	Role        Role   `cbor:"role"`
	SessionName string `cbor:"session_name"`

	Src string   `cbor:"src,omitempty"`
	Dst string   `cbor:"dst,omitempty"`
	Job *JobSpec `cbor:"job,omitempty"`

	SourceAddr string `cbor:"source_addr,omitempty"`
}

// JobSpec carries the throttle and policy settings the coordinator parsed
// from the CLI, as the same spec strings pathspec.ParsePreserveSpec and
// pathspec.ParseSimpleCompareSpec accept, so a worker applies the identical policy the coordinator's
// flags selected without re-parsing argv itself.
type JobSpec struct {
	PreserveSpec         string `cbor:"preserve_spec"`
	Overwrite            bool   `cbor:"overwrite"`
	OverwriteCompareSpec string `cbor:"overwrite_compare_spec,omitempty"`
	MaxConcurrentStreams uint32 `cbor:"max_concurrent_streams"`
	FailEarly            bool   `cbor:"fail_early"`
	MaxWorkers           uint32 `cbor:"max_workers"`
	MaxOpenFiles         uint32 `cbor:"max_open_files"`
	OpsThrottle          uint32 `cbor:"ops_throttle"`
	IOPSThrottle         uint32 `cbor:"iops_throttle"`
	ChunkSize            uint64 `cbor:"chunk_size"`
	TputThrottle         uint32 `cbor:"tput_throttle"`
}

// SourceMasterHello is the source-to-coordinator reply once the source
// worker has bound its own listener, naming the address and session name
// the destination worker will use to dial in (spec.md §4.5.1 step 2).
type SourceMasterHello struct {
	SessionName string `cbor:"session_name"`
	SourceAddr  string `cbor:"source_addr"`
}

// DirectoryCreated announces that the destination has created the
// directory at Path (relative to the transfer root), letting the source
// start streaming that directory's children.
type DirectoryCreated struct {
	Path string `cbor:"path"`
}

// DirectoryComplete announces that every child of the directory at Path
// has committed and the directory's own metadata has been finalized.
type DirectoryComplete struct {
	Path string `cbor:"path"`
}

// TracingMessage carries one structured log entry across the wire, the
// destination-side counterpart of the source's local logging (and vice
// versa), so both sides' logs can be correlated by an operator watching
// only one of the two processes.
//
// Grounded on remote/src/tracelog/mod.rs / common/src/remote_tracing.rs.
type TracingMessage struct {
	Level           string            `cbor:"level"`
	Target          string            `cbor:"target"`
	Message         string            `cbor:"message"`
	Fields          map[string]string `cbor:"fields,omitempty"`
	TimestampMicros int64             `cbor:"ts_micros"`
}

// FromObject converts an fsobj.Object to its wire representation.
// NumEntries is copied from obj; for a directory built by fsobj.Lstat it
// is 0, and the caller fills it in (sourceOps.Dir does, from its own
// directory read).
func FromObject(obj fsobj.Object) FsObject {
	return FsObject{
		ObjKind:    uint8(obj.Kind),
		Path:       obj.Path,
		Mode:       obj.Meta.Mode,
		UID:        obj.Meta.UID,
		GID:        obj.Meta.GID,
		MtimeSec:   obj.Meta.Mtime.Unix(),
		MtimeNsec:  int32(obj.Meta.Mtime.Nanosecond()),
		CtimeSec:   obj.Meta.Ctime.Unix(),
		CtimeNsec:  int32(obj.Meta.Ctime.Nanosecond()),
		Size:       obj.Size,
		LinkTarget: obj.LinkTarget,
		NumEntries: obj.NumEntries,
	}
}

// ToObject converts a wire FsObject back into fsobj.Object.
func (f FsObject) ToObject() fsobj.Object {
	meta := fsobj.Meta{
		Mode:  f.Mode,
		UID:   f.UID,
		GID:   f.GID,
		Mtime: secNsecToTime(f.MtimeSec, f.MtimeNsec),
		Ctime: secNsecToTime(f.CtimeSec, f.CtimeNsec),
	}
	switch fsobj.Kind(f.ObjKind) {
	case fsobj.KindDir:
		return fsobj.Dir(f.Path, meta, f.NumEntries)
	case fsobj.KindSymlink:
		return fsobj.Symlink(f.Path, meta, f.LinkTarget)
	default:
		return fsobj.File(f.Path, meta, f.Size)
	}
}
