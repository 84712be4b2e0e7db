// Package pathspec parses the compare/preserve spec grammar from spec.md
// §6 ("f:mtime,size d:mtime l:mtime") into fsobj.ComparePolicy/fsobj.Policy,
// and implements the tilde-expansion and trailing-slash destination rules
// from the same section.
//
// Grounded on rcmp/src/main.rs's --metadata-compare flag documentation for
// the grammar and its default ("f:mtime,size d:mtime l:mtime"), and on
// src/main.rs / rlink/src/main.rs for trailing-slash dst handling.
package pathspec

import (
	"fmt"
	"strings"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
)

// DefaultCompareSpec is the grammar's documented default.
const DefaultCompareSpec = "f:mtime,size d:mtime l:mtime"

func axisSet(axes string) (map[string]bool, error) {
	set := map[string]bool{}
	if axes == "" {
		return set, nil
	}
	for _, a := range strings.Split(axes, ",") {
		a = strings.TrimSpace(a)
		switch a {
		case "uid", "gid", "size", "mode", "mtime", "ctime":
			set[a] = true
		default:
			return nil, fmt.Errorf("unknown compare axis %q", a)
		}
	}
	return set, nil
}

func toCompareSettings(set map[string]bool) fsobj.CompareSettings {
	return fsobj.CompareSettings{
		UID: set["uid"], GID: set["gid"], Size: set["size"],
		Mode: set["mode"], Mtime: set["mtime"], Ctime: set["ctime"],
	}
}

// ParseCompareSpec parses a "f:axes d:axes l:axes" spec string into a
// ComparePolicy. Tokens are whitespace-separated; kind is one of f/d/l.
// size is accepted, though meaningless, for d/l per spec.md §6.
func ParseCompareSpec(spec string) (fsobj.ComparePolicy, error) {
	var policy fsobj.ComparePolicy
	if strings.TrimSpace(spec) == "" {
		return policy, nil
	}
	for _, tok := range strings.Fields(spec) {
		kind, axes, ok := strings.Cut(tok, ":")
		if !ok {
			return policy, fserr.Config("parse-compare-spec", tok, fmt.Errorf("missing ':' in token %q", tok))
		}
		set, err := axisSet(axes)
		if err != nil {
			return policy, fserr.Config("parse-compare-spec", tok, err)
		}
		cs := toCompareSettings(set)
		switch kind {
		case "f":
			policy.File = cs
		case "d":
			policy.Dir = cs
		case "l":
			policy.Symlink = cs
		default:
			return policy, fserr.Config("parse-compare-spec", tok, fmt.Errorf("unknown kind %q, want one of f/d/l", kind))
		}
	}
	return policy, nil
}

// ParseSimpleCompareSpec parses the flat, kind-less comma list accepted by
// --overwrite-compare / --update-compare (e.g. "size,mtime"): the same
// CompareSettings is applied uniformly to files, directories and symlinks.
func ParseSimpleCompareSpec(spec string) (fsobj.ComparePolicy, error) {
	set, err := axisSet(spec)
	if err != nil {
		return fsobj.ComparePolicy{}, fserr.Config("parse-compare-spec", spec, err)
	}
	cs := toCompareSettings(set)
	return fsobj.ComparePolicy{File: cs, Dir: cs, Symlink: cs}, nil
}

// ParsePreserveSpec parses a "f:axes d:axes l:axes" spec into a
// fsobj.Policy. The "mode" axis, if present for a kind, preserves the full
// mode (mask 0o7777); if absent, the default-cp mask (0o0777) is used for
// that kind. uid/gid map directly onto UserAndTime flags; either mtime or
// ctime turns on time restoration (only mtime is written back). size is
// ignored.
func ParsePreserveSpec(spec string) (fsobj.Policy, error) {
	policy := fsobj.PreserveDefaultCp()
	if strings.TrimSpace(spec) == "" {
		return policy, nil
	}
	for _, tok := range strings.Fields(spec) {
		kind, axes, ok := strings.Cut(tok, ":")
		if !ok {
			return policy, fserr.Config("parse-preserve-spec", tok, fmt.Errorf("missing ':' in token %q", tok))
		}
		set, err := axisSet(axes)
		if err != nil {
			return policy, fserr.Config("parse-preserve-spec", tok, err)
		}
		uat := fsobj.UserAndTime{UID: set["uid"], GID: set["gid"], Time: set["mtime"] || set["ctime"]}
		mask := uint32(0o0777)
		if set["mode"] {
			mask = 0o7777
		}
		switch kind {
		case "f":
			policy.File = fsobj.FileSettings{UserAndTime: uat, ModeMask: mask}
		case "d":
			policy.Dir = fsobj.DirSettings{UserAndTime: uat, ModeMask: mask}
		case "l":
			policy.Symlink = fsobj.SymlinkSettings{UserAndTime: uat}
		default:
			return policy, fserr.Config("parse-preserve-spec", tok, fmt.Errorf("unknown kind %q, want one of f/d/l", kind))
		}
	}
	return policy, nil
}
