package kernel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/stats"
)

// Mismatch records one metadata disagreement found by CompareOps, tagged
// the way rcmp reports it: DstMissing, SrcMissing, KindDiffer, or
// "MetaDiffer:axis1,axis2" for the axes a ComparePolicy found unequal.
//
// Grounded on common/src/filecmp.rs's CmpResult enum.
type Mismatch struct {
	Path string
	Kind fsobj.Kind
	Tag  string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[%s] %s %s", m.Tag, m.Kind, m.Path)
}

// CompareOps implements walk.Ops for rcmp: it never writes to the
// destination, only records Mismatch findings. Cancel, if set, is called
// the moment ExitEarly is true and the first mismatch is found, so the
// caller's context propagates cooperative shutdown to the rest of the
// traversal without mismatches ever being modeled as fserr errors
// (spec.md §7).
type CompareOps struct {
	Policy    fsobj.ComparePolicy
	Stats     *stats.Counters
	ExitEarly bool
	Cancel    context.CancelFunc

	mu       sync.Mutex
	Findings []Mismatch
}

func (c *CompareOps) record(m Mismatch) {
	c.mu.Lock()
	c.Findings = append(c.Findings, m)
	c.mu.Unlock()
	c.Stats.Mismatches.Inc()
	if c.ExitEarly && c.Cancel != nil {
		c.Cancel()
	}
}

func (c *CompareOps) compareEntry(ctx context.Context, src, dst string, obj fsobj.Object) error {
	dstObj, err := fsobj.Lstat(dst, obj.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.record(Mismatch{Path: obj.Path, Kind: obj.Kind, Tag: "DstMissing"})
			return nil
		}
		return fserr.IO("lstat", dst, err)
	}
	if dstObj.Kind != obj.Kind {
		c.record(Mismatch{Path: obj.Path, Kind: obj.Kind, Tag: "KindDiffer"})
		return nil
	}
	settings := c.Policy.For(obj.Kind)
	if axes := diffAxes(settings, obj.Meta, dstObj.Meta, obj.Size, dstObj.Size); len(axes) > 0 {
		c.record(Mismatch{Path: obj.Path, Kind: obj.Kind, Tag: "MetaDiffer:" + strings.Join(axes, ",")})
	}
	return nil
}

func (c *CompareOps) File(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return c.compareEntry(ctx, src, dst, obj)
}

func (c *CompareOps) Symlink(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return c.compareEntry(ctx, src, dst, obj)
}

func (c *CompareOps) Dir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return c.compareEntry(ctx, src, dst, obj)
}

func (c *CompareOps) FinalizeDir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return nil
}

// CheckExtraneous walks dstRoot looking for entries absent from srcRoot,
// recording a SrcMissing Mismatch for each. It is the second, reverse
// pass rcmp needs on top of Walk(srcRoot, dstRoot, CompareOps) to detect
// entries that exist only on the destination side.
func (c *CompareOps) CheckExtraneous(ctx context.Context, srcRoot, dstRoot string) error {
	return filepath.WalkDir(dstRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fserr.IO("walkdir", path, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, relErr := filepath.Rel(dstRoot, path)
		if relErr != nil {
			return fserr.IO("relpath", path, relErr)
		}
		if rel == "." {
			return nil
		}
		counterpart := filepath.Join(srcRoot, rel)
		if _, statErr := os.Lstat(counterpart); statErr != nil {
			if os.IsNotExist(statErr) {
				kind := fsobj.KindFile
				if d.IsDir() {
					kind = fsobj.KindDir
				} else if d.Type()&os.ModeSymlink != 0 {
					kind = fsobj.KindSymlink
				}
				c.record(Mismatch{Path: rel, Kind: kind, Tag: "SrcMissing"})
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return fserr.IO("lstat", counterpart, statErr)
		}
		return nil
	})
}

func diffAxes(settings fsobj.CompareSettings, a, b fsobj.Meta, aSize, bSize int64) []string {
	var axes []string
	if settings.UID && a.UID != b.UID {
		axes = append(axes, "uid")
	}
	if settings.GID && a.GID != b.GID {
		axes = append(axes, "gid")
	}
	if settings.Size && aSize != bSize {
		axes = append(axes, "size")
	}
	if settings.Mode && (a.Mode&0o7777) != (b.Mode&0o7777) {
		axes = append(axes, "mode")
	}
	if settings.Mtime && !fsobj.MetadataEqual(fsobj.CompareSettings{Mtime: true}, a, b, aSize, bSize) {
		axes = append(axes, "mtime")
	}
	if settings.Ctime && !fsobj.MetadataEqual(fsobj.CompareSettings{Ctime: true}, a, b, aSize, bSize) {
		axes = append(axes, "ctime")
	}
	return axes
}
