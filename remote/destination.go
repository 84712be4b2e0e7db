package remote

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/preserve"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/transport"
	"github.com/wykurz/rcp-sub001/walk"
	"github.com/wykurz/rcp-sub001/wire"
)

// Destination applies the FsObject graph a source worker streams in to a
// local tree rooted at Root, under the same directory-completion
// ordering walk.Walk enforces locally (spec.md §4.5.2), except the
// completion tracker here is shared across every concurrently accepted
// data stream instead of a single traversal goroutine tree.
//
// Grounded on rcpd/src/destination.rs's run_destination (dial the
// source, accept its streams) generalized from that file's placeholder
// single-stream drain into the full apply-on-receipt state machine.
type Destination struct {
	Root     string
	Params   Params
	Applier  *preserve.Applier
	Throttle *throttle.Throttle
	Stats    *stats.Counters

	tracker *walk.DirTracker
	dirsMu  sync.Mutex
	dirs    map[string]fsobj.Object
	ready   *dirReady

	ackMu   sync.Mutex
	ackSend *wire.SendStream
}

// dirReady lets a leaf entry's commit, arriving on one data stream, wait
// for its parent directory's own FsObject frame to have been applied,
// even though that frame may be draining on a different, independently
// scheduled stream. Without it, decrementAndCascade could observe a
// parent the tracker hasn't been told about yet: walk.go's local walker
// never hits this because it always calls tracker.Add for a directory
// before spawning the goroutines that could decrement it, an invariant
// the network can't preserve across streams on its own.
type dirReady struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

func newDirReady() *dirReady {
	return &dirReady{pending: make(map[string]chan struct{})}
}

func (r *dirReady) signal(dst string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.pending[dst]; ok {
		close(ch)
		return
	}
	ch := make(chan struct{})
	close(ch)
	r.pending[dst] = ch
}

func (r *dirReady) wait(ctx context.Context, dst string) error {
	r.mu.Lock()
	ch, ok := r.pending[dst]
	if !ok {
		ch = make(chan struct{})
		r.pending[dst] = ch
	}
	r.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dials the source worker at addr and drains its data streams until
// the connection closes.
func (d *Destination) Run(ctx context.Context, dialer transport.Dialer, addr string) error {
	d.tracker = walk.NewDirTracker()
	d.dirs = make(map[string]fsobj.Object)
	d.ready = newDirReady()

	conn, err := dialer.Dial(ctx, addr)
	if err != nil {
		return fserr.Transport("dial-source", addr, err)
	}
	defer conn.Close()

	// Only Root's parent is created here: Root itself is created by
	// applyDir from the source's root frame, like every other directory.
	if err := os.MkdirAll(filepath.Dir(d.Root), 0o700); err != nil {
		return fserr.IO("mkdir", filepath.Dir(d.Root), err)
	}

	// Open the ack stream back to the source before accepting any data
	// streams, so the source's AcceptUniStream for it (see
	// Source.Run) is never left waiting on work we could have started
	// immediately (spec.md §4.5.1's pacing channel).
	ackRaw, err := conn.OpenUniStream(ctx)
	if err != nil {
		return fserr.Transport("open-ack-stream", "", err)
	}
	defer ackRaw.Close()
	d.ackSend = wire.NewSendStream(ackRaw)

	g, gctx := errgroup.WithContext(ctx)
	n := d.Params.MaxConcurrentStreams
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			raw, err := conn.AcceptUniStream(gctx)
			if err != nil {
				return fserr.Transport("accept-data-stream", "", err)
			}
			return d.drain(gctx, raw)
		})
	}
	err = g.Wait()
	if !d.tracker.Empty() {
		return fserr.Protocol("destination", d.Root, errors.New("directory tracker non-empty at transfer end"))
	}
	return err
}

// drain consumes one data stream to completion: a sequence of FsObject
// frames, each immediately followed by raw file content for a File
// entry.
func (d *Destination) drain(ctx context.Context, raw io.Reader) error {
	recv := wire.NewRecvStream(raw)
	for {
		msg, err := recv.ReadMessage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if fserr.KindOf(err) == fserr.KindProtocol {
				// a decode failure poisons only this stream (spec.md §4.5.3).
				d.Stats.RecordError(err)
				return nil
			}
			return err
		}
		if msg.Kind != wire.KindFsObject || msg.FsObject == nil {
			d.Stats.RecordError(fserr.Protocol("drain", "", errors.New("expected fs_object frame")))
			continue
		}
		if err := d.apply(ctx, *msg.FsObject, recv.Reader()); err != nil {
			if fserr.IsCancelled(err) {
				return err
			}
			d.Stats.RecordError(err)
			if d.Params.FailEarly {
				return err
			}
		}
	}
}

func (d *Destination) apply(ctx context.Context, fo wire.FsObject, content io.Reader) error {
	obj := fo.ToObject()
	dst := d.Root
	if obj.Path != "" {
		dst = filepath.Join(d.Root, filepath.FromSlash(obj.Path))
	}
	switch obj.Kind {
	case fsobj.KindDir:
		return d.applyDir(ctx, dst, obj)
	case fsobj.KindSymlink:
		return d.applySymlink(ctx, dst, obj)
	default:
		return d.applyFile(ctx, dst, obj, content)
	}
}

func (d *Destination) applyDir(ctx context.Context, dst string, obj fsobj.Object) error {
	if err := os.Mkdir(dst, 0o700); err != nil {
		if !os.IsExist(err) {
			return fserr.IO("mkdir", dst, err)
		}
		if !d.Params.Overwrite {
			return fserr.IO("mkdir", dst, err)
		}
	}
	d.Stats.DirsCreated.Inc()
	if err := d.sendAck(wire.KindDirectoryCreated, obj.Path); err != nil {
		return err
	}
	if obj.NumEntries == 0 {
		return d.finalizeDir(ctx, dst, obj)
	}
	d.dirsMu.Lock()
	d.dirs[dst] = obj
	d.dirsMu.Unlock()
	d.tracker.Add(dst, obj.NumEntries)
	d.ready.signal(dst)
	return nil
}

// sendAck writes a directory_created/directory_complete frame to the
// source over the dedicated ack stream Run opened, serializing concurrent
// callers the same way dataStream.mu serializes the source's own frames.
func (d *Destination) sendAck(kind wire.Kind, path string) error {
	d.ackMu.Lock()
	defer d.ackMu.Unlock()
	msg := &wire.Message{Kind: kind}
	switch kind {
	case wire.KindDirectoryCreated:
		msg.DirectoryCreated = &wire.DirectoryCreated{Path: path}
	case wire.KindDirectoryComplete:
		msg.DirectoryComplete = &wire.DirectoryComplete{Path: path}
	}
	return d.ackSend.WriteMessage(msg)
}

func (d *Destination) applySymlink(ctx context.Context, dst string, obj fsobj.Object) error {
	if d.Params.Overwrite {
		if existing, err := fsobj.Lstat(dst, obj.Path); err == nil &&
			existing.Kind == fsobj.KindSymlink &&
			fsobj.MetadataEqual(d.Params.OverwriteCompare.For(fsobj.KindSymlink), obj.Meta, existing.Meta, obj.Size, existing.Size) {
			d.Stats.Skipped.Inc()
			return d.commit(ctx, dst)
		}
	}
	if err := os.Symlink(obj.LinkTarget, dst); err != nil {
		if os.IsExist(err) && d.Params.Overwrite {
			if rmErr := os.Remove(dst); rmErr != nil {
				return fserr.IO("remove", dst, rmErr)
			}
			err = os.Symlink(obj.LinkTarget, dst)
		}
		if err != nil {
			return fserr.IO("symlink", dst, err)
		}
	}
	if err := d.Applier.SetSymlinkPermissions(d.Params.Preserve, obj.Meta, dst); err != nil {
		return err
	}
	d.Stats.SymlinksCreated.Inc()
	return d.commit(ctx, dst)
}

func (d *Destination) applyFile(ctx context.Context, dst string, obj fsobj.Object, content io.Reader) error {
	if d.Params.Overwrite {
		if existing, err := fsobj.Lstat(dst, obj.Path); err == nil && existing.Kind == fsobj.KindFile &&
			fsobj.MetadataEqual(d.Params.OverwriteCompare.For(fsobj.KindFile), obj.Meta, existing.Meta, obj.Size, existing.Size) {
			d.Stats.Skipped.Inc()
			if err := discard(ctx, d.Throttle, content, obj.Size); err != nil {
				return err
			}
			return d.commit(ctx, dst)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE
	if d.Params.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	out, err := os.OpenFile(dst, flags, 0o600)
	if err != nil {
		return fserr.IO("create", dst, err)
	}
	defer out.Close()
	if err := streamIn(ctx, d.Throttle, content, out, obj.Size); err != nil {
		return err
	}
	if err := d.Applier.SetFilePermissions(d.Params.Preserve, obj.Meta, dst); err != nil {
		return err
	}
	d.Stats.FilesCopied.Inc()
	d.Stats.AddBytes(obj.Size)
	return d.commit(ctx, dst)
}

// commit records that dst (a leaf entry's path) has fully landed and
// cascades directory completion up through the shared tracker, the
// cross-stream analogue of walk.go's decrementAndCascade.
func (d *Destination) commit(ctx context.Context, dst string) error {
	return d.decrementAndCascade(ctx, filepath.Dir(dst))
}

func (d *Destination) decrementAndCascade(ctx context.Context, parentDst string) error {
	// The parent's own FsObject frame may still be draining on a
	// different stream; wait for it rather than treat the gap as a
	// protocol violation.
	if err := d.ready.wait(ctx, parentDst); err != nil {
		return err
	}
	completed, err := d.tracker.Decrement(parentDst)
	if err != nil {
		return fserr.Protocol("commit", parentDst, err)
	}
	if !completed {
		return nil
	}
	d.dirsMu.Lock()
	obj, ok := d.dirs[parentDst]
	delete(d.dirs, parentDst)
	d.dirsMu.Unlock()
	if !ok {
		return fserr.Protocol("commit", parentDst, errors.New("directory metadata not recorded"))
	}
	return d.finalizeDir(ctx, parentDst, obj)
}

func (d *Destination) finalizeDir(ctx context.Context, dst string, obj fsobj.Object) error {
	if err := d.Applier.SetDirPermissions(d.Params.Preserve, obj.Meta, dst); err != nil {
		return err
	}
	if err := d.sendAck(wire.KindDirectoryComplete, obj.Path); err != nil {
		return err
	}
	if dst == d.Root {
		return nil
	}
	return d.decrementAndCascade(ctx, filepath.Dir(dst))
}

// streamIn copies exactly size bytes from r to w, throttled the same way
// a local copy's read side is, per spec.md §4.5.2 ("read exactly size
// bytes from the stream").
func streamIn(ctx context.Context, t *throttle.Throttle, r io.Reader, w io.Writer, size int64) error {
	buf := make([]byte, t.ChunkSize())
	remaining := size
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		n, err := io.ReadFull(r, buf[:chunk])
		if n > 0 {
			if cerr := t.ConsumeChunk(ctx, n); cerr != nil {
				return cerr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fserr.IO("write", "", werr)
			}
			remaining -= int64(n)
		}
		if err != nil {
			return fserr.Transport("read-content", "", err)
		}
	}
	return nil
}

// discard reads and drops size bytes, used to keep a stream's framing
// aligned when an entry is skipped (overwrite-compare match).
func discard(ctx context.Context, t *throttle.Throttle, r io.Reader, size int64) error {
	return streamIn(ctx, t, r, io.Discard, size)
}
