package remote

import (
	"context"
	"hash/fnv"
	"io"
	"os"
	"sync"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/transport"
	"github.com/wykurz/rcp-sub001/walk"
	"github.com/wykurz/rcp-sub001/wire"
)

// Source streams the tree rooted at Root to whichever destination worker
// dials Listener, driving the same walk.Walk engine the local copy
// kernel uses: the destination path walk.Walk expects is never touched
// on disk here (Ops.Dir/Ops.File serialize onto the wire instead of
// calling mkdir/write), so Root is passed as both the src and dst root,
// the same src==dst reuse kernel.RemoveOps relies on for post-order
// deletion.
//
// Grounded on rcpd/src/source.rs's run_source (listen, reply with
// SourceMasterHello, accept the destination's connection) generalized
// from that file's placeholder single-stream "hello" exchange into the
// full FsObject streaming protocol spec.md §4.5.1 describes.
type Source struct {
	Root     string
	Params   Params
	Listener transport.Listener
	Throttle *throttle.Throttle
	Stats    *stats.Counters
}

// Run completes the coordinator handshake (replying with a
// SourceMasterHello over the control stream already opened to it),
// accepts the destination's connection, and streams Root across it.
func (s *Source) Run(ctx context.Context, sessionName string, masterSend *wire.SendStream) error {
	hello := &wire.Message{
		Kind: wire.KindSourceMasterHello,
		SourceMasterHello: &wire.SourceMasterHello{
			SessionName: sessionName,
			SourceAddr:  s.Listener.Addr().String(),
		},
	}
	if err := masterSend.WriteMessage(hello); err != nil {
		return err
	}

	conn, err := s.Listener.Accept(ctx)
	if err != nil {
		return fserr.Transport("accept-destination", "", err)
	}
	defer conn.Close()

	n := s.Params.MaxConcurrentStreams
	if n <= 0 {
		n = 1
	}
	streams := make([]*dataStream, n)
	for i := range streams {
		raw, err := conn.OpenUniStream(ctx)
		if err != nil {
			return fserr.Transport("open-data-stream", "", err)
		}
		streams[i] = &dataStream{send: wire.NewSendStream(raw), raw: raw, closer: raw}
	}
	defer func() {
		for _, ds := range streams {
			ds.closer.Close()
		}
	}()

	// The destination opens a dedicated uni-stream back to us carrying
	// directory_created/directory_complete acks (spec.md §4.5.1's
	// pacing channel): a directory's children are only streamed once the
	// destination has created it, and FinalizeDir only returns once the
	// destination confirms every child has landed, bounding how far
	// ahead of the destination our own enumeration can get.
	ackRaw, err := conn.AcceptUniStream(ctx)
	if err != nil {
		return fserr.Transport("accept-ack-stream", "", err)
	}
	acks := newDirectoryAcks()
	go acks.drain(ackRaw)

	ops := &sourceOps{streams: streams, acks: acks, throttle: s.Throttle, stats: s.Stats}
	return walk.Walk(ctx, s.Root, s.Root, walk.Options{
		Throttle:   s.Throttle,
		Ops:        ops,
		Stats:      s.Stats,
		MaxWorkers: s.Params.MaxWorkers,
		FailEarly:  s.Params.FailEarly,
	})
}

// directoryAcks tracks the destination's directory_created/
// directory_complete acks, keyed by the same relative path used on the
// FsObject frame, so sourceOps.Dir/FinalizeDir can wait on the one this
// entry's directory needs without caring which data stream delivered the
// corresponding frame.
type directoryAcks struct {
	mu       sync.Mutex
	created  map[string]chan struct{}
	complete map[string]chan struct{}
}

func newDirectoryAcks() *directoryAcks {
	return &directoryAcks{
		created:  make(map[string]chan struct{}),
		complete: make(map[string]chan struct{}),
	}
}

func chanFor(m map[string]chan struct{}, path string) chan struct{} {
	if ch, ok := m[path]; ok {
		return ch
	}
	ch := make(chan struct{})
	m[path] = ch
	return ch
}

func (a *directoryAcks) signal(m map[string]chan struct{}, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := chanFor(m, path)
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (a *directoryAcks) wait(ctx context.Context, m map[string]chan struct{}, path string) error {
	a.mu.Lock()
	ch := chanFor(m, path)
	a.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *directoryAcks) waitCreated(ctx context.Context, path string) error {
	return a.wait(ctx, a.created, path)
}

func (a *directoryAcks) waitComplete(ctx context.Context, path string) error {
	return a.wait(ctx, a.complete, path)
}

// drain reads directory_created/directory_complete frames off the ack
// stream until it closes, signaling each one as it arrives. A decode
// error or clean close simply stops the loop: whatever waiter is still
// pending will see ctx cancellation instead, the same failure mode
// Destination.dirReady relies on for its local cross-stream waits.
func (a *directoryAcks) drain(raw io.Reader) {
	recv := wire.NewRecvStream(raw)
	for {
		msg, err := recv.ReadMessage()
		if err != nil {
			return
		}
		switch msg.Kind {
		case wire.KindDirectoryCreated:
			if msg.DirectoryCreated != nil {
				a.signal(a.created, msg.DirectoryCreated.Path)
			}
		case wire.KindDirectoryComplete:
			if msg.DirectoryComplete != nil {
				a.signal(a.complete, msg.DirectoryComplete.Path)
			}
		}
	}
}

// dataStream is one unidirectional stream the source pushes FsObject
// frames (and, for files, raw content) over. mu serializes a frame and
// its following content as one atomic write, since several walk workers
// may hash onto the same stream concurrently (spec.md §5: "Transport
// send side ... single mutex").
type dataStream struct {
	mu     sync.Mutex
	send   *wire.SendStream
	raw    io.Writer
	closer io.Closer
}

// sourceOps implements walk.Ops by serializing every entry onto one of
// the source's data streams instead of performing any local filesystem
// mutation; dst is never touched.
type sourceOps struct {
	streams  []*dataStream
	acks     *directoryAcks
	throttle *throttle.Throttle
	stats    *stats.Counters
}

func (o *sourceOps) streamFor(path string) *dataStream {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return o.streams[h.Sum32()%uint32(len(o.streams))]
}

func (o *sourceOps) File(ctx context.Context, src, dst string, obj fsobj.Object) error {
	f, err := os.Open(src)
	if err != nil {
		return fserr.IO("open", src, err)
	}
	defer f.Close()

	ds := o.streamFor(obj.Path)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	msg := &wire.Message{Kind: wire.KindFsObject, FsObject: wireObject(wire.FromObject(obj))}
	if err := ds.send.WriteMessage(msg); err != nil {
		return err
	}
	if err := streamContent(ctx, o.throttle, f, ds.raw, obj.Size); err != nil {
		return err
	}
	o.stats.FilesCopied.Inc()
	o.stats.AddBytes(obj.Size)
	return nil
}

func (o *sourceOps) Symlink(ctx context.Context, src, dst string, obj fsobj.Object) error {
	ds := o.streamFor(obj.Path)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	msg := &wire.Message{Kind: wire.KindFsObject, FsObject: wireObject(wire.FromObject(obj))}
	if err := ds.send.WriteMessage(msg); err != nil {
		return err
	}
	o.stats.SymlinksCreated.Inc()
	return nil
}

func (o *sourceOps) Dir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fserr.IO("readdir", src, err)
	}
	wireObj := wire.FromObject(obj)
	wireObj.NumEntries = uint64(len(entries))

	ds := o.streamFor(obj.Path)
	ds.mu.Lock()
	err = ds.send.WriteMessage(&wire.Message{Kind: wire.KindFsObject, FsObject: &wireObj})
	ds.mu.Unlock()
	if err != nil {
		return err
	}
	o.stats.DirsCreated.Inc()
	return o.acks.waitCreated(ctx, obj.Path)
}

func (o *sourceOps) FinalizeDir(ctx context.Context, src, dst string, obj fsobj.Object) error {
	return o.acks.waitComplete(ctx, obj.Path)
}

// streamContent copies size bytes from f to w in throttle-chunk-sized
// writes, the network-bound counterpart of kernel.streamCopy.
func streamContent(ctx context.Context, t *throttle.Throttle, f *os.File, w io.Writer, size int64) error {
	buf := make([]byte, t.ChunkSize())
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := t.ConsumeChunk(ctx, n); err != nil {
				return err
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fserr.Transport("write-content", "", werr)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fserr.IO("read", f.Name(), readErr)
		}
	}
}

func wireObject(fo wire.FsObject) *wire.FsObject { return &fo }
