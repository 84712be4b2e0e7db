package throttle

import (
	"context"
)

// DefaultChunkSize matches spec.md §4.3's default streaming chunk size.
const DefaultChunkSize = 64 * 1024

// Config configures every gate. A zero value for any field means
// "unlimited" for that dimension, per spec.md §4.1.
type Config struct {
	MaxOpenFiles int
	OpsPerSec    int
	IOPSPerSec   int
	ChunkSize    int64 // must be > 0 when IOPSPerSec is enabled
	TputBPS      int
}

// Throttle composes the four gates into the single substrate the traversal
// engine and operation kernels consume.
type Throttle struct {
	OpenFiles *OpenFilesGate
	Ops       *RateGate
	IOPS      *RateGate
	Tput      *RateGate
	chunkSize int64
}

// New builds a Throttle from cfg.
func New(cfg Config) *Throttle {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Throttle{
		OpenFiles: NewOpenFilesGate(cfg.MaxOpenFiles),
		Ops:       NewRateGate(cfg.OpsPerSec),
		IOPS:      NewRateGate(cfg.IOPSPerSec),
		Tput:      NewRateGate(cfg.TputBPS),
		chunkSize: chunk,
	}
}

// AcquireOpenFile blocks until an open-file slot is available.
func (t *Throttle) AcquireOpenFile(ctx context.Context) (*Permit, error) {
	return t.OpenFiles.Acquire(ctx)
}

// ConsumeOp consumes one operation permit, for each filesystem syscall of
// interest (spec.md §4.1).
func (t *Throttle) ConsumeOp(ctx context.Context) error {
	return t.Ops.Consume(ctx, 1)
}

// ConsumeChunk consumes one iops permit and chunkLen bytes from the
// throughput gate, for one streamed chunk of file content.
func (t *Throttle) ConsumeChunk(ctx context.Context, chunkLen int) error {
	if err := t.IOPS.Consume(ctx, 1); err != nil {
		return err
	}
	return t.Tput.Consume(ctx, chunkLen)
}

// IOOpsForSize computes ⌈size / chunk⌉, the number of I/O operations a file
// of the given size will consume against the iops gate, per spec.md §4.1.
func (t *Throttle) IOOpsForSize(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + t.chunkSize - 1) / t.chunkSize
}

// ChunkSize returns the configured streaming chunk size.
func (t *Throttle) ChunkSize() int64 { return t.chunkSize }
