// Package fserr defines the error taxonomy shared across the core: IO,
// Metadata, Protocol, Transport, Config and the Cancelled sentinel. Compare
// mismatches are not modeled as errors (spec.md §7); they are reported
// through the compare kernel's own findings sink.
//
// Grounded on the classification/wrapping style observed through
// fs/walk/walk_test.go's use of rclone's fs/fserrors package
// (fserrors.FsError / fserrors.Count), generalized into a typed Kind here.
package fserr

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for accounting and for fail-early decisions.
type Kind int

const (
	KindIO Kind = iota
	KindMetadata
	KindProtocol
	KindTransport
	KindConfig
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindMetadata:
		return "metadata"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindConfig:
		return "config"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its Kind, the path it concerns and
// the operation that was attempted.
type Error struct {
	Kind Kind
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with context, or returns nil if err is nil.
func New(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: errors.WithStack(err)}
}

// IO wraps a syscall-level failure.
func IO(op, path string, err error) error { return New(KindIO, op, path, err) }

// Metadata wraps a chmod/chown/utimes failure. Never fatal by default.
func Metadata(op, path string, err error) error { return New(KindMetadata, op, path, err) }

// Protocol wraps a wire decoding failure; fatal for the owning stream only.
func Protocol(op, path string, err error) error { return New(KindProtocol, op, path, err) }

// Transport wraps a connection-level failure; fatal for the run.
func Transport(op, path string, err error) error { return New(KindTransport, op, path, err) }

// Config wraps a bad CLI/spec argument; reported before any work begins.
func Config(op, path string, err error) error { return New(KindConfig, op, path, err) }

// IsCancelled reports whether err represents cooperative cancellation; such
// errors must never be logged as errors (spec.md §7).
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == KindCancelled
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindIO for untyped
// errors (the common case at a syscall boundary).
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindIO
}
