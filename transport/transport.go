// Package transport binds the remote protocol to a concrete network
// substrate: a reliable, authenticated, multiplexed datagram transport
// with independent bidirectional and unidirectional stream semantics.
//
// Grounded on rcpd/src/streams.rs's Connection{open_bi, open_uni,
// accept_bi, accept_uni} wrapper, which this package's Conn interface
// mirrors directly so the remote package never imports quic-go itself.
package transport

import (
	"context"
	"io"
	"net"
)

// Stream is a single bidirectional or unidirectional byte stream within a
// Conn. Both sides close independently (io.Closer closes only the local
// write side on a bidi stream; CloseRead is not needed by this protocol).
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Conn is one multiplexed connection between two parties. Streams opened
// on a Conn are independent: a stall or error on one stream does not
// affect another, per spec.md §4.5.3 ("stream-scoped failures").
type Conn interface {
	// OpenStream opens a new bidirectional stream.
	OpenStream(ctx context.Context) (Stream, error)
	// AcceptStream blocks until the peer opens a new bidirectional stream.
	AcceptStream(ctx context.Context) (Stream, error)
	// OpenUniStream opens a new unidirectional (send-only) stream.
	OpenUniStream(ctx context.Context) (io.WriteCloser, error)
	// AcceptUniStream blocks until the peer opens a new unidirectional
	// (receive-only) stream.
	AcceptUniStream(ctx context.Context) (io.Reader, error)

	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts incoming Conns.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Dialer opens outgoing Conns.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
