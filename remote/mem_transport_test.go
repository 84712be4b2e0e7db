package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/wykurz/rcp-sub001/transport"
)

// The following is an in-process transport.Conn/Listener/Dialer double
// backed by net.Pipe, standing in for a real QUIC connection in tests
// that exercise Source/Destination streaming logic without a network.

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type memConn struct {
	peer *memConn
	bi   chan net.Conn
	uni  chan net.Conn
}

func newMemConnPair() (*memConn, *memConn) {
	a := &memConn{bi: make(chan net.Conn, 64), uni: make(chan net.Conn, 64)}
	b := &memConn{bi: make(chan net.Conn, 64), uni: make(chan net.Conn, 64)}
	a.peer, b.peer = b, a
	return a, b
}

func (c *memConn) OpenStream(ctx context.Context) (transport.Stream, error) {
	local, remote := net.Pipe()
	c.peer.bi <- remote
	return local, nil
}

func (c *memConn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	select {
	case s := <-c.bi:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memConn) OpenUniStream(ctx context.Context) (io.WriteCloser, error) {
	local, remote := net.Pipe()
	c.peer.uni <- remote
	return local, nil
}

func (c *memConn) AcceptUniStream(ctx context.Context) (io.Reader, error) {
	select {
	case s := <-c.uni:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memConn) RemoteAddr() net.Addr { return memAddr("mem-peer") }
func (c *memConn) Close() error         { return nil }

type memRegistry struct {
	mu        sync.Mutex
	listeners map[string]*memListener
}

var registry = &memRegistry{listeners: map[string]*memListener{}}

type memListener struct {
	addr   string
	accept chan transport.Conn
}

func memListen(addr string) *memListener {
	l := &memListener{addr: addr, accept: make(chan transport.Conn, 4)}
	registry.mu.Lock()
	registry.listeners[addr] = l
	registry.mu.Unlock()
	return l
}

func (l *memListener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Addr() net.Addr { return memAddr(l.addr) }

func (l *memListener) Close() error {
	registry.mu.Lock()
	delete(registry.listeners, l.addr)
	registry.mu.Unlock()
	return nil
}

type memDialer struct{}

func (memDialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	registry.mu.Lock()
	l, ok := registry.listeners[addr]
	registry.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mem transport: no listener at %q", addr)
	}
	a, b := newMemConnPair()
	l.accept <- b
	return a, nil
}
