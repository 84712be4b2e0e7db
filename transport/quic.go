package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/wykurz/rcp-sub001/fserr"
)

// Config bundles the QUIC-level knobs a run cares about: keepalive, since
// a source/destination pair may sit idle on one stream while another
// stream is saturating the link, and max idle timeout.
type Config struct {
	TLSConfig       *tls.Config
	KeepAlivePeriod time.Duration
	MaxIdleTimeout  time.Duration
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: c.KeepAlivePeriod,
		MaxIdleTimeout:  c.MaxIdleTimeout,
		EnableDatagrams: true,
	}
}

// quicDialer dials outbound QUIC connections.
type quicDialer struct {
	cfg Config
}

// NewDialer builds a Dialer backed by quic-go.
func NewDialer(cfg Config) Dialer {
	return &quicDialer{cfg: cfg}
}

func (d *quicDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	c, err := quic.DialAddr(ctx, addr, d.cfg.TLSConfig, d.cfg.quicConfig())
	if err != nil {
		return nil, fserr.Transport("dial", addr, err)
	}
	return &quicConn{conn: c}, nil
}

// quicListener accepts inbound QUIC connections.
type quicListener struct {
	l *quic.Listener
}

// Listen binds addr and returns a Listener backed by quic-go.
func Listen(addr string, cfg Config) (Listener, error) {
	l, err := quic.ListenAddr(addr, cfg.TLSConfig, cfg.quicConfig())
	if err != nil {
		return nil, fserr.Transport("listen", addr, err)
	}
	return &quicListener{l: l}, nil
}

func (ql *quicListener) Accept(ctx context.Context) (Conn, error) {
	c, err := ql.l.Accept(ctx)
	if err != nil {
		return nil, fserr.Transport("accept", ql.l.Addr().String(), err)
	}
	return &quicConn{conn: c}, nil
}

func (ql *quicListener) Addr() net.Addr { return ql.l.Addr() }
func (ql *quicListener) Close() error   { return ql.l.Close() }

// quicConn adapts quic.Connection to the Conn interface.
type quicConn struct {
	conn quic.Connection
}

func (c *quicConn) OpenStream(ctx context.Context) (Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fserr.Transport("open-stream", "", err)
	}
	return s, nil
}

func (c *quicConn) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, fserr.Transport("accept-stream", "", err)
	}
	return s, nil
}

func (c *quicConn) OpenUniStream(ctx context.Context) (io.WriteCloser, error) {
	s, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, fserr.Transport("open-uni-stream", "", err)
	}
	return s, nil
}

func (c *quicConn) AcceptUniStream(ctx context.Context) (io.Reader, error) {
	s, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, fserr.Transport("accept-uni-stream", "", err)
	}
	return s, nil
}

func (c *quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicConn) Close() error {
	return c.conn.CloseWithError(0, "closed")
}
