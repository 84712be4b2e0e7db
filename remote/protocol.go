// Package remote implements the two-party remote transfer protocol:
// a coordinator assigns the Source role to the first worker it accepts and
// the Destination role to the second, each worker dispatches on the
// MasterHello it receives, the source streams
// the tree's FsObject graph and file content over one or more
// concurrent streams, and the destination applies it to a local root
// under the same directory-completion ordering the local walk engine
// uses.
//
// Grounded on rcpd/src/main.rs (role dispatch), rcpd/src/source.rs /
// rcpd/src/destination.rs (connect/listen/handshake sequencing) and
// remote/src/protocol/mod.rs (message shapes, already implemented in the
// wire package).
package remote

import (
	"context"

	"github.com/google/uuid"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/transport"
	"github.com/wykurz/rcp-sub001/wire"
)

// NewSessionName generates the random session identifier a source worker
// announces to the destination, the Go equivalent of the original's
// remote::get_random_server_name().
func NewSessionName() string {
	return uuid.NewString()
}

// ALPN is the TLS ALPN protocol identifier negotiated by every transport
// connection this package opens, so a stray non-protocol connection is
// rejected during the TLS handshake rather than after.
const ALPN = "rcp-sub001/1"

// sendHandshake opens the connection's control stream and sends msg as
// the very first frame on it.
func sendHandshake(ctx context.Context, conn transport.Conn, msg *wire.Message) (*wire.SendStream, transport.Stream, error) {
	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return nil, nil, fserr.Transport("open-control-stream", "", err)
	}
	send := wire.NewSendStream(stream)
	if err := send.WriteMessage(msg); err != nil {
		return nil, nil, err
	}
	return send, stream, nil
}

// recvHandshake accepts the connection's control stream and reads its
// first frame.
func recvHandshake(ctx context.Context, conn transport.Conn) (*wire.Message, *wire.RecvStream, transport.Stream, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, nil, nil, fserr.Transport("accept-control-stream", "", err)
	}
	recv := wire.NewRecvStream(stream)
	msg, err := recv.ReadMessage()
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, recv, stream, nil
}
