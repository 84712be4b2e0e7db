package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/preserve"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/transport"
	"github.com/wykurz/rcp-sub001/wire"
)

// WorkerConfig bundles what a worker process (cmd/rcpd) needs to act on
// whichever role the coordinator's MasterHello assigns it. ListenAddr is
// only used when the coordinator assigns the source role, to bind the
// listener the destination worker is then told to dial. Listen defaults
// to transport.Listen; tests override it with the in-memory double.
type WorkerConfig struct {
	MasterAddr   string
	ListenAddr   string
	Dialer       transport.Dialer
	TransportCfg transport.Config
	Listen       func(addr string, cfg transport.Config) (transport.Listener, error)
	Applier      *preserve.Applier
	Throttle     *throttle.Throttle
	Stats        *stats.Counters
}

// RunWorker dials the coordinator at cfg.MasterAddr, receives its
// MasterHello over the resulting connection's control stream, and
// dispatches to a Source or Destination according to the role assigned,
// per spec.md §4.5.1. It returns once that role's transfer completes.
//
// Grounded on rcpd/src/main.rs's async_main, which reads a single
// MasterHello datagram and matches on its role the same way; here the
// dispatch happens over the control stream recvHandshake already reads
// for the coordinator side, rather than a second ad hoc message type.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	conn, err := cfg.Dialer.Dial(ctx, cfg.MasterAddr)
	if err != nil {
		return fserr.Transport("dial-master", cfg.MasterAddr, err)
	}
	defer conn.Close()

	msg, _, stream, err := recvHandshake(ctx, conn)
	if err != nil {
		return err
	}
	defer stream.Close()

	if msg.Kind != wire.KindMasterHello || msg.MasterHello == nil {
		return fserr.Protocol("handshake", "", errors.New("expected master_hello"))
	}
	hello := msg.MasterHello
	if hello.Job == nil {
		return fserr.Protocol("handshake", "", errors.New("master_hello missing job spec"))
	}
	params, err := ParamsFromSpec(*hello.Job)
	if err != nil {
		return err
	}

	listen := cfg.Listen
	if listen == nil {
		listen = transport.Listen
	}

	switch hello.Role {
	case wire.RoleSource:
		listener, err := listen(cfg.ListenAddr, cfg.TransportCfg)
		if err != nil {
			return err
		}
		defer listener.Close()
		src := &Source{
			Root:     hello.Src,
			Params:   params,
			Listener: listener,
			Throttle: cfg.Throttle,
			Stats:    cfg.Stats,
		}
		return src.Run(ctx, NewSessionName(), wire.NewSendStream(stream))
	case wire.RoleDestination:
		dst := &Destination{
			Root:     hello.Dst,
			Params:   params,
			Applier:  cfg.Applier,
			Throttle: cfg.Throttle,
			Stats:    cfg.Stats,
		}
		return dst.Run(ctx, cfg.Dialer, hello.SourceAddr)
	default:
		return fserr.Protocol("handshake", "", fmt.Errorf("unknown role %q", hello.Role))
	}
}
