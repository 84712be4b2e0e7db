package remote

import (
	"context"
	"errors"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/transport"
	"github.com/wykurz/rcp-sub001/wire"
)

// Job describes one remote transfer: a source tree and a destination
// tree, each owned by a worker process launched out-of-band by the
// invoking CLI (spec.md §4.5: process launch itself is explicitly
// out-of-band and outside this protocol's concern; see cmd/rcpd for the
// worker entry point this package's Source/Destination types are driven
// from).
type Job struct {
	Src, Dst string
	Spec     wire.JobSpec
}

// Coordinator brokers the three-step MasterHello/SourceMasterHello
// handshake of spec.md §4.5.1 between the two worker processes that dial
// Listener for one Job. It assumes the caller launches the source
// worker first and the destination worker second, the sequencing this
// implementation uses to resolve "which connection is which" without
// further negotiation.
type Coordinator struct {
	Listener transport.Listener
}

// Run waits for both workers to connect, exchanges MasterHello with
// each, and returns once the destination worker has been told how to
// reach the source. The workers' own connection to each other, not the
// coordinator's, carries the transfer itself.
func (c *Coordinator) Run(ctx context.Context, job Job) error {
	srcConn, err := c.Listener.Accept(ctx)
	if err != nil {
		return fserr.Transport("accept-source-worker", "", err)
	}
	defer srcConn.Close()

	_, srcStream, err := sendHandshake(ctx, srcConn, &wire.Message{
		Kind: wire.KindMasterHello,
		MasterHello: &wire.MasterHello{
			Role: wire.RoleSource,
			Src:  job.Src,
			Dst:  job.Dst,
			Job:  &job.Spec,
		},
	})
	if err != nil {
		return err
	}
	defer srcStream.Close()

	reply, err := wire.NewRecvStream(srcStream).ReadMessage()
	if err != nil {
		return err
	}
	if reply.Kind != wire.KindSourceMasterHello || reply.SourceMasterHello == nil {
		return fserr.Protocol("handshake", "", errors.New("expected source_master_hello reply"))
	}

	dstConn, err := c.Listener.Accept(ctx)
	if err != nil {
		return fserr.Transport("accept-destination-worker", "", err)
	}
	defer dstConn.Close()

	_, dstStream, err := sendHandshake(ctx, dstConn, &wire.Message{
		Kind: wire.KindMasterHello,
		MasterHello: &wire.MasterHello{
			Role:        wire.RoleDestination,
			SessionName: reply.SourceMasterHello.SessionName,
			Dst:         job.Dst,
			Job:         &job.Spec,
			SourceAddr:  reply.SourceMasterHello.SourceAddr,
		},
	})
	if err != nil {
		return err
	}
	defer dstStream.Close()
	return nil
}
