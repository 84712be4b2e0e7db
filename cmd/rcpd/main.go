// Command rcpd is the worker process a coordinator dials out to for one
// side (source or destination) of a remote transfer, per spec.md
// §4.5.1. It never decides its own role: the coordinator's MasterHello,
// received over the connection rcpd dials to --master-addr, says which
// one it plays.
//
// Grounded on rcpd/src/main.rs's Args and async_main, adapted onto
// remote.RunWorker's role dispatch and transport.NewDialer/Listen for
// the QUIC leg.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/internal/cliutil"
	"github.com/wykurz/rcp-sub001/internal/version"
	"github.com/wykurz/rcp-sub001/preserve"
	"github.com/wykurz/rcp-sub001/remote"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/transport"
)

type rcpdFlags struct {
	masterAddr      string
	serverName      string
	verbose         int
	quiet           bool
	maxWorkers      int
	maxBlockingPool int
	maxOpenFiles    int
	opsThrottle     int
	iopsThrottle    int
	chunkSize       int64
	tputThrottle    int
	protocolVersion bool
}

func main() {
	var f rcpdFlags
	root := &cobra.Command{
		Use:           "rcpd [flags]",
		Short:         "Worker process for a remote rcp/rlink transfer",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRcpd(cmd, &f)
		},
	}
	root.Flags().StringVar(&f.masterAddr, "master-addr", "", "address of the coordinator to dial")
	root.Flags().StringVar(&f.serverName, "server-name", "localhost", "TLS server name to present/expect over the ALPN handshake")
	root.Flags().CountVarP(&f.verbose, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	root.Flags().BoolVar(&f.quiet, "quiet", false, "suppress all but error-level logging")
	root.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "accepted for compatibility; the traversal width comes from the coordinator's job")
	root.Flags().IntVar(&f.maxBlockingPool, "max-blocking-threads", 0, "maximum concurrent blocking-syscall workers (0 = default)")
	root.Flags().IntVar(&f.maxOpenFiles, "max-open-files", 0, "maximum concurrently open file descriptors (0 = unlimited)")
	root.Flags().IntVar(&f.opsThrottle, "ops-throttle", 0, "maximum filesystem operations per second (0 = unlimited)")
	root.Flags().IntVar(&f.iopsThrottle, "iops-throttle", 0, "maximum content read/write chunks per second (0 = unlimited)")
	root.Flags().Int64Var(&f.chunkSize, "chunk-size", 0, "bytes per throttled read/write chunk (0 = default)")
	root.Flags().IntVar(&f.tputThrottle, "tput-throttle", 0, "maximum content bytes per second (0 = unlimited)")
	root.Flags().BoolVar(&f.protocolVersion, "protocol-version", false, "print build version information as JSON and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rcpd:", err)
		os.Exit(cliutil.ExitCode(err))
	}
}

func runRcpd(cmd *cobra.Command, f *rcpdFlags) error {
	if f.protocolVersion {
		out, err := version.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if f.masterAddr == "" {
		return fserr.Config("parse-args", "--master-addr", fmt.Errorf("--master-addr is required"))
	}

	logger := cliutil.NewLogger(f.verbose, f.quiet)
	logger.WithField("master-addr", f.masterAddr).Info("dialing coordinator")

	tlsCfg, err := transport.SelfSignedTLSConfig(remote.ALPN)
	if err != nil {
		return fserr.Transport("tls-config", f.masterAddr, err)
	}
	tlsCfg.ServerName = f.serverName
	transportCfg := transport.Config{TLSConfig: tlsCfg}

	t := throttle.New(cliutil.ThrottleConfig(f.maxOpenFiles, f.opsThrottle, f.iopsThrottle, f.chunkSize, f.tputThrottle))
	st := stats.New()
	applier := preserve.NewApplier(preserve.NewBlockingPool(f.maxBlockingPool))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := remote.WorkerConfig{
		MasterAddr:   f.masterAddr,
		ListenAddr:   "0.0.0.0:0",
		Dialer:       transport.NewDialer(transportCfg),
		TransportCfg: transportCfg,
		Applier:      applier,
		Throttle:     t,
		Stats:        st,
	}
	if err := remote.RunWorker(ctx, cfg); err != nil {
		return err
	}

	logger.Info("transfer complete")
	return nil
}
