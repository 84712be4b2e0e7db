// Command rrm recursively removes one or more trees, using the same
// post-order traversal engine as rcp/rlink so directory removal only
// happens once every child has already gone.
//
// Grounded on common/src/lib.rs's recursive remove routine and
// rlink/src/main.rs for the shared concurrency/throttle flags.
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
	"github.com/wykurz/rcp-sub001/kernel"
	"github.com/wykurz/rcp-sub001/pathspec"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
)

type rrmFlags struct {
	failEarly       bool
	verbose         int
	summary         bool
	quiet           bool
	maxWorkers      int
	maxOpenFiles    int
	opsThrottle     int
	iopsThrottle    int
	protocolVersion bool
}

func main() {
	var f rrmFlags
	root := &cobra.Command{
		Use:           "rrm [flags] PATH...",
		Short:         "Recursively remove files and directories",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRrm(cmd, args, &f)
		},
	}
	root.Flags().BoolVar(&f.failEarly, "fail-early", false, "stop on the first error instead of continuing and reporting at the end")
	root.Flags().CountVarP(&f.verbose, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	root.Flags().BoolVar(&f.summary, "summary", false, "print a summary of operations performed")
	root.Flags().BoolVar(&f.quiet, "quiet", false, "suppress all but error-level logging")
	root.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "maximum concurrent traversal workers (0 = runtime.NumCPU())")
	root.Flags().IntVar(&f.maxOpenFiles, "max-open-files", 0, "maximum concurrently open file descriptors (0 = unlimited)")
	root.Flags().IntVar(&f.opsThrottle, "ops-throttle", 0, "maximum filesystem operations per second (0 = unlimited)")
	root.Flags().IntVar(&f.iopsThrottle, "iops-throttle", 0, "maximum content read/write chunks per second (0 = unlimited)")
	root.Flags().BoolVar(&f.protocolVersion, "protocol-version", false, "print build version information as JSON and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rrm:", err)
		os.Exit(cliutil.ExitCode(err))
	}
}

func runRrm(cmd *cobra.Command, args []string, f *rrmFlags) error {
	if f.protocolVersion {
		out, err := version.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if len(args) < 1 {
		return fserr.Config("parse-args", "", fmt.Errorf("rrm requires at least one PATH"))
	}

	logger := cliutil.NewLogger(f.verbose, f.quiet)
	t := throttle.New(cliutil.ThrottleConfig(f.maxOpenFiles, f.opsThrottle, f.iopsThrottle, 0, 0))
	st := stats.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, path := range args {
		resolved, err := pathspec.ExpandTilde(path)
		if err != nil {
			return fserr.Config("expand-tilde", path, err)
		}
		logger.WithField("path", resolved).Info("removing")
		if err := kernel.Remove(ctx, resolved, t, st, f.maxWorkers, f.failEarly); err != nil {
			return err
		}
	}

	if f.summary {
		fmt.Fprintln(cmd.OutOrStdout(), st.Summary())
	}
	if st.ErrorCount() > 0 {
		return fmt.Errorf("rrm: %.0f error(s) encountered", st.ErrorCount())
	}
	return nil
}
