// Command rcmp compares two trees' metadata without touching either
// one, reporting every entry that differs, is missing on one side, or
// has changed kind.
//
// Grounded on rcmp/src/main.rs's Args for the flag set and
// common/src/filecmp.rs for the comparison/report semantics
// kernel.CompareOps implements.
package main

import (
	"bufio"
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
	"github.com/wykurz/rcp-sub001/walk"
)

type rcmpFlags struct {
	metadataCompare string
	exitEarly       bool
	failEarly       bool
	logPath         string
	verbose         int
	quiet           bool
	maxWorkers      int
	maxOpenFiles    int
	opsThrottle     int
	iopsThrottle    int
	protocolVersion bool
}

func main() {
	var f rcmpFlags
	root := &cobra.Command{
		Use:           "rcmp [flags] SRC DST",
		Short:         "Compare two trees' metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRcmp(cmd, args, &f)
		},
	}
	root.Flags().StringVar(&f.metadataCompare, "metadata-compare", pathspec.DefaultCompareSpec, "compare spec, e.g. \"f:mtime,size d:mtime l:mtime\"")
	root.Flags().BoolVar(&f.exitEarly, "exit-early", false, "stop comparing as soon as the first mismatch is found")
	root.Flags().BoolVar(&f.failEarly, "fail-early", false, "stop on the first error instead of continuing and reporting at the end")
	root.Flags().StringVar(&f.logPath, "log", "", "write findings to this file instead of stdout")
	root.Flags().CountVarP(&f.verbose, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	root.Flags().BoolVar(&f.quiet, "quiet", false, "suppress all but error-level logging")
	root.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "maximum concurrent traversal workers (0 = runtime.NumCPU())")
	root.Flags().IntVar(&f.maxOpenFiles, "max-open-files", 0, "maximum concurrently open file descriptors (0 = unlimited)")
	root.Flags().IntVar(&f.opsThrottle, "ops-throttle", 0, "maximum filesystem operations per second (0 = unlimited)")
	root.Flags().IntVar(&f.iopsThrottle, "iops-throttle", 0, "maximum content read/write chunks per second (0 = unlimited)")
	root.Flags().BoolVar(&f.protocolVersion, "protocol-version", false, "print build version information as JSON and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rcmp:", err)
		os.Exit(cliutil.ExitCode(err))
	}
}

func runRcmp(cmd *cobra.Command, args []string, f *rcmpFlags) error {
	if f.protocolVersion {
		out, err := version.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if len(args) != 2 {
		return fserr.Config("parse-args", "", fmt.Errorf("rcmp requires exactly SRC and DST"))
	}

	logger := cliutil.NewLogger(f.verbose, f.quiet)

	src, err := pathspec.ExpandTilde(args[0])
	if err != nil {
		return fserr.Config("expand-tilde", args[0], err)
	}
	dst, err := pathspec.ExpandTilde(args[1])
	if err != nil {
		return fserr.Config("expand-tilde", args[1], err)
	}

	policy, err := pathspec.ParseCompareSpec(f.metadataCompare)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.logPath != "" {
		logFile, err := os.Create(f.logPath)
		if err != nil {
			return fserr.IO("create", f.logPath, err)
		}
		defer logFile.Close()
		buffered := bufio.NewWriter(logFile)
		defer buffered.Flush()
		out = buffered
	}

	t := throttle.New(cliutil.ThrottleConfig(f.maxOpenFiles, f.opsThrottle, f.iopsThrottle, 0, 0))
	st := stats.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmpCtx, cmpCancel := context.WithCancel(ctx)
	defer cmpCancel()

	ops := &kernel.CompareOps{
		Policy:    policy,
		Stats:     st,
		ExitEarly: f.exitEarly,
		Cancel:    cmpCancel,
	}

	logger.WithFields(map[string]interface{}{"src": src, "dst": dst}).Info("comparing")
	if err := walk.Walk(cmpCtx, src, dst, walk.Options{
		Throttle:   t,
		Ops:        ops,
		Stats:      st,
		MaxWorkers: f.maxWorkers,
		FailEarly:  f.failEarly,
	}); err != nil && cmpCtx.Err() == nil {
		return err
	}
	if !(f.exitEarly && len(ops.Findings) > 0) {
		if err := ops.CheckExtraneous(ctx, src, dst); err != nil {
			return err
		}
	}

	for _, m := range ops.Findings {
		fmt.Fprintln(out, m.String())
	}

	if st.ErrorCount() > 0 {
		return fmt.Errorf("rcmp: %.0f error(s) encountered", st.ErrorCount())
	}
	if len(ops.Findings) > 0 {
		return fmt.Errorf("rcmp: %d mismatch(es) found", len(ops.Findings))
	}
	return nil
}
