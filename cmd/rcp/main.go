// Command rcp recursively copies one or more source trees into a
// destination, preserving metadata per a configurable policy and
// throttling I/O the same way every binary in this module does.
//
// Grounded on src/main.rs's Args (the original rcp's single-source
// prototype, generalized here to SRC... per spec.md §6's flag list) and
// rlink/src/main.rs for the shared concurrency/throttle flag set.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/internal/cliutil"
	"github.com/wykurz/rcp-sub001/internal/version"
	"github.com/wykurz/rcp-sub001/kernel"
	"github.com/wykurz/rcp-sub001/pathspec"
	"github.com/wykurz/rcp-sub001/preserve"
	"github.com/wykurz/rcp-sub001/stats"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/walk"
)

type rcpFlags struct {
	overwrite        bool
	overwriteCompare string
	dereference      bool
	preserve         string
	failEarly        bool
	progress         bool
	progressType     string
	verbose          int
	summary          bool
	quiet            bool
	maxWorkers       int
	maxBlockingPool  int
	maxOpenFiles     int
	opsThrottle      int
	iopsThrottle     int
	chunkSize        int64
	tputThrottle     int
	protocolVersion  bool
}

func main() {
	var f rcpFlags
	root := &cobra.Command{
		Use:           "rcp [flags] SRC... DST",
		Short:         "Recursively copy files and directories",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRcp(cmd, args, &f)
		},
	}
	bindCommonFlags(root, &f)
	root.Flags().BoolVar(&f.overwrite, "overwrite", false, "overwrite existing destination entries")
	root.Flags().StringVar(&f.overwriteCompare, "overwrite-compare", "", "comma-separated axes (size,mtime,...) deciding whether an existing destination entry may be left alone")
	root.Flags().BoolVar(&f.dereference, "dereference", false, "follow symlinks instead of recreating them")
	root.Flags().StringVar(&f.preserve, "preserve", "", "preserve spec, e.g. \"f:uid,gid,mtime d:uid,gid,mtime\"")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rcp:", err)
		os.Exit(cliutil.ExitCode(err))
	}
}

// bindCommonFlags registers the flag set spec.md marks as shared across
// every binary (rcp/rlink/rrm/rcmp/rcpd).
func bindCommonFlags(cmd *cobra.Command, f *rcpFlags) {
	cmd.Flags().BoolVar(&f.failEarly, "fail-early", false, "stop on the first error instead of continuing and reporting at the end")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "accepted for compatibility; no progress is displayed")
	cmd.Flags().StringVar(&f.progressType, "progress-type", "Auto", "accepted for compatibility (ProgressBar, TextUpdates or Auto); has no effect")
	cmd.Flags().CountVarP(&f.verbose, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "print a summary of operations performed")
	cmd.Flags().BoolVar(&f.quiet, "quiet", false, "suppress all but error-level logging")
	cmd.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "maximum concurrent traversal workers (0 = runtime.NumCPU())")
	cmd.Flags().IntVar(&f.maxBlockingPool, "max-blocking-threads", 0, "maximum concurrent blocking-syscall workers (0 = default)")
	cmd.Flags().IntVar(&f.maxOpenFiles, "max-open-files", 0, "maximum concurrently open file descriptors (0 = unlimited)")
	cmd.Flags().IntVar(&f.opsThrottle, "ops-throttle", 0, "maximum filesystem operations per second (0 = unlimited)")
	cmd.Flags().IntVar(&f.iopsThrottle, "iops-throttle", 0, "maximum content read/write chunks per second (0 = unlimited)")
	cmd.Flags().Int64Var(&f.chunkSize, "chunk-size", 0, "bytes per throttled read/write chunk (0 = default)")
	cmd.Flags().IntVar(&f.tputThrottle, "tput-throttle", 0, "maximum content bytes per second (0 = unlimited)")
	cmd.Flags().BoolVar(&f.protocolVersion, "protocol-version", false, "print build version information as JSON and exit")
}

func runRcp(cmd *cobra.Command, args []string, f *rcpFlags) error {
	if f.protocolVersion {
		out, err := version.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if len(args) < 2 {
		return fserr.Config("parse-args", "", fmt.Errorf("rcp requires at least one SRC and a DST"))
	}
	srcs, dst := args[:len(args)-1], args[len(args)-1]

	logger := cliutil.NewLogger(f.verbose, f.quiet)

	resolvedDst, err := pathspec.ExpandTilde(dst)
	if err != nil {
		return fserr.Config("expand-tilde", dst, err)
	}
	if len(srcs) > 1 {
		info, statErr := os.Stat(resolvedDst)
		if statErr != nil || !info.IsDir() {
			return fserr.Config("resolve-dest", resolvedDst, fmt.Errorf("destination must be an existing directory when copying multiple sources"))
		}
	}

	preservePolicy, err := pathspec.ParsePreserveSpec(f.preserve)
	if err != nil {
		return err
	}
	overwriteCompare, err := pathspec.ParseSimpleCompareSpec(f.overwriteCompare)
	if err != nil {
		return err
	}

	t := throttle.New(cliutil.ThrottleConfig(f.maxOpenFiles, f.opsThrottle, f.iopsThrottle, f.chunkSize, f.tputThrottle))
	st := stats.New()
	applier := preserve.NewApplier(preserve.NewBlockingPool(f.maxBlockingPool))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, src := range srcs {
		resolvedSrc, err := pathspec.ExpandTilde(src)
		if err != nil {
			return fserr.Config("expand-tilde", src, err)
		}
		target := resolvedDst
		if len(srcs) > 1 {
			target = filepath.Join(resolvedDst, filepath.Base(resolvedSrc))
		} else {
			target = pathspec.ResolveDest(resolvedSrc, resolvedDst)
		}
		ops := &kernel.CopyOps{
			Throttle:         t,
			Preserve:         preservePolicy,
			Applier:          applier,
			Stats:            st,
			Overwrite:        f.overwrite,
			OverwriteCompare: overwriteCompare,
		}
		logger.WithFields(map[string]interface{}{"src": resolvedSrc, "dst": target}).Info("copying")
		if err := walk.Walk(ctx, resolvedSrc, target, walk.Options{
			Throttle:    t,
			Ops:         ops,
			Stats:       st,
			MaxWorkers:  f.maxWorkers,
			FailEarly:   f.failEarly,
			Dereference: f.dereference,
		}); err != nil {
			return err
		}
	}

	if f.summary {
		fmt.Fprintln(cmd.OutOrStdout(), st.Summary())
	}
	if st.ErrorCount() > 0 {
		return fmt.Errorf("rcp: %.0f error(s) encountered", st.ErrorCount())
	}
	return nil
}
