// Command rlink recreates a tree at a destination using hardlinks
// wherever the source content is unchanged, falling back to a byte
// copy when an --update tree supplies newer content. See spec.md §4.3
// for the UpdateRoot/Overwrite staleness rules kernel.LinkOps
// implements.
//
// Grounded on rlink/src/main.rs's Args for the flag set, with the
// shared concurrency/throttle flags factored out the same way cmd/rcp
// does via bindCommonFlags.
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

type rlinkFlags struct {
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
	update           string
	updateExclusive  bool
	updateCompare    string
}

func main() {
	var f rlinkFlags
	root := &cobra.Command{
		Use:           "rlink [flags] SRC... DST",
		Short:         "Recreate a tree using hardlinks, copying only what changed",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRlink(cmd, args, &f)
		},
	}
	bindCommonFlags(root, &f)
	root.Flags().BoolVar(&f.overwrite, "overwrite", false, "overwrite existing destination entries")
	root.Flags().StringVar(&f.overwriteCompare, "overwrite-compare", "", "comma-separated axes deciding whether an existing destination entry may be left alone")
	root.Flags().BoolVar(&f.dereference, "dereference", false, "follow symlinks instead of recreating them")
	root.Flags().StringVar(&f.preserve, "preserve", "", "preserve spec, e.g. \"f:uid,gid,mtime d:uid,gid,mtime\"")
	root.Flags().StringVar(&f.update, "update", "", "tree whose content supplies an entry when it differs from SRC")
	root.Flags().BoolVar(&f.updateExclusive, "update-exclusive", false, "refuse to materialize entries absent from --update")
	root.Flags().StringVar(&f.updateCompare, "update-compare", "", "comma-separated axes deciding whether an --update entry matches SRC")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rlink:", err)
		os.Exit(cliutil.ExitCode(err))
	}
}

func bindCommonFlags(cmd *cobra.Command, f *rlinkFlags) {
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

func runRlink(cmd *cobra.Command, args []string, f *rlinkFlags) error {
	if f.protocolVersion {
		out, err := version.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if len(args) < 2 {
		return fserr.Config("parse-args", "", fmt.Errorf("rlink requires at least one SRC and a DST"))
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
			return fserr.Config("resolve-dest", resolvedDst, fmt.Errorf("destination must be an existing directory when linking multiple sources"))
		}
	}

	var updateRoot string
	if f.update != "" {
		updateRoot, err = pathspec.ExpandTilde(f.update)
		if err != nil {
			return fserr.Config("expand-tilde", f.update, err)
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
	updateCompare, err := pathspec.ParseSimpleCompareSpec(f.updateCompare)
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
		var target string
		if len(srcs) > 1 {
			target = filepath.Join(resolvedDst, filepath.Base(resolvedSrc))
		} else {
			target = pathspec.ResolveDest(resolvedSrc, resolvedDst)
		}
		ops := &kernel.LinkOps{
			Throttle:         t,
			Preserve:         preservePolicy,
			Applier:          applier,
			Stats:            st,
			Overwrite:        f.overwrite,
			OverwriteCompare: overwriteCompare,
			UpdateRoot:       updateRoot,
			UpdateExclusive:  f.updateExclusive,
			UpdateCompare:    updateCompare,
		}
		logger.WithFields(map[string]interface{}{"src": resolvedSrc, "dst": target}).Info("linking")
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
		return fmt.Errorf("rlink: %.0f error(s) encountered", st.ErrorCount())
	}
	return nil
}
