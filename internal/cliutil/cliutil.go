// Package cliutil holds the flag-handling and process-lifecycle pieces
// common to every cmd/* binary in this module: logging verbosity,
// throttle-flag parsing and the argument/runtime/success exit-code split
// spec.md §6 requires of each one.
//
// Grounded on rcpd/src/main.rs's Args (shared concurrency/throttle flag
// set across every binary) and common/src/logging.rs's verbosity-count
// to level mapping, carried over onto logrus.
package cliutil

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wykurz/rcp-sub001/fserr"
	"github.com/wykurz/rcp-sub001/throttle"
)

// Exit codes per spec.md §6: 0 success, 1 differences/errors found while
// otherwise running to completion, 2 a bad argument rejected before any
// work began.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// NewLogger builds a logrus.Logger at the level -v/-vv/-vvv/--quiet
// select: quiet forces ErrorLevel, otherwise 0/1/2/3+ "v"s map to
// Warn/Info/Debug/Trace.
func NewLogger(verbosity int, quiet bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	switch {
	case quiet:
		logger.SetLevel(logrus.ErrorLevel)
	case verbosity <= 0:
		logger.SetLevel(logrus.WarnLevel)
	case verbosity == 1:
		logger.SetLevel(logrus.InfoLevel)
	case verbosity == 2:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.TraceLevel)
	}
	return logger
}

// ThrottleConfig builds a throttle.Config from the flag set shared by
// every binary (--max-open-files, --ops-throttle, --iops-throttle,
// --chunk-size, --tput-throttle).
func ThrottleConfig(maxOpenFiles, opsThrottle, iopsThrottle int, chunkSize int64, tputThrottle int) throttle.Config {
	return throttle.Config{
		MaxOpenFiles: maxOpenFiles,
		OpsPerSec:    opsThrottle,
		IOPSPerSec:   iopsThrottle,
		ChunkSize:    chunkSize,
		TputBPS:      tputThrottle,
	}
}

// ExitCode maps err to the process exit code a cmd/* main should return:
// nil succeeds, a KindConfig error is a usage error, anything else is a
// runtime failure. Cooperative cancellation is treated as a runtime
// failure rather than success: it follows --fail-early or --exit-early
// seeing a problem, or an interrupt/terminate signal.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if fserr.KindOf(err) == fserr.KindConfig {
		return ExitUsage
	}
	return ExitFailure
}
