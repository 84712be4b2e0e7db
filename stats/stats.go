// Package stats holds the per-run summary counters: files copied,
// directories created, symlinks created, bytes written, mismatches found,
// and errors encountered (categorized by fserr.Kind). Counters are
// monotonic and thread-safe, observed atomically at run end, per spec.md
// §3.
//
// Grounded on the flat Stats struct in _examples/rclone-rclone/accounting.go
// (an early single-file rclone stats type kept verbatim in the pack),
// generalized here to typed per-kind error buckets and backed by
// prometheus.Counter, the same library rclone's own fs/accounting exposes
// its counters through.
package stats

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wykurz/rcp-sub001/fserr"
)

// Counters is a self-contained, independently registerable set of summary
// counters for one run. A fresh instance is created per run so that
// concurrent runs (e.g. tests) never share state.
type Counters struct {
	FilesCopied     prometheus.Counter
	DirsCreated     prometheus.Counter
	SymlinksCreated prometheus.Counter
	BytesWritten    prometheus.Counter
	Skipped         prometheus.Counter
	Mismatches      prometheus.Counter
	Removed         prometheus.Counter

	errorsByKind *prometheus.CounterVec
}

// New creates a fresh Counters set, each metric named under the "rcp"
// namespace so multiple runs can be scraped independently when registered
// against distinct registries.
func New() *Counters {
	mk := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rcp",
			Name:      name,
			Help:      help,
		})
	}
	return &Counters{
		FilesCopied:     mk("files_copied_total", "Number of regular files copied or linked."),
		DirsCreated:     mk("dirs_created_total", "Number of directories created."),
		SymlinksCreated: mk("symlinks_created_total", "Number of symlinks created."),
		BytesWritten:    mk("bytes_written_total", "Number of file content bytes written."),
		Skipped:         mk("skipped_total", "Number of entries elided by overwrite-compare."),
		Mismatches:      mk("mismatches_total", "Number of metadata mismatches found by rcmp."),
		Removed:         mk("removed_total", "Number of files, symlinks and directories removed by rrm."),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rcp",
			Name:      "errors_total",
			Help:      "Number of errors encountered, by kind.",
		}, []string{"kind"}),
	}
}

// Register adds every metric to reg, so a caller (out of core scope: a
// metrics-serving CLI layer) can expose them.
func (c *Counters) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{
		c.FilesCopied, c.DirsCreated, c.SymlinksCreated,
		c.BytesWritten, c.Skipped, c.Mismatches, c.Removed, c.errorsByKind,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// AddBytes increments BytesWritten by n.
func (c *Counters) AddBytes(n int64) {
	if n > 0 {
		c.BytesWritten.Add(float64(n))
	}
}

// RecordError increments the counter for err's Kind. A Cancelled error is
// never counted as an error (spec.md §7).
func (c *Counters) RecordError(err error) {
	if err == nil || fserr.IsCancelled(err) {
		return
	}
	c.errorsByKind.WithLabelValues(fserr.KindOf(err).String()).Inc()
}

// ErrorCount returns the total number of errors recorded across all kinds,
// used to decide the run's exit disposition ("errors encountered" iff this
// is non-zero, per spec.md §4.3).
func (c *Counters) ErrorCount() float64 {
	total := 0.0
	metrics := make(chan prometheus.Metric, 16)
	go func() {
		c.errorsByKind.Collect(metrics)
		close(metrics)
	}()
	for m := range metrics {
		total += gatherCounterValue(m)
	}
	return total
}

// gatherCounterValue extracts the float64 value out of a prometheus counter
// metric via its protobuf representation, the supported way to read a
// counter's value back out of the client library in production code.
func gatherCounterValue(m prometheus.Metric) float64 {
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		return 0
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return 0
}

// Summary renders a human-readable summary line, in the spirit of the
// teacher's Stats.String() in accounting.go.
func (c *Counters) Summary() string {
	return fmt.Sprintf(
		"files: %.0f, dirs: %.0f, symlinks: %.0f, bytes: %.0f, skipped: %.0f, mismatches: %.0f, removed: %.0f, errors: %.0f",
		gatherCounterValue(c.FilesCopied), gatherCounterValue(c.DirsCreated),
		gatherCounterValue(c.SymlinksCreated), gatherCounterValue(c.BytesWritten),
		gatherCounterValue(c.Skipped), gatherCounterValue(c.Mismatches), gatherCounterValue(c.Removed), c.ErrorCount(),
	)
}
