package remote

import (
	"github.com/wykurz/rcp-sub001/fsobj"
	"github.com/wykurz/rcp-sub001/pathspec"
	"github.com/wykurz/rcp-sub001/throttle"
	"github.com/wykurz/rcp-sub001/wire"
)

// Params is the local, already-parsed form of a wire.JobSpec: the
// coordinator builds one from the CLI flags it parsed and serializes it
// into every MasterHello it sends, and each worker parses it back on
// arrival so both sides of a transfer apply the identical policy.
type Params struct {
	Preserve             fsobj.Policy
	Overwrite            bool
	OverwriteCompare     fsobj.ComparePolicy
	MaxConcurrentStreams int
	MaxWorkers           int
	FailEarly            bool
	Throttle             throttle.Config
}

// ToSpec serializes p into the wire form a MasterHello carries.
func (p Params) ToSpec(preserveSpec, overwriteCompareSpec string) wire.JobSpec {
	return wire.JobSpec{
		PreserveSpec:         preserveSpec,
		Overwrite:            p.Overwrite,
		OverwriteCompareSpec: overwriteCompareSpec,
		MaxConcurrentStreams: uint32(p.MaxConcurrentStreams),
		FailEarly:            p.FailEarly,
		MaxWorkers:           uint32(p.MaxWorkers),
		MaxOpenFiles:         uint32(p.Throttle.MaxOpenFiles),
		OpsThrottle:          uint32(p.Throttle.OpsPerSec),
		IOPSThrottle:         uint32(p.Throttle.IOPSPerSec),
		ChunkSize:            uint64(p.Throttle.ChunkSize),
		TputThrottle:         uint32(p.Throttle.TputBPS),
	}
}

// ParamsFromSpec parses a wire.JobSpec back into Params, the inverse of
// ToSpec run on the receiving worker.
func ParamsFromSpec(spec wire.JobSpec) (Params, error) {
	preserve, err := pathspec.ParsePreserveSpec(spec.PreserveSpec)
	if err != nil {
		return Params{}, err
	}
	compare := fsobj.ComparePolicy{}
	if spec.OverwriteCompareSpec != "" {
		compare, err = pathspec.ParseSimpleCompareSpec(spec.OverwriteCompareSpec)
		if err != nil {
			return Params{}, err
		}
	}
	return Params{
		Preserve:             preserve,
		Overwrite:            spec.Overwrite,
		OverwriteCompare:     compare,
		MaxConcurrentStreams: int(spec.MaxConcurrentStreams),
		MaxWorkers:           int(spec.MaxWorkers),
		FailEarly:            spec.FailEarly,
		Throttle: throttle.Config{
			MaxOpenFiles: int(spec.MaxOpenFiles),
			OpsPerSec:    int(spec.OpsThrottle),
			IOPSPerSec:   int(spec.IOPSThrottle),
			ChunkSize:    int64(spec.ChunkSize),
			TputBPS:      int(spec.TputThrottle),
		},
	}, nil
}
