// Package workerdemo supplies the three illustrative build workers that
// stand in for the real CAD pipeline, which is an explicit non-goal. Each
// one satisfies singleflight.Worker: deterministic, CPU-light, phased with
// time.Sleep, and instrumented with report calls so the gateway has
// something real to stream end to end. Swapping in an actual CAD backend
// means replacing the Registry New returns, never the cache, broadcaster,
// or gateway.
package workerdemo

import (
	"fmt"
	"time"

	"github.com/go-arcade/cadflight/pkg/singleflight"
)

// Assembly names the three logical endpoints spec.md §6 enumerates.
type Assembly string

const (
	Visualize       Assembly = "visualize"
	CNCOverview     Assembly = "cncOverview"
	DimensionTables Assembly = "dimensionTables"
)

// phase is one named, timed step of a demo build.
type phase struct {
	message string
	percent int
	sleep   time.Duration
}

// Registry maps an Assembly to the singleflight.Worker that builds it.
type Registry map[Assembly]singleflight.Worker

// New returns the default registry for all three assemblies.
func New() Registry {
	return Registry{
		Visualize:       phasedWorker(visualizePhases),
		CNCOverview:     phasedWorker(cncOverviewPhases),
		DimensionTables: phasedWorker(dimensionTablesPhases),
	}
}

var visualizePhases = []phase{
	{"loading parameters", 10, 30 * time.Millisecond},
	{"building rotor geometry", 40, 60 * time.Millisecond},
	{"building stator geometry", 70, 60 * time.Millisecond},
	{"assembling preview mesh", 95, 40 * time.Millisecond},
}

var cncOverviewPhases = []phase{
	{"loading parameters", 15, 20 * time.Millisecond},
	{"computing coil winding layout", 55, 50 * time.Millisecond},
	{"laying out cut paths", 90, 50 * time.Millisecond},
}

var dimensionTablesPhases = []phase{
	{"loading parameters", 20, 20 * time.Millisecond},
	{"tabulating magnafpm dimensions", 60, 40 * time.Millisecond},
	{"tabulating furling dimensions", 90, 40 * time.Millisecond},
}

// phasedWorker builds a singleflight.Worker that walks phases in order,
// reporting and checking cancel_token between each one, and returns a
// small JSON-able result map describing what it "built."
func phasedWorker(phases []phase) singleflight.Worker {
	return func(report singleflight.ReportFunc, cancel *singleflight.CancelToken) (any, error) {
		for _, p := range phases {
			if cancel.IsCancelled() {
				return nil, singleflight.ErrCancelled
			}
			select {
			case <-time.After(p.sleep):
			case <-cancel.Done():
				return nil, singleflight.ErrCancelled
			}
			report(p.message, p.percent)
		}
		if cancel.IsCancelled() {
			return nil, singleflight.ErrCancelled
		}
		report("finalizing", 100)
		return map[string]any{
			"phases":    len(phases),
			"generated": fmt.Sprintf("%d-phase build", len(phases)),
		}, nil
	}
}
