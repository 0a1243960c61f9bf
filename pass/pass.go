// Package pass implements the Pass Pipeline of spec.md §4.1: named, pure
// transforms over a graph.Subgraph, run in a fixed order, halting on first
// failure. Stage 1 (algebraic, shape-agnostic rewriting) and Stage 2
// (shape/layout/memory/compile) are each assembled by a constructor in this
// package; individual passes live in stage1_*.go / stage2_*.go.
package pass

import (
	"fmt"

	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/internal/obslog"
	"github.com/sbl8/partitionkernel/metrics"
	"github.com/sbl8/partitionkernel/perr"
)

// Pass is one named, pure transform on a mutable Subgraph.
type Pass struct {
	Name string
	Run  func(sg *graph.Subgraph) error
}

// Visualizer receives a named snapshot of the subgraph before/after a pass,
// per spec.md §4.1 set_visualize. The default is a no-op.
type Visualizer interface {
	Snapshot(stage string, sg *graph.Subgraph)
}

type noopVisualizer struct{}

func (noopVisualizer) Snapshot(string, *graph.Subgraph) {}

// Pipeline hosts an ordered list of passes and applies them sequentially.
type Pipeline struct {
	passes     []Pass
	metrics    *metrics.Collector
	vis        Visualizer
	visBefore  bool
	visAfter   bool
}

// NewPipeline creates an empty Pipeline. m may be nil (no metrics).
func NewPipeline(m *metrics.Collector) *Pipeline {
	return &Pipeline{metrics: m, vis: noopVisualizer{}}
}

// Add appends p; order is significant.
func (pl *Pipeline) Add(p Pass) { pl.passes = append(pl.passes, p) }

// SetVisualize toggles pre/post snapshots (spec.md §4.1 set_visualize). A
// nil vis falls back to the no-op visualizer.
func (pl *Pipeline) SetVisualize(vis Visualizer, before, after bool) {
	if vis == nil {
		vis = noopVisualizer{}
	}
	pl.vis = vis
	pl.visBefore = before
	pl.visAfter = after
}

// Run applies every pass in order, stopping at the first error. The error
// is wrapped with the offending pass's name (perr.WrapPass) so callers can
// report "first offending pass name" per spec.md §7.
func (pl *Pipeline) Run(sg *graph.Subgraph) error {
	for _, p := range pl.passes {
		if pl.visBefore {
			pl.vis.Snapshot(p.Name+".before", sg)
		}
		err := p.Run(sg)
		if pl.metrics != nil {
			pl.metrics.ObservePass(p.Name, err)
		}
		if err != nil {
			obslog.L().Error("pass failed", "pass", p.Name, "error", err)
			return perr.WrapPass(p.Name, err)
		}
		if pl.visAfter {
			pl.vis.Snapshot(p.Name+".after", sg)
		}
	}
	return nil
}

// Names returns the ordered list of pass names currently registered, for
// tests asserting pipeline composition.
func (pl *Pipeline) Names() []string {
	names := make([]string, len(pl.passes))
	for i, p := range pl.passes {
		names[i] = p.Name
	}
	return names
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", perr.ErrInvariantViolation, fmt.Sprintf(format, args...))
}
