package pass

import (
	"fmt"
	"io"

	"github.com/sbl8/partitionkernel/graph"
)

// DotVisualizer writes a Graphviz dot digraph per snapshot to w, grounded
// on the same "emit a debug artifact per named stage" idea as sbl8/sublation's
// cmd/sublperf reporting — here it's pipeline stages instead of perf samples.
type DotVisualizer struct {
	w io.Writer
}

// NewDotVisualizer wraps w; errors from individual writes are swallowed
// (visualization is diagnostic, never load-bearing for correctness).
func NewDotVisualizer(w io.Writer) *DotVisualizer {
	return &DotVisualizer{w: w}
}

func (d *DotVisualizer) Snapshot(stage string, sg *graph.Subgraph) {
	fmt.Fprintf(d.w, "digraph %q {\n", stage)
	for _, op := range sg.Ops() {
		style := ""
		if op.Dead {
			style = " [style=dashed]"
		}
		fmt.Fprintf(d.w, "  op%d [label=%q]%s;\n", op.ID, op.Kind.String(), style)
		for _, in := range op.Inputs {
			fmt.Fprintf(d.w, "  v%d -> op%d;\n", in, op.ID)
		}
		for _, out := range op.Outputs {
			fmt.Fprintf(d.w, "  op%d -> v%d;\n", op.ID, out)
		}
	}
	fmt.Fprintln(d.w, "}")
}
