package pass

import "github.com/sbl8/partitionkernel/graph"

// MarkConstants propagates the IsConstant tag forward through the subgraph:
// an op is constant if every input is either a constant-flagged value with
// no producer (a compile-time constant input) or produced by an
// already-constant op, per spec.md §4.1.2 steps 1 and 6 (run twice — once
// before layout propagation, once after, since reorders inserted in
// between may add new constant-sourced ops). Ops appear in topological
// order, so a single forward sweep is sufficient each time it runs.
var MarkConstants = Pass{
	Name: "mark_constants",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			op.IsConstant = isConstantSourced(sg, op)
		}
		return nil
	},
}

func isConstantSourced(sg *graph.Subgraph, op *graph.Op) bool {
	if len(op.Inputs) == 0 {
		// A zero-input op (e.g. a materialized weight) is constant only if
		// explicitly tagged so by the frontend.
		tagged, _ := op.AttrBool("constant")
		return tagged
	}
	for _, in := range op.Inputs {
		v := sg.MustValue(in)
		if v.Producer == graph.NoOp {
			if !v.Const {
				return false
			}
			continue
		}
		prod, ok := sg.Op(v.Producer)
		if !ok || !prod.IsConstant {
			return false
		}
	}
	return true
}
