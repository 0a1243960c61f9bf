package pass

import (
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
)

// CanonicalizeBinaryOperands normalizes operand order for commutative
// binary ops so the broadcasting (fewer-element) operand always lands on
// input 1, matching the reference binary kernel's expectation (spec.md
// §4.1.1 step 5). Non-commutative algorithms (sub, div) are left alone —
// swapping them would change the result.
var CanonicalizeBinaryOperands = Pass{
	Name: "canonicalize_binary_operands",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			if op.Kind != graph.KindBinary || len(op.Inputs) != 2 {
				continue
			}
			alg, _ := op.Attrs["alg"].(kernel.BinaryAlg)
			if alg != kernel.BinaryAdd && alg != kernel.BinaryMul {
				continue
			}
			a := sg.MustValue(op.Inputs[0])
			b := sg.MustValue(op.Inputs[1])
			if !a.Shape.Resolved() || !b.Shape.Resolved() {
				continue // shape inference hasn't run yet in this subgraph
			}
			if a.Shape.Elems() < b.Shape.Elems() {
				op.Inputs[0], op.Inputs[1] = op.Inputs[1], op.Inputs[0]
			}
		}
		return nil
	},
}
