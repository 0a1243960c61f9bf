package pass

import "github.com/sbl8/partitionkernel/graph"

// InferShapes computes a resolved output shape for every live op, per
// spec.md §4.1.2 step 2. Elementwise-shaped kinds copy their first input's
// shape (broadcasting already normalized by stage 1's binary
// canonicalization); MatMul derives [M, N] from its attrs or operand
// shapes. Fails with ErrInvariantViolation if a shape cannot be
// determined, per spec.md §4.1.2 "fails if any shape is undetermined".
var InferShapes = Pass{
	Name: "infer_shapes",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			if len(op.Outputs) == 0 {
				continue
			}
			out := sg.MustValue(op.Outputs[0])
			// A nil Shape means "not yet inferred"; an explicitly empty,
			// non-nil Shape (e.g. a host scalar) is already resolved, since
			// Shape.Resolved() is vacuously true for zero dimensions too.
			if out.Shape != nil && out.Shape.Resolved() {
				continue
			}
			shape, ok := inferShape(sg, op)
			if !ok {
				return invariantf("op %d (%s): output shape undetermined", op.ID, op.Kind)
			}
			out.Shape = shape
		}
		return nil
	},
}

func inferShape(sg *graph.Subgraph, op *graph.Op) (graph.Shape, bool) {
	switch op.Kind {
	case graph.KindMatMul:
		m, mOK := op.AttrInt("m")
		n, nOK := op.AttrInt("n")
		if mOK && nOK {
			return graph.Shape{graph.Dim(m), graph.Dim(n)}, true
		}
		if len(op.Inputs) < 2 {
			return nil, false
		}
		a := sg.MustValue(op.Inputs[0])
		b := sg.MustValue(op.Inputs[1])
		if len(a.Shape) != 2 || len(b.Shape) != 2 || !a.Shape.Resolved() || !b.Shape.Resolved() {
			return nil, false
		}
		return graph.Shape{a.Shape[0], b.Shape[1]}, true

	case graph.KindHostScalarImport:
		return graph.Shape{}, true

	default:
		if len(op.Inputs) == 0 {
			return nil, false
		}
		in := sg.MustValue(op.Inputs[0])
		if !in.Shape.Resolved() {
			return nil, false
		}
		return append(graph.Shape(nil), in.Shape...), true
	}
}
