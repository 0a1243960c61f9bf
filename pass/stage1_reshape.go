package pass

import "github.com/sbl8/partitionkernel/graph"

// LiftTypecastTowardInputs implements the reshape-aware lift family of
// spec.md §4.1.1 step 3: swap a Typecast that sits immediately downstream
// of a shape-only op (Reshape/Permute/Squeeze/Unsqueeze) so the cast runs
// first. Typecast is elementwise and shape-only ops don't care about
// element type, so the swap is always safe and lets later fusion passes
// (typecast fusion, step 6) see the cast adjacent to its real consumer.
var LiftTypecastTowardInputs = Pass{
	Name: "lift_typecast_toward_inputs",
	Run: func(sg *graph.Subgraph) error {
		for _, shapeOp := range sg.LiveOps() {
			if !isShapeOnly(shapeOp.Kind) || len(shapeOp.Outputs) != 1 || len(shapeOp.Inputs) != 1 {
				continue
			}
			out := sg.MustValue(shapeOp.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			cast, ok := sg.Op(out.Consumers[0])
			if !ok || cast.Dead || cast.Kind != graph.KindTypecast || len(cast.Inputs) != 1 {
				continue
			}

			shapeIn := shapeOp.Inputs[0]
			castOut := cast.Outputs[0]

			castedIn := sg.AddValue(&graph.Value{
				Type:  sg.MustValue(castOut).Type,
				Shape: sg.MustValue(shapeIn).Shape,
			})

			cast.Inputs = []graph.ValueID{shapeIn}
			cast.Outputs = []graph.ValueID{castedIn.ID}
			castedIn.Producer = cast.ID

			shapeOp.Inputs = []graph.ValueID{castedIn.ID}
			shapeOp.Outputs = []graph.ValueID{castOut}
			castedIn.Consumers = append(castedIn.Consumers, shapeOp.ID)
			sg.MustValue(castOut).Producer = shapeOp.ID
		}
		return nil
	},
}

func isShapeOnly(k graph.Kind) bool {
	switch k {
	case graph.KindReshape, graph.KindPermute, graph.KindSqueeze, graph.KindUnsqueeze, graph.KindShuffle:
		return true
	default:
		return false
	}
}
