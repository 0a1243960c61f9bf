package pass

import "github.com/sbl8/partitionkernel/graph"

// LowerOps is the 1-to-1 frontend->backend lowering family of spec.md
// §4.1.1 step 1. This module receives subgraphs already expressed in
// backend op kinds (the frontend op registry is an external collaborator
// per spec.md §1), so lowering reduces to validating that every live op
// carries a recognized kind before the rest of the pipeline touches it.
var LowerOps = Pass{
	Name: "lower_ops",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			if op.Kind == graph.KindInvalid {
				return invariantf("op %d has no backend kind assigned", op.ID)
			}
		}
		return nil
	},
}

// InsertHostScalars promotes rank-0 subgraph inputs to proper memory values
// with an attached host-scalar-import op, per spec.md §4.1.1 step 1. A
// rank-0 input cannot be bound as an ordinary device buffer, so every
// consumer is rewired to read the import's output instead.
var InsertHostScalars = Pass{
	Name: "insert_host_scalars",
	Run: func(sg *graph.Subgraph) error {
		for _, id := range append([]graph.ValueID(nil), sg.Inputs...) {
			v, ok := sg.Value(id)
			if !ok || len(v.Shape) != 0 || v.HostScalar {
				continue
			}
			v.HostScalar = true

			imported := sg.AddValue(&graph.Value{
				Type:  v.Type,
				Shape: graph.Shape{},
			})
			importOp := sg.AddOp(&graph.Op{
				Kind:    graph.KindHostScalarImport,
				Inputs:  []graph.ValueID{id},
				Outputs: []graph.ValueID{imported.ID},
			})

			for _, op := range sg.Ops() {
				if op.ID == importOp.ID || op.Dead {
					continue
				}
				for i, in := range op.Inputs {
					if in == id {
						op.Inputs[i] = imported.ID
						imported.Consumers = append(imported.Consumers, op.ID)
					}
				}
			}
		}
		return nil
	},
}
