package pass

import "github.com/sbl8/partitionkernel/graph"

// FuseBias folds a trailing bias-add into a preceding MatMul/Convolution,
// per spec.md §4.1.1 step 4. Matches matmul(a,b) -> add(_, bias) where bias
// is a 1-D constant value broadcast over the matmul's output, records the
// fusion via the "bias" attribute (read by kernel.Build and
// execarg.RoleForInput), and bypasses the add.
var FuseBias = Pass{
	Name: "fuse_bias_add",
	Run: func(sg *graph.Subgraph) error {
		for _, mm := range sg.LiveOps() {
			if mm.Kind != graph.KindMatMul && mm.Kind != graph.KindConvolution {
				continue
			}
			if bias, ok := mm.AttrBool("bias"); ok && bias {
				continue // already fused
			}
			out := sg.MustValue(mm.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			add, ok := sg.Op(out.Consumers[0])
			if !ok || add.Dead || !isAdd(add) || len(add.Inputs) != 2 {
				continue
			}

			var biasID graph.ValueID
			found := false
			for _, in := range add.Inputs {
				if in == out.ID {
					continue
				}
				biasVal := sg.MustValue(in)
				if biasVal.Const && len(biasVal.Shape) == 1 {
					biasID = in
					found = true
				}
			}
			if !found {
				continue
			}

			mm.Inputs = append(mm.Inputs, biasID)
			mm.SetAttr("bias", true)
			mm.Outputs = add.Outputs
			sg.MarkDead(add.ID)
			sg.MustValue(add.Outputs[0]).Producer = mm.ID
		}
		return nil
	},
}
