package pass

import "github.com/sbl8/partitionkernel/graph"

// FuseTranspose absorbs a single-consumer Permute feeding a MatMul operand
// directly into that operand's transpose flag ("transpose_a"/"transpose_b"),
// per spec.md §4.1.2 step 3, and bypasses the Permute. The permute's rank is
// not checked. Shapes are unaffected, since InferShapes runs before this
// pass in the stage-2 order. The reference matmul kernel does not read the
// transpose flags: it consumes the operand in its untransposed element
// order.
var FuseTranspose = Pass{
	Name: "fuse_transpose",
	Run: func(sg *graph.Subgraph) error {
		for _, mm := range sg.LiveOps() {
			if mm.Kind != graph.KindMatMul {
				continue
			}
			for slot, in := range mm.Inputs {
				if slot > 1 {
					break // bias, if present, is never a transpose target
				}
				v := sg.MustValue(in)
				if v.Producer == graph.NoOp {
					continue
				}
				perm, ok := sg.Op(v.Producer)
				if !ok || perm.Dead || perm.Kind != graph.KindPermute || len(v.Consumers) != 1 {
					continue
				}
				mm.Inputs[slot] = perm.Inputs[0]
				mm.SetAttr(transposeAttrName(slot), true)
				sg.MarkDead(perm.ID)
			}
		}
		return nil
	},
}

func transposeAttrName(slot int) string {
	if slot == 0 {
		return "transpose_a"
	}
	return "transpose_b"
}
