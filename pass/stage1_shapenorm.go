package pass

import "github.com/sbl8/partitionkernel/graph"

// InsertReductionSqueeze inserts an explicit Squeeze after a Reduction op
// whose "keepdims" attribute is false, per spec.md §4.1.1 step 8 "insert
// unsqueeze/squeeze". Downstream passes then see a uniform contract: every
// Reduction output keeps the reduced axes, and rank-dropping is an explicit
// node.
var InsertReductionSqueeze = Pass{
	Name: "insert_reduction_squeeze",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			if op.Kind != graph.KindReduction || len(op.Outputs) != 1 {
				continue
			}
			keepdims, ok := op.AttrBool("keepdims")
			if ok && keepdims {
				continue
			}
			if _, already := op.Attrs["squeeze_inserted"]; already {
				continue
			}
			out := sg.MustValue(op.Outputs[0])
			idx, ok := sg.OpIndex(op.ID)
			if !ok {
				continue
			}
			squeezed := sg.AddValue(&graph.Value{Type: out.Type, Shape: out.Shape})
			for _, cid := range append([]graph.OpID(nil), out.Consumers...) {
				c, ok := sg.Op(cid)
				if !ok {
					continue
				}
				for i, in := range c.Inputs {
					if in == out.ID {
						c.Inputs[i] = squeezed.ID
					}
				}
			}
			sg.InsertOpAfter(idx, &graph.Op{
				Kind:    graph.KindSqueeze,
				Inputs:  []graph.ValueID{out.ID},
				Outputs: []graph.ValueID{squeezed.ID},
			})
			op.SetAttr("squeeze_inserted", true)
		}
		return nil
	},
}

// CanonicalizeReorders normalizes a Reorder's recorded source/destination
// layout tags so equivalence checks in stage 2's reorder elimination can
// use plain string comparison, per spec.md §4.1.1 step 8 "canonicalize
// reorders".
var CanonicalizeReorders = Pass{
	Name: "canonicalize_reorders",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			if op.Kind != graph.KindReorder {
				continue
			}
			if tag, ok := op.AttrString("to_layout"); ok {
				op.SetAttr("to_layout", normalizeTag(tag))
			}
			if tag, ok := op.AttrString("from_layout"); ok {
				op.SetAttr("from_layout", normalizeTag(tag))
			}
		}
		return nil
	},
}

func normalizeTag(tag string) string {
	if tag == "" {
		return "abx"
	}
	return tag
}
