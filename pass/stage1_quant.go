package pass

import "github.com/sbl8/partitionkernel/graph"

// RemoveNoopQuantData drops Quantize/Dequantize ops attributed as no-ops
// (scale==1, zero_point==0, recorded by the frontend as "noop"), per
// spec.md §4.1.1 step 7 "remove no-op quant data".
var RemoveNoopQuantData = Pass{
	Name: "remove_noop_quant_data",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			if op.Kind != graph.KindQuantize && op.Kind != graph.KindDequantize {
				continue
			}
			if noop, ok := op.AttrBool("noop"); !ok || !noop {
				continue
			}
			bypass(sg, op)
		}
		return nil
	},
}

// CollapseZeroPointPairs removes a ZeroPointAdd(negate) immediately
// followed by a matching ZeroPointAdd of the opposite sign and equal
// magnitude, per spec.md §4.1.1 step 7 "collapse sub-zp+add-zp pairs".
var CollapseZeroPointPairs = Pass{
	Name: "collapse_zero_point_pairs",
	Run: func(sg *graph.Subgraph) error {
		for _, sub := range sg.LiveOps() {
			if sub.Kind != graph.KindZeroPointAdd || len(sub.Outputs) != 1 {
				continue
			}
			negate, _ := sub.AttrBool("negate")
			if !negate {
				continue
			}
			out := sg.MustValue(sub.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			add, ok := sg.Op(out.Consumers[0])
			if !ok || add.Dead || add.Kind != graph.KindZeroPointAdd {
				continue
			}
			addNegate, _ := add.AttrBool("negate")
			if addNegate {
				continue
			}
			zpSub, _ := sub.AttrInt("zero_point")
			zpAdd, _ := add.AttrInt("zero_point")
			if zpSub != zpAdd {
				continue
			}
			bypassInto(sg, sub, add)
		}
		return nil
	},
}

// FusePostOpQuantData replaces a surviving ScalesMul whose sole consumer is
// a Binary op with a fused ScalesMul post-op on that binary, per spec.md
// §4.1.1 step 7 "replace leftover quant data with binary post-ops".
// ZeroPointAdd ops are not fused by this pass. A second run finds nothing
// new once fused (idempotent).
var FusePostOpQuantData = Pass{
	Name: "fuse_post_op_quant_data",
	Run: func(sg *graph.Subgraph) error {
		for _, scale := range sg.LiveOps() {
			if scale.Kind != graph.KindScalesMul || len(scale.Outputs) != 1 {
				continue
			}
			out := sg.MustValue(scale.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			consumer, ok := sg.Op(out.Consumers[0])
			if !ok || consumer.Dead || consumer.Kind != graph.KindBinary {
				continue
			}
			for i, in := range consumer.Inputs {
				if in == out.ID {
					consumer.Inputs[i] = scale.Inputs[0]
				}
			}
			consumer.PostOps = append(consumer.PostOps, graph.PostOp{
				Kind:  graph.KindScalesMul,
				Attrs: scale.Attrs,
			})
			sg.MarkDead(scale.ID)
		}
		return nil
	},
}

// bypass marks op dead and rewires op's sole consumer(s) to read directly
// from op's sole input, preserving the value graph's connectivity.
func bypass(sg *graph.Subgraph, op *graph.Op) {
	if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
		return
	}
	sg.ReplaceInput(op.Outputs[0], op.Inputs[0])
	sg.MarkDead(op.ID)
}

// bypassInto marks first and second dead, rewiring second's consumers to
// read directly from first's input (collapsing a two-hop identity chain).
func bypassInto(sg *graph.Subgraph, first, second *graph.Op) {
	if len(first.Inputs) != 1 || len(second.Outputs) != 1 {
		return
	}
	sg.ReplaceInput(second.Outputs[0], first.Inputs[0])
	sg.MarkDead(first.ID)
	sg.MarkDead(second.ID)
}
