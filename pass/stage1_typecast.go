package pass

import "github.com/sbl8/partitionkernel/graph"

// FuseTypecastIntoConsumer absorbs a Typecast into its sole consumer when
// that consumer is a MatMul, Binary, or ScalesMul op, per spec.md §4.1.1
// step 6. The consumer is rewired to read the pre-cast value directly and
// records the source type it must now internally convert from, via the
// "fused_cast_from" attribute. kernel.Build does not read that attribute:
// the bound kernel treats the pre-cast input as float32 data.
var FuseTypecastIntoConsumer = Pass{
	Name: "fuse_typecast_into_consumer",
	Run: func(sg *graph.Subgraph) error {
		for _, cast := range sg.LiveOps() {
			if cast.Kind != graph.KindTypecast || len(cast.Outputs) != 1 {
				continue
			}
			out := sg.MustValue(cast.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			consumer, ok := sg.Op(out.Consumers[0])
			if !ok || consumer.Dead {
				continue
			}
			switch consumer.Kind {
			case graph.KindMatMul, graph.KindBinary, graph.KindScalesMul:
			default:
				continue
			}

			srcType := sg.MustValue(cast.Inputs[0]).Type
			for i, in := range consumer.Inputs {
				if in == out.ID {
					consumer.Inputs[i] = cast.Inputs[0]
				}
			}
			consumer.SetAttr("fused_cast_from", srcType)
			sg.MarkDead(cast.ID)
		}
		return nil
	},
}
