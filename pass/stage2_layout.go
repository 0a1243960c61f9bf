package pass

import "github.com/sbl8/partitionkernel/graph"

const (
	layoutPacked  = "abx"
	layoutBlocked = "aBx8b"
)

// PropagateLayout assigns a concrete physical layout to every value that
// doesn't have one yet, per spec.md §4.1.2 step 4. It propagates a single
// preferred tag (packed, or blocked when the subgraph requests it) forward
// from each op's first input to its outputs (an output that already carries
// a layout keeps it), and inserts an explicit Reorder in front of an op
// wherever one of its inputs carries a layout other than the preferred tag
// (e.g. a subgraph input pinned by the caller).
var PropagateLayout = Pass{
	Name: "propagate_layout",
	Run: func(sg *graph.Subgraph) error {
		preferred := layoutPacked
		if sg.UseBlockedLayout {
			preferred = layoutBlocked
		}

		for _, id := range sg.Inputs {
			v := sg.MustValue(id)
			if !v.Layout.IsChosen() {
				v.Layout = graph.Layout{Tag: preferred}
			}
		}

		for _, op := range sg.LiveOps() {
			for _, outID := range op.Outputs {
				out := sg.MustValue(outID)
				if out.Layout.IsChosen() {
					continue
				}
				tag := preferred
				if len(op.Inputs) > 0 {
					if in := sg.MustValue(op.Inputs[0]); in.Layout.IsChosen() {
						tag = in.Layout.Tag
					}
				}
				out.Layout = graph.Layout{Tag: tag}
			}

			// Insert a Reorder wherever an input's chosen layout disagrees
			// with the op's own preferred tag (e.g. a pinned external
			// input in blocked layout feeding a packed-preference op).
			for i, inID := range op.Inputs {
				in := sg.MustValue(inID)
				if !in.Layout.IsChosen() || in.Layout.Tag == preferred {
					continue
				}
				reordered := sg.AddValue(&graph.Value{Type: in.Type, Shape: in.Shape, Layout: graph.Layout{Tag: preferred}})
				idx, ok := sg.OpIndex(op.ID)
				if !ok {
					continue
				}
				reorderOp := &graph.Op{
					Kind:    graph.KindReorder,
					Inputs:  []graph.ValueID{inID},
					Outputs: []graph.ValueID{reordered.ID},
				}
				reorderOp.SetAttr("from_layout", in.Layout.Tag)
				reorderOp.SetAttr("to_layout", preferred)
				sg.InsertOpAfter(idx-1, reorderOp)
				op.Inputs[i] = reordered.ID
			}
		}
		return nil
	},
}
