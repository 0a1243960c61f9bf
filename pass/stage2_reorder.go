package pass

import "github.com/sbl8/partitionkernel/graph"

// EliminateReorders removes Reorder ops that became an identity (their
// from/to layout tags match) and fuses back-to-back reorder chains into a
// single hop, per spec.md §4.1.2 step 5. An explicit A→B, B→A pair (spec.md
// §8 scenario 6) only becomes an identity *after* fusion collapses it to
// one hop, so the two sub-passes run to a fixpoint rather than once each in
// a fixed order — otherwise a residual single-hop identity reorder would
// survive a chain that fused to from==to.
var EliminateReorders = Pass{
	Name: "eliminate_reorders",
	Run: func(sg *graph.Subgraph) error {
		for {
			changed := eliminateIdentityReorders(sg)
			changed = fuseReorderChains(sg) || changed
			if !changed {
				return nil
			}
		}
	},
}

// eliminateIdentityReorders bypasses every live Reorder whose from/to
// layout tags already match. Reports whether it changed anything.
func eliminateIdentityReorders(sg *graph.Subgraph) bool {
	changed := false
	for _, op := range sg.LiveOps() {
		if op.Kind != graph.KindReorder {
			continue
		}
		from, _ := op.AttrString("from_layout")
		to, _ := op.AttrString("to_layout")
		if from != "" && from == to {
			bypass(sg, op)
			changed = true
		}
	}
	return changed
}

// fuseReorderChains collapses every back-to-back pair of live Reorder ops
// into a single hop from the first op's input to the second op's final
// layout. Reports whether it changed anything.
func fuseReorderChains(sg *graph.Subgraph) bool {
	changed := false
	for _, first := range sg.LiveOps() {
		if first.Kind != graph.KindReorder || len(first.Outputs) != 1 {
			continue
		}
		out := sg.MustValue(first.Outputs[0])
		if len(out.Consumers) != 1 {
			continue
		}
		second, ok := sg.Op(out.Consumers[0])
		if !ok || second.Dead || second.Kind != graph.KindReorder {
			continue
		}
		finalTo, _ := second.AttrString("to_layout")
		second.Inputs = []graph.ValueID{first.Inputs[0]}
		second.SetAttr("from_layout", attrStringOr(first, "from_layout", ""))
		second.SetAttr("to_layout", finalTo)
		sg.MarkDead(first.ID)
		changed = true
	}
	return changed
}

func attrStringOr(op *graph.Op, key, fallback string) string {
	if s, ok := op.AttrString(key); ok {
		return s
	}
	return fallback
}
