package pass

import (
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
)

// FuseReciprocalMul rewrites reciprocal(x), mul(y, recip) into a single
// div(y, x), per spec.md §4.1.1 step 2. Idempotent: once the reciprocal op
// is dead there is nothing left to match on a second pass.
var FuseReciprocalMul = Pass{
	Name: "fuse_reciprocal_mul",
	Run: func(sg *graph.Subgraph) error {
		for _, recip := range sg.LiveOps() {
			if recip.Kind != graph.KindEltwise {
				continue
			}
			alg, _ := recip.Attrs["alg"].(graph.EltwiseAlg)
			if alg != graph.EltwiseReciprocal || len(recip.Outputs) != 1 {
				continue
			}
			out := sg.MustValue(recip.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			mul, ok := sg.Op(out.Consumers[0])
			if !ok || mul.Kind != graph.KindBinary || mul.Dead {
				continue
			}
			mulAlg, _ := mul.Attrs["alg"].(kernel.BinaryAlg)
			if mulAlg != kernel.BinaryMul || len(mul.Inputs) != 2 {
				continue
			}
			// Locate the operand that isn't the reciprocal's output.
			var dividend graph.ValueID
			found := false
			for _, in := range mul.Inputs {
				if in != out.ID {
					dividend = in
					found = true
				}
			}
			if !found {
				continue
			}
			mul.Inputs = []graph.ValueID{dividend, recip.Inputs[0]}
			mul.SetAttr("alg", kernel.BinaryDiv)
			sg.MarkDead(recip.ID)
		}
		return nil
	},
}

// FuseMulSigmoid rewrites sigmoid(x), mul(x, sig) into a single swish(x),
// per spec.md §4.1.1 step 2.
var FuseMulSigmoid = Pass{
	Name: "fuse_mul_sigmoid",
	Run: func(sg *graph.Subgraph) error {
		for _, sigmoid := range sg.LiveOps() {
			if sigmoid.Kind != graph.KindEltwise || len(sigmoid.Inputs) != 1 {
				continue
			}
			alg, _ := sigmoid.Attrs["alg"].(graph.EltwiseAlg)
			if alg != graph.EltwiseSigmoid {
				continue
			}
			out := sg.MustValue(sigmoid.Outputs[0])
			if len(out.Consumers) != 1 {
				continue
			}
			mul, ok := sg.Op(out.Consumers[0])
			if !ok || mul.Kind != graph.KindBinary || mul.Dead || len(mul.Inputs) != 2 {
				continue
			}
			mulAlg, _ := mul.Attrs["alg"].(kernel.BinaryAlg)
			if mulAlg != kernel.BinaryMul {
				continue
			}
			x := sigmoid.Inputs[0]
			otherIsX := (mul.Inputs[0] == x && mul.Inputs[1] == out.ID) ||
				(mul.Inputs[1] == x && mul.Inputs[0] == out.ID)
			if !otherIsX {
				continue
			}
			swish := sg.AddOp(&graph.Op{
				Kind:    graph.KindEltwise,
				Inputs:  []graph.ValueID{x},
				Outputs: mul.Outputs,
				Attrs:   map[string]any{"alg": graph.EltwiseSwish},
			})
			sg.MarkDead(sigmoid.ID)
			sg.MarkDead(mul.ID)
			dst := sg.MustValue(mul.Outputs[0])
			dst.Producer = swish.ID
		}
		return nil
	},
}

// FuseAddChainToSum collapses a chain of single-consumer binary-add ops
// into one N-ary Sum op, per spec.md §4.1.1 step 2. Starts from the
// outermost add of a chain (one whose output does not feed another
// single-consumer add) and walks back toward the inputs, so the whole chain
// becomes one Sum and re-running after a collapse is a no-op (idempotence
// requirement of §4.1.1).
var FuseAddChainToSum = Pass{
	Name: "fuse_add_chain_to_sum",
	Run: func(sg *graph.Subgraph) error {
		for _, head := range sg.LiveOps() {
			if head.Dead || !isAdd(head) || len(head.Inputs) != 2 || len(head.Outputs) != 1 {
				continue
			}
			if hv := sg.MustValue(head.Outputs[0]); len(hv.Consumers) == 1 {
				if next, ok := sg.Op(hv.Consumers[0]); ok && !next.Dead && isAdd(next) && len(next.Inputs) == 2 {
					continue // not the outermost add; a later head folds this one in
				}
			}
			inputs := append([]graph.ValueID(nil), head.Inputs...)
			chain := []*graph.Op{head}

			// Walk backward through single-consumer add producers, folding
			// their other operand into the running input list.
			extended := true
			for extended {
				extended = false
				for i, in := range inputs {
					v := sg.MustValue(in)
					if v.Producer == graph.NoOp {
						continue
					}
					prod, ok := sg.Op(v.Producer)
					if !ok || prod.Dead || !isAdd(prod) || len(v.Consumers) != 1 || len(prod.Inputs) != 2 {
						continue
					}
					already := false
					for _, c := range chain {
						if c.ID == prod.ID {
							already = true
						}
					}
					if already {
						continue
					}
					chain = append(chain, prod)
					newInputs := append([]graph.ValueID(nil), inputs[:i]...)
					newInputs = append(newInputs, prod.Inputs...)
					newInputs = append(newInputs, inputs[i+1:]...)
					inputs = newInputs
					extended = true
					break
				}
			}
			if len(chain) < 2 {
				continue
			}
			sum := sg.AddOp(&graph.Op{
				Kind:    graph.KindSum,
				Inputs:  inputs,
				Outputs: head.Outputs,
			})
			for _, op := range chain {
				sg.MarkDead(op.ID)
			}
			sg.MustValue(head.Outputs[0]).Producer = sum.ID
		}
		return nil
	},
}

func isAdd(op *graph.Op) bool {
	if op.Kind != graph.KindBinary {
		return false
	}
	alg, _ := op.Attrs["alg"].(kernel.BinaryAlg)
	return alg == kernel.BinaryAdd
}
