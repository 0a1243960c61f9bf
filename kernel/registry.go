package kernel

import (
	"fmt"

	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/perr"
)

// Build resolves op's kind and attributes to a CompiledOp, the way
// compile_ops (spec.md §4.1.2 step 8) queries the device engine for an
// implementation. This reference registry has no device-specific
// selection logic (the real primitive-descriptor layer is out of scope
// per spec.md §1) — it dispatches purely on Kind and attrs.
func Build(op *graph.Op, sg *graph.Subgraph) (CompiledOp, error) {
	postOp := graph.EltwiseNone
	if len(op.PostOps) == 1 && op.PostOps[0].Kind == graph.KindEltwise {
		postOp = op.PostOps[0].Alg
	}

	switch op.Kind {
	case graph.KindBinary:
		alg, _ := op.Attrs["alg"].(BinaryAlg)
		return NewBinary(alg, postOp), nil

	case graph.KindEltwise:
		alg, _ := op.Attrs["alg"].(graph.EltwiseAlg)
		return NewEltwise(alg), nil

	case graph.KindSum:
		return NewSum(len(op.Inputs)), nil

	case graph.KindMatMul:
		m, _ := op.AttrInt("m")
		k, _ := op.AttrInt("k")
		n, _ := op.AttrInt("n")
		bias, _ := op.AttrBool("bias")
		return NewMatMul(MatMulAttrs{M: m, K: k, N: n, Bias: bias, PostOp: postOp}), nil

	case graph.KindTypecast:
		srcVal := sg.MustValue(op.Inputs[0])
		dstVal := sg.MustValue(op.Outputs[0])
		return NewTypecast(srcVal.Type, dstVal.Type), nil

	case graph.KindReorder:
		return NewReorder(), nil

	case graph.KindHostScalarImport:
		return NewHostScalarImport(), nil

	case graph.KindConvolution, graph.KindPooling, graph.KindReduction,
		graph.KindReshape, graph.KindPermute, graph.KindQuantize,
		graph.KindDequantize, graph.KindScalesMul, graph.KindZeroPointAdd,
		graph.KindSqueeze, graph.KindUnsqueeze, graph.KindShuffle,
		graph.KindConcat, graph.KindPrelu, graph.KindBatchNorm,
		graph.KindBatchNormFoldedBias:
		// These op kinds rely on the external code-generation
		// collaborator (spec.md §1); this reference registry treats
		// them as data-preserving copies so a partition containing
		// them still compiles and executes end to end without
		// numerically modeling every algorithm.
		return NewReorder(), nil

	default:
		return nil, fmt.Errorf("%w: no kernel registered for op kind %s", perr.ErrUnsupportedConfiguration, op.Kind)
	}
}
