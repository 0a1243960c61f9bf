package pass_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
	"github.com/sbl8/partitionkernel/pass"
)

func newSG() *graph.Subgraph {
	return graph.New(stubEngine{}, graph.FPMathStrict, false)
}

func TestFuseReciprocalMul_RewritesToDiv(t *testing.T) {
	sg := newSG()
	shape := graph.Shape{4}
	x := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	y := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	recip := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	sg.Inputs = []graph.ValueID{x.ID, y.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: []graph.ValueID{x.ID}, Outputs: []graph.ValueID{recip.ID}, Attrs: map[string]any{"alg": graph.EltwiseReciprocal}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{y.ID, recip.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryMul}})

	require.NoError(t, pass.FuseReciprocalMul.Run(sg))

	live := sg.LiveOps()
	require.Len(t, live, 1)
	require.Equal(t, graph.KindBinary, live[0].Kind)
	alg, _ := live[0].Attrs["alg"].(kernel.BinaryAlg)
	require.Equal(t, kernel.BinaryDiv, alg)
	require.Equal(t, []graph.ValueID{y.ID, x.ID}, live[0].Inputs)

	// Idempotent: running again finds nothing left to match.
	before := len(sg.LiveOps())
	require.NoError(t, pass.FuseReciprocalMul.Run(sg))
	require.Equal(t, before, len(sg.LiveOps()))
}

func TestFuseMulSigmoid_RewritesToSwish(t *testing.T) {
	sg := newSG()
	shape := graph.Shape{4}
	x := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	sig := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	sg.Inputs = []graph.ValueID{x.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: []graph.ValueID{x.ID}, Outputs: []graph.ValueID{sig.ID}, Attrs: map[string]any{"alg": graph.EltwiseSigmoid}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{x.ID, sig.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryMul}})

	require.NoError(t, pass.FuseMulSigmoid.Run(sg))

	live := sg.LiveOps()
	require.Len(t, live, 1)
	require.Equal(t, graph.KindEltwise, live[0].Kind)
	alg, _ := live[0].Attrs["alg"].(graph.EltwiseAlg)
	require.Equal(t, graph.EltwiseSwish, alg)
}

func TestFuseAddChainToSum_CollapsesChain(t *testing.T) {
	sg := newSG()
	shape := graph.Shape{4}
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	b := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	c := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	d := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	t1 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	t2 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	sg.Inputs = []graph.ValueID{a.ID, b.ID, c.ID, d.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{a.ID, b.ID}, Outputs: []graph.ValueID{t1.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{t1.ID, c.ID}, Outputs: []graph.ValueID{t2.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{t2.ID, d.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})

	require.NoError(t, pass.FuseAddChainToSum.Run(sg))

	live := sg.LiveOps()
	require.Len(t, live, 1)
	require.Equal(t, graph.KindSum, live[0].Kind)
	require.ElementsMatch(t, []graph.ValueID{a.ID, b.ID, c.ID, d.ID}, live[0].Inputs)
}

func TestFuseBias_FoldsIntoMatMul(t *testing.T) {
	sg := newSG()
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 4}})
	w := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	mmOut := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 8}})
	bias := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{8}, Const: true})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 8}})
	sg.Inputs = []graph.ValueID{a.ID, w.ID, bias.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindMatMul, Inputs: []graph.ValueID{a.ID, w.ID}, Outputs: []graph.ValueID{mmOut.ID}, Attrs: map[string]any{"m": 2, "k": 4, "n": 8}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{mmOut.ID, bias.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})

	require.NoError(t, pass.FuseBias.Run(sg))

	live := sg.LiveOps()
	require.Len(t, live, 1)
	require.Equal(t, graph.KindMatMul, live[0].Kind)
	biasFlag, _ := live[0].AttrBool("bias")
	require.True(t, biasFlag)
	require.Equal(t, out.ID, live[0].Outputs[0])
}

func TestCanonicalizeBinaryOperands_PutsSmallerOperandSecond(t *testing.T) {
	sg := newSG()
	big := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	small := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{8}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	sg.Inputs = []graph.ValueID{big.ID, small.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	op := sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{small.ID, big.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})

	require.NoError(t, pass.CanonicalizeBinaryOperands.Run(sg))
	require.Equal(t, big.ID, op.Inputs[0])
	require.Equal(t, small.ID, op.Inputs[1])
}
