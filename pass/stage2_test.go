package pass_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
	"github.com/sbl8/partitionkernel/pass"
)

func TestMarkConstants_PropagatesThroughChain(t *testing.T) {
	sg := newSG()
	w := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}, Const: true})
	folded := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	in := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	sg.Inputs = []graph.ValueID{in.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	foldOp := sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: []graph.ValueID{w.ID}, Outputs: []graph.ValueID{folded.ID}, Attrs: map[string]any{"alg": graph.EltwiseReLU}})
	useOp := sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{in.ID, folded.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})

	require.NoError(t, pass.MarkConstants.Run(sg))
	require.True(t, foldOp.IsConstant)
	require.False(t, useOp.IsConstant, "the final consumer reads a non-constant external input too")
}

func TestInferShapes_MatMulAndElementwise(t *testing.T) {
	sg := newSG()
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 4}})
	w := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	mmOut := sg.AddValue(&graph.Value{Type: graph.F32})
	relu := sg.AddValue(&graph.Value{Type: graph.F32})
	sg.Inputs = []graph.ValueID{a.ID, w.ID}
	sg.Outputs = []graph.ValueID{relu.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindMatMul, Inputs: []graph.ValueID{a.ID, w.ID}, Outputs: []graph.ValueID{mmOut.ID}})
	sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: []graph.ValueID{mmOut.ID}, Outputs: []graph.ValueID{relu.ID}, Attrs: map[string]any{"alg": graph.EltwiseReLU}})

	require.NoError(t, pass.InferShapes.Run(sg))
	require.Equal(t, graph.Shape{2, 8}, mmOut.Shape)
	require.Equal(t, graph.Shape{2, 8}, relu.Shape)
}

func TestInferShapes_FailsOnUndeterminedShape(t *testing.T) {
	sg := newSG()
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{graph.DynamicDim}})
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: nil, Outputs: []graph.ValueID{out.ID}})

	err := pass.InferShapes.Run(sg)
	require.Error(t, err)
}

func TestFuseTranspose_AbsorbsPermuteIntoMatMul(t *testing.T) {
	sg := newSG()
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 2}})
	permOut := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 4}})
	w := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 8}})
	sg.Inputs = []graph.ValueID{a.ID, w.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindPermute, Inputs: []graph.ValueID{a.ID}, Outputs: []graph.ValueID{permOut.ID}})
	mm := sg.AddOp(&graph.Op{Kind: graph.KindMatMul, Inputs: []graph.ValueID{permOut.ID, w.ID}, Outputs: []graph.ValueID{out.ID}})

	require.NoError(t, pass.FuseTranspose.Run(sg))

	require.Len(t, sg.LiveOps(), 1)
	require.Equal(t, a.ID, mm.Inputs[0])
	flag, _ := mm.AttrBool("transpose_a")
	require.True(t, flag)
}

func TestPropagateLayoutAndEliminateReorders(t *testing.T) {
	sg := newSG()
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	b := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	sg.Inputs = []graph.ValueID{a.ID, b.ID}
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{a.ID, b.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})

	require.NoError(t, pass.PropagateLayout.Run(sg))
	require.True(t, a.Layout.IsChosen())
	require.True(t, out.Layout.IsChosen())

	require.NoError(t, pass.EliminateReorders.Run(sg))
	for _, op := range sg.LiveOps() {
		require.NotEqual(t, graph.KindReorder, op.Kind, "no reorder should remain when every value already agrees on one layout")
	}
}

// TestEliminateReorders_CollapsesInversePairToIdentity exercises spec.md
// §8 scenario 6: reorder -> reorder^-1 -> op. Fusing the two reorders into
// one hop only produces a from==to identity after fusion runs, so this
// asserts EliminateReorders iterates to a fixpoint rather than leaving a
// single residual reorder behind.
func TestEliminateReorders_CollapsesInversePairToIdentity(t *testing.T) {
	sg := newSG()
	shape := graph.Shape{4, 4}
	in := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "abcd"}})
	mid := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "acdb"}})
	back := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "abcd"}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "abcd"}})
	sg.Inputs = []graph.ValueID{in.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{
		Kind: graph.KindReorder, Inputs: []graph.ValueID{in.ID}, Outputs: []graph.ValueID{mid.ID},
		Attrs: map[string]any{"from_layout": "abcd", "to_layout": "acdb"},
	})
	sg.AddOp(&graph.Op{
		Kind: graph.KindReorder, Inputs: []graph.ValueID{mid.ID}, Outputs: []graph.ValueID{back.ID},
		Attrs: map[string]any{"from_layout": "acdb", "to_layout": "abcd"},
	})
	op := sg.AddOp(&graph.Op{
		Kind: graph.KindEltwise, Inputs: []graph.ValueID{back.ID}, Outputs: []graph.ValueID{out.ID},
		Attrs: map[string]any{"alg": graph.EltwiseReLU},
	})

	require.NoError(t, pass.EliminateReorders.Run(sg))

	live := sg.LiveOps()
	require.Len(t, live, 1, "both reorders must be gone, leaving only the consumer op")
	require.Equal(t, op.ID, live[0].ID)
	require.Equal(t, in.ID, live[0].Inputs[0], "the consumer must read directly from the original input")
}

// TestStage2Pipeline_BinaryAddEndToEnd exercises spec.md §8's "binary add"
// scenario: two external f32 inputs through a plain binary-add, compiled to
// a bound kernel with a valid memory plan and no leftover temporaries.
func TestStage2Pipeline_BinaryAddEndToEnd(t *testing.T) {
	sg := newSG()
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	b := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4}})
	sg.Inputs = []graph.ValueID{a.ID, b.ID}
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{a.ID, b.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})

	holder := &pass.PlanHolder{}
	pl := pass.NewStage2Pipeline(nil, holder)
	require.NoError(t, pl.Run(sg))

	require.NotNil(t, holder.Plan)
	require.Equal(t, int64(0), holder.Plan.TotalInternalTemporarySize())
	live := sg.LiveOps()
	require.Len(t, live, 1)
	require.NotNil(t, live[0].Kernel)
}

// TestStage2Pipeline_MatMulBiasReLUEndToEnd exercises spec.md §8's
// "matmul+bias+ReLU fusion" scenario after stage 1 has already folded the
// bias; stage 2 must still shape-infer, plan, and compile it.
func TestStage2Pipeline_MatMulBiasReLUEndToEnd(t *testing.T) {
	sg := newSG()
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{2, 4}})
	w := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	bias := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{8}, Const: true})
	out := sg.AddValue(&graph.Value{Type: graph.F32})
	sg.Inputs = []graph.ValueID{a.ID, w.ID, bias.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	mm := sg.AddOp(&graph.Op{
		Kind:    graph.KindMatMul,
		Inputs:  []graph.ValueID{a.ID, w.ID, bias.ID},
		Outputs: []graph.ValueID{out.ID},
		Attrs:   map[string]any{"m": 2, "k": 4, "n": 8, "bias": true},
		PostOps: []graph.PostOp{{Kind: graph.KindEltwise, Alg: graph.EltwiseReLU}},
	})

	holder := &pass.PlanHolder{}
	pl := pass.NewStage2Pipeline(nil, holder)
	require.NoError(t, pl.Run(sg))

	require.Equal(t, graph.Shape{2, 8}, out.Shape)
	require.NotNil(t, mm.Kernel)
}
