package mem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/partitionkernel/execarg"
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/mem"
)

type stubEngine struct{}

func (stubEngine) Kind() string { return "cpu" }

// chainGraph builds in0 -> binary -> t1 -> binary -> t2 -> binary -> out
// so t1 and t2 are both temporaries with disjoint but adjacent lifetimes.
func chainGraph(t *testing.T) *graph.Subgraph {
	t.Helper()
	sg := graph.New(stubEngine{}, graph.FPMathStrict, false)
	shape := graph.Shape{4, 8}

	in0 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	in1 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	in2 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	t1 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	t2 := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})

	sg.Inputs = []graph.ValueID{in0.ID, in1.ID, in2.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{in0.ID, in1.ID}, Outputs: []graph.ValueID{t1.ID}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{t1.ID, in2.ID}, Outputs: []graph.ValueID{t2.ID}})
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{t2.ID, in0.ID}, Outputs: []graph.ValueID{out.ID}})

	return sg
}

func TestPlanner_ClassifiesExternalAndTemporary(t *testing.T) {
	sg := chainGraph(t)
	plan, err := mem.Planner{}.Run(sg)
	require.NoError(t, err)

	for _, id := range sg.Inputs {
		a, ok := plan.Assignment(id)
		require.True(t, ok)
		require.Equal(t, mem.ClassExternalInput, a.Class)
	}
	for _, id := range sg.Outputs {
		a, ok := plan.Assignment(id)
		require.True(t, ok)
		require.Equal(t, mem.ClassExternalOutput, a.Class)
	}

	require.Equal(t, int64(0), plan.TotalInternalPersistentSize())
	require.Greater(t, plan.TotalInternalTemporarySize(), int64(0))
}

func TestPlanner_MemoryDisjointness(t *testing.T) {
	sg := chainGraph(t)
	plan, err := mem.Planner{}.Run(sg)
	require.NoError(t, err)

	// t1's lifetime [0,1] and t2's lifetime [1,2] overlap at op 1 (t2 is
	// produced there while t1 is still read as an input), so they must
	// not share bytes; a naive per-value-its-own-slot baseline would use
	// 2 * 4*8*4 = 256 bytes, so the planner's peak must not exceed that.
	ops := sg.Ops()
	t1 := ops[0].Outputs[0]
	t2 := ops[1].Outputs[0]

	a1, ok := plan.Assignment(t1)
	require.True(t, ok)
	a2, ok := plan.Assignment(t2)
	require.True(t, ok)

	overlap := a1.Offset < a2.Offset+a2.Size && a2.Offset < a1.Offset+a1.Size
	require.False(t, overlap, "overlapping-lifetime temporaries must not share bytes")

	naiveBaseline := int64(2 * 4 * 8 * 4)
	require.LessOrEqual(t, plan.TotalInternalTemporarySize(), naiveBaseline)
}

func TestPlanner_PersistentValuesClassified(t *testing.T) {
	sg := graph.New(stubEngine{}, graph.FPMathStrict, false)
	shape := graph.Shape{4}

	w := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape, Const: true})
	in := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	folded := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})

	sg.Inputs = []graph.ValueID{in.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	constOp := sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Outputs: []graph.ValueID{w.ID}, IsConstant: true})
	_ = constOp
	foldOp := sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: []graph.ValueID{w.ID}, Outputs: []graph.ValueID{folded.ID}, IsConstant: true})
	_ = foldOp
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{in.ID, folded.ID}, Outputs: []graph.ValueID{out.ID}})

	plan, err := mem.Planner{}.Run(sg)
	require.NoError(t, err)

	wAssign, ok := plan.Assignment(w.ID)
	require.True(t, ok)
	require.Equal(t, mem.ClassInternalPersistent, wAssign.Class)

	foldedAssign, ok := plan.Assignment(folded.ID)
	require.True(t, ok)
	require.Equal(t, mem.ClassInternalPersistent, foldedAssign.Class)

	require.Greater(t, plan.TotalInternalPersistentSize(), int64(0))
	require.Len(t, plan.PersistentMemDescList(), 2)
}

func TestPlanner_ZeroLengthTemporaryArena(t *testing.T) {
	sg := graph.New(stubEngine{}, graph.FPMathStrict, false)
	shape := graph.Shape{4}
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	b := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	sg.Inputs = []graph.ValueID{a.ID, b.ID}
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{a.ID, b.ID}, Outputs: []graph.ValueID{out.ID}})

	plan, err := mem.Planner{}.Run(sg)
	require.NoError(t, err)
	require.Equal(t, int64(0), plan.TotalInternalTemporarySize())

	set := plan.ExecArgsSet().Clone()
	require.Len(t, set.Args, 1)
	_ = execarg.RoleDst
}
