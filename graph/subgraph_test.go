package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/partitionkernel/graph"
)

type stubEngine struct{ kind string }

func (s stubEngine) Kind() string { return s.kind }

func newBinaryAddGraph(t *testing.T) *graph.Subgraph {
	t.Helper()
	sg := graph.New(stubEngine{"cpu"}, graph.FPMathStrict, false)

	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	b := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})

	sg.Inputs = []graph.ValueID{a.ID, b.ID}
	sg.Outputs = []graph.ValueID{out.ID}

	sg.AddOp(&graph.Op{
		Kind:    graph.KindBinary,
		Inputs:  []graph.ValueID{a.ID, b.ID},
		Outputs: []graph.ValueID{out.ID},
	})
	return sg
}

func TestValidate_TopologicalSoundness(t *testing.T) {
	sg := newBinaryAddGraph(t)
	require.NoError(t, sg.Validate())
}

func TestValidate_RejectsUseBeforeProduce(t *testing.T) {
	sg := graph.New(stubEngine{"cpu"}, graph.FPMathStrict, false)
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{1}})
	mystery := sg.NewValueID() // never produced, never declared as input
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{1}})

	sg.Inputs = []graph.ValueID{a.ID}
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{
		Kind:    graph.KindBinary,
		Inputs:  []graph.ValueID{a.ID, mystery},
		Outputs: []graph.ValueID{out.ID},
	})

	err := sg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, graph.ErrTopology)
}

func TestMarkDeadAndCompact(t *testing.T) {
	sg := newBinaryAddGraph(t)
	ops := sg.Ops()
	require.Len(t, ops, 1)

	extra := sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Inputs: nil, Outputs: nil})
	sg.MarkDead(extra.ID)
	require.Len(t, sg.Ops(), 2)
	require.Len(t, sg.LiveOps(), 1)

	sg.Compact()
	require.Len(t, sg.Ops(), 1)
	_, ok := sg.Op(extra.ID)
	require.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	sg := newBinaryAddGraph(t)
	clone := sg.Clone()

	clone.Ops()[0].SetAttr("touched", true)
	_, hasAttr := sg.Ops()[0].Attrs["touched"]
	require.False(t, hasAttr, "mutating the clone must not affect the original")

	require.NoError(t, clone.Validate())
}

func TestReplaceInputRewritesConsumersAndOutputs(t *testing.T) {
	sg := newBinaryAddGraph(t)
	a, b := sg.Inputs[0], sg.Inputs[1]
	replacement := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{4, 8}})

	sg.ReplaceInput(a, replacement.ID)
	require.Equal(t, replacement.ID, sg.Ops()[0].Inputs[0])
	require.Equal(t, b, sg.Ops()[0].Inputs[1])
}
