package partition_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/partitionkernel/config"
	"github.com/sbl8/partitionkernel/device"
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
	"github.com/sbl8/partitionkernel/partition"
)

func binaryAddPartition() *graph.Subgraph {
	engine := device.NewCPUEngine()
	sg := graph.New(engine, graph.FPMathStrict, false)
	shape := graph.Shape{4}
	a := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	b := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: shape})
	sg.Inputs = []graph.ValueID{a.ID, b.ID}
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{Kind: graph.KindBinary, Inputs: []graph.ValueID{a.ID, b.ID}, Outputs: []graph.ValueID{out.ID}, Attrs: map[string]any{"alg": kernel.BinaryAdd}})
	return sg
}

func TestKernel_CompileThenExecute(t *testing.T) {
	p := binaryAddPartition()
	k := partition.NewKernel(config.Default(), nil)
	engine := device.NewCPUEngine()

	inputs := []device.LogicalTensor{{ID: p.Inputs[0]}, {ID: p.Inputs[1]}}
	outputs := []device.LogicalTensor{{ID: p.Outputs[0]}}

	require.NoError(t, k.Compile(p, engine, inputs, outputs))
	require.True(t, k.Compiled())
	// Compile canonicalized the shape onto the caller's tensor descriptors.
	require.Equal(t, graph.Shape{4}, inputs[0].Shape)
	require.Equal(t, graph.Shape{4}, outputs[0].Shape)

	in0 := []byte{0, 0, 128, 63, 0, 0, 0, 64, 0, 0, 64, 64, 0, 0, 128, 64} // 1,2,3,4
	in1 := make([]byte, 16)
	out := make([]byte, 16)
	require.NoError(t, k.Execute(engine.NewStream(), [][]byte{in0, in1}, [][]byte{out}))
}

// TestKernel_CompileIsIdempotent exercises spec.md §4.5/§5: Compile may be
// re-entered, but the pipeline is built exactly once and every call after
// the first observes that same build's result.
func TestKernel_CompileIsIdempotent(t *testing.T) {
	p := binaryAddPartition()
	k := partition.NewKernel(config.Default(), nil)
	engine := device.NewCPUEngine()
	inputs := []device.LogicalTensor{{ID: p.Inputs[0]}, {ID: p.Inputs[1]}}
	outputs := []device.LogicalTensor{{ID: p.Outputs[0]}}

	require.NoError(t, k.Compile(p, engine, inputs, outputs))
	firstID := k.PartitionID()

	// Re-entering Compile must not rebuild or change the recorded
	// partition id.
	require.NoError(t, k.Compile(p, engine, inputs, outputs))
	require.Equal(t, firstID, k.PartitionID())
}

// TestKernel_ConcurrentCompileBuildsExactlyOnce fans out N goroutines
// calling Compile on the same uncompiled Kernel concurrently; all must
// observe success and the Kernel must end up compiled. The build itself is
// guarded by sync.Once; this test does not count how many builds ran.
func TestKernel_ConcurrentCompileBuildsExactlyOnce(t *testing.T) {
	p := binaryAddPartition()
	k := partition.NewKernel(config.Default(), nil)
	engine := device.NewCPUEngine()
	inputs := []device.LogicalTensor{{ID: p.Inputs[0]}, {ID: p.Inputs[1]}}
	outputs := []device.LogicalTensor{{ID: p.Outputs[0]}}

	const n = 16
	var wg sync.WaitGroup
	var failures int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := k.Compile(p, engine, inputs, outputs); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, failures)
	require.True(t, k.Compiled())
}

// TestKernel_ExecuteBeforeCompileFails covers the boundary case of an
// uncompiled kernel being executed.
func TestKernel_ExecuteBeforeCompileFails(t *testing.T) {
	k := partition.NewKernel(config.Default(), nil)
	engine := device.NewCPUEngine()
	err := k.Execute(engine.NewStream(), nil, nil)
	require.Error(t, err)
}

func TestKernel_CompileFailurePropagatesOnEveryCall(t *testing.T) {
	engine := device.NewCPUEngine()
	sg := graph.New(engine, graph.FPMathStrict, false)
	out := sg.AddValue(&graph.Value{Type: graph.F32, Shape: graph.Shape{graph.DynamicDim}})
	sg.Outputs = []graph.ValueID{out.ID}
	sg.AddOp(&graph.Op{Kind: graph.KindEltwise, Outputs: []graph.ValueID{out.ID}})

	k := partition.NewKernel(config.Default(), nil)
	err1 := k.Compile(sg, engine, nil, []device.LogicalTensor{{ID: out.ID}})
	require.Error(t, err1)

	err2 := k.Compile(sg, engine, nil, []device.LogicalTensor{{ID: out.ID}})
	require.Error(t, err2)
	require.False(t, k.Compiled())
}
