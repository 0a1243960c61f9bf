// Package scenario holds the in-process partition catalog cmd/partc
// compiles against. There is no on-disk partition format (spec.md §6
// "Persisted state: none on disk"), so a small built-in catalog stands in
// for the file sublc would otherwise parse — each entry builds one of the
// end-to-end scenarios spec.md §8 describes directly as a graph.Subgraph.
package scenario

import (
	"sort"
	"strings"

	"github.com/sbl8/partitionkernel/device"
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
)

// Scenario names one built-in partition and how to build it.
type Scenario struct {
	Name string

	// Build constructs the subgraph against engine.
	Build func(engine device.Engine) *graph.Subgraph

	// Tensors returns the input/output logical-tensor descriptors for the
	// subgraph Build produced, in the order sg.Inputs/sg.Outputs list.
	Tensors func(sg *graph.Subgraph) (inputs, outputs []device.LogicalTensor)
}

var catalog = map[string]Scenario{}

func register(s Scenario) { catalog[s.Name] = s }

// Get looks up a scenario by name.
func Get(name string) (Scenario, bool) {
	s, ok := catalog[name]
	return s, ok
}

// Names returns the registered scenario names, comma-joined and sorted,
// for use in flag usage strings and error messages.
func Names() string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func tensorsFromLists(sg *graph.Subgraph) (inputs, outputs []device.LogicalTensor) {
	for _, id := range sg.Inputs {
		v := sg.MustValue(id)
		inputs = append(inputs, device.LogicalTensor{ID: v.ID, Type: v.Type, Shape: v.Shape, Layout: v.Layout, Constant: v.Const})
	}
	for _, id := range sg.Outputs {
		v := sg.MustValue(id)
		outputs = append(outputs, device.LogicalTensor{ID: v.ID, Type: v.Type, Shape: v.Shape, Layout: v.Layout, Constant: v.Const})
	}
	return inputs, outputs
}

func init() {
	register(Scenario{
		// spec.md §8 scenario 1: binary add, f32, (4,8)+(4,8)->(4,8).
		Name: "binary_add",
		Build: func(engine device.Engine) *graph.Subgraph {
			sg := graph.New(engine, graph.FPMathStrict, false)
			shape := graph.Shape{4, 8}
			a := sg.AddValue(&graph.Value{Name: "a", Type: graph.F32, Shape: shape})
			b := sg.AddValue(&graph.Value{Name: "b", Type: graph.F32, Shape: shape})
			out := sg.AddValue(&graph.Value{Name: "out", Type: graph.F32, Shape: shape})
			sg.Inputs = []graph.ValueID{a.ID, b.ID}
			sg.Outputs = []graph.ValueID{out.ID}
			sg.AddOp(&graph.Op{
				Kind:    graph.KindBinary,
				Inputs:  []graph.ValueID{a.ID, b.ID},
				Outputs: []graph.ValueID{out.ID},
				Attrs:   map[string]any{"alg": kernel.BinaryAdd},
			})
			return sg
		},
		Tensors: tensorsFromLists,
	})

	register(Scenario{
		// spec.md §8 scenario 2: matmul + bias + ReLU fused, M=K=N=8.
		Name: "matmul_bias_relu",
		Build: func(engine device.Engine) *graph.Subgraph {
			sg := graph.New(engine, graph.FPMathStrict, false)
			a := sg.AddValue(&graph.Value{Name: "a", Type: graph.F32, Shape: graph.Shape{8, 8}})
			b := sg.AddValue(&graph.Value{Name: "b", Type: graph.F32, Shape: graph.Shape{8, 8}})
			bias := sg.AddValue(&graph.Value{Name: "bias", Type: graph.F32, Shape: graph.Shape{8}})
			out := sg.AddValue(&graph.Value{Name: "out", Type: graph.F32, Shape: graph.Shape{8, 8}})
			sg.Inputs = []graph.ValueID{a.ID, b.ID, bias.ID}
			sg.Outputs = []graph.ValueID{out.ID}
			sg.AddOp(&graph.Op{
				Kind:    graph.KindMatMul,
				Inputs:  []graph.ValueID{a.ID, b.ID, bias.ID},
				Outputs: []graph.ValueID{out.ID},
				Attrs:   map[string]any{"m": 8, "k": 8, "n": 8, "bias": true},
				PostOps: []graph.PostOp{{Kind: graph.KindEltwise, Alg: graph.EltwiseReLU}},
			})
			return sg
		},
		Tensors: tensorsFromLists,
	})

	register(Scenario{
		// spec.md §8 scenario 6: reorder -> reorder^-1 -> op; Stage 2's
		// reorder-elimination family must remove both before compile_ops.
		Name: "reorder_pair",
		Build: func(engine device.Engine) *graph.Subgraph {
			sg := graph.New(engine, graph.FPMathStrict, false)
			shape := graph.Shape{4, 4}
			in := sg.AddValue(&graph.Value{Name: "in", Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "abcd"}})
			mid := sg.AddValue(&graph.Value{Name: "mid", Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "acdb"}})
			back := sg.AddValue(&graph.Value{Name: "back", Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "abcd"}})
			out := sg.AddValue(&graph.Value{Name: "out", Type: graph.F32, Shape: shape, Layout: graph.Layout{Tag: "abcd"}})
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
			sg.AddOp(&graph.Op{
				Kind:    graph.KindEltwise,
				Inputs:  []graph.ValueID{back.ID},
				Outputs: []graph.ValueID{out.ID},
				Attrs:   map[string]any{"alg": graph.EltwiseReLU},
			})
			return sg
		},
		Tensors: tensorsFromLists,
	})
}
