package pass

import (
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/kernel"
)

// CompileOps binds every live op to a concrete kernel.CompiledOp, per
// spec.md §4.1.2 step 8. Constant-tagged ops are left bound the same way
// as any other op; it is the execution dispatcher (package exec), not
// compilation, that routes IsConstant ops through the constant cache.
var CompileOps = Pass{
	Name: "compile_ops",
	Run: func(sg *graph.Subgraph) error {
		for _, op := range sg.LiveOps() {
			compiled, err := kernel.Build(op, sg)
			if err != nil {
				return err
			}
			op.Kernel = compiled
		}
		return nil
	},
}
