package execarg

import "github.com/sbl8/partitionkernel/graph"

// RoleForInput maps an op's i'th input to the argument role a reference
// kernel (package kernel) expects it under. This is the single mapping
// both the memory planner (building the template Set) and the kernel
// registry (binding a CompiledOp) rely on, so they always agree.
func RoleForInput(op *graph.Op, idx int) Role {
	if op.Kind == graph.KindSum {
		return Role(int(RoleSrc0) + idx)
	}
	if bias, ok := op.AttrBool("bias"); ok && bias && idx == len(op.Inputs)-1 {
		switch op.Kind {
		case graph.KindMatMul, graph.KindConvolution:
			return RoleBias
		}
	}
	switch idx {
	case 0:
		return RoleSrc0
	case 1:
		return RoleSrc1
	default:
		return RoleSrc2
	}
}

// RoleForOutput maps an op's i'th output to its argument role. Every
// reference kernel in this module is single-output, so this is always Dst,
// but the indirection keeps the door open for multi-output kinds (e.g. a
// fused batchnorm producing mean+var) without changing callers.
func RoleForOutput(op *graph.Op, idx int) Role {
	return RoleDst
}
