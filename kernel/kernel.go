// Package kernel is the external op-kind-registry / code-generation
// collaborator named out of scope by spec.md §1 ("the operation kind
// registry and per-kernel GPU code-generation... are referenced only
// through their interfaces"). This package defines that interface and a
// minimal reference implementation set — elementwise/binary primitives and
// a small matmul — grounded on sbl8/sublation's kernels/ops.go
// (vectorAdd, relu, sigmoid, matMul) and the oneDNN simple_binary_t
// primitive spec.md §1 names explicitly, reduced to operate on []float32
// views instead of hand-written SIMD/assembly.
package kernel

import (
	"fmt"
	"math"

	"github.com/sbl8/partitionkernel/device"
	"github.com/sbl8/partitionkernel/execarg"
	"github.com/sbl8/partitionkernel/perr"
)

// CompiledOp is the executable handle compile_ops binds to a surviving op
// (spec.md §4.1.2 step 8, §9 "each compiled op is a polymorphic executable
// with methods {execute, execute_sycl, execute_ocl}").
type CompiledOp interface {
	Name() string
	Alignment() int

	// Execute runs synchronously on the CPU backend.
	Execute(stream device.Stream, args execarg.Binding) error

	// ExecuteOCL/ExecuteSYCL run on their respective async backends,
	// chaining deps and returning the completion event (spec.md §4.4).
	// The reference kernels in this package treat both identically to
	// Execute and return device.ReadyEvent, since real OCL/SYCL dispatch
	// is an external collaborator.
	ExecuteOCL(stream device.Stream, args execarg.Binding, deps []device.Event) (device.Event, error)
	ExecuteSYCL(stream device.Stream, args execarg.Binding, deps []device.Event) (device.Event, error)
}

// defaultAlignment is the byte alignment every reference kernel declares:
// 32 bytes, the same value as the memory planner's fallback.
const defaultAlignment = 32

// asFloat32 decodes b into a newly allocated []float32 (a copy, not a view
// of b); it returns nil if b's length is not a multiple of 4. Grounded on
// sbl8/sublation's core.Sublate.AsFloat32Prev, which reinterprets its dual
// payload buffers in place instead of copying.
func asFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = decodeF32(b[i*4 : i*4+4])
	}
	return out
}

func writeFloat32(b []byte, v []float32) {
	for i, f := range v {
		encodeF32(b[i*4:i*4+4], f)
	}
}

func decodeF32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func encodeF32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func requireRole(args execarg.Binding, role execarg.Role, name string) ([]byte, error) {
	h, ok := args[role]
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: kernel %q missing required arg %s", perr.ErrInvariantViolation, name, role)
	}
	return h.Data, nil
}
