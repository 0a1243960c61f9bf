// Package device defines the driver/runtime interfaces that the execution
// dispatcher binds against: engine, stream, event, allocator, and the
// tensor/logical-tensor value types that cross the compile/execute
// boundary (spec.md §6). These are external collaborators per spec.md §1
// ("device driver/runtime objects... are external") — this package only
// defines the narrow interface surface this module needs, plus a
// synchronous CPU implementation used by tests and the reference kernels.
package device

import (
	"github.com/sbl8/partitionkernel/graph"
)

// Backend names the three runtime families spec.md §1 lists.
type Backend uint8

const (
	BackendCPU Backend = iota
	BackendOCL
	BackendSYCL
)

func (b Backend) String() string {
	switch b {
	case BackendCPU:
		return "cpu"
	case BackendOCL:
		return "ocl"
	case BackendSYCL:
		return "sycl"
	default:
		return "unknown"
	}
}

// Allocator is the external allocator collaborator (spec.md §1). It must be
// safe for concurrent use (spec.md §5 "The allocator is thread-safe").
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free([]byte)
}

// Event is an opaque device-completion token. Synchronous (CPU) backends
// use a trivial always-ready event; OCL/SYCL adapters wrap their native
// event types behind this interface so the dispatcher can chain dependency
// events uniformly (spec.md §4.4 "Event chaining").
type Event interface {
	// Wait blocks until the event's work has completed. For the CPU
	// backend this returns immediately, since CPU ops are dispatched
	// synchronously.
	Wait() error
}

// Engine is the minimal device-engine interface (spec.md Glossary
// "engine"). It satisfies graph.Engine and additionally exposes the
// allocator and a stream constructor.
type Engine interface {
	Kind() string
	Backend() Backend
	Allocator() Allocator
	NewStream() Stream
}

// Stream is a device command queue / execution context.
type Stream interface {
	Engine() Engine
}

// LogicalTensor is the compile-time descriptor of a partition input or
// output (spec.md §6): id, element type, shape, layout tag, property
// flags.
type LogicalTensor struct {
	ID       graph.ValueID
	Type     graph.ElemType
	Shape    graph.Shape
	Layout   graph.Layout
	Constant bool
}

// Tensor is the execute-time triple spec.md §6 describes: a logical
// descriptor, the device engine backing it, and a raw data handle.
type Tensor struct {
	Logical LogicalTensor
	Engine  Engine
	Data    []byte
}
