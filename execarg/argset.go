// Package execarg implements the Execution Arg Set of spec.md §3/§4.2: a
// per-op table of argument-role bindings produced as a template by the
// memory planner, cloned once per concurrent caller, and repatched on every
// execute against the caller's external buffers and the per-execute
// scratchpad/persistent arenas.
package execarg

import "github.com/sbl8/partitionkernel/graph"

// Role names an argument position a compiled kernel reads or writes.
// Kept here (rather than in package kernel) so both kernel and the memory
// planner can depend on it without a cycle.
type Role uint8

const (
	RoleSrc0 Role = iota
	RoleSrc1
	RoleSrc2
	RoleDst
	RoleBias
	RoleScale
	RoleZeroPoint
	RoleScratchpad
	RoleWorkspace
)

func (r Role) String() string {
	names := [...]string{"src0", "src1", "src2", "dst", "bias", "scale", "zero_point", "scratchpad", "workspace"}
	if int(r) < len(names) {
		return names[r]
	}
	return "unknown"
}

// Handle is a single argument binding: the role it fills and the backing
// bytes. Data is reassigned in place at repatch time so every alias of the
// same *Handle (held by kernel.CompiledOp.Execute's caller and by the
// classification side-tables below) observes the update.
type Handle struct {
	Role Role
	Data []byte
}

// Binding is the full set of role -> handle for one surviving op.
type Binding map[Role]*Handle

func (b Binding) clone() Binding {
	out := make(Binding, len(b))
	for role, h := range b {
		out[role] = &Handle{Role: h.Role, Data: h.Data}
	}
	return out
}

// ExternalUse records that handle must be repatched from external
// input/output tensor idx at execute time.
type ExternalUse struct {
	Handle *Handle
	Index  int // index into the caller's inputs/outputs slice
}

// InternalUse records that handle must be repatched against an internal
// arena (temporary or persistent) at the given byte offset.
type InternalUse struct {
	Handle *Handle
	Offset int64
	Size   int64
}

// HostScalarUse records that handle must be bound directly to the bytes of
// external input idx (spec.md §4.4 step 3 / §8 "host-scalar input with no
// attached engine"); no separate host-memory object is created.
type HostScalarUse struct {
	Handle  *Handle
	InputIdx int
}

// Set is the per-kernel Execution Arg Set: one Binding per surviving
// (post-compile) op, plus the three side-tables spec.md §3 describes.
type Set struct {
	// Args holds one Binding per surviving op, indexed in the same order
	// as the compiled subgraph's op list.
	Args []Binding

	// OpIDs records which graph.OpID each Args[i] belongs to, for error
	// reporting (spec.md §7 "failing op's kind and index").
	OpIDs []graph.OpID

	ExternalInputs  []ExternalUse
	ExternalOutputs []ExternalUse
	InternalTemp    []InternalUse
	InternalPersist []InternalUse
	HostScalars     []HostScalarUse
}

// NewSet creates an empty Set sized for n surviving ops.
func NewSet(n int) *Set {
	return &Set{
		Args:  make([]Binding, n),
		OpIDs: make([]graph.OpID, n),
	}
}

// Clone deep-copies the Set, rebuilding every side-table's *Handle pointers
// to point at the clone's own Bindings so repatching one clone never
// affects another concurrently-executing clone (spec.md §5 "per-thread
// clones are mutated only by their owning thread").
func (s *Set) Clone() *Set {
	clone := &Set{
		Args:  make([]Binding, len(s.Args)),
		OpIDs: append([]graph.OpID(nil), s.OpIDs...),
	}
	// old *Handle -> new *Handle, so side-tables can be rebuilt below.
	remap := make(map[*Handle]*Handle)
	for i, b := range s.Args {
		nb := b.clone()
		clone.Args[i] = nb
		for role, oldH := range b {
			remap[oldH] = nb[role]
		}
	}
	remapExternal := func(in []ExternalUse) []ExternalUse {
		out := make([]ExternalUse, len(in))
		for i, u := range in {
			out[i] = ExternalUse{Handle: remap[u.Handle], Index: u.Index}
		}
		return out
	}
	remapInternal := func(in []InternalUse) []InternalUse {
		out := make([]InternalUse, len(in))
		for i, u := range in {
			out[i] = InternalUse{Handle: remap[u.Handle], Offset: u.Offset, Size: u.Size}
		}
		return out
	}
	clone.ExternalInputs = remapExternal(s.ExternalInputs)
	clone.ExternalOutputs = remapExternal(s.ExternalOutputs)
	clone.InternalTemp = remapInternal(s.InternalTemp)
	clone.InternalPersist = remapInternal(s.InternalPersist)
	clone.HostScalars = make([]HostScalarUse, len(s.HostScalars))
	for i, u := range s.HostScalars {
		clone.HostScalars[i] = HostScalarUse{Handle: remap[u.Handle], InputIdx: u.InputIdx}
	}
	return clone
}

// RepatchExternalInputs rewrites every external-input handle's Data to the
// corresponding entry of inputs (spec.md §4.4 step 4).
func (s *Set) RepatchExternalInputs(inputs [][]byte) {
	for _, u := range s.ExternalInputs {
		u.Handle.Data = inputs[u.Index]
	}
}

// RepatchExternalOutputs rewrites every external-output handle's Data.
func (s *Set) RepatchExternalOutputs(outputs [][]byte) {
	for _, u := range s.ExternalOutputs {
		u.Handle.Data = outputs[u.Index]
	}
}

// RepatchInternalTemp rewrites every temporary handle's Data against base
// (the per-execute scratchpad buffer), via a Grantor-style slice.
func (s *Set) RepatchInternalTemp(base []byte) {
	for _, u := range s.InternalTemp {
		u.Handle.Data = base[u.Offset : u.Offset+u.Size]
	}
}

// RepatchInternalPersist rewrites every persistent handle's Data against
// base (the constant-cache buffer for this key).
func (s *Set) RepatchInternalPersist(base []byte) {
	for _, u := range s.InternalPersist {
		u.Handle.Data = base[u.Offset : u.Offset+u.Size]
	}
}

// RepatchHostScalars binds each host-scalar handle directly to the raw
// bytes of its external input, since a host scalar has no separate storage
// (spec.md §8 boundary behavior: "a host engine is synthesized").
func (s *Set) RepatchHostScalars(inputs [][]byte) {
	for _, u := range s.HostScalars {
		u.Handle.Data = inputs[u.InputIdx]
	}
}
