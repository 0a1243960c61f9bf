// Package mem implements the Memory Planner of spec.md §4.2: it decides
// where every value produced inside a compiled subgraph lives at execute
// time and emits a template Execution Arg Set.
package mem

import (
	"fmt"
	"sort"

	"github.com/sbl8/partitionkernel/execarg"
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/perr"
)

// Class is the memory-plan category of spec.md §3.
type Class uint8

const (
	ClassExternalInput Class = iota
	ClassExternalOutput
	ClassInternalTemporary
	ClassInternalPersistent
	ClassHostScalar
)

// Assignment is one value's resolved placement.
type Assignment struct {
	Class  Class
	Slot   int   // meaningful for ExternalInput/Output and HostScalar
	Offset int64 // meaningful for InternalTemporary/Persistent
	Size   int64 // meaningful for InternalTemporary/Persistent
}

// Plan is the output of Planner.Run: a mapping from value id to
// Assignment, plus the derived totals and the template Execution Arg Set.
type Plan struct {
	assignments map[graph.ValueID]Assignment

	internalTempSize    int64
	internalPersistSize int64

	execArgs *execarg.Set

	// persistentOrder is the ordered list of persistent value ids, used to
	// key the constant cache (spec.md §4.2 get_persistent_mem_desc_list).
	persistentOrder []graph.ValueID
}

// Assignment looks up a value's placement.
func (p *Plan) Assignment(id graph.ValueID) (Assignment, bool) {
	a, ok := p.assignments[id]
	return a, ok
}

// TotalInternalTemporarySize returns the scratchpad byte count a caller
// must allocate per execute.
func (p *Plan) TotalInternalTemporarySize() int64 { return p.internalTempSize }

// TotalInternalPersistentSize returns the persistent-arena byte count the
// constant cache must allocate once per key.
func (p *Plan) TotalInternalPersistentSize() int64 { return p.internalPersistSize }

// InternalTemporaryGrantor hands out typed handles against base, which
// must be at least TotalInternalTemporarySize() bytes.
func (p *Plan) InternalTemporaryGrantor(base []byte) Grantor { return NewGrantor(base) }

// InternalPersistentGrantor hands out typed handles against base, which
// must be at least TotalInternalPersistentSize() bytes.
func (p *Plan) InternalPersistentGrantor(base []byte) Grantor { return NewGrantor(base) }

// ExecArgsSet returns the template Execution Arg Set. Callers must Clone
// it before repatching (spec.md §4.4 step 1).
func (p *Plan) ExecArgsSet() *execarg.Set { return p.execArgs }

// PersistentMemDescList returns the ordered list of persistent value ids,
// used to key the constant cache (spec.md §4.2, §4.3).
func (p *Plan) PersistentMemDescList() []graph.ValueID { return p.persistentOrder }

// liveInterval is a temporary value's [firstUse, lastUse] in execution
// order, plus its size and required alignment.
type liveInterval struct {
	id        graph.ValueID
	first     int
	last      int
	size      int64
	alignment int64
}

// Planner is stateless; Run is safe to call repeatedly (compile re-entry
// guards live one level up, in package partition).
type Planner struct{}

// Run classifies every value, plans the temporary arena via best-fit
// interval allocation, sizes the persistent arena, and builds the template
// Execution Arg Set (spec.md §4.2).
func (pl Planner) Run(sg *graph.Subgraph) (*Plan, error) {
	liveOps := sg.LiveOps()

	inputSlot := make(map[graph.ValueID]int, len(sg.Inputs))
	for i, id := range sg.Inputs {
		inputSlot[id] = i
	}
	outputSlot := make(map[graph.ValueID]int, len(sg.Outputs))
	for i, id := range sg.Outputs {
		outputSlot[id] = i
	}

	plan := &Plan{assignments: make(map[graph.ValueID]Assignment)}

	// Pass 1: classify every value reachable from the live op list.
	var temporaries []liveInterval
	var persistentIDs []graph.ValueID

	touched := make(map[graph.ValueID]bool)
	noteUse := func(id graph.ValueID) { touched[id] = true }
	for _, op := range liveOps {
		for _, in := range op.Inputs {
			noteUse(in)
		}
		for _, out := range op.Outputs {
			noteUse(out)
		}
	}

	for id := range touched {
		v, ok := sg.Value(id)
		if !ok {
			return nil, fmt.Errorf("%w: memory planner: value %d referenced but not registered", perr.ErrInvariantViolation, id)
		}

		if v.HostScalar {
			slot, ok := inputSlot[id]
			if !ok {
				return nil, fmt.Errorf("%w: host scalar value %d is not a declared input", perr.ErrInvariantViolation, id)
			}
			plan.assignments[id] = Assignment{Class: ClassHostScalar, Slot: slot}
			continue
		}
		if slot, ok := inputSlot[id]; ok {
			plan.assignments[id] = Assignment{Class: ClassExternalInput, Slot: slot}
			continue
		}
		if slot, ok := outputSlot[id]; ok {
			plan.assignments[id] = Assignment{Class: ClassExternalOutput, Slot: slot}
			continue
		}
		if isConstantOnly(sg, v) {
			persistentIDs = append(persistentIDs, id)
			continue
		}

		first, last := liveRange(liveOps, id)
		size := v.Size()
		if size < 0 {
			return nil, fmt.Errorf("%w: memory planner: value %d has unresolved shape", perr.ErrInvariantViolation, id)
		}
		align := alignmentFor(liveOps, id)
		temporaries = append(temporaries, liveInterval{id: id, first: first, last: last, size: size, alignment: align})
	}

	// Deterministic ordering: sort persistent ids, keep temporaries sorted
	// by first-use so the best-fit pass below is reproducible.
	sort.Slice(persistentIDs, func(i, j int) bool { return persistentIDs[i] < persistentIDs[j] })
	sort.Slice(temporaries, func(i, j int) bool {
		if temporaries[i].first != temporaries[j].first {
			return temporaries[i].first < temporaries[j].first
		}
		return temporaries[i].id < temporaries[j].id
	})

	// Pass 2: persistent arena — every persistent value must remain live
	// simultaneously (spec.md §4.2 "Persistent arena"), so offsets are
	// simply packed in order with alignment.
	var persistOffset int64
	for _, id := range persistentIDs {
		v := sg.MustValue(id)
		align := alignmentFor(liveOps, id)
		persistOffset = alignUp(persistOffset, align)
		size := v.Size()
		if size < 0 {
			return nil, fmt.Errorf("%w: memory planner: persistent value %d has unresolved shape", perr.ErrInvariantViolation, id)
		}
		plan.assignments[id] = Assignment{Class: ClassInternalPersistent, Offset: persistOffset, Size: size}
		persistOffset += size
	}
	plan.internalPersistSize = persistOffset
	plan.persistentOrder = persistentIDs

	// Pass 3: temporary arena — greedy best-fit over an ordered free list,
	// assigning non-overlapping ranges to any two values whose live
	// intervals overlap (spec.md §4.2, §8 "Memory disjointness").
	offsets, peak := planTemporaries(temporaries)
	for id, off := range offsets {
		t := findInterval(temporaries, id)
		plan.assignments[id] = Assignment{Class: ClassInternalTemporary, Offset: off, Size: t.size}
	}
	plan.internalTempSize = peak

	execSet, err := buildExecArgsTemplate(sg, liveOps, plan)
	if err != nil {
		return nil, err
	}
	plan.execArgs = execSet

	return plan, nil
}

func findInterval(ts []liveInterval, id graph.ValueID) liveInterval {
	for _, t := range ts {
		if t.id == id {
			return t
		}
	}
	return liveInterval{}
}

// isConstantOnly reports whether v's producer is tagged IsConstant by
// constant_propagation, meaning v is reachable solely from constant ops
// (spec.md §4.2 classification rule, §4.3 "outputs of constant ops must
// remain live across executes"). v may still be consumed by an ordinary
// (non-constant) op at execute time — that op simply reads the persistent
// buffer on every call instead of recomputing it.
func isConstantOnly(sg *graph.Subgraph, v *graph.Value) bool {
	if v.Producer == graph.NoOp {
		return false // a subgraph input is never persistent on its own
	}
	producer, ok := sg.Op(v.Producer)
	if !ok || producer.Dead {
		return false
	}
	return producer.IsConstant
}

// liveRange returns [firstUse, lastUse] in liveOps index order: firstUse is
// the producing op's position (or 0 for a value with no live producer in
// this subgraph), lastUse is the last live consumer's position (or
// firstUse if there are no live consumers, e.g. a dead-end intermediate
// kept alive only for visualization).
func liveRange(liveOps []*graph.Op, id graph.ValueID) (int, int) {
	first, last := -1, -1
	for i, op := range liveOps {
		produces := false
		for _, out := range op.Outputs {
			if out == id {
				produces = true
			}
		}
		consumes := false
		for _, in := range op.Inputs {
			if in == id {
				consumes = true
			}
		}
		if produces && first == -1 {
			first = i
		}
		if consumes {
			last = i
		}
	}
	if first == -1 {
		first = 0
	}
	if last == -1 {
		last = first
	}
	return first, last
}

// alignmentFor returns the maximum alignment any live op touching id
// declares for its arguments (spec.md §9 Open Question resolution), via
// each op's bound CompiledOp.Alignment(). Ops not yet compiled (this runs
// before compile_ops in stage order — see pass.PlanMemory) fall back to
// a conservative default.
func alignmentFor(liveOps []*graph.Op, id graph.ValueID) int64 {
	const fallback = 32
	best := int64(fallback)
	for _, op := range liveOps {
		touches := false
		for _, v := range op.Inputs {
			if v == id {
				touches = true
			}
		}
		for _, v := range op.Outputs {
			if v == id {
				touches = true
			}
		}
		if !touches {
			continue
		}
		if aligner, ok := op.Kernel.(interface{ Alignment() int }); ok {
			if a := int64(aligner.Alignment()); a > best {
				best = a
			}
		}
	}
	return best
}

func alignUp(v, align int64) int64 {
	if align <= 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// freeBlock is one entry in the best-fit free list.
type freeBlock struct {
	offset, size int64
}

// planTemporaries assigns byte offsets to temporaries such that any two
// with overlapping [first,last] intervals never share bytes, using greedy
// best-fit over a list of free blocks released as intervals end. Returns
// the per-value offsets and the resulting peak footprint.
func planTemporaries(ts []liveInterval) (map[graph.ValueID]int64, int64) {
	offsets := make(map[graph.ValueID]int64, len(ts))
	if len(ts) == 0 {
		return offsets, 0
	}

	type active struct {
		interval liveInterval
		offset   int64
	}

	var free []freeBlock
	var live []active
	var peak int64

	// Process in order of first-use; at each step release blocks for
	// intervals whose last-use has already passed.
	for _, t := range ts {
		// Release.
		remaining := live[:0]
		for _, a := range live {
			if a.interval.last < t.first {
				free = append(free, freeBlock{offset: a.offset, size: a.interval.size})
			} else {
				remaining = append(remaining, a)
			}
		}
		live = remaining
		free = mergeFree(free)

		// Best-fit: smallest free block that is large enough, respecting
		// alignment by rounding the candidate offset up.
		bestIdx := -1
		var bestOffset int64
		var bestWaste int64 = -1
		for i, fb := range free {
			aligned := alignUp(fb.offset, t.alignment)
			pad := aligned - fb.offset
			if fb.size-pad < t.size {
				continue
			}
			waste := fb.size - pad - t.size
			if bestWaste == -1 || waste < bestWaste {
				bestWaste = waste
				bestIdx = i
				bestOffset = aligned
			}
		}

		var offset int64
		if bestIdx >= 0 {
			fb := free[bestIdx]
			offset = bestOffset
			// Shrink/replace the used free block with whatever remains.
			free = append(free[:bestIdx], free[bestIdx+1:]...)
			if pad := offset - fb.offset; pad > 0 {
				free = append(free, freeBlock{offset: fb.offset, size: pad})
			}
			if tail := fb.size - (offset - fb.offset) - t.size; tail > 0 {
				free = append(free, freeBlock{offset: offset + t.size, size: tail})
			}
		} else {
			offset = alignUp(peak, t.alignment)
		}

		offsets[t.id] = offset
		live = append(live, active{interval: t, offset: offset})
		if end := offset + t.size; end > peak {
			peak = end
		}
	}

	return offsets, peak
}

func mergeFree(blocks []freeBlock) []freeBlock {
	if len(blocks) < 2 {
		return blocks
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].offset < blocks[j].offset })
	out := blocks[:1]
	for _, b := range blocks[1:] {
		last := &out[len(out)-1]
		if last.offset+last.size == b.offset {
			last.size += b.size
		} else {
			out = append(out, b)
		}
	}
	return out
}

// buildExecArgsTemplate constructs the Execution Arg Set template: one
// Binding per live op, with role->*Handle entries, and the classification
// side-tables the dispatcher repatches on every execute.
func buildExecArgsTemplate(sg *graph.Subgraph, liveOps []*graph.Op, plan *Plan) (*execarg.Set, error) {
	set := execarg.NewSet(len(liveOps))

	handleFor := make(map[graph.ValueID]*execarg.Handle)
	getHandle := func(id graph.ValueID) *execarg.Handle {
		if h, ok := handleFor[id]; ok {
			return h
		}
		h := &execarg.Handle{}
		handleFor[id] = h
		return h
	}

	for i, op := range liveOps {
		binding := make(execarg.Binding, len(op.Inputs)+len(op.Outputs))
		for idx, in := range op.Inputs {
			role := execarg.RoleForInput(op, idx)
			h := getHandle(in)
			h.Role = role
			binding[role] = h
		}
		for idx, out := range op.Outputs {
			role := execarg.RoleForOutput(op, idx)
			h := getHandle(out)
			h.Role = role
			binding[role] = h
		}
		set.Args[i] = binding
		set.OpIDs[i] = op.ID
	}

	for id, h := range handleFor {
		a, ok := plan.assignments[id]
		if !ok {
			continue
		}
		switch a.Class {
		case ClassExternalInput:
			set.ExternalInputs = append(set.ExternalInputs, execarg.ExternalUse{Handle: h, Index: a.Slot})
		case ClassExternalOutput:
			set.ExternalOutputs = append(set.ExternalOutputs, execarg.ExternalUse{Handle: h, Index: a.Slot})
		case ClassInternalTemporary:
			set.InternalTemp = append(set.InternalTemp, execarg.InternalUse{Handle: h, Offset: a.Offset, Size: a.Size})
		case ClassInternalPersistent:
			set.InternalPersist = append(set.InternalPersist, execarg.InternalUse{Handle: h, Offset: a.Offset, Size: a.Size})
		case ClassHostScalar:
			set.HostScalars = append(set.HostScalars, execarg.HostScalarUse{Handle: h, InputIdx: a.Slot})
		}
	}

	return set, nil
}
