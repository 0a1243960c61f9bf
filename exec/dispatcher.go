// Package exec implements the Execution Dispatcher of spec.md §4.4: given
// inputs and outputs at call time, it drives every op in a compiled
// subgraph in topological order, threading scratchpad allocation,
// host-scalar binding, and the constant cache through a per-call clone of
// the execution-arg-set template.
package exec

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sbl8/partitionkernel/constcache"
	"github.com/sbl8/partitionkernel/device"
	"github.com/sbl8/partitionkernel/execarg"
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/internal/obslog"
	"github.com/sbl8/partitionkernel/kernel"
	"github.com/sbl8/partitionkernel/mem"
	"github.com/sbl8/partitionkernel/metrics"
	"github.com/sbl8/partitionkernel/perr"
)

// runFunc executes one compiled op; the synchronous path calls k.Execute
// directly, the async paths thread deps/events through k.ExecuteOCL or
// k.ExecuteSYCL. Supplied by each public Execute* entry point.
type runFunc func(k kernel.CompiledOp, args execarg.Binding) error

// Dispatcher drives execute calls against one compiled, frozen Subgraph. It
// is safe for concurrent use by multiple goroutines (spec.md §5 "multiple
// threads may call execute on the same partition kernel concurrently").
type Dispatcher struct {
	sg          *graph.Subgraph
	plan        *mem.Plan
	engine      device.Engine
	partitionID uint64

	// EnableConstantCache mirrors config.Config; when false every op,
	// including constant-tagged ones, runs on every Execute and cache must
	// be nil.
	EnableConstantCache bool
	cache               *constcache.Cache

	metrics *metrics.Collector

	// argSets hands out per-call clones of the template Execution Arg Set.
	// This is this module's translation of spec.md §4.4 step 1's
	// "thread-local cache keyed by the partition-kernel identity": Go has
	// no goroutine-local storage, so a sync.Pool scoped to this Dispatcher
	// (one per partition kernel) plays the same role — each concurrent
	// Execute checks out an isolated clone on first touch and returns it
	// when done, exactly like a per-thread cache keyed by kernel identity
	// except keyed implicitly by "which Dispatcher you're calling".
	argSets sync.Pool
}

// NewDispatcher builds a Dispatcher for a frozen, compiled subgraph and its
// memory plan. partitionID identifies the owning partition kernel for the
// constant-cache key (spec.md §4.3); cache may be nil to disable the
// constant cache entirely.
func NewDispatcher(sg *graph.Subgraph, plan *mem.Plan, engine device.Engine, partitionID uint64, cache *constcache.Cache, m *metrics.Collector) *Dispatcher {
	d := &Dispatcher{
		sg:                  sg,
		plan:                plan,
		engine:              engine,
		partitionID:         partitionID,
		EnableConstantCache: cache != nil,
		cache:               cache,
		metrics:             m,
	}
	d.argSets.New = func() any { return plan.ExecArgsSet().Clone() }
	return d
}

// Execute runs the subgraph synchronously against inputs/outputs (spec.md
// §4.4, CPU/synchronous runtime path).
func (d *Dispatcher) Execute(stream device.Stream, inputs, outputs [][]byte) error {
	start := time.Now()
	err := d.execute(stream, inputs, outputs, func(k kernel.CompiledOp, args execarg.Binding) error {
		return k.Execute(stream, args)
	})
	if d.metrics != nil {
		d.metrics.ObserveExecute(backendName(d.engine), time.Since(start))
	}
	return err
}

// ExecuteOCL runs the subgraph on an async OCL-style runtime: each op is
// fed the accumulated dependency event and its completion event becomes the
// next op's dependency; the final event is returned (spec.md §4.4 step 6).
func (d *Dispatcher) ExecuteOCL(stream device.Stream, inputs, outputs [][]byte, deps []device.Event) (device.Event, error) {
	final := device.ReadyEvent
	err := d.execute(stream, inputs, outputs, func(k kernel.CompiledOp, args execarg.Binding) error {
		ev, err := k.ExecuteOCL(stream, args, deps)
		if err != nil {
			return err
		}
		final = ev
		deps = []device.Event{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// ExecuteSYCL is the SYCL-runtime analogue of ExecuteOCL.
func (d *Dispatcher) ExecuteSYCL(stream device.Stream, inputs, outputs [][]byte, deps []device.Event) (device.Event, error) {
	final := device.ReadyEvent
	err := d.execute(stream, inputs, outputs, func(k kernel.CompiledOp, args execarg.Binding) error {
		ev, err := k.ExecuteSYCL(stream, args, deps)
		if err != nil {
			return err
		}
		final = ev
		deps = []device.Event{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

func backendName(e device.Engine) string {
	if e == nil {
		return "unknown"
	}
	return e.Kind()
}

// execute implements spec.md §4.4's algorithm.
func (d *Dispatcher) execute(stream device.Stream, inputs, outputs [][]byte, run runFunc) error {
	argSet := d.argSets.Get().(*execarg.Set)
	defer d.argSets.Put(argSet)

	allocator := d.engine.Allocator()
	scratch, err := allocator.Alloc(int(d.plan.TotalInternalTemporarySize()))
	if err != nil {
		return perr.WrapOp("scratchpad_alloc", -1, err)
	}
	defer allocator.Free(scratch)

	argSet.RepatchHostScalars(inputs)
	argSet.RepatchExternalInputs(inputs)
	argSet.RepatchExternalOutputs(outputs)
	argSet.RepatchInternalTemp(scratch)

	liveOps := d.sg.LiveOps()

	if !d.EnableConstantCache {
		// No cache entry to bind against: constant ops write a fresh
		// per-call persistent arena.
		argSet.RepatchInternalPersist(make([]byte, d.plan.TotalInternalPersistentSize()))
		if err := d.runFiltered(stream, liveOps, argSet, run, func(*graph.Op) bool { return true }); err != nil {
			return err
		}
		obslog.L().Info("execute done", "partition", d.partitionID, "backend", backendName(d.engine))
		return nil
	}

	key := d.cacheKey(inputs)
	persistSize := d.plan.TotalInternalPersistentSize()
	buf, hit, producer, err := d.cache.GetOrAdd(key, persistSize)
	if err != nil {
		return perr.WrapOp("constant_cache", -1, err)
	}

	if hit {
		if d.metrics != nil {
			d.metrics.CacheHit()
		}
		argSet.RepatchInternalPersist(buf.Data())
	} else {
		obslog.L().Info("constant cache miss", "partition", d.partitionID, "key", key)
		if d.metrics != nil {
			d.metrics.CacheMiss()
		}
		persistBuf := make([]byte, persistSize)
		argSet.RepatchInternalPersist(persistBuf)
		if err := d.runFiltered(stream, liveOps, argSet, run, func(op *graph.Op) bool { return op.IsConstant }); err != nil {
			producer.Abort(err)
			return err
		}
		producer.Commit(constcache.NewBuffer(persistBuf))
		if d.metrics != nil {
			d.metrics.SetCacheEntries(d.cache.Len())
		}
	}

	if err := d.runFiltered(stream, liveOps, argSet, run, func(op *graph.Op) bool { return !op.IsConstant }); err != nil {
		return err
	}
	obslog.L().Info("execute done", "partition", d.partitionID, "backend", backendName(d.engine))
	return nil
}

// runFiltered executes every live op in subgraph order for which want
// returns true, in the index-aligned Args slot the memory planner built.
func (d *Dispatcher) runFiltered(stream device.Stream, liveOps []*graph.Op, argSet *execarg.Set, run runFunc, want func(*graph.Op) bool) error {
	for i, op := range liveOps {
		if !want(op) {
			continue
		}
		k, ok := op.Kernel.(kernel.CompiledOp)
		if !ok || k == nil {
			return perr.WrapOp(op.Kind.String(), i, perr.ErrInvariantViolation)
		}
		if err := run(k, argSet.Args[i]); err != nil {
			return perr.WrapOp(op.Kind.String(), i, err)
		}
	}
	return nil
}

// cacheKey computes hash(partition id, persistent memory-descriptor list,
// input signature that influences constants) per spec.md §3/§4.3. The
// "input signature" is the bytes of every external input bound to a host
// scalar, since those are the only runtime inputs that can change which
// constants get computed (e.g. a dynamic quantization scale).
func (d *Dispatcher) cacheKey(inputs [][]byte) constcache.Key {
	h := fnv.New64a()
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], d.partitionID)
	h.Write(scratch[:])

	for _, id := range d.plan.PersistentMemDescList() {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(id))
		h.Write(scratch[:4])
	}

	for _, u := range d.plan.ExecArgsSet().HostScalars {
		if u.InputIdx < len(inputs) {
			h.Write(inputs[u.InputIdx])
		}
	}

	return constcache.Key(h.Sum64())
}
