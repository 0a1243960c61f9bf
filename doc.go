// Package partitionkernel implements a partition compilation and
// execution engine: it ingests a fused subgraph of tensor operations,
// lowers and optimizes it through a multi-stage rewrite pipeline, plans
// memory for every intermediate and constant buffer, compiles each
// surviving node into an executable kernel, and drives execution on a
// compute device while amortizing constant-tensor work across
// invocations.
//
// # Architecture Overview
//
// The engine consists of several key components:
//
//   - graph: the in-memory op DAG (Subgraph) passes rewrite
//   - pass: the Stage-1 (algebraic) and Stage-2 (shape/layout/memory)
//     rewrite pipeline
//   - mem: the memory planner that assigns external, temporary, and
//     persistent storage to every value
//   - execarg: the per-kernel argument-binding template passes and the
//     dispatcher share
//   - constcache: the process-wide constant tensor cache
//   - exec: the execution dispatcher that binds buffers and runs kernels
//     in topological order
//   - partition: the compiled PartitionKernel callers hold
//   - kernel, device: the op-kind registry and device-engine interfaces,
//     named external collaborators with a minimal reference
//     implementation so the pipeline is runnable end to end
//
// # Basic Usage
//
//	k := partition.NewKernel(config.Default(), nil)
//	engine := device.NewCPUEngine()
//	if err := k.Compile(subgraph, engine, inputs, outputs); err != nil {
//	    log.Fatal(err)
//	}
//	err := k.Execute(engine.NewStream(), [][]byte{a, b}, [][]byte{out})
//
// # Package Structure
//
//   - graph: op/value/subgraph data model
//   - pass: Stage-1 and Stage-2 passes plus the pipeline that runs them
//   - mem: memory planner and arena grantors
//   - execarg: execution arg set template and repatching
//   - constcache: promise/future constant tensor cache
//   - exec: execution dispatcher (CPU/OCL/SYCL variants)
//   - partition: the compiled kernel callers use
//   - kernel, device: reference op-kind registry and device interfaces
//   - config, perr, metrics, internal/obslog: configuration, error
//     taxonomy, Prometheus instrumentation, structured logging
//   - cmd/partc: CLI that compiles a built-in partition scenario and
//     reports the canonicalizations the pipeline chose
package partitionkernel
