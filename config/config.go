// Package config holds the compile/execute configuration surface that
// spec.md §6 enumerates: whether the constant cache is enabled, the
// floating-point math mode passed down to kernel selection, and whether
// layout propagation should prefer blocked layouts.
//
// This mirrors the teacher's DefaultEngineOptions/DefaultOptions
// constructor-with-sane-defaults pattern (runtime.DefaultEngineOptions,
// compiler.DefaultOptions in sbl8/sublation).
package config

import "github.com/sbl8/partitionkernel/graph"

// FPMathMode re-exports graph.FPMathMode so callers configure compile
// behavior without importing the graph package directly.
type FPMathMode = graph.FPMathMode

const (
	FPMathStrict  = graph.FPMathStrict
	FPMathRelaxed = graph.FPMathRelaxed
	FPMathAny     = graph.FPMathAny
)

// Config is the external configuration surface of spec.md §6.
type Config struct {
	// EnableConstantCache: if false, skip all constant-cache paths;
	// constant ops run on every execute.
	EnableConstantCache bool

	// FloatingPointMode is passed down to kernel selection.
	FloatingPointMode FPMathMode

	// UseBlockedLayout guides layout propagation.
	UseBlockedLayout bool

	// ConstantCacheCapacity bounds the constant cache's LRU, in bytes.
	// Zero means the cache package's default (see constcache.DefaultCapacity).
	ConstantCacheCapacity int64
}

// Default returns the conservative default configuration: constant cache
// on, strict fp math, row-major (non-blocked) layout.
func Default() Config {
	return Config{
		EnableConstantCache: true,
		FloatingPointMode:   FPMathStrict,
		UseBlockedLayout:    false,
	}
}
