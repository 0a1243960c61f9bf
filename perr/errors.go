// Package perr defines the error taxonomy of spec.md §7. Every error the
// pipeline, the memory planner, the constant cache, and the dispatcher
// return is one of these five sentinels, wrapped with context via %w so
// errors.Is/errors.As keeps working across the package boundary.
package perr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedConfiguration: data types, attributes, or post-op
	// combinations the backend refuses. Emitted by early validation in the
	// (external) primitive-descriptor layer; this module surfaces it
	// verbatim when a kernel factory rejects an op's attributes.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrInvariantViolation: subgraph inconsistency (rank mismatch, missing
	// producer). Fatal; surfaced by the offending pass.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrOutOfMemory: allocator failure for scratchpad, persistent buffer,
	// or constant buffer. Surfaced, not retried.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrRuntimeFailure: device or kernel dispatch failure.
	ErrRuntimeFailure = errors.New("runtime failure")

	// ErrCacheProducerFailure: the thread elected producer of a
	// constant-cache entry failed; propagated via the shared future.
	ErrCacheProducerFailure = errors.New("constant cache producer failure")
)

// PassError reports a pass failure together with the offending pass's name,
// per spec.md §7 "compile failures are reported with the first offending
// pass name".
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %q: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// WrapPass wraps err (expected to already be one of the sentinels above,
// or nil) with the failing pass's name. Returns nil if err is nil.
func WrapPass(pass string, err error) error {
	if err == nil {
		return nil
	}
	return &PassError{Pass: pass, Err: err}
}

// OpError reports an execute-time failure together with the failing op's
// kind and index, per spec.md §7 "execute failures are reported with the
// failing op's kind and index".
type OpError struct {
	OpKind string
	Index  int
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op %d (%s): %v", e.Index, e.OpKind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// WrapOp wraps err with the failing op's kind and index. Returns nil if err
// is nil.
func WrapOp(opKind string, index int, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{OpKind: opKind, Index: index, Err: err}
}
