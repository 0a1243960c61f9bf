package kernel

import (
	"fmt"
	"math"

	"github.com/sbl8/partitionkernel/device"
	"github.com/sbl8/partitionkernel/execarg"
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/perr"
)

// refKernel is the shared scaffolding every reference primitive embeds:
// Execute does the real work; ExecuteOCL/ExecuteSYCL run the same
// computation synchronously (this module has no real OCL/SYCL device to
// dispatch to) and hand back device.ReadyEvent, chained through deps by
// waiting on them first so the event-chaining contract still holds.
type refKernel struct {
	name string
	run  func(args execarg.Binding) error
}

func (k *refKernel) Name() string      { return k.name }
func (k *refKernel) Alignment() int    { return defaultAlignment }
func (k *refKernel) Execute(_ device.Stream, args execarg.Binding) error {
	return k.run(args)
}

func (k *refKernel) ExecuteOCL(stream device.Stream, args execarg.Binding, deps []device.Event) (device.Event, error) {
	for _, d := range deps {
		if err := d.Wait(); err != nil {
			return nil, fmt.Errorf("%w: %v", perr.ErrRuntimeFailure, err)
		}
	}
	if err := k.run(args); err != nil {
		return nil, err
	}
	return device.ReadyEvent, nil
}

func (k *refKernel) ExecuteSYCL(stream device.Stream, args execarg.Binding, deps []device.Event) (device.Event, error) {
	return k.ExecuteOCL(stream, args, deps)
}

// BinaryAlg names the arithmetic a KindBinary op performs.
type BinaryAlg uint8

const (
	BinaryAdd BinaryAlg = iota
	BinaryMul
	BinarySub
	BinaryDiv
)

// NewBinary builds the reference binary primitive, grounded on the oneDNN
// simple_binary_t kernel named in spec.md §1 and on sbl8/sublation's
// kernels/ops.go vectorAdd/vectorMul. It applies an optional single
// eltwise post-op (ReLU/Sigmoid/Swish) inline, matching the post-op fusion
// the pipeline's fuse_post_ops pass performs.
func NewBinary(alg BinaryAlg, postOp graph.EltwiseAlg) CompiledOp {
	name := map[BinaryAlg]string{BinaryAdd: "binary.add", BinaryMul: "binary.mul", BinarySub: "binary.sub", BinaryDiv: "binary.div"}[alg]
	return &refKernel{
		name: name,
		run: func(args execarg.Binding) error {
			src0, err := requireRole(args, execarg.RoleSrc0, name)
			if err != nil {
				return err
			}
			src1, err := requireRole(args, execarg.RoleSrc1, name)
			if err != nil {
				return err
			}
			dst, err := requireRole(args, execarg.RoleDst, name)
			if err != nil {
				return err
			}
			a := asFloat32(src0)
			b := asFloat32(src1)
			if a == nil || b == nil || len(a) != len(b) {
				return fmt.Errorf("%w: %s operand shape mismatch", perr.ErrInvariantViolation, name)
			}
			out := make([]float32, len(a))
			for i := range a {
				switch alg {
				case BinaryAdd:
					out[i] = a[i] + b[i]
				case BinaryMul:
					out[i] = a[i] * b[i]
				case BinarySub:
					out[i] = a[i] - b[i]
				case BinaryDiv:
					out[i] = a[i] / b[i]
				}
				out[i] = applyEltwise(postOp, out[i])
			}
			writeFloat32(dst, out)
			return nil
		},
	}
}

func applyEltwise(alg graph.EltwiseAlg, x float32) float32 {
	switch alg {
	case graph.EltwiseReLU:
		if x < 0 {
			return 0
		}
		return x
	case graph.EltwiseSigmoid:
		return float32(1 / (1 + math.Exp(-float64(x))))
	case graph.EltwiseSwish:
		return x * float32(1/(1+math.Exp(-float64(x))))
	case graph.EltwiseReciprocal:
		return 1 / x
	case graph.EltwiseTanh:
		return float32(math.Tanh(float64(x)))
	default:
		return x
	}
}

// NewEltwise builds a standalone elementwise kernel (used when the pass
// pipeline could not fuse the eltwise into a predecessor post-op chain).
func NewEltwise(alg graph.EltwiseAlg) CompiledOp {
	name := "eltwise." + algName(alg)
	return &refKernel{
		name: name,
		run: func(args execarg.Binding) error {
			src, err := requireRole(args, execarg.RoleSrc0, name)
			if err != nil {
				return err
			}
			dst, err := requireRole(args, execarg.RoleDst, name)
			if err != nil {
				return err
			}
			in := asFloat32(src)
			out := make([]float32, len(in))
			for i, v := range in {
				out[i] = applyEltwise(alg, v)
			}
			writeFloat32(dst, out)
			return nil
		},
	}
}

func algName(alg graph.EltwiseAlg) string {
	switch alg {
	case graph.EltwiseReLU:
		return "relu"
	case graph.EltwiseSigmoid:
		return "sigmoid"
	case graph.EltwiseSwish:
		return "swish"
	case graph.EltwiseReciprocal:
		return "reciprocal"
	case graph.EltwiseTanh:
		return "tanh"
	default:
		return "identity"
	}
}

// NewSum builds the N-ary add-chain kernel fuse_to_dnnl_sum produces.
func NewSum(nInputs int) CompiledOp {
	return &refKernel{
		name: "sum",
		run: func(args execarg.Binding) error {
			dst, err := requireRole(args, execarg.RoleDst, "sum")
			if err != nil {
				return err
			}
			var acc []float32
			for i := 0; i < nInputs; i++ {
				role := execarg.Role(int(execarg.RoleSrc0) + i)
				h, ok := args[role]
				if !ok {
					return fmt.Errorf("%w: sum missing input %d", perr.ErrInvariantViolation, i)
				}
				v := asFloat32(h.Data)
				if acc == nil {
					acc = make([]float32, len(v))
				}
				for j := range v {
					acc[j] += v[j]
				}
			}
			writeFloat32(dst, acc)
			return nil
		},
	}
}

// MatMulAttrs configures NewMatMul: logical M/K/N dims plus whether a bias
// and a trailing ReLU post-op are fused in (spec.md end-to-end scenario 2).
type MatMulAttrs struct {
	M, K, N int
	Bias    bool
	PostOp  graph.EltwiseAlg
}

// NewMatMul builds the reference matmul primitive, grounded on
// sbl8/sublation's kernels/ops.go matMul, extended with an optional fused
// bias-add and eltwise post-op the way fuse_bias_add / fuse_post_ops would
// leave it for compile_ops to bind in one kernel.
func NewMatMul(attrs MatMulAttrs) CompiledOp {
	return &refKernel{
		name: "matmul",
		run: func(args execarg.Binding) error {
			srcA, err := requireRole(args, execarg.RoleSrc0, "matmul")
			if err != nil {
				return err
			}
			srcB, err := requireRole(args, execarg.RoleSrc1, "matmul")
			if err != nil {
				return err
			}
			dst, err := requireRole(args, execarg.RoleDst, "matmul")
			if err != nil {
				return err
			}
			a := asFloat32(srcA)
			b := asFloat32(srcB)
			if len(a) != attrs.M*attrs.K || len(b) != attrs.K*attrs.N {
				return fmt.Errorf("%w: matmul operand shape mismatch", perr.ErrInvariantViolation)
			}
			var bias []float32
			if attrs.Bias {
				biasBuf, err := requireRole(args, execarg.RoleBias, "matmul")
				if err != nil {
					return err
				}
				bias = asFloat32(biasBuf)
			}
			out := make([]float32, attrs.M*attrs.N)
			for i := 0; i < attrs.M; i++ {
				for j := 0; j < attrs.N; j++ {
					var sum float32
					for k := 0; k < attrs.K; k++ {
						sum += a[i*attrs.K+k] * b[k*attrs.N+j]
					}
					if bias != nil {
						sum += bias[j]
					}
					out[i*attrs.N+j] = applyEltwise(attrs.PostOp, sum)
				}
			}
			writeFloat32(dst, out)
			return nil
		},
	}
}

// NewTypecast builds the dtype-conversion kernel fuse_typecast_to_* leaves
// behind when it cannot be fully absorbed into a predecessor.
func NewTypecast(from, to graph.ElemType) CompiledOp {
	return &refKernel{
		name: "typecast",
		run: func(args execarg.Binding) error {
			src, err := requireRole(args, execarg.RoleSrc0, "typecast")
			if err != nil {
				return err
			}
			dst, err := requireRole(args, execarg.RoleDst, "typecast")
			if err != nil {
				return err
			}
			// Reduced op set: only f32<->bf16-as-f32-storage round trips
			// are exercised by the end-to-end scenarios; both are stored
			// as 4-byte floats in this reference implementation, so a
			// typecast here is a bitwise-identity copy unless widths
			// differ.
			if from.Size() == to.Size() {
				copy(dst, src)
				return nil
			}
			in := asFloat32(src)
			writeFloat32(dst, in)
			return nil
		},
	}
}

// NewReorder builds the copy-with-possible-layout-change kernel a
// surviving Reorder op binds to (most Reorders are eliminated by Stage 2's
// common_reorder_elimination before compile_ops runs).
func NewReorder() CompiledOp {
	return &refKernel{
		name: "reorder",
		run: func(args execarg.Binding) error {
			src, err := requireRole(args, execarg.RoleSrc0, "reorder")
			if err != nil {
				return err
			}
			dst, err := requireRole(args, execarg.RoleDst, "reorder")
			if err != nil {
				return err
			}
			copy(dst, src)
			return nil
		},
	}
}

// NewHostScalarImport builds the trivial pass-through kernel a
// host-scalar-import op binds to: its single job is to have existed so the
// memory planner classifies its output as a HOST_SCALAR slot; by execute
// time the bytes are already bound directly to the external input.
func NewHostScalarImport() CompiledOp {
	return &refKernel{
		name: "host_scalar_import",
		run: func(args execarg.Binding) error {
			return nil
		},
	}
}

// NewConstantFill builds the kernel a constant-sourced op (one with no
// live inputs, e.g. a weight materialization) binds to: it writes a fixed
// payload captured at compile time into its persistent output. Grounded on
// the spec's "constant ops" concept (spec.md §3 Constant Cache Entry).
func NewConstantFill(payload []byte) CompiledOp {
	return &refKernel{
		name: "constant_fill",
		run: func(args execarg.Binding) error {
			dst, err := requireRole(args, execarg.RoleDst, "constant_fill")
			if err != nil {
				return err
			}
			copy(dst, payload)
			return nil
		},
	}
}
