package graph

// OpID is a stable identifier for an op within a Subgraph's arena. Op ids
// are assigned starting at 1; 0 (NoOp) means "no producer" on a Value.
type OpID uint32

// Kind enumerates the backend op kinds spec.md §3 lists.
type Kind uint16

const (
	KindInvalid Kind = iota
	KindMatMul
	KindConvolution
	KindPooling
	KindBinary
	KindEltwise
	KindReduction
	KindReshape
	KindPermute
	KindQuantize
	KindDequantize
	KindScalesMul
	KindZeroPointAdd
	KindReorder
	KindSum
	KindHostScalarImport
	KindTypecast
	KindBatchNormFoldedBias // internal: produced by insert_bn_folding
	KindSqueeze
	KindUnsqueeze
	KindShuffle
	KindConcat
	KindPrelu
	KindBatchNorm
)

func (k Kind) String() string {
	names := map[Kind]string{
		KindInvalid:          "invalid",
		KindMatMul:           "matmul",
		KindConvolution:      "convolution",
		KindPooling:          "pooling",
		KindBinary:           "binary",
		KindEltwise:          "eltwise",
		KindReduction:        "reduction",
		KindReshape:          "reshape",
		KindPermute:          "permute",
		KindQuantize:         "quantize",
		KindDequantize:       "dequantize",
		KindScalesMul:        "scales-mul",
		KindZeroPointAdd:     "zero-point-add",
		KindReorder:          "reorder",
		KindSum:              "sum",
		KindHostScalarImport: "host-scalar-import",
		KindTypecast:         "typecast",
		KindBatchNormFoldedBias: "bn-folded-bias",
		KindSqueeze:          "squeeze",
		KindUnsqueeze:        "unsqueeze",
		KindShuffle:          "shuffle",
		KindConcat:           "concat",
		KindPrelu:            "prelu",
		KindBatchNorm:        "batchnorm",
	}
	if n, ok := names[k]; ok {
		return n
	}
	return "unknown"
}

// EltwiseAlg names the handful of elementwise algorithms the reduced op set
// recognizes; used both standalone (KindEltwise) and as a PostOp.
type EltwiseAlg uint8

const (
	EltwiseNone EltwiseAlg = iota
	EltwiseReLU
	EltwiseSigmoid
	EltwiseSwish
	EltwiseReciprocal
	EltwiseTanh
)

// PostOp is a fused operation appended to a primary op's kernel, executed
// inline with it (spec.md Glossary: "Post-op").
type PostOp struct {
	Kind  Kind
	Alg   EltwiseAlg
	Attrs map[string]any
}

// Op is a node in the Subgraph arena.
type Op struct {
	ID      OpID
	Kind    Kind
	Inputs  []ValueID
	Outputs []ValueID
	Attrs   map[string]any
	PostOps []PostOp

	Dead       bool // marked by a pass, removed by Subgraph.Compact
	IsConstant bool // set by constant_propagation

	// Kernel is the executable handle bound by compile_ops. Its concrete
	// type is kernel.CompiledOp (package kernel); declared as any here to
	// avoid a graph -> kernel import cycle, since kernel factories
	// themselves need to read Op attributes to build a kernel.
	Kernel any
}

// Clone returns a deep copy of the op (Kernel is shared by reference, since
// compiled kernels are immutable once bound).
func (o *Op) Clone() *Op {
	clone := &Op{
		ID:         o.ID,
		Kind:       o.Kind,
		Inputs:     append([]ValueID(nil), o.Inputs...),
		Outputs:    append([]ValueID(nil), o.Outputs...),
		Dead:       o.Dead,
		IsConstant: o.IsConstant,
		Kernel:     o.Kernel,
	}
	if o.Attrs != nil {
		clone.Attrs = make(map[string]any, len(o.Attrs))
		for k, v := range o.Attrs {
			clone.Attrs[k] = v
		}
	}
	if o.PostOps != nil {
		clone.PostOps = append([]PostOp(nil), o.PostOps...)
	}
	return clone
}

// AttrInt reads an int attribute, returning ok=false if absent or of the
// wrong type.
func (o *Op) AttrInt(key string) (int, bool) {
	v, ok := o.Attrs[key]
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// AttrBool reads a bool attribute.
func (o *Op) AttrBool(key string) (bool, bool) {
	v, ok := o.Attrs[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// AttrString reads a string attribute.
func (o *Op) AttrString(key string) (string, bool) {
	v, ok := o.Attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetAttr sets an attribute, allocating the bag lazily.
func (o *Op) SetAttr(key string, value any) {
	if o.Attrs == nil {
		o.Attrs = make(map[string]any)
	}
	o.Attrs[key] = value
}

// HasPostOpKind reports whether any post-op matches kind.
func (o *Op) HasPostOpKind(k Kind) bool {
	for _, p := range o.PostOps {
		if p.Kind == k {
			return true
		}
	}
	return false
}
