package pass

import "github.com/sbl8/partitionkernel/metrics"

// NewStage1Pipeline assembles the shape/layout-agnostic algebraic rewrite
// families of spec.md §4.1.1, in the fixed order the spec requires.
func NewStage1Pipeline(m *metrics.Collector) *Pipeline {
	pl := NewPipeline(m)
	pl.Add(LowerOps)
	pl.Add(InsertHostScalars)
	pl.Add(FuseReciprocalMul)
	pl.Add(FuseMulSigmoid)
	pl.Add(FuseAddChainToSum)
	pl.Add(LiftTypecastTowardInputs)
	pl.Add(FuseBias)
	pl.Add(CanonicalizeBinaryOperands)
	pl.Add(FuseTypecastIntoConsumer)
	pl.Add(RemoveNoopQuantData)
	pl.Add(CollapseZeroPointPairs)
	pl.Add(FusePostOpQuantData)
	pl.Add(FusePostOpQuantData) // second run; no pass before it emits new Binary ops, so it only re-checks the graph
	pl.Add(InsertReductionSqueeze)
	pl.Add(CanonicalizeReorders)
	return pl
}

// NewStage2Pipeline assembles the shape/layout/memory/compile families of
// spec.md §4.1.2, in the fixed, semantically meaningful order the spec
// requires. holder receives the memory plan once PlanMemory runs.
func NewStage2Pipeline(m *metrics.Collector, holder *PlanHolder) *Pipeline {
	pl := NewPipeline(m)
	pl.Add(MarkConstants)
	pl.Add(InferShapes)
	pl.Add(FuseTranspose)
	pl.Add(PropagateLayout)
	pl.Add(EliminateReorders)
	pl.Add(MarkConstants)
	pl.Add(PlanMemory(holder))
	pl.Add(CompileOps)
	return pl
}
