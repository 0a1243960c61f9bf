package pass

import (
	"github.com/sbl8/partitionkernel/graph"
	"github.com/sbl8/partitionkernel/mem"
)

// PlanHolder receives the Plan a PlanMemory pass produces. A Pass's Run
// signature only returns an error, so the holder is the escape hatch
// partition.Kernel uses to retrieve the plan after Pipeline.Run succeeds.
type PlanHolder struct {
	Plan *mem.Plan
}

// PlanMemory wraps mem.Planner.Run, implementing spec.md §4.1.2 step 7.
func PlanMemory(holder *PlanHolder) Pass {
	return Pass{
		Name: "plan_memory",
		Run: func(sg *graph.Subgraph) error {
			plan, err := (mem.Planner{}).Run(sg)
			if err != nil {
				return err
			}
			holder.Plan = plan
			return nil
		},
	}
}
