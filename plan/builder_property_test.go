package plan

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/taskmesh/taskmesh/types"
)

var workflowGen = rapid.SampledFrom([]types.WorkflowType{
	types.WorkflowSequential,
	types.WorkflowParallel,
	types.WorkflowConditional,
	types.WorkflowBugFix,
	types.WorkflowSecurityAudit,
	types.WorkflowFeatureDevelopment,
	types.WorkflowTesting,
})

var agentPool = []string{
	"architect", "coder", "debugger", "reviewer", "qa",
	"doc_writer", "security", "perf", "devops", "assistant",
}

// genDecision draws a routing decision with disjoint primary/supporting
// agent sets and at least one agent overall.
func genDecision(t *rapid.T) types.RoutingDecision {
	shuffled := rapid.Permutation(agentPool).Draw(t, "agents")
	primaryCount := rapid.IntRange(1, 4).Draw(t, "primary_count")
	supportingCount := rapid.IntRange(0, 3).Draw(t, "supporting_count")

	return types.RoutingDecision{
		PrimaryAgents:    shuffled[:primaryCount],
		SupportingAgents: shuffled[primaryCount : primaryCount+supportingCount],
		WorkflowType:     workflowGen.Draw(t, "workflow"),
		Confidence:       rapid.Float64Range(0, 1).Draw(t, "confidence"),
	}
}

// Every produced plan must have 1-based contiguous step numbers and only
// back-edges in its dependency sets, which makes the graph acyclic by
// construction.
func TestBuildPlanInvariants(t *testing.T) {
	b := newTestBuilder(t)

	rapid.Check(t, func(rt *rapid.T) {
		decision := genDecision(rt)
		complexity := rapid.SampledFrom([]types.Complexity{
			types.ComplexityLow, types.ComplexityMedium, types.ComplexityHigh,
		}).Draw(rt, "complexity")

		p, err := b.Build(decision, "property task", types.PriorityMedium, complexity)
		if err != nil {
			rt.Fatalf("build failed: %v", err)
		}

		if len(p.Steps) == 0 {
			rt.Fatalf("plan has no steps")
		}

		var longestStep time.Duration
		for i, step := range p.Steps {
			if step.Number != i+1 {
				rt.Fatalf("step %d has number %d, want %d", i, step.Number, i+1)
			}
			for _, dep := range step.Dependencies {
				if dep < 1 || dep >= step.Number {
					rt.Fatalf("step %d has illegal dependency %d", step.Number, dep)
				}
			}
			if step.EstimatedDuration <= 0 {
				rt.Fatalf("step %d has no duration estimate", step.Number)
			}
			if step.EstimatedDuration > longestStep {
				longestStep = step.EstimatedDuration
			}
		}

		// The critical path can never be shorter than the longest single
		// step and never longer than the sum of all steps.
		var sum time.Duration
		for _, step := range p.Steps {
			sum += step.EstimatedDuration
		}
		if p.EstimatedDuration < longestStep || p.EstimatedDuration > sum {
			rt.Fatalf("estimated duration %v outside [%v, %v]", p.EstimatedDuration, longestStep, sum)
		}
	})
}
