package types

import (
	"fmt"
	"time"
)

// WorkflowType is the execution topology chosen for a plan: a generic
// topology or a named multi-stage template.
type WorkflowType string

const (
	WorkflowSequential  WorkflowType = "sequential"
	WorkflowParallel    WorkflowType = "parallel"
	WorkflowConditional WorkflowType = "conditional"

	// Named templates expand into a fixed stage list.
	WorkflowBugFix             WorkflowType = "bug_fix_workflow"
	WorkflowSecurityAudit      WorkflowType = "security_audit"
	WorkflowFeatureDevelopment WorkflowType = "feature_development"
	WorkflowTesting            WorkflowType = "testing_workflow"
)

// IsTemplate reports whether the workflow type names a multi-stage template.
func (w WorkflowType) IsTemplate() bool {
	switch w {
	case WorkflowBugFix, WorkflowSecurityAudit, WorkflowFeatureDevelopment, WorkflowTesting:
		return true
	}
	return false
}

// RoutingDecision is the output of the routing planner: which agents run
// and under which topology. PrimaryAgents and SupportingAgents are disjoint.
// Reasoning is stored for audit and never parsed programmatically.
type RoutingDecision struct {
	PrimaryAgents    []string     `json:"primary_agents"`
	SupportingAgents []string     `json:"supporting_agents,omitempty"`
	WorkflowType     WorkflowType `json:"workflow_type"`
	Confidence       float64      `json:"confidence"`
	Reasoning        string       `json:"reasoning"`
}

// Agents returns primary then supporting agents in order.
func (d RoutingDecision) Agents() []string {
	out := make([]string, 0, len(d.PrimaryAgents)+len(d.SupportingAgents))
	out = append(out, d.PrimaryAgents...)
	out = append(out, d.SupportingAgents...)
	return out
}

// ExecutionStep is one agent's unit of work within a plan.
//
// Dependencies may only reference strictly lower step numbers within the
// same plan, so the dependency graph is acyclic by construction.
type ExecutionStep struct {
	Number            int           `json:"step_number"`
	Agent             string        `json:"agent"`
	Action            string        `json:"action"`
	Dependencies      []int         `json:"dependencies,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration"`

	// Supporting marks steps that emergency mode may skip.
	Supporting bool `json:"supporting,omitempty"`
}

// ExecutionPlan is the fully expanded schedule for one task. A plan is
// immutable after creation; re-planning produces a new plan with a new id.
type ExecutionPlan struct {
	TaskID            string          `json:"task_id"`
	TaskText          string          `json:"task_text"`
	Priority          Priority        `json:"priority"`
	EstimatedDuration time.Duration   `json:"estimated_duration"`
	Decision          RoutingDecision `json:"routing_decision"`
	Steps             []ExecutionStep `json:"steps"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Step returns the step with the given number, or nil.
func (p *ExecutionPlan) Step(number int) *ExecutionStep {
	if number < 1 || number > len(p.Steps) {
		return nil
	}
	// Step numbers are 1-based and contiguous.
	return &p.Steps[number-1]
}

// Validate checks the structural invariants execution relies on: at least
// one step, step numbers 1-based and contiguous, and every dependency
// referencing an earlier step in the same plan. Returns a PLAN_BUILD error
// naming the first violation.
func (p *ExecutionPlan) Validate() error {
	if len(p.Steps) == 0 {
		return NewError(ErrPlanBuild, "plan has no steps")
	}
	for i, step := range p.Steps {
		if step.Number != i+1 {
			return NewError(ErrPlanBuild,
				fmt.Sprintf("step at index %d is numbered %d, want %d", i, step.Number, i+1))
		}
		for _, dep := range step.Dependencies {
			if dep >= step.Number {
				return NewError(ErrPlanBuild,
					fmt.Sprintf("step %d depends on step %d, which does not run earlier", step.Number, dep))
			}
			if p.Step(dep) == nil {
				return NewError(ErrPlanBuild,
					fmt.Sprintf("step %d depends on missing step %d", step.Number, dep))
			}
		}
	}
	return nil
}
