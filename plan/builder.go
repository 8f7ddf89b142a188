package plan

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/types"
)

// Builder expands routing decisions into execution plans. Pure and
// deterministic apart from the generated task id and creation timestamp.
type Builder struct {
	clock  types.Clock
	logger *zap.Logger
}

// NewBuilder creates a plan builder. clock supplies plan creation
// timestamps; a nil clock is rejected by the engine, so callers here pass
// the engine's clock through.
func NewBuilder(clock types.Clock, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		clock:  clock,
		logger: logger.With(zap.String("component", "plan_builder")),
	}
}

// Build expands the decision into a plan for the given task text.
//
// A decision with zero usable agents fails with a PLAN_BUILD error and no
// partial plan is returned.
func (b *Builder) Build(decision types.RoutingDecision, taskText string, priority types.Priority, complexity types.Complexity) (*types.ExecutionPlan, error) {
	if len(decision.PrimaryAgents) == 0 && len(decision.SupportingAgents) == 0 {
		return nil, types.NewError(types.ErrPlanBuild, "routing decision selected no agents")
	}
	if priority == "" {
		priority = types.PriorityMedium
	}
	if complexity == "" {
		complexity = types.ComplexityMedium
	}

	var steps []types.ExecutionStep
	switch {
	case decision.WorkflowType.IsTemplate():
		steps = buildTemplateSteps(decision, complexity)
	case decision.WorkflowType == types.WorkflowParallel:
		steps = buildParallelSteps(decision, taskText, complexity)
	default:
		// Sequential is also the expansion for conditional decisions: the
		// condition has already been resolved by routing, leaving an
		// ordered hand-off chain.
		steps = buildSequentialSteps(decision, taskText, complexity)
	}

	p := &types.ExecutionPlan{
		TaskID:            uuid.NewString(),
		TaskText:          taskText,
		Priority:          priority,
		EstimatedDuration: criticalPath(steps),
		Decision:          decision,
		Steps:             steps,
		CreatedAt:         b.clock.Now(),
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	b.logger.Debug("plan built",
		zap.String("task_id", p.TaskID),
		zap.String("workflow", string(decision.WorkflowType)),
		zap.Int("steps", len(steps)),
		zap.Duration("estimated_duration", p.EstimatedDuration),
	)
	return p, nil
}

// buildSequentialSteps emits one step per primary agent, each depending on
// its predecessor, then supporting-agent steps that all depend on the last
// primary step.
func buildSequentialSteps(decision types.RoutingDecision, taskText string, complexity types.Complexity) []types.ExecutionStep {
	var steps []types.ExecutionStep

	for _, agent := range decision.PrimaryAgents {
		step := types.ExecutionStep{
			Number:            len(steps) + 1,
			Agent:             agent,
			Action:            actionFor(agent, taskText),
			EstimatedDuration: stepDuration(agent, complexity),
		}
		if len(steps) > 0 {
			step.Dependencies = []int{len(steps)}
		}
		steps = append(steps, step)
	}

	lastPrimary := len(steps)
	for _, agent := range decision.SupportingAgents {
		step := types.ExecutionStep{
			Number:            len(steps) + 1,
			Agent:             agent,
			Action:            actionFor(agent, taskText),
			EstimatedDuration: stepDuration(agent, complexity),
			Supporting:        true,
		}
		if lastPrimary > 0 {
			step.Dependencies = []int{lastPrimary}
		}
		steps = append(steps, step)
	}
	return steps
}

// buildParallelSteps emits one independent step per agent.
func buildParallelSteps(decision types.RoutingDecision, taskText string, complexity types.Complexity) []types.ExecutionStep {
	var steps []types.ExecutionStep
	for _, agent := range decision.PrimaryAgents {
		steps = append(steps, types.ExecutionStep{
			Number:            len(steps) + 1,
			Agent:             agent,
			Action:            actionFor(agent, taskText),
			EstimatedDuration: stepDuration(agent, complexity),
		})
	}
	for _, agent := range decision.SupportingAgents {
		steps = append(steps, types.ExecutionStep{
			Number:            len(steps) + 1,
			Agent:             agent,
			Action:            actionFor(agent, taskText),
			EstimatedDuration: stepDuration(agent, complexity),
			Supporting:        true,
		})
	}
	return steps
}

// buildTemplateSteps expands a named template, assigning stages to agents
// positionally and merging consecutive stages that land on the same agent.
func buildTemplateSteps(decision types.RoutingDecision, complexity types.Complexity) []types.ExecutionStep {
	stages := workflowTemplates[decision.WorkflowType]
	agents := decision.Agents()

	var steps []types.ExecutionStep
	var pendingActions []string
	var pendingAgent string
	supporting := make(map[string]bool, len(decision.SupportingAgents))
	for _, a := range decision.SupportingAgents {
		supporting[a] = true
	}

	flush := func() {
		if len(pendingActions) == 0 {
			return
		}
		step := types.ExecutionStep{
			Number:            len(steps) + 1,
			Agent:             pendingAgent,
			Action:            strings.Join(pendingActions, ", then "),
			EstimatedDuration: stepDuration(pendingAgent, complexity),
			Supporting:        supporting[pendingAgent],
		}
		if len(steps) > 0 {
			step.Dependencies = []int{len(steps)}
		}
		steps = append(steps, step)
		pendingActions = nil
	}

	for i, stage := range stages {
		idx := i
		if idx >= len(agents) {
			idx = len(agents) - 1
		}
		agent := agents[idx]
		if agent != pendingAgent {
			flush()
			pendingAgent = agent
		}
		pendingActions = append(pendingActions, stage.Action)
	}
	flush()
	return steps
}

// actionFor phrases the generic step instruction for an agent.
func actionFor(agent, taskText string) string {
	return "as " + agent + ", work on: " + taskText
}

// criticalPath computes the total plan duration as the longest dependency
// chain, not the sum of all steps. Steps only depend on lower numbers, so a
// single forward pass suffices.
func criticalPath(steps []types.ExecutionStep) time.Duration {
	finish := make([]time.Duration, len(steps)+1)
	var total time.Duration
	for _, step := range steps {
		var start time.Duration
		for _, dep := range step.Dependencies {
			if finish[dep] > start {
				start = finish[dep]
			}
		}
		finish[step.Number] = start + step.EstimatedDuration
		if finish[step.Number] > total {
			total = finish[step.Number]
		}
	}
	return total
}
