package audit

import (
	"context"
	"time"

	"github.com/taskmesh/taskmesh/types"
)

// maxEfficiencyScore caps the reward for finishing faster than estimated.
const maxEfficiencyScore = 1.5

// StepTrace is one step's entry in an explainability trace.
type StepTrace struct {
	Number   int           `json:"step_number"`
	Agent    string        `json:"agent"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Retries  int           `json:"retries,omitempty"`
	Fallback string        `json:"fallback_agent,omitempty"`
	Summary  string        `json:"summary"`
}

// TaskTrace reconstructs, in event order, every recorded decision for one
// task: why it was classified and routed the way it was, how each step ran,
// and how actual time compared to the estimate.
type TaskTrace struct {
	TaskID           string              `json:"task_id"`
	Intent           types.IntentCategory `json:"intent,omitempty"`
	IntentReasoning  string              `json:"intent_reasoning,omitempty"`
	RoutingReasoning string              `json:"routing_reasoning,omitempty"`
	Steps            []StepTrace         `json:"steps"`
	Messages         int                 `json:"messages"`
	Success          bool                `json:"success"`
	Estimated        time.Duration       `json:"estimated_duration"`
	Actual           time.Duration       `json:"actual_duration"`

	// EfficiencyScore is estimated over actual time, clamped to
	// [0, 1.5]: above 1 means the task beat its estimate.
	EfficiencyScore float64 `json:"efficiency_score"`

	// Records is the full ordered trail the trace was derived from.
	Records []types.AuditRecord `json:"records"`
}

// Explain rebuilds the decision trace for one task from its audit trail.
// Returns TASK_NOT_FOUND when no records exist for the id.
func (r *Recorder) Explain(ctx context.Context, taskID string) (*TaskTrace, error) {
	if r.store == nil {
		return nil, types.NewError(types.ErrTaskNotFound, "no audit store configured")
	}
	records, err := r.store.Query(ctx, types.AuditQuery{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, types.NewError(types.ErrTaskNotFound, "no audit trail for task "+taskID)
	}

	trace := &TaskTrace{TaskID: taskID, Records: records}
	retries := make(map[int]int)
	fallbacks := make(map[int]string)

	for _, rec := range records {
		switch rec.Kind {
		case types.AuditIntentClassified:
			trace.Intent = rec.Intent
			trace.IntentReasoning = rec.Summary

		case types.AuditRoutingDecided:
			trace.RoutingReasoning = rec.Summary
			if reasoning, ok := rec.Detail["reasoning"].(string); ok && reasoning != "" {
				trace.RoutingReasoning = reasoning
			}

		case types.AuditPlanBuilt:
			trace.Estimated = rec.Duration

		case types.AuditStepRetried:
			retries[rec.Step]++

		case types.AuditStepFallback:
			fallbacks[rec.Step] = rec.AgentID

		case types.AuditStepFinished:
			trace.Steps = append(trace.Steps, StepTrace{
				Number:   rec.Step,
				Agent:    rec.AgentID,
				Success:  rec.Success,
				Duration: rec.Duration,
				Summary:  rec.Summary,
			})

		case types.AuditMessageExchanged:
			trace.Messages++

		case types.AuditTaskFinished:
			trace.Success = rec.Success
			trace.Actual = rec.Duration
		}
	}

	for i := range trace.Steps {
		trace.Steps[i].Retries = retries[trace.Steps[i].Number]
		trace.Steps[i].Fallback = fallbacks[trace.Steps[i].Number]
	}
	trace.EfficiencyScore = efficiencyScore(trace.Estimated, trace.Actual)
	return trace, nil
}

// efficiencyScore is estimated over actual, clamped to [0, 1.5]. Finishing
// instantly against a non-zero estimate earns the cap; a task with no
// estimate scores zero.
func efficiencyScore(estimated, actual time.Duration) float64 {
	if estimated <= 0 {
		return 0
	}
	if actual <= 0 {
		return maxEfficiencyScore
	}
	score := float64(estimated) / float64(actual)
	if score > maxEfficiencyScore {
		return maxEfficiencyScore
	}
	if score < 0 {
		return 0
	}
	return score
}
