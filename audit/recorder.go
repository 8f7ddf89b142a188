package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/types"
)

// Config holds the recorder's settings.
type Config struct {
	// Level controls how much detail is captured. Defaults to standard.
	Level types.AuditLevel `yaml:"level" json:"level"`
}

// DefaultConfig returns the default audit settings.
func DefaultConfig() Config {
	return Config{Level: types.AuditStandard}
}

// Recorder writes append-only audit records for every decision point in the
// pipeline. Safe for concurrent use. A nil store turns every record into a
// no-op while queries report not-found.
type Recorder struct {
	store  types.AuditStore
	clock  types.Clock
	logger *zap.Logger

	mu    sync.RWMutex
	level types.AuditLevel
}

// NewRecorder creates a recorder writing to store at the configured level.
func NewRecorder(cfg Config, store types.AuditStore, clock types.Clock, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	level := cfg.Level
	if !level.Valid() {
		level = types.AuditStandard
	}
	return &Recorder{
		store:  store,
		clock:  clock,
		logger: logger.With(zap.String("component", "audit")),
		level:  level,
	}
}

// Level returns the current audit level.
func (r *Recorder) Level() types.AuditLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

// SetLevel changes the audit level. The change affects subsequently recorded
// events only; records already written are never rewritten.
func (r *Recorder) SetLevel(level types.AuditLevel) error {
	if !level.Valid() {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("unknown audit level %q", level))
	}
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
	r.logger.Info("audit level changed", zap.String("level", string(level)))
	return nil
}

// detailed reports whether reasoning strings and payloads are captured.
func (r *Recorder) detailed() bool {
	return r.Level().Includes(types.AuditDetailed)
}

// debug reports whether full outputs and message bodies are captured.
func (r *Recorder) debug() bool {
	return r.Level().Includes(types.AuditDebug)
}

// append writes one record if the current level captures records tagged with
// min. Failures are logged, never propagated: recording is fire-and-forget.
func (r *Recorder) append(ctx context.Context, min types.AuditLevel, rec types.AuditRecord) {
	if r.store == nil || !r.Level().Includes(min) {
		return
	}
	rec.ID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Warn("audit append failed",
			zap.String("task_id", rec.TaskID),
			zap.String("kind", string(rec.Kind)),
			zap.Error(err),
		)
	}
}

func (r *Recorder) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now()
}

// ============================================================
// Pipeline decision events
// ============================================================

// IntentClassified records the analyzer's result for a task.
func (r *Recorder) IntentClassified(ctx context.Context, taskID, taskText string, analysis types.IntentAnalysis, entities types.ExtractedEntities) {
	rec := types.AuditRecord{
		TaskID:  taskID,
		Intent:  analysis.PrimaryIntent,
		Kind:    types.AuditIntentClassified,
		Summary: fmt.Sprintf("classified as %s (confidence %.2f)", analysis.PrimaryIntent, analysis.Confidence),
		Success: true,
	}
	if r.detailed() {
		rec.Detail = map[string]any{
			"confidence":        analysis.Confidence,
			"secondary_intents": analysis.SecondaryIntents,
			"urgency":           entities.Urgency,
			"file_paths":        entities.FilePaths,
			"functions":         entities.Functions,
			"technologies":      entities.Technologies,
		}
		if r.debug() {
			rec.Detail["task_text"] = taskText
			rec.Detail["classes"] = entities.Classes
			rec.Detail["modules"] = entities.Modules
			rec.Detail["errors"] = entities.Errors
		}
	}
	r.append(ctx, types.AuditMinimal, rec)
}

// RoutingDecided records the planner's agent selection and topology choice.
func (r *Recorder) RoutingDecided(ctx context.Context, taskID string, intent types.IntentCategory, decision types.RoutingDecision) {
	rec := types.AuditRecord{
		TaskID:  taskID,
		Intent:  intent,
		Kind:    types.AuditRoutingDecided,
		Summary: fmt.Sprintf("routed to %v via %s (confidence %.2f)", decision.PrimaryAgents, decision.WorkflowType, decision.Confidence),
		Success: true,
	}
	if r.detailed() {
		rec.Detail = map[string]any{
			"reasoning":         decision.Reasoning,
			"supporting_agents": decision.SupportingAgents,
			"confidence":        decision.Confidence,
		}
	}
	r.append(ctx, types.AuditMinimal, rec)
}

// PlanBuilt records the expanded plan. The record's duration carries the
// critical-path estimate so Explain can score actual time against it.
func (r *Recorder) PlanBuilt(ctx context.Context, plan *types.ExecutionPlan) {
	rec := types.AuditRecord{
		TaskID:   plan.TaskID,
		Kind:     types.AuditPlanBuilt,
		Summary:  fmt.Sprintf("plan built: %d steps, estimated %s", len(plan.Steps), plan.EstimatedDuration),
		Duration: plan.EstimatedDuration,
		Success:  true,
	}
	if r.detailed() {
		steps := make([]map[string]any, len(plan.Steps))
		for i, s := range plan.Steps {
			steps[i] = map[string]any{
				"step":         s.Number,
				"agent":        s.Agent,
				"action":       s.Action,
				"dependencies": s.Dependencies,
			}
		}
		rec.Detail = map[string]any{
			"workflow": plan.Decision.WorkflowType,
			"priority": plan.Priority,
			"steps":    steps,
		}
	}
	r.append(ctx, types.AuditMinimal, rec)
}

// ============================================================
// Execution events (satisfies the executor's Recorder interface)
// ============================================================

// StepStarted records a step transition into running.
func (r *Recorder) StepStarted(ctx context.Context, taskID string, step types.ExecutionStep) {
	r.append(ctx, types.AuditMinimal, types.AuditRecord{
		TaskID:  taskID,
		AgentID: step.Agent,
		Kind:    types.AuditStepStarted,
		Step:    step.Number,
		Summary: fmt.Sprintf("step %d (%s) started: %s", step.Number, step.Agent, step.Action),
		Success: true,
	})
}

// StepFinished records a step reaching done or error.
func (r *Recorder) StepFinished(ctx context.Context, taskID string, result types.StepResult) {
	rec := types.AuditRecord{
		TaskID:   taskID,
		AgentID:  result.Agent,
		Kind:     types.AuditStepFinished,
		Step:     result.Number,
		Summary:  fmt.Sprintf("step %d (%s) finished %s after %d attempt(s)", result.Number, result.Agent, result.State, result.Attempts),
		Success:  result.State == types.StepDone,
		Duration: result.Duration(),
	}
	if result.Skipped {
		rec.Summary = fmt.Sprintf("step %d (%s) skipped in emergency mode", result.Number, result.Agent)
	}
	if r.detailed() {
		rec.Detail = map[string]any{
			"attempts": result.Attempts,
			"fallback": result.Fallback,
			"skipped":  result.Skipped,
			"error":    result.Error,
		}
		if r.debug() {
			rec.Detail["output"] = result.Output
		}
	}
	r.append(ctx, types.AuditMinimal, rec)
}

// StepRetried records one retry attempt for a step.
func (r *Recorder) StepRetried(ctx context.Context, taskID string, stepNumber, attempt int, err error) {
	rec := types.AuditRecord{
		TaskID:  taskID,
		Kind:    types.AuditStepRetried,
		Step:    stepNumber,
		Summary: fmt.Sprintf("step %d retry %d", stepNumber, attempt),
	}
	if r.detailed() && err != nil {
		rec.Detail = map[string]any{"error": err.Error()}
	}
	r.append(ctx, types.AuditStandard, rec)
}

// StepFallback records a fallback-agent substitution.
func (r *Recorder) StepFallback(ctx context.Context, taskID string, stepNumber int, from, to string) {
	r.append(ctx, types.AuditStandard, types.AuditRecord{
		TaskID:  taskID,
		AgentID: to,
		Kind:    types.AuditStepFallback,
		Step:    stepNumber,
		Summary: fmt.Sprintf("step %d fell back from %s to %s", stepNumber, from, to),
		Success: true,
	})
}

// MessageExchanged records one agent-to-agent exchange.
func (r *Recorder) MessageExchanged(ctx context.Context, msg types.AgentMessage) {
	rec := types.AuditRecord{
		TaskID:  msg.TaskID,
		AgentID: msg.FromAgent,
		Kind:    types.AuditMessageExchanged,
		Summary: fmt.Sprintf("%s asked %s", msg.FromAgent, msg.ToAgent),
		Success: msg.Answered(),
	}
	if !msg.Answered() {
		rec.Summary = fmt.Sprintf("%s asked %s (failed)", msg.FromAgent, msg.ToAgent)
	}
	if r.detailed() {
		rec.Detail = map[string]any{
			"to":    msg.ToAgent,
			"error": msg.Error,
		}
		if r.debug() {
			rec.Detail["message"] = msg.Message
			rec.Detail["response"] = msg.Response
		}
	}
	r.append(ctx, types.AuditStandard, rec)
}

// TaskFinished records the final task outcome.
func (r *Recorder) TaskFinished(ctx context.Context, record *types.TaskExecutionRecord) {
	var duration time.Duration
	if record.StartedAt != nil && record.FinishedAt != nil {
		duration = record.FinishedAt.Sub(*record.StartedAt)
	}
	rec := types.AuditRecord{
		TaskID:   record.TaskID,
		Kind:     types.AuditTaskFinished,
		Summary:  fmt.Sprintf("task %s: %d/%d steps completed", record.Status, record.StepsCompleted, record.StepsTotal),
		Success:  record.Status == types.TaskCompleted,
		Duration: duration,
	}
	if record.Plan != nil && r.detailed() {
		rec.Detail = map[string]any{
			"workflow":  record.Plan.Decision.WorkflowType,
			"messages":  len(record.Messages),
			"estimated": record.Plan.EstimatedDuration,
		}
	}
	r.append(ctx, types.AuditMinimal, rec)
}
