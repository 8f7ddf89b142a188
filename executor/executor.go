package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/gate"
	"github.com/taskmesh/taskmesh/internal/metrics"
	"github.com/taskmesh/taskmesh/types"
)

// Config holds the executor's tunables.
type Config struct {
	// StepTimeout is the hard wall-clock budget for one agent call.
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout"`
	// MessageTimeout bounds one agent-to-agent exchange.
	MessageTimeout time.Duration `yaml:"message_timeout" json:"message_timeout"`
	// MaxMessageDepth bounds nested agent-to-agent request chains.
	MaxMessageDepth int `yaml:"max_message_depth" json:"max_message_depth"`
	// EmergencyDivisor shortens timeouts in emergency mode.
	EmergencyDivisor int `yaml:"emergency_divisor" json:"emergency_divisor"`
	// Retry is the backoff policy for transient step failures.
	Retry RetryPolicy `yaml:"retry" json:"retry"`
	// Fallbacks maps an agent id to the agent substituted after its
	// retries are exhausted.
	Fallbacks map[string]string `yaml:"fallbacks" json:"fallbacks"`
	// Gate bounds in-flight agent calls across all tasks.
	Gate gate.Config `yaml:"gate" json:"gate"`
}

// DefaultConfig returns the default executor settings.
func DefaultConfig() Config {
	return Config{
		StepTimeout:      2 * time.Minute,
		MessageTimeout:   30 * time.Second,
		MaxMessageDepth:  2,
		EmergencyDivisor: 4,
		Retry:            DefaultRetryPolicy(),
		Gate:             gate.DefaultConfig(),
	}
}

func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.StepTimeout <= 0 {
		c.StepTimeout = def.StepTimeout
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = def.MessageTimeout
	}
	if c.MaxMessageDepth <= 0 {
		c.MaxMessageDepth = def.MaxMessageDepth
	}
	if c.EmergencyDivisor <= 1 {
		c.EmergencyDivisor = def.EmergencyDivisor
	}
	return c
}

// Recorder observes execution events. The audit recorder satisfies this
// interface; a nil Recorder is replaced by a no-op.
type Recorder interface {
	StepStarted(ctx context.Context, taskID string, step types.ExecutionStep)
	StepFinished(ctx context.Context, taskID string, result types.StepResult)
	StepRetried(ctx context.Context, taskID string, stepNumber int, attempt int, err error)
	StepFallback(ctx context.Context, taskID string, stepNumber int, from, to string)
	MessageExchanged(ctx context.Context, msg types.AgentMessage)
	TaskFinished(ctx context.Context, rec *types.TaskExecutionRecord)
}

type nopRecorder struct{}

func (nopRecorder) StepStarted(context.Context, string, types.ExecutionStep)   {}
func (nopRecorder) StepFinished(context.Context, string, types.StepResult)    {}
func (nopRecorder) StepRetried(context.Context, string, int, int, error)      {}
func (nopRecorder) StepFallback(context.Context, string, int, string, string) {}
func (nopRecorder) MessageExchanged(context.Context, types.AgentMessage)      {}
func (nopRecorder) TaskFinished(context.Context, *types.TaskExecutionRecord)  {}

// Options configure one execution.
type Options struct {
	// WorkingContext is caller-supplied context visible to every agent.
	WorkingContext string
	// Emergency shortens all per-step timeouts and skips supporting steps.
	Emergency bool
}

// Executor runs execution plans. Safe for concurrent use across tasks;
// each task owns its own execution record.
type Executor struct {
	cfg      Config
	provider types.AgentProvider
	store    types.TaskStore
	clock    types.Clock
	events   Recorder
	metrics  *metrics.Collector
	gate     *gate.Gate
	tracer   trace.Tracer
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]*atomic.Bool
}

// New creates an executor. provider is required; store, clock, events, and
// collector may be nil, disabling persistence, falling back to the system
// clock, and disabling observation respectively.
func New(cfg Config, provider types.AgentProvider, store types.TaskStore, clock types.Clock, events Recorder, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if events == nil {
		events = nopRecorder{}
	}
	cfg = cfg.sanitize()
	return &Executor{
		cfg:      cfg,
		provider: provider,
		store:    store,
		clock:    clock,
		events:   events,
		metrics:  collector,
		gate:     gate.New(cfg.Gate),
		tracer:   otel.Tracer("taskmesh/executor"),
		logger:   logger.With(zap.String("component", "executor")),
		running:  make(map[string]*atomic.Bool),
	}
}

// Close shuts the call gate down. In-flight calls finish naturally.
func (e *Executor) Close() {
	e.gate.Close()
}

// Cancel requests cancellation of a running task. In-flight steps finish
// naturally; not-yet-dispatched steps never start and the task ends failed.
// Returns false when no task with that id is running.
func (e *Executor) Cancel(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	flag, ok := e.running[taskID]
	if ok {
		flag.Store(true)
	}
	return ok
}

// Execute runs the plan to completion and returns the execution record.
// Plans failing structural validation are rejected up front with a
// PLAN_BUILD error before any step is dispatched.
//
// Step failures are contained: they surface in the record's step results
// and final status, never as a returned error. The returned record always
// carries the outputs of every step that finished, regardless of final
// status.
func (e *Executor) Execute(ctx context.Context, plan *types.ExecutionPlan, opts Options) (*types.TaskExecutionRecord, error) {
	if plan == nil {
		return nil, types.NewError(types.ErrPlanBuild, "plan has no steps")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "execute_plan",
		trace.WithAttributes(
			attribute.String("task_id", plan.TaskID),
			attribute.String("workflow", string(plan.Decision.WorkflowType)),
			attribute.Int("steps", len(plan.Steps)),
		))
	defer span.End()

	r := e.newRun(plan, opts)

	e.mu.Lock()
	e.running[plan.TaskID] = r.cancelled
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, plan.TaskID)
		e.mu.Unlock()
	}()

	e.logger.Info("task started",
		zap.String("task_id", plan.TaskID),
		zap.String("workflow", string(plan.Decision.WorkflowType)),
		zap.Int("steps", len(plan.Steps)),
		zap.Bool("emergency", opts.Emergency),
	)

	r.transition(ctx, types.TaskInProgress)

	for {
		if ctx.Err() != nil || r.cancelled.Load() {
			r.abortPending(ctx, "task cancelled before dispatch")
			break
		}
		wave := r.collectRunnable(ctx)
		if len(wave) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, step := range wave {
			wg.Add(1)
			go func(step types.ExecutionStep) {
				defer wg.Done()
				r.runStep(ctx, step)
			}(step)
		}
		wg.Wait()

		r.propagateFailures(ctx)
	}

	r.finish(ctx)
	return r.rec, nil
}

// run is the per-task execution state. rec and outputs are guarded by mu;
// no shared state is touched while a step is suspended in an agent call.
type run struct {
	e         *Executor
	plan      *types.ExecutionPlan
	opts      Options
	cancelled *atomic.Bool

	mu      sync.Mutex
	rec     *types.TaskExecutionRecord
	outputs map[int]string
}

func (e *Executor) newRun(plan *types.ExecutionPlan, opts Options) *run {
	now := e.clock.Now()
	rec := &types.TaskExecutionRecord{
		TaskID:     plan.TaskID,
		Status:     types.TaskPending,
		StepsTotal: len(plan.Steps),
		Plan:       plan,
		Results:    make([]types.StepResult, len(plan.Steps)),
		CreatedAt:  now,
	}
	for i, step := range plan.Steps {
		rec.Results[i] = types.StepResult{
			Number: step.Number,
			Agent:  step.Agent,
			State:  types.StepWaiting,
		}
	}
	return &run{
		e:         e,
		plan:      plan,
		opts:      opts,
		cancelled: &atomic.Bool{},
		rec:       rec,
		outputs:   make(map[int]string),
	}
}

// transition moves the task to a new status and persists the record.
func (r *run) transition(ctx context.Context, status types.TaskStatus) {
	r.mu.Lock()
	r.rec.Status = status
	now := r.e.clock.Now()
	if status == types.TaskInProgress && r.rec.StartedAt == nil {
		r.rec.StartedAt = &now
	}
	if status.Terminal() {
		r.rec.FinishedAt = &now
	}
	r.mu.Unlock()
	r.persist(ctx)
}

// persist writes a snapshot to the task store. Persistence failures are
// logged, never propagated: execution state is best effort across restarts.
func (r *run) persist(ctx context.Context) {
	if r.e.store == nil {
		return
	}
	r.mu.Lock()
	snap := r.rec.Clone()
	r.mu.Unlock()
	if err := r.e.store.Save(ctx, snap); err != nil {
		r.e.logger.Warn("task store save failed",
			zap.String("task_id", r.plan.TaskID),
			zap.Error(err),
		)
	}
}

// collectRunnable returns every waiting step whose dependencies are all
// done. Emergency mode resolves supporting steps as skipped instead of
// dispatching them.
func (r *run) collectRunnable(ctx context.Context) []types.ExecutionStep {
	var skipped []types.StepResult

	r.mu.Lock()
	var wave []types.ExecutionStep
	for _, step := range r.plan.Steps {
		res := r.rec.Result(step.Number)
		if res.State != types.StepWaiting {
			continue
		}
		ready := true
		for _, dep := range step.Dependencies {
			if r.rec.Result(dep).State != types.StepDone {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		if r.opts.Emergency && step.Supporting {
			now := r.e.clock.Now()
			res.State = types.StepDone
			res.Skipped = true
			res.StartedAt = &now
			res.FinishedAt = &now
			r.rec.StepsCompleted++
			r.updateProgressLocked()
			skipped = append(skipped, *res)
			continue
		}
		wave = append(wave, step)
	}
	r.mu.Unlock()

	for _, res := range skipped {
		r.e.events.StepFinished(ctx, r.plan.TaskID, res)
	}
	if len(skipped) > 0 {
		r.persist(ctx)
	}
	return wave
}

// runStep executes one step: retries, optional fallback substitution, and
// the agent-to-agent exchanges its response requests.
func (r *run) runStep(ctx context.Context, step types.ExecutionStep) {
	ctx, span := r.e.tracer.Start(ctx, "execute_step",
		trace.WithAttributes(
			attribute.Int("step", step.Number),
			attribute.String("agent", step.Agent),
		))
	defer span.End()

	started := r.e.clock.Now()
	r.mu.Lock()
	res := r.rec.Result(step.Number)
	res.State = types.StepRunning
	res.StartedAt = &started
	inputs := make(map[int]string, len(step.Dependencies))
	for _, dep := range step.Dependencies {
		inputs[dep] = r.outputs[dep]
	}
	r.mu.Unlock()

	r.persist(ctx)
	r.e.events.StepStarted(ctx, r.plan.TaskID, step)

	cc := types.CallContext{
		TaskID:         r.plan.TaskID,
		StepNumber:     step.Number,
		Action:         step.Action,
		WorkingContext: r.opts.WorkingContext,
		Inputs:         inputs,
	}

	output, attempts, err := r.attempt(ctx, step.Agent, step, cc)
	actingAgent := step.Agent
	fallbackUsed := ""
	if err != nil {
		if fb, ok := r.e.cfg.Fallbacks[step.Agent]; ok && fb != "" {
			r.e.logger.Info("substituting fallback agent",
				zap.String("task_id", r.plan.TaskID),
				zap.Int("step", step.Number),
				zap.String("agent", step.Agent),
				zap.String("fallback", fb),
			)
			r.e.events.StepFallback(ctx, r.plan.TaskID, step.Number, step.Agent, fb)
			r.e.metrics.Fallback(step.Agent, fb)

			var fbAttempts int
			output, fbAttempts, err = r.attempt(ctx, fb, step, cc)
			attempts += fbAttempts
			if err == nil {
				fallbackUsed = fb
				actingAgent = fb
			}
		}
	}

	if err == nil {
		output = r.processExchanges(ctx, actingAgent, output)
	}

	finished := r.e.clock.Now()
	r.mu.Lock()
	res = r.rec.Result(step.Number)
	res.Attempts = attempts
	res.Fallback = fallbackUsed
	res.FinishedAt = &finished
	if err != nil {
		res.State = types.StepError
		res.Error = err.Error()
	} else {
		res.State = types.StepDone
		res.Output = output
		r.outputs[step.Number] = output
		r.rec.StepsCompleted++
		r.updateProgressLocked()
	}
	snapshot := *res
	r.mu.Unlock()

	r.persist(ctx)
	r.e.events.StepFinished(ctx, r.plan.TaskID, snapshot)
	r.e.metrics.StepFinished(step.Agent, string(snapshot.State), finished.Sub(started))

	if err != nil {
		r.e.logger.Warn("step failed",
			zap.String("task_id", r.plan.TaskID),
			zap.Int("step", step.Number),
			zap.String("agent", step.Agent),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
}

// attempt runs the retry loop for one agent.
func (r *run) attempt(ctx context.Context, agentID string, step types.ExecutionStep, cc types.CallContext) (string, int, error) {
	rt := newRetryer(r.e.cfg.Retry, r.e.clock, r.e.logger)
	rt.onRetry = func(attempt int, err error, _ time.Duration) {
		r.e.events.StepRetried(ctx, r.plan.TaskID, step.Number, attempt, err)
		r.e.metrics.Retry(agentID)
	}
	message := fmt.Sprintf("Step %d of task %s: %s", step.Number, r.plan.TaskID, step.Action)
	return rt.do(ctx, func() (string, error) {
		return r.invoke(ctx, agentID, message, cc, r.stepTimeout())
	})
}

// invoke resolves and calls one agent through the global gate.
func (r *run) invoke(ctx context.Context, agentID, message string, cc types.CallContext, timeout time.Duration) (string, error) {
	agent, err := r.e.provider.Get(agentID)
	if err != nil {
		return "", types.NewError(types.ErrUnknownAgent, "no agent registered as "+agentID).WithCause(err)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := r.e.gate.Do(cctx, func(c context.Context) (string, error) {
		return agent.Respond(c, message, cc)
	})
	return out, classifyCallError(err, agentID)
}

// processExchanges handles every @AgentName: request in an agent's output
// and appends the gathered responses so they are visible in the requesting
// agent's final output.
func (r *run) processExchanges(ctx context.Context, fromAgent, output string) string {
	for _, req := range ParseRequests(output) {
		msg := r.exchange(ctx, fromAgent, req, 1)
		if msg.Answered() {
			output += fmt.Sprintf("\n\n@%s responded: %s", msg.ToAgent, msg.Response)
		}
	}
	return output
}

// exchange performs one synchronous agent-to-agent request. depth counts
// nesting: a request found in the target's own response re-enters with
// depth+1 and fails once the configured bound is exceeded. A failed
// exchange never aborts the requesting step.
func (r *run) exchange(ctx context.Context, fromAgent string, req CommRequest, depth int) types.AgentMessage {
	msg := types.AgentMessage{
		MessageID: uuid.NewString(),
		TaskID:    r.plan.TaskID,
		FromAgent: fromAgent,
		ToAgent:   req.Target,
		Message:   req.Content,
		Timestamp: r.e.clock.Now(),
	}

	switch {
	case depth > r.e.cfg.MaxMessageDepth:
		msg.Error = types.NewError(types.ErrRecursionLimit,
			fmt.Sprintf("agent request chain exceeds depth %d", r.e.cfg.MaxMessageDepth)).Error()

	default:
		cc := types.CallContext{
			TaskID:         r.plan.TaskID,
			WorkingContext: r.opts.WorkingContext,
		}
		out, err := r.invoke(ctx, req.Target, req.Content, cc, r.messageTimeout())
		if err != nil {
			msg.Error = err.Error()
		} else {
			for _, nested := range ParseRequests(out) {
				nmsg := r.exchange(ctx, req.Target, nested, depth+1)
				if nmsg.Answered() {
					out += fmt.Sprintf("\n\n@%s responded: %s", nmsg.ToAgent, nmsg.Response)
				}
			}
			now := r.e.clock.Now()
			msg.Response = out
			msg.ResponseAt = &now
		}
	}

	r.mu.Lock()
	r.rec.Messages = append(r.rec.Messages, msg)
	r.mu.Unlock()

	outcome := "answered"
	if !msg.Answered() {
		outcome = "failed"
	}
	r.e.events.MessageExchanged(ctx, msg)
	r.e.metrics.Message(outcome)
	r.persist(ctx)
	return msg
}

// propagateFailures marks every waiting step that transitively depends on
// an errored step as errored itself, without dispatching it. Finished steps
// are never rolled back.
func (r *run) propagateFailures(ctx context.Context) {
	var marked []types.StepResult

	r.mu.Lock()
	for changed := true; changed; {
		changed = false
		for _, step := range r.plan.Steps {
			res := r.rec.Result(step.Number)
			if res.State != types.StepWaiting {
				continue
			}
			for _, dep := range step.Dependencies {
				if r.rec.Result(dep).State != types.StepError {
					continue
				}
				now := r.e.clock.Now()
				res.State = types.StepError
				res.Error = fmt.Sprintf("dependency step %d failed", dep)
				res.FinishedAt = &now
				marked = append(marked, *res)
				changed = true
				break
			}
		}
	}
	r.mu.Unlock()

	for _, res := range marked {
		r.e.events.StepFinished(ctx, r.plan.TaskID, res)
		r.e.metrics.StepFinished(res.Agent, string(types.StepError), 0)
	}
	if len(marked) > 0 {
		r.persist(ctx)
	}
}

// abortPending marks every still-waiting step as errored with the given
// reason. Used on cancellation; running steps are left to finish naturally.
func (r *run) abortPending(ctx context.Context, reason string) {
	var marked []types.StepResult

	r.mu.Lock()
	for i := range r.rec.Results {
		res := &r.rec.Results[i]
		if res.State != types.StepWaiting {
			continue
		}
		now := r.e.clock.Now()
		res.State = types.StepError
		res.Error = reason
		res.FinishedAt = &now
		marked = append(marked, *res)
	}
	r.mu.Unlock()

	for _, res := range marked {
		r.e.events.StepFinished(ctx, r.plan.TaskID, res)
	}
	if len(marked) > 0 {
		r.persist(ctx)
	}
}

// finish settles the final task status: completed only when every step is
// done, failed otherwise.
func (r *run) finish(ctx context.Context) {
	r.mu.Lock()
	status := types.TaskCompleted
	for i := range r.rec.Results {
		if r.rec.Results[i].State != types.StepDone {
			status = types.TaskFailed
			break
		}
	}
	r.mu.Unlock()

	r.transition(ctx, status)

	r.mu.Lock()
	duration := time.Duration(0)
	if r.rec.StartedAt != nil && r.rec.FinishedAt != nil {
		duration = r.rec.FinishedAt.Sub(*r.rec.StartedAt)
	}
	snap := r.rec.Clone()
	r.mu.Unlock()

	r.e.events.TaskFinished(ctx, snap)
	r.e.metrics.TaskFinished(string(snap.Status), duration)
	r.e.logger.Info("task finished",
		zap.String("task_id", r.plan.TaskID),
		zap.String("status", string(snap.Status)),
		zap.Int("progress", snap.Progress),
		zap.Duration("duration", duration),
	)
}

// updateProgressLocked recomputes progress; callers hold r.mu. Progress is
// monotone because StepsCompleted only grows.
func (r *run) updateProgressLocked() {
	if r.rec.StepsTotal > 0 {
		r.rec.Progress = r.rec.StepsCompleted * 100 / r.rec.StepsTotal
	}
}

func (r *run) stepTimeout() time.Duration {
	if r.opts.Emergency {
		return r.e.cfg.StepTimeout / time.Duration(r.e.cfg.EmergencyDivisor)
	}
	return r.e.cfg.StepTimeout
}

func (r *run) messageTimeout() time.Duration {
	if r.opts.Emergency {
		return r.e.cfg.MessageTimeout / time.Duration(r.e.cfg.EmergencyDivisor)
	}
	return r.e.cfg.MessageTimeout
}

// classifyCallError maps raw agent-call failures onto the engine's error
// taxonomy. Errors that already carry a code pass through unchanged.
func classifyCallError(err error, agentID string) error {
	if err == nil {
		return nil
	}
	if types.GetErrorCode(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "agent call timed out").WithAgent(agentID).WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrTaskCancelled, "agent call cancelled").WithAgent(agentID).WithCause(err)
	default:
		return types.NewError(types.ErrProvider, "agent call failed").WithAgent(agentID).WithCause(err)
	}
}
