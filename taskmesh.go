// Package taskmesh orchestrates several LLM-backed agents to jointly
// execute a natural-language task: it classifies the task text into an
// intent and entity bundle, turns that into a routed multi-step execution
// plan, runs the plan with inter-agent communication, and records a
// replayable audit trail explaining every decision.
//
// Usage:
//
//	engine, err := taskmesh.New(provider)
//	res, err := engine.Orchestrate(ctx, "Fix the login bug", taskmesh.OrchestrateOptions{})
package taskmesh

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/audit"
	"github.com/taskmesh/taskmesh/executor"
	"github.com/taskmesh/taskmesh/intent"
	"github.com/taskmesh/taskmesh/internal/metrics"
	"github.com/taskmesh/taskmesh/plan"
	"github.com/taskmesh/taskmesh/routing"
	"github.com/taskmesh/taskmesh/store"
	"github.com/taskmesh/taskmesh/types"
)

// Engine is the facade over the whole orchestration pipeline: analyzer →
// planner → plan builder → executor, with the audit recorder observing
// every stage. Safe for concurrent use.
type Engine struct {
	analyzer *intent.Analyzer
	planner  *routing.Planner
	builder  *plan.Builder
	exec     *executor.Executor
	recorder *audit.Recorder
	tasks    types.TaskStore
	metrics  *metrics.Collector
	logger   *zap.Logger
}

type engineOptions struct {
	analyzerCfg intent.AnalyzerConfig
	plannerCfg  routing.PlannerConfig
	executorCfg executor.Config
	auditCfg    audit.Config
	routes      []routing.Route
	tasks       types.TaskStore
	auditStore  types.AuditStore
	clock       types.Clock
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// Option configures the engine created by [New].
type Option func(*engineOptions)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithClock injects a clock for deterministic time and backoff.
func WithClock(clock types.Clock) Option {
	return func(o *engineOptions) { o.clock = clock }
}

// WithTaskStore sets the task persistence backing. Defaults to in-memory.
func WithTaskStore(s types.TaskStore) Option {
	return func(o *engineOptions) { o.tasks = s }
}

// WithAuditStore sets the audit trail backing. Defaults to in-memory.
func WithAuditStore(s types.AuditStore) Option {
	return func(o *engineOptions) { o.auditStore = s }
}

// WithMetrics sets the Prometheus collector. Defaults to none.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *engineOptions) { o.metrics = c }
}

// WithAnalyzerConfig tunes intent classification.
func WithAnalyzerConfig(cfg intent.AnalyzerConfig) Option {
	return func(o *engineOptions) { o.analyzerCfg = cfg }
}

// WithPlannerConfig tunes routing.
func WithPlannerConfig(cfg routing.PlannerConfig) Option {
	return func(o *engineOptions) { o.plannerCfg = cfg }
}

// WithRoutes replaces the default intent-to-agent mapping table.
func WithRoutes(routes []routing.Route) Option {
	return func(o *engineOptions) { o.routes = routes }
}

// WithExecutorConfig tunes execution, retries, and the call gate.
func WithExecutorConfig(cfg executor.Config) Option {
	return func(o *engineOptions) { o.executorCfg = cfg }
}

// WithAuditConfig tunes the explainability recorder.
func WithAuditConfig(cfg audit.Config) Option {
	return func(o *engineOptions) { o.auditCfg = cfg }
}

// New creates an engine around the given agent provider.
func New(provider types.AgentProvider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrInvalidInput, "agent provider is required")
	}

	o := &engineOptions{
		analyzerCfg: intent.DefaultAnalyzerConfig(),
		plannerCfg:  routing.DefaultPlannerConfig(),
		executorCfg: executor.DefaultConfig(),
		auditCfg:    audit.DefaultConfig(),
		routes:      routing.DefaultRoutes,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = executor.SystemClock{}
	}
	if o.tasks == nil {
		o.tasks = store.NewMemoryTaskStore()
	}
	if o.auditStore == nil {
		o.auditStore = store.NewMemoryAuditStore()
	}

	recorder := audit.NewRecorder(o.auditCfg, o.auditStore, o.clock, o.logger)
	return &Engine{
		analyzer: intent.NewAnalyzer(o.analyzerCfg, o.logger),
		planner:  routing.NewPlanner(o.plannerCfg, o.routes, o.logger),
		builder:  plan.NewBuilder(o.clock, o.logger),
		exec:     executor.New(o.executorCfg, provider, o.tasks, o.clock, recorder, o.metrics, o.logger),
		recorder: recorder,
		tasks:    o.tasks,
		metrics:  o.metrics,
		logger:   o.logger.With(zap.String("component", "engine")),
	}, nil
}

// Close releases the executor's call gate. In-flight tasks finish naturally.
func (e *Engine) Close() {
	e.exec.Close()
}

// Analysis bundles everything the analyzer and planner derive from task
// text without creating a task.
type Analysis struct {
	Intent   types.IntentAnalysis  `json:"intent"`
	Entities types.ExtractedEntities `json:"entities"`
	Task     types.StructuredTask  `json:"task"`
}

// Analyze classifies task text and derives the structured summary. Pure:
// no task is created and nothing is recorded.
func (e *Engine) Analyze(ctx context.Context, taskText string) (*Analysis, error) {
	analysis, entities, err := e.analyzer.Analyze(taskText)
	if err != nil {
		return nil, err
	}
	e.metrics.Intent(string(analysis.PrimaryIntent))
	return &Analysis{
		Intent:   analysis,
		Entities: entities,
		Task:     e.planner.Structure(analysis, entities),
	}, nil
}

// OrchestrateOptions configure one orchestration.
type OrchestrateOptions struct {
	// Priority overrides the derived priority when set.
	Priority types.Priority
	// WorkingContext is caller-supplied context visible to every agent.
	WorkingContext string
	// DryRun stops after planning: the plan is returned unexecuted.
	DryRun bool
	// Emergency shortens timeouts and skips supporting steps.
	Emergency bool
}

// OrchestrateResult is the outcome of one orchestration. Plan is always
// set; Record is nil for dry runs.
type OrchestrateResult struct {
	Analysis types.IntentAnalysis       `json:"analysis"`
	Entities types.ExtractedEntities    `json:"entities"`
	Decision types.RoutingDecision      `json:"decision"`
	Plan     *types.ExecutionPlan       `json:"plan"`
	Record   *types.TaskExecutionRecord `json:"record,omitempty"`
}

// Orchestrate runs the full pipeline on task text: analyze, route, plan,
// and (unless DryRun) execute. Validation failures (empty text, routing
// that selects no agents) surface as errors before any task exists; step
// failures during execution surface in the record, never as an error.
func (e *Engine) Orchestrate(ctx context.Context, taskText string, opts OrchestrateOptions) (*OrchestrateResult, error) {
	analysis, entities, err := e.analyzer.Analyze(taskText)
	if err != nil {
		return nil, err
	}
	decision := e.planner.Route(analysis, entities)
	structured := e.planner.Structure(analysis, entities)

	priority := opts.Priority
	if priority == "" {
		priority = structured.Priority
	}

	p, err := e.builder.Build(decision, taskText, priority, structured.Complexity)
	if err != nil {
		return nil, err
	}

	e.metrics.Intent(string(analysis.PrimaryIntent))
	e.metrics.Routing(string(decision.WorkflowType))
	e.recorder.IntentClassified(ctx, p.TaskID, taskText, analysis, entities)
	e.recorder.RoutingDecided(ctx, p.TaskID, analysis.PrimaryIntent, decision)
	e.recorder.PlanBuilt(ctx, p)

	res := &OrchestrateResult{
		Analysis: analysis,
		Entities: entities,
		Decision: decision,
		Plan:     p,
	}
	if opts.DryRun {
		e.logger.Info("dry run, returning plan unexecuted",
			zap.String("task_id", p.TaskID),
			zap.Float64("confidence", decision.Confidence),
		)
		return res, nil
	}

	record, err := e.ExecutePlan(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	res.Record = record
	return res, nil
}

// ExecutePlan runs an already-built plan, typically one returned by a dry
// run. The step set and order are exactly what Orchestrate without DryRun
// would execute.
func (e *Engine) ExecutePlan(ctx context.Context, p *types.ExecutionPlan, opts OrchestrateOptions) (*types.TaskExecutionRecord, error) {
	return e.exec.Execute(ctx, p, executor.Options{
		WorkingContext: opts.WorkingContext,
		Emergency:      opts.Emergency,
	})
}

// GetStatus returns the stored execution record for a task, or
// TASK_NOT_FOUND.
func (e *Engine) GetStatus(ctx context.Context, taskID string) (*types.TaskExecutionRecord, error) {
	return e.tasks.Load(ctx, taskID)
}

// Cancel requests cancellation of a running task. In-flight steps finish
// naturally; pending steps never start. Returns false when no task with
// that id is running.
func (e *Engine) Cancel(taskID string) bool {
	return e.exec.Cancel(taskID)
}

// Explain reconstructs the decision trace for a task from its audit trail.
func (e *Engine) Explain(ctx context.Context, taskID string) (*audit.TaskTrace, error) {
	return e.recorder.Explain(ctx, taskID)
}

// Statistics aggregates outcomes over the audit trail.
func (e *Engine) Statistics(ctx context.Context, f audit.Filter) (*audit.Stats, error) {
	return e.recorder.Statistics(ctx, f)
}

// AuditLevel returns the recorder's current level.
func (e *Engine) AuditLevel() types.AuditLevel {
	return e.recorder.Level()
}

// SetAuditLevel changes the audit level for subsequently recorded events.
func (e *Engine) SetAuditLevel(level types.AuditLevel) error {
	return e.recorder.SetLevel(level)
}
