package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh/types"
)

// ============================================================
// Mock implementations for testing
// ============================================================

type mockAgent struct {
	id      string
	respond func(ctx context.Context, message string, cc types.CallContext) (string, error)
}

func (a *mockAgent) ID() string { return a.id }

func (a *mockAgent) Respond(ctx context.Context, message string, cc types.CallContext) (string, error) {
	return a.respond(ctx, message, cc)
}

type mockProvider struct {
	mu     sync.Mutex
	agents map[string]types.Agent
}

func newMockProvider(agents ...types.Agent) *mockProvider {
	p := &mockProvider{agents: make(map[string]types.Agent)}
	for _, a := range agents {
		p.agents[a.ID()] = a
	}
	return p
}

func (p *mockProvider) Get(id string) (types.Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return nil, errors.New("agent not registered: " + id)
	}
	return a, nil
}

type mockStore struct {
	mu    sync.Mutex
	saves []*types.TaskExecutionRecord
}

func (s *mockStore) Save(ctx context.Context, rec *types.TaskExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, rec.Clone())
	return nil
}

func (s *mockStore) Load(ctx context.Context, taskID string) (*types.TaskExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saves) - 1; i >= 0; i-- {
		if s.saves[i].TaskID == taskID {
			return s.saves[i].Clone(), nil
		}
	}
	return nil, types.NewError(types.ErrTaskNotFound, "no record for "+taskID)
}

// echoAgent returns a canned output per call.
func echoAgent(id, output string) *mockAgent {
	return &mockAgent{id: id, respond: func(ctx context.Context, message string, cc types.CallContext) (string, error) {
		return output, nil
	}}
}

// failingAgent always fails with the given coded error.
func failingAgent(id string, code types.ErrorCode) *mockAgent {
	return &mockAgent{id: id, respond: func(ctx context.Context, message string, cc types.CallContext) (string, error) {
		return "", types.NewError(code, "induced failure")
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.Jitter = false
	cfg.Retry.MaxRetries = 2
	return cfg
}

func newTestExecutor(t *testing.T, cfg Config, provider types.AgentProvider, store types.TaskStore) (*Executor, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	e := New(cfg, provider, store, clock, nil, nil, nil)
	t.Cleanup(e.Close)
	return e, clock
}

// seqPlan is a three-step chain: coder → reviewer → qa.
func seqPlan() *types.ExecutionPlan {
	return &types.ExecutionPlan{
		TaskID:   "task-seq",
		Priority: types.PriorityMedium,
		Decision: types.RoutingDecision{
			PrimaryAgents: []string{"coder", "reviewer", "qa"},
			WorkflowType:  types.WorkflowSequential,
		},
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "coder", Action: "write it", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "reviewer", Action: "review it", Dependencies: []int{1}, EstimatedDuration: time.Minute},
			{Number: 3, Agent: "qa", Action: "test it", Dependencies: []int{2}, EstimatedDuration: time.Minute},
		},
	}
}

// ============================================================
// Execution semantics
// ============================================================

func TestExecuteNilPlan(t *testing.T) {
	e, _ := newTestExecutor(t, testConfig(), newMockProvider(), nil)
	_, err := e.Execute(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.Equal(t, types.ErrPlanBuild, types.GetErrorCode(err))
}

func TestExecuteRejectsMalformedPlans(t *testing.T) {
	tests := []struct {
		name  string
		steps []types.ExecutionStep
	}{
		{"no steps", nil},
		{"dependency on missing step", []types.ExecutionStep{
			{Number: 1, Agent: "coder", Action: "write it", Dependencies: []int{5}},
		}},
		{"dependency on later step", []types.ExecutionStep{
			{Number: 1, Agent: "coder", Action: "write it", Dependencies: []int{2}},
			{Number: 2, Agent: "qa", Action: "test it"},
		}},
		{"non-contiguous numbering", []types.ExecutionStep{
			{Number: 1, Agent: "coder", Action: "write it"},
			{Number: 3, Agent: "qa", Action: "test it"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			provider := newMockProvider(&mockAgent{id: "coder", respond: func(ctx context.Context, message string, cc types.CallContext) (string, error) {
				called = true
				return "", nil
			}})
			e, _ := newTestExecutor(t, testConfig(), provider, nil)

			rec, err := e.Execute(context.Background(), &types.ExecutionPlan{
				TaskID: "task-bad",
				Steps:  tt.steps,
			}, Options{})
			require.Error(t, err)
			assert.Equal(t, types.ErrPlanBuild, types.GetErrorCode(err))
			assert.Nil(t, rec)
			assert.False(t, called, "no agent may run for a rejected plan")
		})
	}
}

func TestExecuteSequentialSuccess(t *testing.T) {
	var reviewerInputs map[int]string
	provider := newMockProvider(
		echoAgent("coder", "coder output"),
		&mockAgent{id: "reviewer", respond: func(ctx context.Context, message string, cc types.CallContext) (string, error) {
			reviewerInputs = cc.Inputs
			return "reviewer output", nil
		}},
		echoAgent("qa", "qa output"),
	)
	store := &mockStore{}
	e, _ := newTestExecutor(t, testConfig(), provider, store)

	rec, err := e.Execute(context.Background(), seqPlan(), Options{})
	require.NoError(t, err)

	assert.Equal(t, types.TaskCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, 3, rec.StepsCompleted)
	for _, res := range rec.Results {
		assert.Equal(t, types.StepDone, res.State)
	}

	// The dependent step sees its dependency's materialized output.
	require.NotNil(t, reviewerInputs)
	assert.Equal(t, "coder output", reviewerInputs[1])

	// Status transitions were persisted.
	require.NotEmpty(t, store.saves)
	first, last := store.saves[0], store.saves[len(store.saves)-1]
	assert.NotEqual(t, types.TaskCompleted, first.Status)
	assert.Equal(t, types.TaskCompleted, last.Status)
}

func TestExecuteParallelStepsRunConcurrently(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	barrier := make(chan struct{})

	slowAgent := func(id string) *mockAgent {
		return &mockAgent{id: id, respond: func(ctx context.Context, message string, cc types.CallContext) (string, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			if inFlight == 2 {
				close(barrier)
			}
			mu.Unlock()
			<-barrier
			mu.Lock()
			inFlight--
			mu.Unlock()
			return id + " done", nil
		}}
	}

	provider := newMockProvider(slowAgent("a"), slowAgent("b"))
	e, _ := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-par",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "a", Action: "x", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "b", Action: "y", EstimatedDuration: time.Minute},
		},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, rec.Status)
	assert.Equal(t, 2, peak, "independent steps must be dispatched concurrently")
}

func TestExecuteFailurePropagation(t *testing.T) {
	// Step 1 fails; step 2 depends on 1; step 3 is independent.
	provider := newMockProvider(
		failingAgent("flaky", types.ErrProvider),
		echoAgent("reviewer", "unreachable"),
		echoAgent("solo", "solo output"),
	)
	e, clock := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-fail",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "flaky", Action: "a", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "reviewer", Action: "b", Dependencies: []int{1}, EstimatedDuration: time.Minute},
			{Number: 3, Agent: "solo", Action: "c", EstimatedDuration: time.Minute},
		},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	assert.Equal(t, types.TaskFailed, rec.Status)
	assert.Equal(t, types.StepError, rec.Result(1).State)
	assert.Equal(t, 3, rec.Result(1).Attempts, "transient failure is retried")
	assert.NotEmpty(t, clock.sleeps(), "retries back off through the clock")

	// Failure propagates forward, never rolls back completed work.
	assert.Equal(t, types.StepError, rec.Result(2).State)
	assert.Contains(t, rec.Result(2).Error, "dependency step 1 failed")
	assert.Equal(t, types.StepDone, rec.Result(3).State)
	assert.Equal(t, "solo output", rec.Result(3).Output)
}

func TestExecuteTransitiveFailurePropagation(t *testing.T) {
	provider := newMockProvider(failingAgent("flaky", types.ErrTimeout))
	cfg := testConfig()
	cfg.Retry.MaxRetries = 0
	e, _ := newTestExecutor(t, cfg, provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-chain",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "flaky", Action: "a", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "flaky", Action: "b", Dependencies: []int{1}, EstimatedDuration: time.Minute},
			{Number: 3, Agent: "flaky", Action: "c", Dependencies: []int{2}, EstimatedDuration: time.Minute},
		},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	for n := 1; n <= 3; n++ {
		assert.Equal(t, types.StepError, rec.Result(n).State, "step %d", n)
	}
	// Only step 1 was actually dispatched.
	assert.Equal(t, 1, rec.Result(1).Attempts)
	assert.Zero(t, rec.Result(2).Attempts)
}

func TestExecuteFallbackSubstitution(t *testing.T) {
	provider := newMockProvider(
		failingAgent("primary", types.ErrTimeout),
		echoAgent("backup", "backup output"),
		echoAgent("steady", "steady output"),
	)
	cfg := testConfig()
	cfg.Retry.MaxRetries = 1
	cfg.Fallbacks = map[string]string{"primary": "backup"}
	e, _ := newTestExecutor(t, cfg, provider, nil)

	// Two independent parallel steps, one needing the fallback.
	p := &types.ExecutionPlan{
		TaskID: "task-fb",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "primary", Action: "a", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "steady", Action: "b", EstimatedDuration: time.Minute},
		},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	assert.Equal(t, types.TaskCompleted, rec.Status)
	res := rec.Result(1)
	assert.Equal(t, types.StepDone, res.State)
	assert.Equal(t, "backup", res.Fallback)
	assert.Equal(t, "backup output", res.Output)
	assert.Equal(t, types.StepDone, rec.Result(2).State)
}

func TestExecuteNoFallbackConfigured(t *testing.T) {
	provider := newMockProvider(failingAgent("primary", types.ErrProvider))
	cfg := testConfig()
	cfg.Retry.MaxRetries = 0
	e, _ := newTestExecutor(t, cfg, provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-nofb",
		Steps:  []types.ExecutionStep{{Number: 1, Agent: "primary", Action: "a", EstimatedDuration: time.Minute}},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, rec.Status)
	assert.Empty(t, rec.Result(1).Fallback)
}

// ============================================================
// Agent-to-agent communication
// ============================================================

func TestExecuteAgentExchange(t *testing.T) {
	provider := newMockProvider(
		echoAgent("coder", "patch ready\n@QA: check this"),
		echoAgent("QA", "looks good"),
	)
	e, _ := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-comm",
		Steps:  []types.ExecutionStep{{Number: 1, Agent: "coder", Action: "fix", EstimatedDuration: time.Minute}},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	require.Len(t, rec.Messages, 1)
	msg := rec.Messages[0]
	assert.Equal(t, "coder", msg.FromAgent)
	assert.Equal(t, "QA", msg.ToAgent)
	assert.Equal(t, "check this", msg.Message)
	require.True(t, msg.Answered())
	assert.Equal(t, "looks good", msg.Response)

	// The exchange response is visible in the requesting step's output.
	assert.Contains(t, rec.Result(1).Output, "looks good")
	assert.Equal(t, types.TaskCompleted, rec.Status)
}

func TestExecuteUnknownAgentExchange(t *testing.T) {
	provider := newMockProvider(echoAgent("coder", "done\n@Ghost: are you there"))
	e, _ := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-ghost",
		Steps:  []types.ExecutionStep{{Number: 1, Agent: "coder", Action: "fix", EstimatedDuration: time.Minute}},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	// The bad reference is recorded as a failed message and does not
	// abort the requesting step.
	require.Len(t, rec.Messages, 1)
	assert.False(t, rec.Messages[0].Answered())
	assert.Contains(t, rec.Messages[0].Error, "UNKNOWN_AGENT")
	assert.Equal(t, types.StepDone, rec.Result(1).State)
	assert.Equal(t, types.TaskCompleted, rec.Status)
}

func TestExecuteExchangeDepthBounded(t *testing.T) {
	// a → b → c → d would nest three levels deep; the default bound of
	// two fails only the deepest exchange.
	provider := newMockProvider(
		echoAgent("a", "start\n@b: first hop"),
		echoAgent("b", "relay\n@c: second hop"),
		echoAgent("c", "relay again\n@d: third hop"),
		echoAgent("d", "too deep to ever answer"),
	)
	e, _ := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-deep",
		Steps:  []types.ExecutionStep{{Number: 1, Agent: "a", Action: "go", EstimatedDuration: time.Minute}},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	require.Len(t, rec.Messages, 3)
	assert.True(t, rec.Messages[0].Answered() || rec.Messages[1].Answered())

	var deepest *types.AgentMessage
	for i := range rec.Messages {
		if rec.Messages[i].ToAgent == "d" {
			deepest = &rec.Messages[i]
		}
	}
	require.NotNil(t, deepest)
	assert.False(t, deepest.Answered())
	assert.Contains(t, deepest.Error, "RECURSION_LIMIT")

	// Only the deepest exchange fails; the step itself completes.
	assert.Equal(t, types.StepDone, rec.Result(1).State)
	assert.Equal(t, types.TaskCompleted, rec.Status)
}

// ============================================================
// Emergency mode and cancellation
// ============================================================

func TestExecuteEmergencySkipsSupportingSteps(t *testing.T) {
	provider := newMockProvider(echoAgent("coder", "fixed"))
	e, _ := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-emergency",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "coder", Action: "fix", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "reviewer", Action: "review", Dependencies: []int{1}, EstimatedDuration: time.Minute, Supporting: true},
		},
	}
	rec, err := e.Execute(context.Background(), p, Options{Emergency: true})
	require.NoError(t, err)

	assert.Equal(t, types.TaskCompleted, rec.Status)
	res := rec.Result(2)
	assert.Equal(t, types.StepDone, res.State)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Attempts)
	assert.Equal(t, 100, rec.Progress)
}

func TestExecuteCancelStopsPendingSteps(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := newMockProvider(
		&mockAgent{id: "slow", respond: func(ctx context.Context, message string, cc types.CallContext) (string, error) {
			close(started)
			<-release
			return "slow output", nil
		}},
		echoAgent("next", "never runs"),
	)
	e, _ := newTestExecutor(t, testConfig(), provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-cancel",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "slow", Action: "a", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "next", Action: "b", Dependencies: []int{1}, EstimatedDuration: time.Minute},
		},
	}

	done := make(chan *types.TaskExecutionRecord, 1)
	go func() {
		rec, _ := e.Execute(context.Background(), p, Options{})
		done <- rec
	}()

	<-started
	require.True(t, e.Cancel("task-cancel"))
	close(release)

	rec := <-done
	assert.Equal(t, types.TaskFailed, rec.Status)
	// The in-flight step finished naturally.
	assert.Equal(t, types.StepDone, rec.Result(1).State)
	assert.Equal(t, "slow output", rec.Result(1).Output)
	// The pending step never started.
	assert.Equal(t, types.StepError, rec.Result(2).State)
	assert.Zero(t, rec.Result(2).Attempts)
}

func TestCancelUnknownTask(t *testing.T) {
	e, _ := newTestExecutor(t, testConfig(), newMockProvider(), nil)
	assert.False(t, e.Cancel("nope"))
}

func TestExecutePartialResultsOnFailure(t *testing.T) {
	provider := newMockProvider(
		echoAgent("first", "first output"),
		failingAgent("second", types.ErrProvider),
	)
	cfg := testConfig()
	cfg.Retry.MaxRetries = 0
	e, _ := newTestExecutor(t, cfg, provider, nil)

	p := &types.ExecutionPlan{
		TaskID: "task-partial",
		Steps: []types.ExecutionStep{
			{Number: 1, Agent: "first", Action: "a", EstimatedDuration: time.Minute},
			{Number: 2, Agent: "second", Action: "b", Dependencies: []int{1}, EstimatedDuration: time.Minute},
		},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)

	assert.Equal(t, types.TaskFailed, rec.Status)
	// Completed work is never discarded because a later step failed.
	assert.Equal(t, "first output", rec.Result(1).Output)
}

func TestExecuteUnknownStepAgentFailsStep(t *testing.T) {
	e, _ := newTestExecutor(t, testConfig(), newMockProvider(), nil)

	p := &types.ExecutionPlan{
		TaskID: "task-unknown",
		Steps:  []types.ExecutionStep{{Number: 1, Agent: "missing", Action: "a", EstimatedDuration: time.Minute}},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, rec.Status)
	assert.Contains(t, rec.Result(1).Error, "UNKNOWN_AGENT")
	// Unknown agents are not retried.
	assert.Equal(t, 1, rec.Result(1).Attempts)
}

// recordingEvents captures executor events for assertions.
type recordingEvents struct {
	mu        sync.Mutex
	started   []int
	finished  []types.StepResult
	retried   []int
	fallbacks []string
	messages  []types.AgentMessage
	tasks     []*types.TaskExecutionRecord
}

func (r *recordingEvents) StepStarted(_ context.Context, _ string, step types.ExecutionStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, step.Number)
}

func (r *recordingEvents) StepFinished(_ context.Context, _ string, res types.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
}

func (r *recordingEvents) StepRetried(_ context.Context, _ string, step, attempt int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried = append(r.retried, step)
}

func (r *recordingEvents) StepFallback(_ context.Context, _ string, step int, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, fmt.Sprintf("%d:%s->%s", step, from, to))
}

func (r *recordingEvents) MessageExchanged(_ context.Context, msg types.AgentMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingEvents) TaskFinished(_ context.Context, rec *types.TaskExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, rec)
}

func TestExecuteEmitsEvents(t *testing.T) {
	provider := newMockProvider(
		failingAgent("primary", types.ErrTimeout),
		echoAgent("backup", "saved\n@QA: verify"),
		echoAgent("QA", "verified"),
	)
	cfg := testConfig()
	cfg.Retry.MaxRetries = 1
	cfg.Fallbacks = map[string]string{"primary": "backup"}

	events := &recordingEvents{}
	clock := newFakeClock()
	e := New(cfg, provider, nil, clock, events, nil, nil)
	defer e.Close()

	p := &types.ExecutionPlan{
		TaskID: "task-events",
		Steps:  []types.ExecutionStep{{Number: 1, Agent: "primary", Action: "a", EstimatedDuration: time.Minute}},
	}
	rec, err := e.Execute(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, rec.Status)

	assert.Equal(t, []int{1}, events.started)
	require.Len(t, events.finished, 1)
	assert.Equal(t, types.StepDone, events.finished[0].State)
	assert.NotEmpty(t, events.retried)
	assert.Equal(t, []string{"1:primary->backup"}, events.fallbacks)
	require.Len(t, events.messages, 1)
	assert.Equal(t, "verified", events.messages[0].Response)
	require.Len(t, events.tasks, 1)
	assert.Equal(t, types.TaskCompleted, events.tasks[0].Status)
}
