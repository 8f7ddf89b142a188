package types

import "time"

// TaskStatus tracks the lifecycle of a running task.
// pending → in_progress → completed | failed; terminal states never change.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// StepState tracks the lifecycle of a single step.
// waiting → running → done | error.
type StepState string

const (
	StepWaiting StepState = "waiting"
	StepRunning StepState = "running"
	StepDone    StepState = "done"
	StepError   StepState = "error"
)

// AgentMessage records one agent-to-agent exchange during a task. It is
// created when an agent emits a request during its turn, mutated exactly
// once to attach the response, and never deleted during the task's
// lifetime.
type AgentMessage struct {
	MessageID  string     `json:"message_id"`
	TaskID     string     `json:"task_id"`
	FromAgent  string     `json:"from_agent"`
	ToAgent    string     `json:"to_agent"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Response   string     `json:"response,omitempty"`
	ResponseAt *time.Time `json:"response_timestamp,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Answered reports whether the target agent produced a response.
func (m AgentMessage) Answered() bool {
	return m.ResponseAt != nil
}

// StepResult is the per-step outcome kept on the execution record.
type StepResult struct {
	Number     int        `json:"step_number"`
	Agent      string     `json:"agent"`
	State      StepState  `json:"state"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	Fallback   string     `json:"fallback_agent,omitempty"`
	Skipped    bool       `json:"skipped,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the wall-clock time the step spent running, or zero.
func (r StepResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// TaskExecutionRecord is the mutable root aggregate for a running task.
// It is owned exclusively by the executor for the duration of the task and
// handed to observers as read-only snapshots (see Clone).
type TaskExecutionRecord struct {
	TaskID         string         `json:"task_id"`
	Status         TaskStatus     `json:"status"`
	Progress       int            `json:"progress"`
	StepsCompleted int            `json:"steps_completed"`
	StepsTotal     int            `json:"steps_total"`
	Plan           *ExecutionPlan `json:"plan,omitempty"`
	Results        []StepResult   `json:"results"`
	Messages       []AgentMessage `json:"messages,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// Result returns the result entry for a step number, or nil.
func (r *TaskExecutionRecord) Result(number int) *StepResult {
	for i := range r.Results {
		if r.Results[i].Number == number {
			return &r.Results[i]
		}
	}
	return nil
}

// Clone produces a deep copy safe to hand to observers while the executor
// keeps mutating the original.
func (r *TaskExecutionRecord) Clone() *TaskExecutionRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Results = make([]StepResult, len(r.Results))
	copy(out.Results, r.Results)
	out.Messages = make([]AgentMessage, len(r.Messages))
	copy(out.Messages, r.Messages)
	if r.Plan != nil {
		plan := *r.Plan
		plan.Steps = make([]ExecutionStep, len(r.Plan.Steps))
		copy(plan.Steps, r.Plan.Steps)
		out.Plan = &plan
	}
	return &out
}
