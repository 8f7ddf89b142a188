package types

import (
	"context"
	"time"
)

// =============================================================================
// Collaborator interfaces
// =============================================================================
// These are the contracts the engine consumes but does not implement: the
// LLM-backed agents, the task store, and the clock. Placing them here keeps
// every engine package free to depend on them without import cycles.
// =============================================================================

// CallContext is the information an agent sees when it is asked to respond:
// the accumulated outputs of the step's dependencies plus any caller-supplied
// working context. Dependency outputs are fully materialized before a
// dependent step starts.
type CallContext struct {
	TaskID         string         `json:"task_id"`
	StepNumber     int            `json:"step_number"`
	Action         string         `json:"action"`
	WorkingContext string         `json:"working_context,omitempty"`
	Inputs         map[int]string `json:"inputs,omitempty"`
	// Exchanges holds responses gathered through agent-to-agent requests
	// made earlier in the same step.
	Exchanges []AgentMessage `json:"exchanges,omitempty"`
}

// Agent is an external LLM-backed capability. Respond must honor ctx
// cancellation and deadline; timeouts surface as a TIMEOUT coded error and
// provider failures as PROVIDER_ERROR.
type Agent interface {
	// ID returns the agent's unique identifier.
	ID() string
	// Respond runs the agent on one message and returns its text output.
	Respond(ctx context.Context, message string, cc CallContext) (string, error)
}

// AgentProvider resolves agent ids to live agents.
type AgentProvider interface {
	// Get returns the agent registered under id, or an UNKNOWN_AGENT error.
	Get(id string) (Agent, error)
}

// TaskStore persists task execution records. Each task owns its own entry,
// so implementations need no cross-task locking.
type TaskStore interface {
	// Save upserts the record under its task id.
	Save(ctx context.Context, rec *TaskExecutionRecord) error
	// Load returns the record for taskID, or a TASK_NOT_FOUND error.
	Load(ctx context.Context, taskID string) (*TaskExecutionRecord, error)
}

// Clock abstracts wall-clock access so backoff and timeout logic is
// deterministic under test.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}
