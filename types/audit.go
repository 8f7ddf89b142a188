package types

import (
	"context"
	"time"
)

// AuditLevel controls how much detail the recorder captures. Changing the
// level affects subsequently recorded events only.
type AuditLevel string

const (
	AuditMinimal  AuditLevel = "minimal"
	AuditStandard AuditLevel = "standard"
	AuditDetailed AuditLevel = "detailed"
	AuditDebug    AuditLevel = "debug"
)

// rank orders levels from least to most verbose.
func (l AuditLevel) rank() int {
	switch l {
	case AuditMinimal:
		return 0
	case AuditStandard:
		return 1
	case AuditDetailed:
		return 2
	case AuditDebug:
		return 3
	}
	return 1
}

// Includes reports whether records tagged with min are captured at level l.
func (l AuditLevel) Includes(min AuditLevel) bool {
	return l.rank() >= min.rank()
}

// Valid reports whether l is one of the four defined levels.
func (l AuditLevel) Valid() bool {
	switch l {
	case AuditMinimal, AuditStandard, AuditDetailed, AuditDebug:
		return true
	}
	return false
}

// AuditKind identifies the decision point an audit record captures.
type AuditKind string

const (
	AuditIntentClassified AuditKind = "intent_classified"
	AuditRoutingDecided   AuditKind = "routing_decided"
	AuditPlanBuilt        AuditKind = "plan_built"
	AuditStepStarted      AuditKind = "step_started"
	AuditStepFinished     AuditKind = "step_finished"
	AuditStepRetried      AuditKind = "step_retried"
	AuditStepFallback     AuditKind = "step_fallback"
	AuditMessageExchanged AuditKind = "message_exchanged"
	AuditTaskFinished     AuditKind = "task_finished"
)

// AuditRecord is one append-only entry in the explainability trail. Records
// are never mutated or deleted.
type AuditRecord struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Intent    IntentCategory `json:"intent,omitempty"`
	Kind      AuditKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`

	// Step is the 1-based step number for step-scoped records, zero
	// otherwise. Summary is for humans and never parsed.
	Step int `json:"step,omitempty"`

	// Detail carries reasoning strings and context payloads. Populated only
	// at detailed and debug levels.
	Detail map[string]any `json:"detail,omitempty"`

	// Success is meaningful for step_finished and task_finished records.
	Success bool `json:"success"`
	// Duration is meaningful for step_finished and task_finished records.
	Duration time.Duration `json:"duration,omitempty"`
}

// AuditQuery filters stored audit records. Zero-value fields match
// everything.
type AuditQuery struct {
	TaskID  string
	AgentID string
	Kind    AuditKind
	Since   time.Time
	Until   time.Time
}

// Matches reports whether rec satisfies the query.
func (q AuditQuery) Matches(rec AuditRecord) bool {
	if q.TaskID != "" && rec.TaskID != q.TaskID {
		return false
	}
	if q.AgentID != "" && rec.AgentID != q.AgentID {
		return false
	}
	if q.Kind != "" && rec.Kind != q.Kind {
		return false
	}
	if !q.Since.IsZero() && rec.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && rec.Timestamp.After(q.Until) {
		return false
	}
	return true
}

// AuditStore persists audit records. Implementations must preserve append
// order per task.
type AuditStore interface {
	Append(ctx context.Context, rec AuditRecord) error
	Query(ctx context.Context, q AuditQuery) ([]AuditRecord, error)
}
