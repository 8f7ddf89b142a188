package types

import "time"

// IntentCategory classifies the primary purpose of a task description.
type IntentCategory string

const (
	IntentCodeDevelopment  IntentCategory = "code_development"
	IntentBugFixing        IntentCategory = "bug_fixing"
	IntentCodeReview       IntentCategory = "code_review"
	IntentTesting          IntentCategory = "testing"
	IntentDocumentation    IntentCategory = "documentation"
	IntentArchitecture     IntentCategory = "architecture"
	IntentSecurityAnalysis IntentCategory = "security_analysis"
	IntentPerformance      IntentCategory = "performance"
	IntentRefactoring      IntentCategory = "refactoring"
	IntentDeployment       IntentCategory = "deployment"
	IntentDebugging        IntentCategory = "debugging"
	IntentGeneralQuery     IntentCategory = "general_query"
)

// AllIntents lists every intent category in a stable order.
var AllIntents = []IntentCategory{
	IntentCodeDevelopment,
	IntentBugFixing,
	IntentCodeReview,
	IntentTesting,
	IntentDocumentation,
	IntentArchitecture,
	IntentSecurityAnalysis,
	IntentPerformance,
	IntentRefactoring,
	IntentDeployment,
	IntentDebugging,
	IntentGeneralQuery,
}

// Urgency indicates how quickly a task needs attention.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Complexity is a coarse estimate of how much work a task involves.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// IntentAnalysis is the classification result for one task description.
// Immutable once produced.
type IntentAnalysis struct {
	PrimaryIntent    IntentCategory   `json:"primary_intent"`
	SecondaryIntents []IntentCategory `json:"secondary_intents,omitempty"`
	Confidence       float64          `json:"confidence"`
}

// ExtractedEntities holds the structured facts detected in task text,
// independent of intent scoring. Immutable once produced.
type ExtractedEntities struct {
	FilePaths    []string `json:"file_paths,omitempty"`
	Functions    []string `json:"functions,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	Modules      []string `json:"modules,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Urgency      Urgency  `json:"urgency"`
}

// HasCodeReferences reports whether the text named concrete code artifacts
// that later steps could need as input.
func (e ExtractedEntities) HasCodeReferences() bool {
	return len(e.FilePaths) > 0 || len(e.Functions) > 0 || len(e.Classes) > 0
}

// StructuredTask is the derived summary of an analysis, created once per
// analysis and never mutated.
type StructuredTask struct {
	TaskType          IntentCategory `json:"task_type"`
	RecommendedAgents []string       `json:"recommended_agents"`
	Priority          Priority       `json:"priority"`
	Complexity        Complexity     `json:"complexity"`
	EstimatedEffort   time.Duration  `json:"estimated_effort"`
}

// Priority orders competing tasks.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)
