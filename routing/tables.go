package routing

import (
	"time"

	"github.com/taskmesh/taskmesh/types"
)

// Route is one row of the intent-to-agent mapping table.
type Route struct {
	Intent        types.IntentCategory
	Primary       []string
	Supporting    []string
	Workflow      types.WorkflowType // empty means choose a generic topology
	Justification string
}

// DefaultRoutes is the built-in mapping table. The agent ids are roles; the
// surrounding application decides which concrete agent backs each role.
var DefaultRoutes = []Route{
	{
		Intent:        types.IntentCodeDevelopment,
		Primary:       []string{"coder"},
		Supporting:    []string{"reviewer", "qa"},
		Workflow:      types.WorkflowFeatureDevelopment,
		Justification: "new code is written by the coder, then reviewed and verified",
	},
	{
		Intent:        types.IntentBugFixing,
		Primary:       []string{"debugger", "coder"},
		Supporting:    []string{"qa"},
		Workflow:      types.WorkflowBugFix,
		Justification: "bugs are reproduced and diagnosed before the fix is written and verified",
	},
	{
		Intent:        types.IntentCodeReview,
		Primary:       []string{"reviewer"},
		Supporting:    []string{"security"},
		Justification: "reviews are led by the reviewer with a security pass on request",
	},
	{
		Intent:        types.IntentTesting,
		Primary:       []string{"qa"},
		Supporting:    []string{"coder"},
		Workflow:      types.WorkflowTesting,
		Justification: "test work is owned by qa with the coder backing fixture changes",
	},
	{
		Intent:        types.IntentDocumentation,
		Primary:       []string{"doc_writer"},
		Supporting:    []string{"reviewer"},
		Justification: "documentation is drafted by the writer and fact-checked by review",
	},
	{
		Intent:        types.IntentArchitecture,
		Primary:       []string{"architect"},
		Supporting:    []string{"coder", "reviewer"},
		Justification: "design questions go to the architect with implementation input",
	},
	{
		Intent:        types.IntentSecurityAnalysis,
		Primary:       []string{"security"},
		Supporting:    []string{"reviewer"},
		Workflow:      types.WorkflowSecurityAudit,
		Justification: "security findings need an independent review pass",
	},
	{
		Intent:        types.IntentPerformance,
		Primary:       []string{"perf"},
		Supporting:    []string{"coder"},
		Justification: "profiling is owned by perf, remediation by the coder",
	},
	{
		Intent:        types.IntentRefactoring,
		Primary:       []string{"coder"},
		Supporting:    []string{"reviewer", "qa"},
		Justification: "refactors are behavior-preserving, so review and tests gate them",
	},
	{
		Intent:        types.IntentDeployment,
		Primary:       []string{"devops"},
		Supporting:    []string{"qa"},
		Justification: "rollouts are executed by devops with verification by qa",
	},
	{
		Intent:        types.IntentDebugging,
		Primary:       []string{"debugger"},
		Supporting:    []string{"coder"},
		Justification: "diagnosis is owned by the debugger with the coder on standby",
	},
	{
		Intent:        types.IntentGeneralQuery,
		Primary:       []string{"assistant"},
		Justification: "general questions go to the generalist assistant",
	},
}

// effortByComplexity is the static effort estimate used for structured
// task summaries.
var effortByComplexity = map[types.Complexity]time.Duration{
	types.ComplexityLow:    30 * time.Minute,
	types.ComplexityMedium: 2 * time.Hour,
	types.ComplexityHigh:   8 * time.Hour,
}

// priorityByUrgency maps detected urgency onto task priority.
var priorityByUrgency = map[types.Urgency]types.Priority{
	types.UrgencyCritical: types.PriorityCritical,
	types.UrgencyHigh:     types.PriorityHigh,
	types.UrgencyMedium:   types.PriorityMedium,
	types.UrgencyLow:      types.PriorityLow,
}
