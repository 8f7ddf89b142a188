package plan

import (
	"time"

	"github.com/taskmesh/taskmesh/types"
)

// TemplateStage is one stage of a named workflow template.
type TemplateStage struct {
	Action string
}

// workflowTemplates maps named workflow types onto their fixed stage lists.
// Stages run as a sequential chain and are assigned to agents positionally;
// when fewer agents than stages are available, neighbouring stages are
// merged onto the nearest agent rather than left unassigned.
var workflowTemplates = map[types.WorkflowType][]TemplateStage{
	types.WorkflowBugFix: {
		{Action: "reproduce the reported failure"},
		{Action: "analyze the failure and isolate the root cause"},
		{Action: "implement the fix"},
		{Action: "verify the fix and guard against regressions"},
	},
	types.WorkflowSecurityAudit: {
		{Action: "survey the attack surface"},
		{Action: "probe for exploitable weaknesses"},
		{Action: "remediate the findings"},
		{Action: "re-audit the remediated areas"},
	},
	types.WorkflowFeatureDevelopment: {
		{Action: "design the change"},
		{Action: "implement the change"},
		{Action: "review the implementation"},
		{Action: "test the change end to end"},
	},
	types.WorkflowTesting: {
		{Action: "identify the coverage gaps"},
		{Action: "write the missing tests"},
		{Action: "run the suite and confirm the gaps are closed"},
	},
}

// baseDurations is the static per-role duration estimate at medium
// complexity. Unknown roles use defaultStepDuration.
var baseDurations = map[string]time.Duration{
	"architect":  20 * time.Minute,
	"coder":      15 * time.Minute,
	"debugger":   15 * time.Minute,
	"reviewer":   10 * time.Minute,
	"qa":         12 * time.Minute,
	"doc_writer": 10 * time.Minute,
	"security":   18 * time.Minute,
	"perf":       15 * time.Minute,
	"devops":     10 * time.Minute,
	"incident":   8 * time.Minute,
	"assistant":  5 * time.Minute,
}

const defaultStepDuration = 10 * time.Minute

// complexityFactor scales role durations by task complexity.
var complexityFactor = map[types.Complexity]float64{
	types.ComplexityLow:    0.5,
	types.ComplexityMedium: 1.0,
	types.ComplexityHigh:   2.0,
}

// stepDuration looks up the estimate for one agent at one complexity.
func stepDuration(agent string, complexity types.Complexity) time.Duration {
	base, ok := baseDurations[agent]
	if !ok {
		base = defaultStepDuration
	}
	factor, ok := complexityFactor[complexity]
	if !ok {
		factor = 1.0
	}
	return time.Duration(float64(base) * factor)
}
