package routing

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/types"
)

// PlannerConfig holds the tunable routing constants.
type PlannerConfig struct {
	// FallbackPenalty discounts the analyzer's confidence when the mapping
	// table required a fallback to the generic route.
	FallbackPenalty float64 `yaml:"fallback_penalty" json:"fallback_penalty"`

	// IncidentAgent is added to critical-urgency tasks. Empty disables the
	// incident override.
	IncidentAgent string `yaml:"incident_agent" json:"incident_agent"`
}

// DefaultPlannerConfig returns the default routing constants.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		FallbackPenalty: 0.9,
		IncidentAgent:   "incident",
	}
}

// Planner maps intent analyses onto routing decisions using a static
// mapping table. Safe for concurrent use.
type Planner struct {
	cfg    PlannerConfig
	routes map[types.IntentCategory]Route
	logger *zap.Logger
}

// NewPlanner creates a planner over the given routes. Passing nil routes
// uses DefaultRoutes.
func NewPlanner(cfg PlannerConfig, routes []Route, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FallbackPenalty <= 0 || cfg.FallbackPenalty > 1 {
		cfg.FallbackPenalty = 0.9
	}
	if routes == nil {
		routes = DefaultRoutes
	}
	table := make(map[types.IntentCategory]Route, len(routes))
	for _, r := range routes {
		table[r.Intent] = r
	}
	return &Planner{
		cfg:    cfg,
		routes: table,
		logger: logger.With(zap.String("component", "routing_planner")),
	}
}

// Route maps an analysis and its entities onto a routing decision.
//
// Critical urgency adds the configured incident agent and forces the
// bug-fix workflow regardless of the general mapping.
func (p *Planner) Route(analysis types.IntentAnalysis, entities types.ExtractedEntities) types.RoutingDecision {
	route, confidence, reasons := p.lookup(analysis)

	primary := append([]string{}, route.Primary...)
	supporting := append([]string{}, route.Supporting...)

	// Composite tasks pull in the lead agent of each secondary intent.
	for _, sec := range analysis.SecondaryIntents {
		secRoute, ok := p.routes[sec]
		if !ok || len(secRoute.Primary) == 0 {
			continue
		}
		lead := secRoute.Primary[0]
		if !contains(primary, lead) && !contains(supporting, lead) {
			supporting = append(supporting, lead)
			reasons = append(reasons, fmt.Sprintf("added %s for secondary intent %s", lead, sec))
		}
	}

	workflow := p.selectWorkflow(route, len(primary)+len(supporting), entities)

	if entities.Urgency == types.UrgencyCritical {
		if p.cfg.IncidentAgent != "" && !contains(primary, p.cfg.IncidentAgent) && !contains(supporting, p.cfg.IncidentAgent) {
			supporting = append(supporting, p.cfg.IncidentAgent)
			reasons = append(reasons, "critical urgency adds the incident agent")
		}
		workflow = types.WorkflowBugFix
		reasons = append(reasons, "critical urgency forces the bug-fix workflow")
	}

	decision := types.RoutingDecision{
		PrimaryAgents:    primary,
		SupportingAgents: supporting,
		WorkflowType:     workflow,
		Confidence:       confidence,
		Reasoning:        strings.Join(reasons, "; "),
	}

	p.logger.Debug("routing decided",
		zap.String("intent", string(analysis.PrimaryIntent)),
		zap.Strings("primary_agents", decision.PrimaryAgents),
		zap.String("workflow", string(decision.WorkflowType)),
		zap.Float64("confidence", decision.Confidence),
	)
	return decision
}

// Structure derives the one-shot task summary from an analysis.
func (p *Planner) Structure(analysis types.IntentAnalysis, entities types.ExtractedEntities) types.StructuredTask {
	decision := p.Route(analysis, entities)
	complexity := estimateComplexity(analysis, entities, decision)

	return types.StructuredTask{
		TaskType:          analysis.PrimaryIntent,
		RecommendedAgents: decision.Agents(),
		Priority:          priorityByUrgency[entities.Urgency],
		Complexity:        complexity,
		EstimatedEffort:   effortByComplexity[complexity],
	}
}

// lookup resolves the route for the primary intent, falling back to the
// generic route with a confidence penalty when the table has no entry.
func (p *Planner) lookup(analysis types.IntentAnalysis) (Route, float64, []string) {
	if route, ok := p.routes[analysis.PrimaryIntent]; ok {
		reasons := []string{fmt.Sprintf("intent %s: %s", analysis.PrimaryIntent, route.Justification)}
		return route, analysis.Confidence, reasons
	}

	generic := p.routes[types.IntentGeneralQuery]
	reasons := []string{fmt.Sprintf("no route for intent %s, falling back to %s",
		analysis.PrimaryIntent, types.IntentGeneralQuery)}
	return generic, analysis.Confidence * p.cfg.FallbackPenalty, reasons
}

// selectWorkflow picks the topology: a named template when the route has
// one, otherwise sequential when later steps need earlier outputs and
// parallel when agents can work from the same input independently.
func (p *Planner) selectWorkflow(route Route, agentCount int, entities types.ExtractedEntities) types.WorkflowType {
	if route.Workflow != "" {
		return route.Workflow
	}
	if agentCount >= 2 && !entities.HasCodeReferences() {
		return types.WorkflowParallel
	}
	return types.WorkflowSequential
}

// estimateComplexity is a coarse heuristic over agent fan-out, secondary
// intents, and how many concrete artifacts the text referenced.
func estimateComplexity(analysis types.IntentAnalysis, entities types.ExtractedEntities, decision types.RoutingDecision) types.Complexity {
	score := len(decision.Agents()) + 2*len(analysis.SecondaryIntents)
	score += len(entities.FilePaths) + len(entities.Functions) + len(entities.Classes) + len(entities.Modules)

	switch {
	case score <= 2:
		return types.ComplexityLow
	case score <= 5:
		return types.ComplexityMedium
	default:
		return types.ComplexityHigh
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
