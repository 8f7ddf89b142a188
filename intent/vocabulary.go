package intent

import "github.com/taskmesh/taskmesh/types"

// keyword is one weighted vocabulary entry. Multi-word phrases are matched
// as substrings of the lowercased text; single words are matched against
// word tokens.
type keyword struct {
	text   string
	weight float64
}

// intentVocabulary maps each category to its weighted keyword set. New
// categories are additions to this table, not logic changes.
var intentVocabulary = map[types.IntentCategory][]keyword{
	types.IntentCodeDevelopment: {
		{"implement", 2.0}, {"build", 1.5}, {"create", 1.5}, {"develop", 2.0},
		{"add feature", 2.5}, {"new feature", 2.5}, {"write code", 2.0},
		{"feature", 1.0}, {"endpoint", 1.5}, {"api", 1.0},
	},
	types.IntentBugFixing: {
		{"fix", 2.5}, {"bug", 3.0}, {"broken", 2.5}, {"crash", 2.5},
		{"defect", 2.5}, {"not working", 2.5}, {"fails", 2.0}, {"failing", 2.0},
		{"regression", 2.5}, {"hotfix", 3.0}, {"patch", 1.5},
	},
	types.IntentCodeReview: {
		{"review", 3.0}, {"code review", 3.0}, {"pull request", 2.5},
		{"feedback", 1.5}, {"approve", 1.5}, {"lgtm", 2.0}, {"diff", 1.5},
	},
	types.IntentTesting: {
		{"test", 2.5}, {"tests", 2.5}, {"unit test", 3.0}, {"coverage", 2.5},
		{"integration test", 3.0}, {"test case", 2.5}, {"e2e", 2.0},
		{"regression suite", 2.5}, {"assert", 1.5},
	},
	types.IntentDocumentation: {
		{"document", 2.5}, {"documentation", 3.0}, {"readme", 2.5},
		{"docs", 2.5}, {"comment", 1.0}, {"changelog", 2.0}, {"tutorial", 2.0},
		{"guide", 1.5},
	},
	types.IntentArchitecture: {
		{"architecture", 3.0}, {"design", 2.0}, {"structure", 1.5},
		{"scalability", 2.0}, {"microservice", 2.0}, {"system design", 3.0},
		{"redesign", 2.0}, {"schema design", 2.0},
	},
	types.IntentSecurityAnalysis: {
		{"security", 3.0}, {"vulnerability", 3.0}, {"exploit", 2.5},
		{"cve", 2.5}, {"injection", 2.5}, {"xss", 2.5}, {"audit", 2.0},
		{"authentication bypass", 3.0}, {"penetration", 2.5}, {"owasp", 2.5},
	},
	types.IntentPerformance: {
		{"performance", 3.0}, {"slow", 2.5}, {"latency", 2.5},
		{"optimize", 2.5}, {"throughput", 2.5}, {"memory leak", 3.0},
		{"cpu", 1.5}, {"bottleneck", 2.5}, {"profil", 2.0},
	},
	types.IntentRefactoring: {
		{"refactor", 3.0}, {"cleanup", 2.0}, {"clean up", 2.0},
		{"technical debt", 2.5}, {"simplify", 2.0}, {"restructure", 2.0},
		{"rename", 1.5}, {"extract", 1.5}, {"dedupe", 2.0},
	},
	types.IntentDeployment: {
		{"deploy", 3.0}, {"deployment", 3.0}, {"release", 2.5},
		{"rollout", 2.5}, {"rollback", 2.5}, {"ci/cd", 2.5}, {"pipeline", 2.0},
		{"ship", 1.5}, {"helm", 2.0},
	},
	types.IntentDebugging: {
		{"debug", 3.0}, {"investigate", 2.0}, {"stack trace", 2.5},
		{"stacktrace", 2.5}, {"root cause", 2.5}, {"reproduce", 2.0},
		{"diagnose", 2.5}, {"why is", 1.5}, {"logs show", 2.0},
	},
	// general_query has no keywords on purpose: it is the fallback when
	// nothing else matches.
	types.IntentGeneralQuery: {},
}

// urgencyVocabulary maps urgency levels to trigger phrases. The order of
// detection is critical > high > low; absence of any trigger means medium.
var urgencyVocabulary = map[types.Urgency][]string{
	types.UrgencyCritical: {
		"urgent", "critical", "asap", "immediately", "emergency",
		"production down", "outage", "right now", "sev1", "p0",
	},
	types.UrgencyHigh: {
		"important", "high priority", "soon", "blocker", "blocking", "today",
	},
	types.UrgencyLow: {
		"low priority", "whenever", "eventually", "minor", "someday",
		"nice to have", "no rush",
	},
}

// defaultTechnologies is the built-in technology vocabulary. Callers can
// extend it through AnalyzerConfig.ExtraTechnologies.
var defaultTechnologies = []string{
	"go", "golang", "python", "javascript", "typescript", "java", "rust",
	"react", "vue", "node", "docker", "kubernetes", "k8s", "terraform",
	"postgres", "postgresql", "mysql", "sqlite", "redis", "mongodb",
	"kafka", "rabbitmq", "nats", "grpc", "graphql", "rest", "aws", "gcp",
	"azure", "nginx", "linux", "git", "elasticsearch", "prometheus",
}
