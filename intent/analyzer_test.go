package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh/types"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	return NewAnalyzer(DefaultAnalyzerConfig(), nil)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := newTestAnalyzer(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, _, err := a.Analyze(text)
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
	}
}

func TestAnalyzeClassification(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name    string
		text    string
		primary types.IntentCategory
	}{
		{"bug fix", "Fix the bug in the login handler, it crashes on empty passwords", types.IntentBugFixing},
		{"feature", "Implement a new feature to export reports as CSV", types.IntentCodeDevelopment},
		{"review", "Please review the pull request for the billing changes", types.IntentCodeReview},
		{"testing", "Write unit tests to raise coverage of the parser", types.IntentTesting},
		{"docs", "Update the README and API documentation", types.IntentDocumentation},
		{"security", "Run a security audit, we suspect an injection vulnerability", types.IntentSecurityAnalysis},
		{"performance", "The dashboard is slow, optimize the query latency", types.IntentPerformance},
		{"refactoring", "Refactor the storage layer to reduce technical debt", types.IntentRefactoring},
		{"deployment", "Deploy the release to staging and prepare the rollout", types.IntentDeployment},
		{"debugging", "Investigate the stack trace and find the root cause", types.IntentDebugging},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, _, err := a.Analyze(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.primary, analysis.PrimaryIntent)
			assert.Greater(t, analysis.Confidence, 0.0)
			assert.LessOrEqual(t, analysis.Confidence, 1.0)
		})
	}
}

func TestAnalyzeGeneralQueryFallback(t *testing.T) {
	a := newTestAnalyzer(t)

	analysis, _, err := a.Analyze("hello there, what can you tell me about weather")
	require.NoError(t, err)
	assert.Equal(t, types.IntentGeneralQuery, analysis.PrimaryIntent)
	assert.InDelta(t, 0.3, analysis.Confidence, 1e-9)
	assert.Empty(t, analysis.SecondaryIntents)
}

func TestAnalyzeSecondaryIntents(t *testing.T) {
	a := newTestAnalyzer(t)

	// Strong bug signal plus a meaningful testing signal.
	analysis, _, err := a.Analyze("Fix the broken bug and add unit tests with coverage for the fix")
	require.NoError(t, err)
	assert.Equal(t, types.IntentBugFixing, analysis.PrimaryIntent)
	assert.Contains(t, analysis.SecondaryIntents, types.IntentTesting)
	assert.NotContains(t, analysis.SecondaryIntents, types.IntentBugFixing)
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := newTestAnalyzer(t)
	text := "Fix the critical bug in payment processing, check api.go and retryPayment()"

	first, firstEntities, err := a.Analyze(text)
	require.NoError(t, err)
	second, secondEntities, err := a.Analyze(text)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstEntities, secondEntities)
}

func TestAnalyzeCriticalBugScenario(t *testing.T) {
	a := newTestAnalyzer(t)

	analysis, entities, err := a.Analyze(
		"Fix the critical bug in payment processing that's causing transactions to fail")
	require.NoError(t, err)

	assert.Equal(t, types.IntentBugFixing, analysis.PrimaryIntent)
	assert.Equal(t, types.UrgencyCritical, entities.Urgency)
	assert.Greater(t, analysis.Confidence, 0.5)
}

func TestAnalyzeConfidenceBounds(t *testing.T) {
	a := newTestAnalyzer(t)

	// Heavily loaded text must still clamp to 1.0.
	analysis, _, err := a.Analyze(
		"fix bug broken crash defect regression hotfix patch failing not working")
	require.NoError(t, err)
	assert.Equal(t, 1.0, analysis.Confidence)
}

func TestNewAnalyzerSanitizesConfig(t *testing.T) {
	a := NewAnalyzer(AnalyzerConfig{SecondaryThreshold: -1, NoMatchConfidence: 0, ConfidenceScale: 0}, nil)
	assert.Equal(t, 0.5, a.cfg.SecondaryThreshold)
	assert.InDelta(t, 0.3, a.cfg.NoMatchConfidence, 1e-9)
	assert.Equal(t, 6.0, a.cfg.ConfidenceScale)
}
