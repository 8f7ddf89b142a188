package intent

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/types"
)

// AnalyzerConfig holds the tunable classification constants.
type AnalyzerConfig struct {
	// SecondaryThreshold is the fraction of the top score a category must
	// reach to be reported as a secondary intent.
	SecondaryThreshold float64 `yaml:"secondary_threshold" json:"secondary_threshold"`

	// NoMatchConfidence is the confidence reported when no keyword matches
	// any category. Deliberately low but never zero, so downstream routing
	// always has a value to act on.
	NoMatchConfidence float64 `yaml:"no_match_confidence" json:"no_match_confidence"`

	// ConfidenceScale is the aggregate score that maps to confidence 1.0.
	ConfidenceScale float64 `yaml:"confidence_scale" json:"confidence_scale"`

	// ExtraTechnologies extends the built-in technology vocabulary.
	ExtraTechnologies []string `yaml:"extra_technologies" json:"extra_technologies"`
}

// DefaultAnalyzerConfig returns the default classification constants.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		SecondaryThreshold: 0.5,
		NoMatchConfidence:  0.3,
		ConfidenceScale:    6.0,
	}
}

// Analyzer turns task text into a typed intent plus extracted entities.
// It is safe for concurrent use; Analyze is a pure function of the input
// text and the static vocabularies.
type Analyzer struct {
	cfg          AnalyzerConfig
	technologies []string
	logger       *zap.Logger
}

// NewAnalyzer creates an analyzer with the given configuration.
func NewAnalyzer(cfg AnalyzerConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SecondaryThreshold <= 0 || cfg.SecondaryThreshold > 1 {
		cfg.SecondaryThreshold = 0.5
	}
	if cfg.NoMatchConfidence <= 0 {
		cfg.NoMatchConfidence = 0.3
	}
	if cfg.ConfidenceScale <= 0 {
		cfg.ConfidenceScale = 6.0
	}

	techs := append([]string{}, defaultTechnologies...)
	for _, t := range cfg.ExtraTechnologies {
		techs = append(techs, strings.ToLower(t))
	}

	return &Analyzer{
		cfg:          cfg,
		technologies: dedupe(techs),
		logger:       logger.With(zap.String("component", "intent_analyzer")),
	}
}

// Analyze classifies the task text and extracts entities.
//
// Empty or whitespace-only input fails with an INVALID_INPUT error. For any
// other input Analyze never fails: when no keyword matches, it falls back to
// general_query with the configured low confidence.
func (a *Analyzer) Analyze(taskText string) (types.IntentAnalysis, types.ExtractedEntities, error) {
	if strings.TrimSpace(taskText) == "" {
		return types.IntentAnalysis{}, types.ExtractedEntities{},
			types.NewError(types.ErrInvalidInput, "task text is empty")
	}

	analysis := a.classify(taskText)
	entities := a.extractEntities(taskText)

	a.logger.Debug("analyzed task text",
		zap.String("primary_intent", string(analysis.PrimaryIntent)),
		zap.Float64("confidence", analysis.Confidence),
		zap.String("urgency", string(entities.Urgency)),
	)

	return analysis, entities, nil
}

// classify scores the text against every category's keyword set.
func (a *Analyzer) classify(taskText string) types.IntentAnalysis {
	lower := strings.ToLower(taskText)
	tokens := tokenSet(lower)

	scores := make(map[types.IntentCategory]float64, len(intentVocabulary))
	for category, keywords := range intentVocabulary {
		var score float64
		for _, kw := range keywords {
			if matchKeyword(lower, tokens, kw.text) {
				score += kw.weight
			}
		}
		if score > 0 {
			scores[category] = score
		}
	}

	if len(scores) == 0 {
		return types.IntentAnalysis{
			PrimaryIntent: types.IntentGeneralQuery,
			Confidence:    a.cfg.NoMatchConfidence,
		}
	}

	primary, top := topCategory(scores)

	var secondary []types.IntentCategory
	for _, category := range types.AllIntents {
		if category == primary {
			continue
		}
		if scores[category] >= top*a.cfg.SecondaryThreshold {
			secondary = append(secondary, category)
		}
	}

	return types.IntentAnalysis{
		PrimaryIntent:    primary,
		SecondaryIntents: secondary,
		Confidence:       clamp01(top / a.cfg.ConfidenceScale),
	}
}

// matchKeyword matches phrases as substrings and single words as tokens, so
// short keywords like "api" do not fire inside unrelated words.
func matchKeyword(lower string, tokens map[string]bool, kw string) bool {
	if strings.ContainsAny(kw, " /") {
		return strings.Contains(lower, kw)
	}
	if tokens[kw] {
		return true
	}
	// Allow stem-style entries such as "profil" to cover profile/profiling.
	if len(kw) >= 6 {
		for tok := range tokens {
			if strings.HasPrefix(tok, kw) {
				return true
			}
		}
	}
	return false
}

// topCategory picks the highest-scoring category, breaking ties by the
// stable AllIntents order so classification stays deterministic.
func topCategory(scores map[types.IntentCategory]float64) (types.IntentCategory, float64) {
	ordered := make([]types.IntentCategory, 0, len(scores))
	for category := range scores {
		ordered = append(ordered, category)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if scores[ordered[i]] != scores[ordered[j]] {
			return scores[ordered[i]] > scores[ordered[j]]
		}
		return intentRank(ordered[i]) < intentRank(ordered[j])
	})
	best := ordered[0]
	return best, scores[best]
}

func intentRank(c types.IntentCategory) int {
	for i, cat := range types.AllIntents {
		if cat == c {
			return i
		}
	}
	return len(types.AllIntents)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
