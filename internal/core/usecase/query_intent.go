package usecase

import (
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

const defaultBaseConfidence = 0.7

// QueryIntentAnalyzer classifies queries and builds filters and expansions from static tables.
// It performs no I/O and is deterministic for identical input and tables.
type QueryIntentAnalyzer struct {
	tables *ExpansionTables
}

func NewQueryIntentAnalyzer(tables *ExpansionTables) *QueryIntentAnalyzer {
	if tables == nil {
		tables = DefaultExpansionTables()
	}
	return &QueryIntentAnalyzer{tables: tables}
}

// Analyze does not normalize the query: without expansion terms ExpandedQuery is the input as given.
func (a *QueryIntentAnalyzer) Analyze(query string) domain.QueryAnalysisResult {
	intent := domain.IntentGeneral
	for _, candidate := range intentOrder {
		if a.matchesIntent(candidate, query) {
			intent = candidate
			break
		}
	}

	docName := a.documentReference(query)
	if intent == domain.IntentGeneral && docName != "" {
		intent = domain.IntentDocumentSpecific
	}

	confidence := a.baseConfidence(intent)
	if docName != "" && intent != domain.IntentDocumentSpecific {
		confidence += a.tables.documentBonus
	}

	filter := domain.FilterCriteria{
		ChunkTypes:       append([]string(nil), a.tables.ChunkTypesFor(intent)...),
		DocumentBaseName: docName,
	}
	if a.tables.latestVersion != nil && a.tables.latestVersion.MatchString(query) {
		filter.LatestVersion = true
	}

	return domain.QueryAnalysisResult{
		IntentType:        intent,
		DocumentReference: docName,
		FilterCriteria:    filter,
		ExpandedQuery:     a.expand(query),
		Confidence:        clamp01(confidence),
	}
}

// OptimizedSearchQuery prepends the intent prefix to the expanded query.
// The prefix is an embedding hint and is kept out of ExpandedQuery.
func (a *QueryIntentAnalyzer) OptimizedSearchQuery(analysis domain.QueryAnalysisResult) string {
	prefix := a.tables.intentPrefixes[analysis.IntentType]
	if prefix == "" {
		return analysis.ExpandedQuery
	}
	return prefix + analysis.ExpandedQuery
}

// ChunkTypesFor exposes the intent to chunk type table to the ranker.
func (a *QueryIntentAnalyzer) ChunkTypesFor(intent domain.IntentType) []string {
	return a.tables.ChunkTypesFor(intent)
}

func (a *QueryIntentAnalyzer) matchesIntent(intent domain.IntentType, query string) bool {
	for _, re := range a.tables.intentPatterns[intent] {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

func (a *QueryIntentAnalyzer) documentReference(query string) string {
	for _, m := range a.tables.documentMapping {
		if m.pattern.MatchString(query) {
			return m.value
		}
	}
	return ""
}

func (a *QueryIntentAnalyzer) baseConfidence(intent domain.IntentType) float64 {
	if v, ok := a.tables.baseConfidence[intent]; ok {
		return v
	}
	return defaultBaseConfidence
}

// expand appends at most maxExpansionTerms synonyms of detected keywords.
func (a *QueryIntentAnalyzer) expand(query string) string {
	lowered := strings.ToLower(query)
	seen := make(map[string]struct{})
	terms := make([]string, 0, a.tables.maxExpansionTerms)

	for _, set := range a.tables.synonyms {
		if len(terms) >= a.tables.maxExpansionTerms {
			break
		}
		if !set.pattern.MatchString(query) {
			continue
		}
		for _, term := range set.terms {
			if len(terms) >= a.tables.maxExpansionTerms {
				break
			}
			key := strings.ToLower(strings.TrimSpace(term))
			if key == "" || strings.Contains(lowered, key) {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			terms = append(terms, term)
		}
	}

	if len(terms) == 0 {
		return query
	}
	return strings.TrimSpace(query) + " " + strings.Join(terms, " ")
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
