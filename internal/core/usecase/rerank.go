package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

type RankerConfig struct {
	TitleTermBonus     float64
	MaxTitleBonus      float64
	ContentTermBonus   float64
	MaxContentBonus    float64
	TypeMatchBonus     float64
	LatestVersionBonus float64
	FallbackDelta      float64
	FallbackFloor      float64
}

func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		TitleTermBonus:     0.05,
		MaxTitleBonus:      0.15,
		ContentTermBonus:   0.02,
		MaxContentBonus:    0.1,
		TypeMatchBonus:     0.1,
		LatestVersionBonus: 0.05,
		FallbackDelta:      0.2,
		FallbackFloor:      0.4,
	}
}

// FallbackSearchFunc runs the unoptimized search with the lowered threshold.
type FallbackSearchFunc func(ctx context.Context, threshold float64) ([]domain.SearchResult, error)

type ResultRanker struct {
	cfg RankerConfig
}

func NewResultRanker(cfg RankerConfig) *ResultRanker {
	if cfg == (RankerConfig{}) {
		cfg = DefaultRankerConfig()
	}
	return &ResultRanker{cfg: cfg}
}

// Rerank adds keyword overlap, type match and version bonuses to MergedScore and re-sorts.
// The input slice is not modified.
func (r *ResultRanker) Rerank(results []domain.SearchResult, query string, analysis domain.QueryAnalysisResult) []domain.SearchResult {
	out := make([]domain.SearchResult, len(results))
	copy(out, results)
	if len(out) == 0 {
		return out
	}

	terms := queryTerms(query)
	wanted := make(map[string]struct{}, len(analysis.FilterCriteria.ChunkTypes))
	for _, chunkType := range analysis.FilterCriteria.ChunkTypes {
		wanted[chunkType] = struct{}{}
	}

	for i := range out {
		payload := out[i].Payload
		bonus := termBonus(terms, payload.Title, r.cfg.TitleTermBonus, r.cfg.MaxTitleBonus)
		bonus += termBonus(terms, payload.Content, r.cfg.ContentTermBonus, r.cfg.MaxContentBonus)
		if _, ok := wanted[payload.ChunkType]; ok {
			bonus += r.cfg.TypeMatchBonus
		}
		out[i].MergedScore += bonus
	}

	if analysis.FilterCriteria.LatestVersion {
		r.boostLatest(out)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MergedScore > out[j].MergedScore
	})
	return out
}

func (r *ResultRanker) boostLatest(results []domain.SearchResult) {
	var newest time.Time
	dates := make([]time.Time, len(results))
	for i, result := range results {
		parsed, ok := parseDocumentDate(result.Payload.Date)
		if !ok {
			continue
		}
		dates[i] = parsed
		if parsed.After(newest) {
			newest = parsed
		}
	}
	if newest.IsZero() {
		return
	}
	for i := range results {
		if dates[i].Equal(newest) {
			results[i].MergedScore += r.cfg.LatestVersionBonus
		}
	}
}

// FallbackThreshold lowers the threshold by the configured delta without going below the floor.
// A threshold already under the floor is kept.
func (r *ResultRanker) FallbackThreshold(threshold float64) float64 {
	return minFloat(threshold, maxFloat(threshold-r.cfg.FallbackDelta, r.cfg.FallbackFloor))
}

// SearchWithFallback retries exactly once when optimized retrieval came back empty.
// The returned flag is true whenever the fallback ran, even if it failed.
func (r *ResultRanker) SearchWithFallback(
	ctx context.Context,
	primary []domain.SearchResult,
	opts domain.SearchOptions,
	search FallbackSearchFunc,
) ([]domain.SearchResult, bool) {
	if len(primary) > 0 || !(opts.UseHyDE || opts.UseFilters) || search == nil {
		return primary, false
	}

	threshold := r.FallbackThreshold(opts.ScoreThreshold)
	slog.Info("search_fallback",
		"threshold", opts.ScoreThreshold,
		"fallback_threshold", threshold,
		"hyde", opts.UseHyDE,
		"filters", opts.UseFilters,
	)
	results, err := search(ctx, threshold)
	if err != nil {
		slog.Warn("search_fallback_failed", "error", err)
		return []domain.SearchResult{}, true
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return results, true
}

func termBonus(terms []string, text string, perTerm, max float64) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	lowered := strings.ToLower(text)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return minFloat(float64(hits)*perTerm, max)
}

var germanStopwords = map[string]struct{}{
	"der": {}, "die": {}, "das": {}, "den": {}, "dem": {}, "des": {}, "ein": {}, "eine": {}, "einer": {},
	"eines": {}, "und": {}, "oder": {}, "für": {}, "fuer": {}, "mit": {}, "von": {}, "bei": {}, "ist": {},
	"sind": {}, "was": {}, "wie": {}, "wer": {}, "wann": {}, "welche": {}, "welcher": {}, "im": {}, "in": {},
	"zu": {}, "zum": {}, "zur": {}, "auf": {}, "an": {}, "nach": {}, "aus": {}, "nicht": {}, "the": {},
}

// queryTerms returns lower-cased unique tokens of at least three runes, minus stopwords.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) < 3 {
			continue
		}
		if _, ok := germanStopwords[field]; ok {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

var documentDateLayouts = []string{"2006-01-02", time.RFC3339, "02.01.2006", "2006-01", "2006"}

func parseDocumentDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range documentDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
