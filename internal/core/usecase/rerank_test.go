package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

func TestRerankTypeMatchLiftsTableAboveParagraph(t *testing.T) {
	analysis := NewQueryIntentAnalyzer(nil).Analyze("Liste der Fristen für GPKE")
	results := []domain.SearchResult{
		{ID: "paragraph", Score: 0.70, MergedScore: 0.70, Payload: domain.DocumentPayload{Title: "Kapitel 3", ChunkType: domain.ChunkTypeParagraph}},
		{ID: "table", Score: 0.65, MergedScore: 0.65, Payload: domain.DocumentPayload{Title: "Tabelle 7", ChunkType: domain.ChunkTypeStructuredTable}},
	}

	ranked := NewResultRanker(DefaultRankerConfig()).Rerank(results, "Liste der Fristen für GPKE", analysis)
	if ranked[0].ID != "table" {
		t.Fatalf("expected table first, got %s", ranked[0].ID)
	}
	if math.Abs(ranked[0].MergedScore-0.75) > 1e-9 {
		t.Fatalf("expected 0.65 + 0.1 type bonus, got %v", ranked[0].MergedScore)
	}
	if results[0].MergedScore != 0.70 {
		t.Fatalf("input must not be modified")
	}
}

func TestRerankTitleBonusOutweighsContentBonus(t *testing.T) {
	results := []domain.SearchResult{
		{ID: "content", MergedScore: 0.5, Payload: domain.DocumentPayload{Title: "Anhang", Content: "Fristen im Lieferantenwechsel"}},
		{ID: "title", MergedScore: 0.5, Payload: domain.DocumentPayload{Title: "Fristen im Lieferantenwechsel", Content: "Anhang"}},
	}
	ranked := NewResultRanker(DefaultRankerConfig()).Rerank(results, "Fristen Lieferantenwechsel", domain.QueryAnalysisResult{})
	if ranked[0].ID != "title" {
		t.Fatalf("expected title hit first, got %s", ranked[0].ID)
	}
	if math.Abs(ranked[0].MergedScore-0.6) > 1e-9 {
		t.Fatalf("expected two title terms worth 0.1, got %v", ranked[0].MergedScore)
	}
	if math.Abs(ranked[1].MergedScore-0.54) > 1e-9 {
		t.Fatalf("expected two content terms worth 0.04, got %v", ranked[1].MergedScore)
	}
}

func TestRerankCapsKeywordBonuses(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	results := []domain.SearchResult{{ID: "a", Payload: domain.DocumentPayload{Title: text, Content: text}}}
	ranked := NewResultRanker(DefaultRankerConfig()).Rerank(results, text, domain.QueryAnalysisResult{})
	if math.Abs(ranked[0].MergedScore-0.25) > 1e-9 {
		t.Fatalf("expected capped bonus 0.15 + 0.1, got %v", ranked[0].MergedScore)
	}
}

func TestRerankLatestVersionBoostsNewestDate(t *testing.T) {
	results := []domain.SearchResult{
		{ID: "old", MergedScore: 0.5, Payload: domain.DocumentPayload{Date: "2021-04-01"}},
		{ID: "new", MergedScore: 0.5, Payload: domain.DocumentPayload{Date: "2024-10-01"}},
		{ID: "undated", MergedScore: 0.5},
	}
	analysis := domain.QueryAnalysisResult{FilterCriteria: domain.FilterCriteria{LatestVersion: true}}
	ranked := NewResultRanker(DefaultRankerConfig()).Rerank(results, "", analysis)
	if ranked[0].ID != "new" {
		t.Fatalf("expected newest document first, got %s", ranked[0].ID)
	}
	if ranked[1].ID != "old" || ranked[2].ID != "undated" {
		t.Fatalf("expected stable order for ties, got %s, %s", ranked[1].ID, ranked[2].ID)
	}
}

func TestRerankHandlesEmptyInput(t *testing.T) {
	out := NewResultRanker(DefaultRankerConfig()).Rerank(nil, "Fristen", domain.QueryAnalysisResult{})
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}

func TestSearchWithFallbackRunsOnceWithLoweredThreshold(t *testing.T) {
	ranker := NewResultRanker(DefaultRankerConfig())
	calls := 0
	var gotThreshold float64
	results, isFallback := ranker.SearchWithFallback(
		context.Background(),
		nil,
		domain.SearchOptions{UseHyDE: true, UseFilters: true, ScoreThreshold: 0.7},
		func(_ context.Context, threshold float64) ([]domain.SearchResult, error) {
			calls++
			gotThreshold = threshold
			return []domain.SearchResult{{ID: "fallback"}}, nil
		},
	)
	if calls != 1 {
		t.Fatalf("expected exactly one fallback search, got %d", calls)
	}
	if math.Abs(gotThreshold-0.5) > 1e-9 {
		t.Fatalf("expected threshold 0.5, got %v", gotThreshold)
	}
	if !isFallback || len(results) != 1 {
		t.Fatalf("expected fallback results, got %v %v", isFallback, results)
	}
}

func TestSearchWithFallbackSkipsWhenNotApplicable(t *testing.T) {
	ranker := NewResultRanker(DefaultRankerConfig())
	search := func(context.Context, float64) ([]domain.SearchResult, error) {
		t.Fatalf("fallback must not run")
		return nil, nil
	}

	primary := []domain.SearchResult{{ID: "a"}}
	if _, fallback := ranker.SearchWithFallback(context.Background(), primary, domain.SearchOptions{UseHyDE: true}, search); fallback {
		t.Fatalf("non-empty primary must not fall back")
	}
	if _, fallback := ranker.SearchWithFallback(context.Background(), nil, domain.SearchOptions{UseOptimizations: true}, search); fallback {
		t.Fatalf("fallback requires hyde or filters")
	}
}

func TestSearchWithFallbackMarksFailedRetry(t *testing.T) {
	ranker := NewResultRanker(DefaultRankerConfig())
	results, fallback := ranker.SearchWithFallback(context.Background(), nil, domain.SearchOptions{UseFilters: true, ScoreThreshold: 0.5},
		func(context.Context, float64) ([]domain.SearchResult, error) {
			return nil, errors.New("qdrant down")
		})
	if !fallback {
		t.Fatalf("expected fallback flag")
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil results, got %v", results)
	}
}

func TestFallbackThresholdFloor(t *testing.T) {
	ranker := NewResultRanker(DefaultRankerConfig())
	cases := []struct {
		in, want float64
	}{
		{0.7, 0.5},
		{0.5, 0.4},
		{0.4, 0.4},
		{0.3, 0.3},
	}
	for _, tc := range cases {
		if got := ranker.FallbackThreshold(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("FallbackThreshold(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
