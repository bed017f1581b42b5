package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

func phaseOf(query domain.VectorQuery) string {
	switch {
	case containsString(query.Filter.ChunkTypes, domain.ChunkTypeOutline):
		return "outline"
	case len(query.Filter.ChunkTypes) > 0:
		return phaseStructured
	case len(query.Filter.ExcludeChunkTypes) > 0:
		return phaseBroad
	default:
		return phasePlain
	}
}

func TestRetrieverMergesStructuredAndBroadScores(t *testing.T) {
	payload := domain.DocumentPayload{Title: "Kapitel", ChunkType: domain.ChunkTypeParagraph}
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		switch phaseOf(query) {
		case phaseStructured:
			return []domain.ScoredPoint{{ID: "doc-1", Score: 0.8, Payload: payload}}, nil
		case phaseBroad:
			return []domain.ScoredPoint{{ID: "doc-1", Score: 0.6, Payload: payload}}, nil
		default:
			return nil, nil
		}
	}}

	retriever := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil)
	results, err := retriever.Search(context.Background(), []float32{1}, "frage", RetrievalOptions{Collection: "c", Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if math.Abs(results[0].MergedScore-0.75) > 1e-9 {
		t.Fatalf("expected merged score 0.75, got %v", results[0].MergedScore)
	}
	if results[0].Score != 0.8 {
		t.Fatalf("expected best raw score 0.8, got %v", results[0].Score)
	}
}

func TestRetrieverFoldsPlainAndCardinalityPhases(t *testing.T) {
	payload := domain.DocumentPayload{ChunkType: domain.ChunkTypeParagraph}
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) != phasePlain {
			return nil, nil
		}
		return []domain.ScoredPoint{{ID: "doc-1", Score: 0.5, Payload: payload}}, nil
	}}

	retriever := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil)
	results, err := retriever.Search(context.Background(), []float32{1}, "Ist das Feld [0..1] oder [1]?", RetrievalOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.recorded()) != 3 {
		t.Fatalf("cardinality phase needs a data element code, got %d phases", len(store.recorded()))
	}
	if math.Abs(results[0].MergedScore-0.85*0.5) > 1e-9 {
		t.Fatalf("expected gamma-weighted score, got %v", results[0].MergedScore)
	}

	store.queries = nil
	results, err = retriever.Search(context.Background(), []float32{1}, "Ist 3225 [0..1]?", RetrievalOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	recorded := store.recorded()
	if len(recorded) != 4 {
		t.Fatalf("expected four phases, got %d", len(recorded))
	}
	maxLimit := 0
	for _, query := range recorded {
		if query.Limit > maxLimit {
			maxLimit = query.Limit
		}
	}
	if maxLimit != 15 {
		t.Fatalf("expected cardinality phase limit 15, got %d", maxLimit)
	}
	// plain (0.85) and cardinality (0.95) phases both return doc-1.
	if math.Abs(results[0].MergedScore-(0.85*0.5+0.95*0.5)) > 1e-9 {
		t.Fatalf("unexpected merged score %v", results[0].MergedScore)
	}
}

func TestRetrieverTreatsFailedPhaseAsEmpty(t *testing.T) {
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) == phaseStructured {
			return nil, errors.New("qdrant timeout")
		}
		return []domain.ScoredPoint{{ID: "doc-1", Score: 0.9, Payload: domain.DocumentPayload{ChunkType: domain.ChunkTypeParagraph}}}, nil
	}}
	results, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Search(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected surviving phases to produce a result, got %d", len(results))
	}
}

func TestRetrieverReportsFailedPhases(t *testing.T) {
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) == phaseBroad {
			return nil, errors.New("qdrant timeout")
		}
		return nil, nil
	}}
	outcome, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Retrieve(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !outcome.Degraded() || len(outcome.FailedPhases) != 1 || outcome.FailedPhases[0] != phaseBroad {
		t.Fatalf("expected broad phase reported as failed, got %+v", outcome.FailedPhases)
	}
}

func TestRetrieverFailsWhenEveryPhaseFails(t *testing.T) {
	store := &vectorStoreFake{searchFn: func(domain.VectorQuery) ([]domain.ScoredPoint, error) {
		return nil, errors.New("connection refused")
	}}
	outcome, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Retrieve(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 5})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if len(outcome.FailedPhases) != 3 {
		t.Fatalf("expected all three phases reported, got %+v", outcome.FailedPhases)
	}
}

func TestRetrieverReturnsConfigurationErrors(t *testing.T) {
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) == phasePlain {
			return nil, domain.WrapError(domain.ErrConfiguration, "qdrant search", errors.New("Vector dimension error"))
		}
		return []domain.ScoredPoint{{ID: "doc-1", Score: 0.9}}, nil
	}}
	_, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Search(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 5})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRetrieverReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &vectorStoreFake{searchFn: func(domain.VectorQuery) ([]domain.ScoredPoint, error) {
		return nil, context.Canceled
	}}
	if _, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Search(ctx, []float32{1}, "q", RetrievalOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetrieverSortIsStableForTies(t *testing.T) {
	payload := domain.DocumentPayload{ChunkType: domain.ChunkTypeParagraph}
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) != phasePlain {
			return nil, nil
		}
		return []domain.ScoredPoint{
			{ID: "first", Score: 0.5, Payload: payload},
			{ID: "second", Score: 0.5, Payload: payload},
			{ID: "third", Score: 0.5, Payload: payload},
		}, nil
	}}
	results, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Search(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if results[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, results[i].ID)
		}
	}
}

func TestRetrieverAppliesDocumentFilterToFilteredPhasesOnly(t *testing.T) {
	store := &vectorStoreFake{}
	_, err := NewMultiPhaseRetriever(store, DefaultRetrieverConfig(), nil).Search(context.Background(), []float32{1}, "q", RetrievalOptions{
		Limit:            4,
		ChunkTypes:       []string{domain.ChunkTypeDefinition},
		DocumentBaseName: "GPKE_Geschäftsprozesse",
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, query := range store.recorded() {
		switch phaseOf(query) {
		case phaseStructured:
			if !containsString(query.Filter.ChunkTypes, domain.ChunkTypeDefinition) || !containsString(query.Filter.ChunkTypes, domain.ChunkTypeValidationRule) {
				t.Fatalf("structured phase must combine fixed and intent chunk types, got %v", query.Filter.ChunkTypes)
			}
			if query.Filter.DocumentBaseName != "GPKE_Geschäftsprozesse" {
				t.Fatalf("structured phase lost document filter")
			}
		case phaseBroad:
			if query.Filter.DocumentBaseName != "GPKE_Geschäftsprozesse" {
				t.Fatalf("broad phase lost document filter")
			}
		case phasePlain:
			if query.Filter.DocumentBaseName != "" || query.Limit != 8 {
				t.Fatalf("plain phase must be unfiltered with doubled limit, got %+v", query.Filter)
			}
		}
	}
}

func TestRetrieverOutlineScopingRestrictsPages(t *testing.T) {
	cfg := DefaultRetrieverConfig()
	cfg.OutlineScoping = true
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) == "outline" {
			return []domain.ScoredPoint{
				{ID: "o1", Payload: domain.DocumentPayload{ChunkType: domain.ChunkTypeOutline, Page: 12}},
				{ID: "o2", Payload: domain.DocumentPayload{ChunkType: domain.ChunkTypeOutline, Page: 12}},
				{ID: "o3", Payload: domain.DocumentPayload{ChunkType: domain.ChunkTypeOutline, Page: 14}},
			}, nil
		}
		return nil, nil
	}}

	if _, err := NewMultiPhaseRetriever(store, cfg, nil).Search(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 5}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, query := range store.recorded() {
		if phaseOf(query) == "outline" {
			continue
		}
		if len(query.Filter.Pages) != 2 || query.Filter.Pages[0] != 12 || query.Filter.Pages[1] != 14 {
			t.Fatalf("expected pages [12 14], got %v", query.Filter.Pages)
		}
	}
}

func TestRetrieverSkipsOutlineScopingOnFailure(t *testing.T) {
	cfg := DefaultRetrieverConfig()
	cfg.OutlineScoping = true
	store := &vectorStoreFake{searchFn: func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		if phaseOf(query) == "outline" {
			return nil, errors.New("no outline index")
		}
		return nil, nil
	}}
	if _, err := NewMultiPhaseRetriever(store, cfg, nil).Search(context.Background(), []float32{1}, "q", RetrievalOptions{Limit: 5}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, query := range store.recorded() {
		if phaseOf(query) != "outline" && len(query.Filter.Pages) != 0 {
			t.Fatalf("expected unscoped phases, got pages %v", query.Filter.Pages)
		}
	}
}

func TestPayloadBoost(t *testing.T) {
	booster := newPayloadBooster(DefaultBoostConfig())
	cases := []struct {
		name    string
		query   string
		payload domain.DocumentPayload
		want    float64
	}{
		{"plain paragraph", "frage", domain.DocumentPayload{ChunkType: domain.ChunkTypeParagraph}, 0},
		{"table chunk", "frage", domain.DocumentPayload{ChunkType: domain.ChunkTypeStructuredTable}, 0.05},
		{"acronym in query and payload", "Fristen GPKE", domain.DocumentPayload{Title: "GPKE Anlage"}, 0.03},
		{"acronym only in payload", "Fristen", domain.DocumentPayload{Title: "GPKE Anlage"}, 0},
		{"edifact segment", "frage", domain.DocumentPayload{Content: "UNH+1+UTILMD:D:11A:UN:S2.1'"}, 0.02},
		{"data element code", "Feld 3225", domain.DocumentPayload{Content: "DE 3225 Ortsangabe"}, 0.04},
		{"curated content", "frage", domain.DocumentPayload{ContentType: domain.ContentTypeCorrection}, 0.05},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := booster.Boost(tc.query, tc.payload); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Boost() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHasCardinalityIntent(t *testing.T) {
	cases := map[string]bool{
		"Ist DE 3225 [1] oder [0..1]?":   true,
		"Kardinalität [1..n] für 0065":   true,
		"Was bedeutet [1]?":              false,
		"Segment 3225 ohne Klammern":     false,
		"Wie funktioniert GPKE im Jahr?": false,
	}
	for query, want := range cases {
		if got := HasCardinalityIntent(query); got != want {
			t.Fatalf("HasCardinalityIntent(%q) = %v, want %v", query, got, want)
		}
	}
}
