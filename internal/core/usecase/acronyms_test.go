package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

func TestDiscoverAcronymsReadsAbbreviationChunks(t *testing.T) {
	var gotFilter domain.VectorFilter
	store := &vectorStoreFake{
		scrollFn: func(collection string, filter domain.VectorFilter, limit int) ([]domain.ScoredPoint, error) {
			gotFilter = filter
			if collection != "mako_ollama_768" || limit != defaultAcronymScrollLimit {
				t.Fatalf("unexpected scroll %s/%d", collection, limit)
			}
			return []domain.ScoredPoint{
				{Payload: domain.DocumentPayload{Title: "NNE", Keywords: []string{"Netznutzungsentgelt", "NNE"}}},
				{Payload: domain.DocumentPayload{Title: "MaLo-ID"}},
				{Payload: domain.DocumentPayload{Title: "Abkürzungsverzeichnis"}},
				{Payload: domain.DocumentPayload{Title: "nne"}},
			}, nil
		},
	}

	acronyms, err := DiscoverAcronyms(context.Background(), store, "mako_ollama_768", 0)
	if err != nil {
		t.Fatalf("DiscoverAcronyms() error = %v", err)
	}
	if !reflect.DeepEqual(acronyms, []string{"NNE", "MaLo-ID"}) {
		t.Fatalf("unexpected acronyms %v", acronyms)
	}
	if !reflect.DeepEqual(gotFilter.ChunkTypes, []string{domain.ChunkTypeAbbreviation}) {
		t.Fatalf("expected abbreviation filter, got %+v", gotFilter)
	}
}

func TestDiscoverAcronymsWrapsScrollError(t *testing.T) {
	boom := errors.New("qdrant down")
	store := &vectorStoreFake{
		scrollFn: func(string, domain.VectorFilter, int) ([]domain.ScoredPoint, error) { return nil, boom },
	}
	if _, err := DiscoverAcronyms(context.Background(), store, "c", 10); !errors.Is(err, boom) {
		t.Fatalf("expected scroll error, got %v", err)
	}
}

func TestMergeAcronymsSkipsKnownTerms(t *testing.T) {
	merged := MergeAcronyms([]string{"GPKE", "MaLo"}, []string{"malo", "NNE", "gpke"})
	if !reflect.DeepEqual(merged, []string{"GPKE", "MaLo", "NNE"}) {
		t.Fatalf("unexpected merge %v", merged)
	}
}
