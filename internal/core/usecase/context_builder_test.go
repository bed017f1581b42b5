package usecase

import (
	"testing"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

func TestBuildRetrievalContextGroupsAndDeduplicates(t *testing.T) {
	results := []domain.SearchResult{
		{ID: "1", MergedScore: 0.9, Payload: domain.DocumentPayload{Title: "Fristen", Source: "gpke.pdf", ChunkType: domain.ChunkTypeStructuredTable}},
		{ID: "2", MergedScore: 0.8, Payload: domain.DocumentPayload{Title: "Einleitung", Source: "gpke.pdf", ChunkType: domain.ChunkTypeParagraph}},
		{ID: "3", MergedScore: 0.7, Payload: domain.DocumentPayload{Title: "Tabelle", Source: "wim.pdf", ChunkType: domain.ChunkTypeStructuredTable}},
		{ID: "4", MergedScore: 0.6, Payload: domain.DocumentPayload{Title: "Ohne Typ"}},
	}

	ctx := BuildRetrievalContext(results)
	if len(ctx.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(ctx.Groups))
	}
	if ctx.Groups[0].ChunkType != domain.ChunkTypeStructuredTable || len(ctx.Groups[0].Results) != 2 {
		t.Fatalf("unexpected first group %+v", ctx.Groups[0])
	}
	if ctx.Groups[1].ChunkType != domain.ChunkTypeParagraph || len(ctx.Groups[1].Results) != 2 {
		t.Fatalf("untyped results belong to the paragraph group, got %+v", ctx.Groups[1])
	}
	if len(ctx.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(ctx.Sources))
	}
	if ctx.Sources[0].Source != "gpke.pdf" || ctx.Sources[0].Score != 0.9 {
		t.Fatalf("expected gpke.pdf with highest score, got %+v", ctx.Sources[0])
	}
}

func TestBuildRetrievalContextEmpty(t *testing.T) {
	ctx := BuildRetrievalContext(nil)
	if ctx.Groups == nil || ctx.Sources == nil || len(ctx.Results) != 0 {
		t.Fatalf("expected empty non-nil context, got %+v", ctx)
	}
}
