package usecase

import (
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// BuildRetrievalContext groups ranked results by chunk type in order of first appearance and keeps one
// source entry per source with its highest score.
func BuildRetrievalContext(results []domain.SearchResult) domain.RetrievalContext {
	out := domain.RetrievalContext{
		Groups:  []domain.ChunkGroup{},
		Results: append([]domain.SearchResult{}, results...),
		Sources: []domain.SourceRef{},
	}

	groupIndex := make(map[string]int)
	sourceIndex := make(map[string]int)
	for _, result := range results {
		chunkType := result.Payload.ChunkType
		if chunkType == "" {
			chunkType = domain.ChunkTypeParagraph
		}
		idx, ok := groupIndex[chunkType]
		if !ok {
			idx = len(out.Groups)
			groupIndex[chunkType] = idx
			out.Groups = append(out.Groups, domain.ChunkGroup{ChunkType: chunkType})
		}
		out.Groups[idx].Results = append(out.Groups[idx].Results, result)

		key := sourceKey(result.Payload)
		if key == "" {
			continue
		}
		if existing, ok := sourceIndex[key]; ok {
			if result.MergedScore > out.Sources[existing].Score {
				out.Sources[existing].Score = result.MergedScore
			}
			continue
		}
		sourceIndex[key] = len(out.Sources)
		out.Sources = append(out.Sources, domain.SourceRef{
			Title:  result.Payload.Title,
			Source: result.Payload.Source,
			Score:  result.MergedScore,
		})
	}
	return out
}

func sourceKey(payload domain.DocumentPayload) string {
	if source := strings.TrimSpace(payload.Source); source != "" {
		return source
	}
	return strings.TrimSpace(payload.Title)
}
