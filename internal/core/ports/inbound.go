package ports

import (
	"context"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// SearchService is the inbound contract for the retrieval pipeline.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
}

// ReasoningService is the inbound contract for retrieval plus iterative answer generation.
type ReasoningService interface {
	Reason(ctx context.Context, req domain.SearchRequest) (*domain.ReasoningResult, *domain.SearchResponse, error)
}

// SearchLogRecorder is the inbound contract used by the analytics worker.
type SearchLogRecorder interface {
	Record(ctx context.Context, entry domain.SearchLogEntry) error
}
