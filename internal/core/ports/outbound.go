package ports

import (
	"context"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// VectorStore runs similarity searches and payload scrolls against a collection.
type VectorStore interface {
	Search(ctx context.Context, query domain.VectorQuery) ([]domain.ScoredPoint, error)
	Scroll(ctx context.Context, collection string, filter domain.VectorFilter, limit int) ([]domain.ScoredPoint, error)
	CollectionVectorSize(ctx context.Context, collection string) (int, error)
}

// EmbeddingProvider turns a single text into a vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

type GenerateOptions struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	JSON         bool
}

// TextGenerator is the LLM provider contract.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Cache is a bounded key/value store shared across requests.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Len() int
}

// TokenCounter estimates prompt sizes for context compression.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// SearchLogPublisher emits retrieval analytics events.
type SearchLogPublisher interface {
	PublishSearchLog(ctx context.Context, entry domain.SearchLogEntry) error
}

// SearchLogStore persists retrieval analytics events.
type SearchLogStore interface {
	SaveSearchLog(ctx context.Context, entry domain.SearchLogEntry) error
}
