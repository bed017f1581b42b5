package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

// EmbeddingGateway validates provider vectors against the collection dimension and
// caches them by exact (trimmed) text.
type EmbeddingGateway struct {
	provider  ports.EmbeddingProvider
	dimension int
	cache     ports.Cache[string, []float32]

	store    ports.VectorStore
	mu       sync.Mutex
	verified map[string]struct{}
}

func NewEmbeddingGateway(provider ports.EmbeddingProvider, dimension int, cache ports.Cache[string, []float32]) *EmbeddingGateway {
	return &EmbeddingGateway{
		provider:  provider,
		dimension: dimension,
		cache:     cache,
		verified:  make(map[string]struct{}),
	}
}

// WithCollectionStore enables EnsureCollection checks against store.
func (g *EmbeddingGateway) WithCollectionStore(store ports.VectorStore) *EmbeddingGateway {
	g.store = store
	return g
}

func (g *EmbeddingGateway) Dimension() int {
	return g.dimension
}

func (g *EmbeddingGateway) ProviderName() string {
	return g.provider.Name()
}

func (g *EmbeddingGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if key == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed", errors.New("text is empty"))
	}
	if g.cache != nil {
		if vector, ok := g.cache.Get(key); ok {
			return vector, nil
		}
	}

	vector, err := g.provider.Embed(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", g.provider.Name(), err)
	}
	if len(vector) != g.dimension {
		return nil, domain.WrapError(
			domain.ErrConfiguration,
			"embed",
			fmt.Errorf("provider %s returned %d dimensions, collection expects %d", g.provider.Name(), len(vector), g.dimension),
		)
	}

	if g.cache != nil {
		g.cache.Put(key, vector)
	}
	return vector, nil
}

// VerifyCollection fails when the collection was built with a different vector size.
func (g *EmbeddingGateway) VerifyCollection(ctx context.Context, store ports.VectorStore, collection string) error {
	size, err := store.CollectionVectorSize(ctx, collection)
	if err != nil {
		return fmt.Errorf("read collection %s vector size: %w", collection, err)
	}
	if size != g.dimension {
		return domain.WrapError(
			domain.ErrConfiguration,
			"verify collection",
			fmt.Errorf("collection %s has vector size %d, embedding provider %s produces %d", collection, size, g.provider.Name(), g.dimension),
		)
	}
	g.mu.Lock()
	g.verified[collection] = struct{}{}
	g.mu.Unlock()
	return nil
}

// EnsureCollection verifies a collection once per process. A size mismatch (ErrConfiguration) or an
// unknown collection (ErrInvalidInput) is returned every time; a store that cannot answer is logged and
// the check is retried on the next call.
func (g *EmbeddingGateway) EnsureCollection(ctx context.Context, collection string) error {
	if g == nil || g.store == nil || collection == "" {
		return nil
	}
	g.mu.Lock()
	_, ok := g.verified[collection]
	g.mu.Unlock()
	if ok {
		return nil
	}

	err := g.VerifyCollection(ctx, g.store, collection)
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrConfiguration) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	slog.WarnContext(ctx, "collection_check_skipped", "collection", collection, "error", err)
	return nil
}

// CollectionName encodes provider and dimension so vectors from different providers never share a collection.
func CollectionName(base, provider string, dimension int) string {
	base = strings.TrimSpace(base)
	provider = strings.ToLower(strings.TrimSpace(provider))
	return fmt.Sprintf("%s_%s_%d", base, provider, dimension)
}
