package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

// vectorStoreFake answers searches with a per-call function and records every query.
type vectorStoreFake struct {
	mu         sync.Mutex
	queries    []domain.VectorQuery
	vectorSize int
	searchFn   func(query domain.VectorQuery) ([]domain.ScoredPoint, error)
	scrollFn   func(collection string, filter domain.VectorFilter, limit int) ([]domain.ScoredPoint, error)
	sizeFn     func(collection string) (int, error)
	sizeCalls  int
}

func (f *vectorStoreFake) Search(_ context.Context, query domain.VectorQuery) ([]domain.ScoredPoint, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(query)
}

func (f *vectorStoreFake) Scroll(_ context.Context, collection string, filter domain.VectorFilter, limit int) ([]domain.ScoredPoint, error) {
	if f.scrollFn == nil {
		return nil, errors.New("not implemented")
	}
	return f.scrollFn(collection, filter, limit)
}

func (f *vectorStoreFake) CollectionVectorSize(_ context.Context, collection string) (int, error) {
	f.mu.Lock()
	f.sizeCalls++
	f.mu.Unlock()
	if f.sizeFn != nil {
		return f.sizeFn(collection)
	}
	return f.vectorSize, nil
}

func (f *vectorStoreFake) recorded() []domain.VectorQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.VectorQuery, len(f.queries))
	copy(out, f.queries)
	return out
}

// matchesFilter applies a VectorFilter the way the vector store would.
func matchesFilter(filter domain.VectorFilter, payload domain.DocumentPayload) bool {
	if len(filter.ChunkTypes) > 0 && !containsString(filter.ChunkTypes, payload.ChunkType) {
		return false
	}
	if containsString(filter.ExcludeChunkTypes, payload.ChunkType) {
		return false
	}
	if filter.DocumentBaseName != "" && filter.DocumentBaseName != payload.DocumentBaseName {
		return false
	}
	if len(filter.Pages) > 0 {
		found := false
		for _, page := range filter.Pages {
			if page == payload.Page {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// corpusSearch returns every point matching the query filter and threshold.
func corpusSearch(points []domain.ScoredPoint) func(domain.VectorQuery) ([]domain.ScoredPoint, error) {
	return func(query domain.VectorQuery) ([]domain.ScoredPoint, error) {
		out := make([]domain.ScoredPoint, 0, len(points))
		for _, point := range points {
			if point.Score < query.ScoreThreshold {
				continue
			}
			if !matchesFilter(query.Filter, point.Payload) {
				continue
			}
			out = append(out, point)
			if query.Limit > 0 && len(out) == query.Limit {
				break
			}
		}
		return out, nil
	}
}

// textGeneratorFake returns scripted responses in order and counts calls.
type textGeneratorFake struct {
	mu        sync.Mutex
	calls     int
	prompts   []string
	options   []ports.GenerateOptions
	responses []string
	err       error
	respond   func(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error)
}

func (f *textGeneratorFake) GenerateText(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.options = append(f.options, opts)
	idx := f.calls - 1
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(ctx, prompt, opts)
	}
	if f.err != nil {
		return "", f.err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", nil
}

func (f *textGeneratorFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
