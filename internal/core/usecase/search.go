package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

const (
	MethodBasic     = "basic"
	MethodOptimized = "optimized"
	MethodFallback  = "fallback"
)

type SearchConfig struct {
	DefaultCollection     string
	DefaultLimit          int
	MaxLimit              int
	DefaultScoreThreshold float64
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultLimit:          10,
		MaxLimit:              50,
		DefaultScoreThreshold: 0.5,
	}
}

// SearchObserver receives every finished search, cache hits included.
type SearchObserver interface {
	ObserveSearch(entry domain.SearchLogEntry)
}

type SearchUseCase struct {
	analyzer  *QueryIntentAnalyzer
	hyde      *HypotheticalAnswerGenerator
	embedder  *EmbeddingGateway
	retriever *MultiPhaseRetriever
	ranker    *ResultRanker
	cache     ports.Cache[string, domain.SearchResponse]
	publisher ports.SearchLogPublisher
	observer  SearchObserver
	cfg       SearchConfig
	now       func() time.Time
}

func NewSearchUseCase(
	analyzer *QueryIntentAnalyzer,
	hyde *HypotheticalAnswerGenerator,
	embedder *EmbeddingGateway,
	retriever *MultiPhaseRetriever,
	ranker *ResultRanker,
	cache ports.Cache[string, domain.SearchResponse],
	cfg SearchConfig,
) *SearchUseCase {
	def := DefaultSearchConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultScoreThreshold <= 0 {
		cfg.DefaultScoreThreshold = def.DefaultScoreThreshold
	}
	if analyzer == nil {
		analyzer = NewQueryIntentAnalyzer(nil)
	}
	if ranker == nil {
		ranker = NewResultRanker(DefaultRankerConfig())
	}
	return &SearchUseCase{
		analyzer:  analyzer,
		hyde:      hyde,
		embedder:  embedder,
		retriever: retriever,
		ranker:    ranker,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithSearchLog attaches the analytics publisher and metrics observer. Either may be nil.
func (uc *SearchUseCase) WithSearchLog(publisher ports.SearchLogPublisher, observer SearchObserver) *SearchUseCase {
	uc.publisher = publisher
	uc.observer = observer
	return uc
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	run, err := uc.search(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, NewSearchLogEntry(ctx, run.response, run.analysis, run.cacheHit, uc.now()))
	return run.response, nil
}

type searchRun struct {
	response *domain.SearchResponse
	analysis domain.QueryAnalysisResult
	options  domain.SearchOptions
	cacheHit bool
}

// search is shared with the reasoning pipeline, which passes its call budget so HyDE is charged against it.
// It does not emit search logs.
func (uc *SearchUseCase) search(ctx context.Context, req domain.SearchRequest, budget *CallBudget) (searchRun, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return searchRun{}, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	opts := uc.normalizeOptions(req.Options)
	analysis := uc.analyzer.Analyze(query)
	run := searchRun{analysis: analysis, options: opts}

	key := SearchCacheKey(query, opts)
	if opts.UseCache && uc.cache != nil {
		if cached, ok := uc.cache.Get(key); ok {
			resp := cached.Clone()
			run.response = &resp
			run.cacheHit = true
			return run, nil
		}
	}

	if err := uc.embedder.EnsureCollection(ctx, opts.CollectionName); err != nil {
		return searchRun{}, err
	}

	start := uc.now()
	searchText := query
	if opts.UseOptimizations {
		searchText = uc.analyzer.OptimizedSearchQuery(analysis)
	}

	provenance := domain.QueryProvenance{
		Original:    query,
		Expanded:    searchText,
		UsedFilters: opts.UseFilters,
		Type:        analysis.IntentType,
		Collection:  opts.CollectionName,
	}

	embedText := searchText
	if opts.UseHyDE {
		hypothetical, used := uc.hyde.Generate(ctx, searchText, opts.CollectionName, budget)
		if used {
			provenance.Hypothetical = hypothetical
			provenance.UsedHyDE = true
			embedText = hypothetical
		}
	}

	vector, err := uc.embed(ctx, embedText, searchText)
	if err != nil {
		return searchRun{}, err
	}
	optimizationTime := uc.now().Sub(start)

	searchStart := uc.now()
	retrievalOpts := RetrievalOptions{
		Collection:     opts.CollectionName,
		Limit:          opts.Limit,
		ScoreThreshold: opts.ScoreThreshold,
	}
	if opts.UseFilters {
		retrievalOpts.ChunkTypes = analysis.FilterCriteria.ChunkTypes
		retrievalOpts.DocumentBaseName = analysis.FilterCriteria.DocumentBaseName
	}
	// degraded responses came from a partial or failed store and are not cached.
	degraded := false
	outcome, err := uc.retriever.Retrieve(ctx, vector, query, retrievalOpts)
	switch {
	case err == nil:
		degraded = outcome.Degraded()
	case domain.IsKind(err, domain.ErrTemporary):
		degraded = true
	default:
		return searchRun{}, fmt.Errorf("retrieve: %w", err)
	}
	results := uc.ranker.Rerank(outcome.Results, query, analysis)

	var fallbackErr error
	results, isFallback := uc.ranker.SearchWithFallback(ctx, results, opts, func(ctx context.Context, threshold float64) ([]domain.SearchResult, error) {
		fallbackVector, err := uc.embedder.Embed(ctx, query)
		if err != nil {
			fallbackErr = err
			return nil, err
		}
		fallbackOutcome, err := uc.retriever.Retrieve(ctx, fallbackVector, query, RetrievalOptions{
			Collection:     opts.CollectionName,
			Limit:          opts.Limit,
			ScoreThreshold: threshold,
		})
		if err != nil {
			fallbackErr = err
			return nil, err
		}
		if fallbackOutcome.Degraded() {
			degraded = true
		}
		return uc.ranker.Rerank(fallbackOutcome.Results, query, analysis), nil
	})
	if fallbackErr != nil {
		if domain.IsKind(fallbackErr, domain.ErrConfiguration) {
			return searchRun{}, fmt.Errorf("fallback retrieve: %w", fallbackErr)
		}
		degraded = true
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	method := MethodBasic
	switch {
	case isFallback:
		method = MethodFallback
	case opts.UseHyDE || opts.UseFilters || opts.UseOptimizations:
		method = MethodOptimized
	}
	if isFallback {
		provenance.UsedHyDE = false
		provenance.UsedFilters = false
		provenance.IsFallback = true
	}

	resp := domain.SearchResponse{
		Results: results,
		Metrics: domain.SearchMetrics{
			TotalTime:             uc.now().Sub(start),
			QueryOptimizationTime: optimizationTime,
			SearchTime:            uc.now().Sub(searchStart),
			ResultCount:           len(results),
			CollectionUsed:        opts.CollectionName,
			Method:                method,
		},
		Query:      provenance,
		IsFallback: isFallback,
	}

	if opts.UseCache && uc.cache != nil {
		if degraded {
			slog.WarnContext(ctx, "search_cache_skipped", "collection", opts.CollectionName, "reason", "degraded_retrieval")
		} else {
			uc.cache.Put(key, resp.Clone())
		}
	}
	run.response = &resp
	return run, nil
}

// embed falls back to the expanded query when the hypothetical answer cannot be embedded.
// Configuration errors are never retried.
func (uc *SearchUseCase) embed(ctx context.Context, text, fallbackText string) ([]float32, error) {
	vector, err := uc.embedder.Embed(ctx, text)
	if err == nil {
		return vector, nil
	}
	if domain.IsKind(err, domain.ErrConfiguration) || text == fallbackText {
		return nil, err
	}
	slog.WarnContext(ctx, "hyde_embedding_failed", "error", err)
	return uc.embedder.Embed(ctx, fallbackText)
}

func (uc *SearchUseCase) normalizeOptions(opts domain.SearchOptions) domain.SearchOptions {
	opts.CollectionName = strings.TrimSpace(opts.CollectionName)
	if opts.CollectionName == "" {
		opts.CollectionName = uc.cfg.DefaultCollection
	}
	if opts.Limit <= 0 {
		opts.Limit = uc.cfg.DefaultLimit
	}
	if opts.Limit > uc.cfg.MaxLimit {
		opts.Limit = uc.cfg.MaxLimit
	}
	if opts.ScoreThreshold <= 0 {
		opts.ScoreThreshold = uc.cfg.DefaultScoreThreshold
	}
	return opts
}

func (uc *SearchUseCase) emit(ctx context.Context, entry domain.SearchLogEntry) {
	if uc.observer != nil {
		uc.observer.ObserveSearch(entry)
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishSearchLog(ctx, entry); err != nil {
			slog.Warn("search_log_publish_failed", "request_id", entry.RequestID, "error", err)
		}
	}
}

// NewSearchLogEntry flattens a response into an analytics record.
func NewSearchLogEntry(ctx context.Context, resp *domain.SearchResponse, analysis domain.QueryAnalysisResult, cacheHit bool, now time.Time) domain.SearchLogEntry {
	results := make([]domain.SearchLogResult, 0, len(resp.Results))
	for _, result := range resp.Results {
		results = append(results, domain.SearchLogResult{
			ID:          result.ID,
			ChunkType:   result.Payload.ChunkType,
			MergedScore: result.MergedScore,
		})
	}
	return domain.SearchLogEntry{
		ID:            uuid.NewString(),
		RequestID:     domain.RequestIDFromContext(ctx),
		Query:         resp.Query.Original,
		ExpandedQuery: resp.Query.Expanded,
		IntentType:    analysis.IntentType,
		Collection:    resp.Metrics.CollectionUsed,
		Method:        resp.Metrics.Method,
		UsedHyDE:      resp.Query.UsedHyDE,
		UsedFilters:   resp.Query.UsedFilters,
		IsFallback:    resp.IsFallback,
		CacheHit:      cacheHit,
		DurationMs:    float64(resp.Metrics.TotalTime.Microseconds()) / 1000.0,
		Results:       results,
		CreatedAt:     now.UTC(),
	}
}

// SearchCacheKey combines the normalized query with a fixed-order serialization of the options.
func SearchCacheKey(query string, opts domain.SearchOptions) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))
	b.WriteString("|hyde=")
	b.WriteString(strconv.FormatBool(opts.UseHyDE))
	b.WriteString("|filters=")
	b.WriteString(strconv.FormatBool(opts.UseFilters))
	b.WriteString("|optimizations=")
	b.WriteString(strconv.FormatBool(opts.UseOptimizations))
	b.WriteString("|collection=")
	b.WriteString(opts.CollectionName)
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(opts.Limit))
	b.WriteString("|threshold=")
	b.WriteString(strconv.FormatFloat(opts.ScoreThreshold, 'f', -1, 64))
	return b.String()
}
