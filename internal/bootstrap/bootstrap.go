package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/mako-assistant/internal/adapters/http"
	mcpadapter "github.com/kirillkom/mako-assistant/internal/adapters/mcp"
	"github.com/kirillkom/mako-assistant/internal/config"
	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
	"github.com/kirillkom/mako-assistant/internal/core/usecase"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/cache"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/tokenizer"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/mako-assistant/internal/observability/metrics"
)

const acronymDiscoveryTimeout = 10 * time.Second

// API is the wired HTTP service: search, reasoning, MCP tools and metrics.
type API struct {
	Config     config.Config
	Collection string
	Handler    http.Handler

	Search    *usecase.SearchUseCase
	Reasoning *usecase.ReasoningUseCase

	closeFn func()
}

func NewAPI(ctx context.Context, cfg config.Config) (*API, error) {
	httpMetrics := metrics.NewHTTPServerMetrics("api")
	retrievalMetrics := metrics.NewRetrievalMetrics("api", httpMetrics.Registry())

	exec := resilience.NewExecutor(resilienceConfig(cfg)).WithStateObserver(retrievalMetrics.ObserveBreaker)

	providers, err := newProviders(cfg, exec)
	if err != nil {
		return nil, err
	}

	store := qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey, exec)
	embedder := usecase.NewEmbeddingGateway(
		providers.embedder,
		cfg.EmbeddingDimension,
		cache.NewInsertionOrderCache[string, []float32](cfg.EmbeddingCacheSize),
	).WithCollectionStore(store)

	collection := cfg.CollectionName
	if collection == "" {
		collection = usecase.CollectionName(cfg.CollectionBase, embedder.ProviderName(), embedder.Dimension())
	}
	if err := embedder.VerifyCollection(ctx, store, collection); err != nil {
		return nil, fmt.Errorf("verify collection %s: %w", collection, err)
	}

	tables := usecase.DefaultExpansionTables()
	if cfg.ExpansionTablesPath != "" {
		tables, err = usecase.LoadExpansionTables(cfg.ExpansionTablesPath)
		if err != nil {
			return nil, fmt.Errorf("load expansion tables: %w", err)
		}
	}

	retrieverCfg := usecase.DefaultRetrieverConfig()
	retrieverCfg.Weights = usecase.RetrievalWeights{
		Alpha: cfg.RetrievalAlpha,
		Gamma: cfg.RetrievalGamma,
		Delta: cfg.RetrievalDelta,
	}
	retrieverCfg.OutlineScoping = cfg.OutlineScoping
	if cfg.AcronymDiscovery {
		retrieverCfg.Boosts.Acronyms = discoverAcronyms(ctx, store, collection, retrieverCfg.Boosts.Acronyms)
	}

	searchUC := usecase.NewSearchUseCase(
		usecase.NewQueryIntentAnalyzer(tables),
		usecase.NewHypotheticalAnswerGenerator(providers.generator, nil),
		embedder,
		usecase.NewMultiPhaseRetriever(store, retrieverCfg, retrievalMetrics),
		usecase.NewResultRanker(usecase.DefaultRankerConfig()),
		cache.NewInsertionOrderCache[string, domain.SearchResponse](cfg.SearchCacheSize),
		usecase.SearchConfig{
			DefaultCollection:     collection,
			DefaultLimit:          cfg.SearchDefaultLimit,
			MaxLimit:              cfg.SearchMaxLimit,
			DefaultScoreThreshold: cfg.SearchScoreThreshold,
		},
	)

	var queue *nats.Queue
	var publisher ports.SearchLogPublisher
	if cfg.SearchLogEnabled {
		queue, err = nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         "mako-assistant-api",
			ResilienceExecutor: exec,
		})
		if err != nil {
			return nil, fmt.Errorf("init search log queue: %w", err)
		}
		publisher = queue
	}
	searchUC.WithSearchLog(publisher, retrievalMetrics)

	orchestrator := usecase.NewReasoningOrchestrator(
		providers.generator,
		tokenizer.New(cfg.TokenizerEncoding),
		usecase.ReasoningConfig{
			MaxAPICalls:           cfg.ReasoningMaxAPICalls,
			Timeout:               time.Duration(cfg.ReasoningTimeoutSeconds) * time.Second,
			FallbackTimeout:       time.Duration(cfg.ReasoningFallbackSeconds) * time.Second,
			MaxIterations:         cfg.ReasoningMaxIterations,
			ConfidenceThreshold:   cfg.ReasoningConfidenceThreshold,
			EnableRefinement:      cfg.ReasoningRefinementEnabled,
			ContextTokens:         cfg.ReasoningContextTokens,
			FallbackContextTokens: cfg.ReasoningFallbackContextTokens,
		},
		retrievalMetrics,
	)
	reasoningUC := usecase.NewReasoningUseCase(searchUC, orchestrator)

	router, err := httpadapter.NewRouter(cfg, searchUC, reasoningUC)
	if err != nil {
		return nil, fmt.Errorf("init http router: %w", err)
	}
	router.WithMetrics(httpMetrics)
	if cfg.MCPEnabled {
		router.WithMCP(mcpadapter.New(searchUC, reasoningUC).Handler())
	}

	slog.Info("api_bootstrapped",
		"collection", collection,
		"llm_provider", cfg.LLMProvider,
		"embedding_provider", embedder.ProviderName(),
		"embedding_dimension", embedder.Dimension(),
		"acronyms", len(retrieverCfg.Boosts.Acronyms),
	)

	return &API{
		Config:     cfg,
		Collection: collection,
		Handler:    router.Handler(),
		Search:     searchUC,
		Reasoning:  reasoningUC,
		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker persists retrieval.completed events into Postgres.
type Worker struct {
	Config   config.Config
	Queue    *nats.Queue
	Recorder ports.SearchLogRecorder
	Metrics  *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSearchLogRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	exec := resilience.NewExecutor(resilienceConfig(cfg))
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName:         "mako-assistant-worker",
		ResilienceExecutor: exec,
	})
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("init search log queue: %w", err)
	}

	return &Worker{
		Config:   cfg,
		Queue:    queue,
		Recorder: usecase.NewRecordSearchLogUseCase(repo),
		Metrics:  metrics.NewWorkerMetrics("worker"),
		closeFn: func() {
			queue.Close()
			closeDB(db)
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceMaxAttempts
	rc.RetryInitialBackoff = time.Duration(cfg.ResilienceInitialBackoffMS) * time.Millisecond
	rc.RetryMaxBackoff = time.Duration(cfg.ResilienceMaxBackoffMS) * time.Millisecond
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	rc.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	rc.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenSeconds) * time.Second
	return rc
}

// discoverAcronyms is best-effort: an unreachable or empty abbreviation index keeps the configured list.
func discoverAcronyms(ctx context.Context, store ports.VectorStore, collection string, configured []string) []string {
	discoverCtx, cancel := context.WithTimeout(ctx, acronymDiscoveryTimeout)
	defer cancel()

	discovered, err := usecase.DiscoverAcronyms(discoverCtx, store, collection, 0)
	if err != nil {
		slog.Warn("acronym_discovery_skipped", "collection", collection, "error", err.Error())
		return configured
	}
	return usecase.MergeAcronyms(configured, discovered)
}
