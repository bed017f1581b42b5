package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

var (
	multiplicityPattern = regexp.MustCompile(`\[\s*\d+\s*(\.\.\s*(\d+|n|\*)\s*)?\]`)
	fourDigitCodePattern = regexp.MustCompile(`\b\d{4}\b`)
)

const (
	phaseStructured = "structured"
	phaseBroad      = "broad"
	phasePlain      = "plain"
	phaseCardinal   = "cardinality"
)

type RetrievalWeights struct {
	Alpha float64
	Gamma float64
	Delta float64
}

func DefaultRetrievalWeights() RetrievalWeights {
	return RetrievalWeights{Alpha: 0.75, Gamma: 0.85, Delta: 0.95}
}

type RetrieverConfig struct {
	Weights              RetrievalWeights
	StructuredChunkTypes []string
	VisualChunkType      string
	OutlineScoping       bool
	OutlineLimit         int
	Boosts               BoostConfig
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Weights: DefaultRetrievalWeights(),
		StructuredChunkTypes: []string{
			domain.ChunkTypeValidationRule,
			domain.ChunkTypeFlow,
			domain.ChunkTypeTableMap,
			domain.ChunkTypeStructuredTable,
		},
		VisualChunkType: domain.ChunkTypeVisualSummary,
		OutlineLimit:    3,
		Boosts:          DefaultBoostConfig(),
	}
}

// RetrievalOptions scopes one retrieval. ChunkTypes and DocumentBaseName come from intent analysis
// and are only set when filters are enabled.
type RetrievalOptions struct {
	Collection       string
	Limit            int
	ScoreThreshold   float64
	ChunkTypes       []string
	DocumentBaseName string
}

// PhaseObserver receives per-phase outcomes for metrics.
type PhaseObserver interface {
	ObservePhase(phase string, results int, err error)
}

type MultiPhaseRetriever struct {
	store    ports.VectorStore
	cfg      RetrieverConfig
	booster  *payloadBooster
	observer PhaseObserver
}

func NewMultiPhaseRetriever(store ports.VectorStore, cfg RetrieverConfig, observer PhaseObserver) *MultiPhaseRetriever {
	if cfg.Weights == (RetrievalWeights{}) {
		cfg.Weights = DefaultRetrievalWeights()
	}
	if cfg.OutlineLimit <= 0 {
		cfg.OutlineLimit = 3
	}
	if cfg.Boosts.ChunkTypes == nil {
		cfg.Boosts = DefaultBoostConfig()
	}
	return &MultiPhaseRetriever{
		store:    store,
		cfg:      cfg,
		booster:  newPayloadBooster(cfg.Boosts),
		observer: observer,
	}
}

type retrievalPhase struct {
	name  string
	query domain.VectorQuery
}

type mergedEntry struct {
	result domain.SearchResult
	score  float64
	order  int
}

// RetrievalOutcome is a merged result list plus the phases that failed and were counted as empty.
type RetrievalOutcome struct {
	Results      []domain.SearchResult
	FailedPhases []string
}

// Degraded reports whether any phase failed, so the results may be incomplete.
func (o RetrievalOutcome) Degraded() bool {
	return len(o.FailedPhases) > 0
}

// Search runs the phases concurrently and merges them by result id. See Retrieve for error semantics.
func (r *MultiPhaseRetriever) Search(ctx context.Context, vector []float32, query string, opts RetrievalOptions) ([]domain.SearchResult, error) {
	outcome, err := r.Retrieve(ctx, vector, query, opts)
	if err != nil {
		return nil, err
	}
	return outcome.Results, nil
}

// Retrieve is Search with phase failures reported. A failed phase counts as empty unless it failed with
// ErrConfiguration, which is returned as is. When every phase fails the result is ErrTemporary.
func (r *MultiPhaseRetriever) Retrieve(ctx context.Context, vector []float32, query string, opts RetrievalOptions) (RetrievalOutcome, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	var pages []int
	if r.cfg.OutlineScoping {
		pages = r.outlinePages(ctx, vector, opts)
	}

	phases := r.buildPhases(vector, query, opts, pages)
	phaseResults := make([][]domain.ScoredPoint, len(phases))
	phaseErrs := make([]error, len(phases))

	var g errgroup.Group
	for i, phase := range phases {
		g.Go(func() error {
			points, err := r.store.Search(ctx, phase.query)
			r.observe(phase.name, len(points), err)
			if err != nil {
				slog.WarnContext(ctx, "retrieval_phase_failed",
					"phase", phase.name,
					"collection", phase.query.Collection,
					"error", err,
				)
				phaseErrs[i] = err
				return nil
			}
			phaseResults[i] = points
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return RetrievalOutcome{}, err
	}

	var outcome RetrievalOutcome
	for i, err := range phaseErrs {
		if err == nil {
			continue
		}
		if domain.IsKind(err, domain.ErrConfiguration) {
			return RetrievalOutcome{}, fmt.Errorf("retrieval phase %s: %w", phases[i].name, err)
		}
		outcome.FailedPhases = append(outcome.FailedPhases, phases[i].name)
	}
	if len(outcome.FailedPhases) == len(phases) {
		return outcome, domain.WrapError(domain.ErrTemporary, "retrieve", errors.Join(phaseErrs...))
	}

	merged := make(map[string]*mergedEntry)
	order := 0
	fold := func(points []domain.ScoredPoint, weight float64) {
		for _, point := range points {
			entry, ok := merged[point.ID]
			if !ok {
				entry = &mergedEntry{
					result: domain.SearchResult{ID: point.ID, Score: point.Score, Payload: point.Payload},
					order:  order,
				}
				merged[point.ID] = entry
				order++
			}
			if point.Score > entry.result.Score {
				entry.result.Score = point.Score
			}
			entry.score += weight * point.Score
		}
	}

	for i, phase := range phases {
		fold(phaseResults[i], r.weightFor(phase.name))
	}

	out := make([]*mergedEntry, 0, len(merged))
	for _, entry := range merged {
		entry.result.MergedScore = entry.score + r.booster.Boost(query, entry.result.Payload)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].result.MergedScore > out[j].result.MergedScore
	})

	results := make([]domain.SearchResult, 0, len(out))
	for _, entry := range out {
		results = append(results, entry.result)
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	outcome.Results = results
	return outcome, nil
}

func (r *MultiPhaseRetriever) weightFor(phase string) float64 {
	switch phase {
	case phaseStructured:
		return r.cfg.Weights.Alpha
	case phaseBroad:
		return 1 - r.cfg.Weights.Alpha
	case phasePlain:
		return r.cfg.Weights.Gamma
	case phaseCardinal:
		return r.cfg.Weights.Delta
	default:
		return 0
	}
}

func (r *MultiPhaseRetriever) buildPhases(vector []float32, query string, opts RetrievalOptions, pages []int) []retrievalPhase {
	base := domain.VectorQuery{
		Collection:     opts.Collection,
		Vector:         vector,
		Limit:          opts.Limit,
		ScoreThreshold: opts.ScoreThreshold,
	}

	structured := base
	structured.Filter = domain.VectorFilter{
		ChunkTypes:       unionStrings(r.cfg.StructuredChunkTypes, opts.ChunkTypes),
		DocumentBaseName: opts.DocumentBaseName,
		Pages:            pages,
	}

	broad := base
	broad.Filter = domain.VectorFilter{
		DocumentBaseName: opts.DocumentBaseName,
		Pages:            pages,
	}
	if r.cfg.VisualChunkType != "" {
		broad.Filter.ExcludeChunkTypes = []string{r.cfg.VisualChunkType}
	}

	plain := base
	plain.Limit = opts.Limit * 2
	plain.Filter = domain.VectorFilter{Pages: pages}

	phases := []retrievalPhase{
		{name: phaseStructured, query: structured},
		{name: phaseBroad, query: broad},
		{name: phasePlain, query: plain},
	}
	if HasCardinalityIntent(query) {
		cardinal := base
		cardinal.Limit = opts.Limit * 3
		cardinal.Filter = domain.VectorFilter{Pages: pages}
		phases = append(phases, retrievalPhase{name: phaseCardinal, query: cardinal})
	}
	return phases
}

// outlinePages returns the pages named by the best outline chunks, or nil when scoping is not possible.
func (r *MultiPhaseRetriever) outlinePages(ctx context.Context, vector []float32, opts RetrievalOptions) []int {
	points, err := r.store.Search(ctx, domain.VectorQuery{
		Collection: opts.Collection,
		Vector:     vector,
		Filter: domain.VectorFilter{
			ChunkTypes:       []string{domain.ChunkTypeOutline},
			DocumentBaseName: opts.DocumentBaseName,
		},
		Limit: r.cfg.OutlineLimit,
	})
	if err != nil {
		slog.WarnContext(ctx, "outline_scoping_skipped", "collection", opts.Collection, "error", err)
		return nil
	}

	seen := make(map[int]struct{})
	pages := make([]int, 0, len(points))
	for _, point := range points {
		page := point.Payload.Page
		if page <= 0 {
			continue
		}
		if _, ok := seen[page]; ok {
			continue
		}
		seen[page] = struct{}{}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil
	}
	return pages
}

func (r *MultiPhaseRetriever) observe(phase string, results int, err error) {
	if r.observer != nil {
		r.observer.ObservePhase(phase, results, err)
	}
}

// HasCardinalityIntent reports whether the query asks about multiplicities of a numbered data element,
// e.g. "[0..1] bei 3225".
func HasCardinalityIntent(query string) bool {
	return multiplicityPattern.MatchString(query) && fourDigitCodePattern.MatchString(query)
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, value := range list {
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	return out
}
