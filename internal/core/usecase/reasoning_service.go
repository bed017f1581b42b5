package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// ReasoningUseCase runs retrieval and the orchestrator under one shared call budget.
type ReasoningUseCase struct {
	search       *SearchUseCase
	orchestrator *ReasoningOrchestrator
}

func NewReasoningUseCase(search *SearchUseCase, orchestrator *ReasoningOrchestrator) *ReasoningUseCase {
	return &ReasoningUseCase{search: search, orchestrator: orchestrator}
}

func (uc *ReasoningUseCase) Reason(ctx context.Context, req domain.SearchRequest) (*domain.ReasoningResult, *domain.SearchResponse, error) {
	budget := NewCallBudget(uc.orchestrator.Config().MaxAPICalls)

	run, err := uc.search.search(ctx, req, budget)
	if err != nil {
		return nil, nil, err
	}

	analysis := run.analysis
	retrieve := func(ctx context.Context, query string, gaps []string) ([]domain.SearchResult, error) {
		opts := run.options
		opts.UseHyDE = false
		opts.UseCache = false
		refined, err := uc.search.search(ctx, domain.SearchRequest{
			Query:   strings.TrimSpace(query + " " + strings.Join(gaps, " ")),
			Options: opts,
		}, nil)
		if err != nil {
			return nil, err
		}
		return refined.response.Results, nil
	}

	result := uc.orchestrator.Run(ctx, domain.ReasoningRequest{
		Query:    run.response.Query.Original,
		Context:  BuildRetrievalContext(run.response.Results),
		Analysis: &analysis,
	}, budget, retrieve)

	entry := NewSearchLogEntry(ctx, run.response, run.analysis, run.cacheHit, uc.search.now())
	quality := result.FinalQuality
	entry.FinalQuality = &quality
	entry.APICallsUsed = result.APICallsUsed
	entry.ReasoningState = result.TerminalState
	uc.search.emit(ctx, entry)

	return &result, run.response, nil
}
