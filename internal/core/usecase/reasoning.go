package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

type ReasoningConfig struct {
	MaxAPICalls           int
	Timeout               time.Duration
	FallbackTimeout       time.Duration
	MaxIterations         int
	ConfidenceThreshold   float64
	EnableRefinement      bool
	ContextTokens         int
	FallbackContextTokens int
}

func DefaultReasoningConfig() ReasoningConfig {
	return ReasoningConfig{
		MaxAPICalls:           6,
		Timeout:               30 * time.Second,
		FallbackTimeout:       10 * time.Second,
		MaxIterations:         2,
		ConfidenceThreshold:   0.7,
		EnableRefinement:      true,
		ContextTokens:         3000,
		FallbackContextTokens: 1000,
	}
}

func (c ReasoningConfig) normalize() ReasoningConfig {
	def := DefaultReasoningConfig()
	if c.MaxAPICalls <= 0 {
		c.MaxAPICalls = def.MaxAPICalls
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = def.FallbackTimeout
	}
	if c.MaxIterations < 0 {
		c.MaxIterations = 0
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = def.ContextTokens
	}
	if c.FallbackContextTokens <= 0 {
		c.FallbackContextTokens = def.FallbackContextTokens
	}
	return c
}

const (
	fallbackReasonTimeout          = "timeout"
	fallbackReasonCancelled        = "cancelled"
	fallbackReasonBudget           = "budget_exhausted"
	fallbackReasonGenerationFailed = "generation_failed"

	timeoutQualityCompressed = 0.3
	staticResponseQuality    = 0.1
)

// ContextRetriever fetches additional results for the gaps named by the quality assessment.
type ContextRetriever func(ctx context.Context, query string, gaps []string) ([]domain.SearchResult, error)

// ReasoningObserver receives every finished reasoning run.
type ReasoningObserver interface {
	ObserveReasoning(result domain.ReasoningResult)
}

type ReasoningOrchestrator struct {
	generator ports.TextGenerator
	tokens    ports.TokenCounter
	cfg       ReasoningConfig
	observer  ReasoningObserver
	now       func() time.Time
}

func NewReasoningOrchestrator(generator ports.TextGenerator, tokens ports.TokenCounter, cfg ReasoningConfig, observer ReasoningObserver) *ReasoningOrchestrator {
	return &ReasoningOrchestrator{
		generator: generator,
		tokens:    tokens,
		cfg:       cfg.normalize(),
		observer:  observer,
		now:       time.Now,
	}
}

func (o *ReasoningOrchestrator) Config() ReasoningConfig {
	return o.cfg
}

// Run always returns a result. The pipeline races the configured timeout; on timeout its context is
// cancelled and whatever it produces later is dropped.
func (o *ReasoningOrchestrator) Run(ctx context.Context, req domain.ReasoningRequest, budget *CallBudget, retrieve ContextRetriever) domain.ReasoningResult {
	if budget == nil {
		budget = NewCallBudget(o.cfg.MaxAPICalls)
	}

	timer := time.NewTimer(o.cfg.Timeout)
	defer timer.Stop()

	pipelineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan domain.ReasoningResult, 1)
	go func() {
		done <- o.pipeline(pipelineCtx, req, budget, retrieve)
	}()

	var result domain.ReasoningResult
	select {
	case result = <-done:
	case <-timer.C:
		cancel()
		slog.Warn("reasoning_timeout", "timeout_ms", o.cfg.Timeout.Milliseconds(), "api_calls_used", budget.Used())
		result = o.timeoutFallback(ctx, req, budget)
	case <-ctx.Done():
		cancel()
		slog.InfoContext(ctx, "reasoning_cancelled", "error", ctx.Err(), "api_calls_used", budget.Used())
		result = o.cancelledResult(req)
	}

	result.APICallsUsed = budget.Used()
	if o.observer != nil {
		o.observer.ObserveReasoning(result)
	}
	return result
}

type reasoningRun struct {
	o        *ReasoningOrchestrator
	req      domain.ReasoningRequest
	budget   *CallBudget
	context  domain.RetrievalContext
	steps    []domain.ReasoningStep
	contextT string
}

func (r *reasoningRun) step(state domain.ReasoningState, fn func() int) {
	started := r.o.now()
	before := r.budget.Used()
	results := fn()
	r.steps = append(r.steps, domain.ReasoningStep{
		Step:      state,
		Timestamp: started,
		Duration:  r.o.now().Sub(started),
		APICalls:  r.budget.Used() - before,
		Results:   results,
	})
}

func (r *reasoningRun) setContext(rc domain.RetrievalContext) {
	r.context = rc
	r.contextT = r.o.compress(formatContext(rc), r.o.cfg.ContextTokens)
}

func (o *ReasoningOrchestrator) pipeline(ctx context.Context, req domain.ReasoningRequest, budget *CallBudget, retrieve ContextRetriever) domain.ReasoningResult {
	run := &reasoningRun{o: o, req: req, budget: budget}
	run.setContext(req.Context)
	result := domain.ReasoningResult{
		ContextAnalysis: domain.ContextAnalysis{TopicsIdentified: []string{}, InformationGaps: []string{}},
		QAAnalysis:      domain.QAAnalysis{MissingInfo: []string{}},
	}

	if len(req.Context.Results) == 0 {
		run.step(domain.StateDirectResponse, func() int {
			text, err := o.call(ctx, budget, buildDirectAnswerPrompt(req.Query), false)
			if err != nil {
				slog.Warn("reasoning_direct_response_failed", "error", err)
				result.Response = staticFallbackResponse(run.context)
				result.FallbackReason = fallbackReason(err)
				result.FinalQuality = staticResponseQuality
				return 0
			}
			result.Response = text
			result.FinalQuality = blendQuality(0.5, 0)
			return 0
		})
		result.ReasoningSteps = run.steps
		result.TerminalState = domain.StateDone
		return result
	}

	// One call stays reserved for generation; analyses only run while more than one remains.
	run.step(domain.StateContextAnalysis, func() int {
		result.ContextAnalysis = heuristicContextAnalysis(run.context)
		if budget.Remaining() <= 1 {
			return len(run.context.Results)
		}
		var parsed domain.ContextAnalysis
		if o.callJSON(ctx, budget, buildContextAnalysisPrompt(req.Query, run.contextT), &parsed, "context_analysis") {
			result.ContextAnalysis = mergeContextAnalysis(result.ContextAnalysis, parsed)
		}
		return len(run.context.Results)
	})

	run.step(domain.StateQAAnalysis, func() int {
		result.QAAnalysis = domain.QAAnalysis{
			Answerable:       true,
			Confidence:       0.5,
			NeedsMoreContext: result.ContextAnalysis.ContextQuality < 0.5,
			MissingInfo:      []string{},
		}
		if budget.Remaining() <= 1 {
			return 0
		}
		var parsed domain.QAAnalysis
		if o.callJSON(ctx, budget, buildQAAnalysisPrompt(req.Query, run.contextT), &parsed, "qa_analysis") {
			parsed.Confidence = clamp01(parsed.Confidence)
			if parsed.MissingInfo == nil {
				parsed.MissingInfo = []string{}
			}
			result.QAAnalysis = parsed
		}
		return 0
	})

	quality := blendQuality(result.QAAnalysis.Confidence, result.ContextAnalysis.ContextQuality)

	run.step(domain.StatePipelineDecision, func() int {
		result.PipelineDecision = o.decide(result.QAAnalysis, quality)
		return 0
	})

	var answer string
	var generateErr error
	run.step(domain.StateGenerate, func() int {
		answer, generateErr = o.call(ctx, budget, buildAnswerPrompt(req.Query, run.contextT, "", nil), false)
		return 0
	})
	if generateErr != nil {
		slog.Warn("reasoning_generate_failed", "error", generateErr)
		result.Response = staticFallbackResponse(run.context)
		result.FinalQuality = staticResponseQuality
		result.FallbackReason = fallbackReason(generateErr)
		result.ReasoningSteps = run.steps
		result.TerminalState = domain.StateDone
		return result
	}

	decision := result.PipelineDecision
	missing := result.QAAnalysis.MissingInfo
	for decision.UseIterativeRefinement &&
		quality < decision.ConfidenceThreshold &&
		result.IterationsUsed < decision.MaxIterations &&
		budget.Remaining() >= 2 &&
		ctx.Err() == nil {

		assessed := false
		run.step(domain.StateQualityAssessment, func() int {
			var parsed struct {
				Confidence  float64  `json:"confidence"`
				MissingInfo []string `json:"missingInfo"`
			}
			if o.callJSON(ctx, budget, buildQualityAssessmentPrompt(req.Query, answer, run.contextT), &parsed, "quality_assessment") {
				assessed = true
				result.QAAnalysis.Confidence = clamp01(parsed.Confidence)
				if len(parsed.MissingInfo) > 0 {
					missing = parsed.MissingInfo
					result.QAAnalysis.MissingInfo = parsed.MissingInfo
				}
			}
			return 0
		})
		if assessed {
			quality = blendQuality(result.QAAnalysis.Confidence, result.ContextAnalysis.ContextQuality)
			if quality >= decision.ConfidenceThreshold {
				break
			}
		}
		if budget.Remaining() < 1 {
			break
		}

		var refined string
		var refineErr error
		run.step(domain.StateRefine, func() int {
			added := 0
			if retrieve != nil && len(missing) > 0 && budget.Remaining() >= 2 {
				if err := budget.Acquire(ctx); err == nil {
					extra, err := retrieve(ctx, req.Query, missing)
					if err != nil {
						slog.Warn("reasoning_refine_retrieval_failed", "error", err)
					} else {
						added = run.extendContext(extra)
						if added > 0 {
							result.ContextAnalysis.ContextQuality = maxFloat(
								result.ContextAnalysis.ContextQuality,
								heuristicContextAnalysis(run.context).ContextQuality,
							)
						}
					}
				}
			}
			refined, refineErr = o.call(ctx, budget, buildAnswerPrompt(req.Query, run.contextT, answer, missing), false)
			return added
		})
		if refineErr != nil {
			slog.Warn("reasoning_refine_failed", "error", refineErr)
			break
		}
		answer = refined
		result.IterationsUsed++
		quality = blendQuality(result.QAAnalysis.Confidence, result.ContextAnalysis.ContextQuality)
	}

	result.Response = answer
	result.FinalQuality = quality
	result.ReasoningSteps = run.steps
	result.TerminalState = domain.StateDone
	if decision.UseIterativeRefinement &&
		quality < decision.ConfidenceThreshold &&
		result.IterationsUsed < decision.MaxIterations &&
		budget.Remaining() < 2 {
		result.FallbackReason = fallbackReasonBudget
	}
	return result
}

// extendContext appends unseen results and returns how many were added.
func (r *reasoningRun) extendContext(extra []domain.SearchResult) int {
	seen := make(map[string]struct{}, len(r.context.Results))
	for _, result := range r.context.Results {
		seen[result.ID] = struct{}{}
	}
	merged := append([]domain.SearchResult{}, r.context.Results...)
	added := 0
	for _, result := range extra {
		if _, ok := seen[result.ID]; ok {
			continue
		}
		seen[result.ID] = struct{}{}
		merged = append(merged, result)
		added++
	}
	if added > 0 {
		r.setContext(BuildRetrievalContext(merged))
	}
	return added
}

func (o *ReasoningOrchestrator) decide(qa domain.QAAnalysis, quality float64) domain.PipelineDecision {
	decision := domain.PipelineDecision{
		MaxIterations:       o.cfg.MaxIterations,
		ConfidenceThreshold: o.cfg.ConfidenceThreshold,
	}
	switch {
	case !o.cfg.EnableRefinement || o.cfg.MaxIterations == 0:
		decision.Reason = "refinement disabled"
	case !qa.Answerable && !qa.NeedsMoreContext:
		decision.Reason = "question not answerable from available documents"
	case qa.NeedsMoreContext || quality < o.cfg.ConfidenceThreshold:
		decision.UseIterativeRefinement = true
		decision.Reason = fmt.Sprintf("quality %.2f below threshold %.2f", quality, o.cfg.ConfidenceThreshold)
	default:
		decision.Reason = "context sufficient for single pass"
	}
	return decision
}

func (o *ReasoningOrchestrator) timeoutFallback(ctx context.Context, req domain.ReasoningRequest, budget *CallBudget) domain.ReasoningResult {
	started := o.now()
	result := domain.ReasoningResult{
		TerminalState:   domain.StateTimeoutFallback,
		FallbackReason:  fallbackReasonTimeout,
		ContextAnalysis: heuristicContextAnalysis(req.Context),
		QAAnalysis:      domain.QAAnalysis{MissingInfo: []string{}},
	}
	before := budget.Used()

	fallbackCtx, cancel := context.WithTimeout(ctx, o.cfg.FallbackTimeout)
	defer cancel()

	compressed := o.compress(formatContext(req.Context), o.cfg.FallbackContextTokens)
	text, err := o.call(fallbackCtx, budget, buildCompressedAnswerPrompt(req.Query, compressed), false)
	if err != nil {
		slog.Warn("reasoning_timeout_fallback_failed", "error", err)
		result.Response = staticFallbackResponse(req.Context)
		result.FinalQuality = staticResponseQuality
	} else {
		result.Response = text
		result.FinalQuality = timeoutQualityCompressed
	}

	result.ReasoningSteps = []domain.ReasoningStep{{
		Step:      domain.StateTimeoutFallback,
		Timestamp: started,
		Duration:  o.now().Sub(started),
		APICalls:  budget.Used() - before,
		Results:   len(req.Context.Results),
	}}
	return result
}

// cancelledResult answers a caller that has gone away. No further provider calls are made.
func (o *ReasoningOrchestrator) cancelledResult(req domain.ReasoningRequest) domain.ReasoningResult {
	now := o.now()
	return domain.ReasoningResult{
		Response:        staticFallbackResponse(req.Context),
		FinalQuality:    staticResponseQuality,
		TerminalState:   domain.StateTimeoutFallback,
		FallbackReason:  fallbackReasonCancelled,
		ContextAnalysis: heuristicContextAnalysis(req.Context),
		QAAnalysis:      domain.QAAnalysis{MissingInfo: []string{}},
		ReasoningSteps: []domain.ReasoningStep{{
			Step:      domain.StateTimeoutFallback,
			Timestamp: now,
			Results:   len(req.Context.Results),
		}},
	}
}

func (o *ReasoningOrchestrator) call(ctx context.Context, budget *CallBudget, prompt string, jsonMode bool) (string, error) {
	if o.generator == nil {
		return "", domain.WrapError(domain.ErrConfiguration, "generate", errors.New("text generator is not configured"))
	}
	if err := budget.Acquire(ctx); err != nil {
		return "", err
	}
	text, err := o.generator.GenerateText(ctx, prompt, ports.GenerateOptions{
		SystemPrompt: reasoningSystemPrompt,
		Temperature:  0.2,
		JSON:         jsonMode,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

// callJSON reports whether a structured answer was obtained. Parse errors are logged and ignored.
func (o *ReasoningOrchestrator) callJSON(ctx context.Context, budget *CallBudget, prompt string, out any, operation string) bool {
	text, err := o.call(ctx, budget, prompt, true)
	if err != nil {
		slog.Warn("reasoning_call_failed", "step", operation, "error", err)
		return false
	}
	if err := json.Unmarshal([]byte(extractJSONObject(text)), out); err != nil {
		slog.Warn("reasoning_parse_failed", "step", operation, "error", err)
		return false
	}
	return true
}

func (o *ReasoningOrchestrator) compress(text string, maxTokens int) string {
	if o.tokens != nil {
		return o.tokens.Truncate(text, maxTokens)
	}
	runes := []rune(text)
	if limit := maxTokens * 4; len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

func heuristicContextAnalysis(rc domain.RetrievalContext) domain.ContextAnalysis {
	analysis := domain.ContextAnalysis{TopicsIdentified: []string{}, InformationGaps: []string{}}
	top := rc.Results
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) == 0 {
		analysis.InformationGaps = append(analysis.InformationGaps, "keine Dokumente gefunden")
		return analysis
	}
	sum := 0.0
	for _, result := range top {
		sum += result.MergedScore
	}
	analysis.ContextQuality = clamp01(sum / float64(len(top)))
	for _, group := range rc.Groups {
		analysis.TopicsIdentified = append(analysis.TopicsIdentified, group.ChunkType)
	}
	return analysis
}

func mergeContextAnalysis(prior, parsed domain.ContextAnalysis) domain.ContextAnalysis {
	out := prior
	if len(parsed.TopicsIdentified) > 0 {
		out.TopicsIdentified = parsed.TopicsIdentified
	}
	if parsed.InformationGaps != nil {
		out.InformationGaps = parsed.InformationGaps
	}
	out.ContextQuality = clamp01(parsed.ContextQuality)
	return out
}

func blendQuality(qaConfidence, contextQuality float64) float64 {
	return clamp01(0.6*qaConfidence + 0.4*contextQuality)
}

func fallbackReason(err error) string {
	if domain.IsKind(err, domain.ErrBudgetExhausted) {
		return fallbackReasonBudget
	}
	return fallbackReasonGenerationFailed
}
