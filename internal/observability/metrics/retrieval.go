package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// RetrievalMetrics observes the search and reasoning pipelines and the provider circuit breakers.
type RetrievalMetrics struct {
	service string

	phaseTotal     *prometheus.CounterVec
	phaseResults   *prometheus.HistogramVec
	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	cacheTotal     *prometheus.CounterVec
	hydeTotal      *prometheus.CounterVec
	reasoningTotal *prometheus.CounterVec
	reasoningCalls *prometheus.HistogramVec
	reasoningIters *prometheus.HistogramVec
	reasoningScore *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
	breakerChanges *prometheus.CounterVec
}

func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		phaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "phase_total",
			Help: "Retrieval phases executed by phase and status.",
		}, []string{"service", "phase", "status"}),
		phaseResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "phase_results",
			Help:    "Points returned per retrieval phase.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 50},
		}, []string{"service", "phase"}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "requests_total",
			Help: "Finished searches by method and intent.",
		}, []string{"service", "method", "intent"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "duration_seconds",
			Help:    "Search pipeline duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "cache_total",
			Help: "Search cache lookups by result.",
		}, []string{"service", "result"}),
		hydeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "hyde_total",
			Help: "Hypothetical answer usage per search.",
		}, []string{"service", "used"}),
		reasoningTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reasoning", Name: "runs_total",
			Help: "Reasoning runs by terminal state and fallback reason.",
		}, []string{"service", "terminal_state", "fallback_reason"}),
		reasoningCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "reasoning", Name: "api_calls",
			Help:    "Provider calls charged per reasoning run.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"service"}),
		reasoningIters: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "reasoning", Name: "iterations",
			Help:    "Refinement iterations per reasoning run.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}, []string{"service"}),
		reasoningScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "reasoning", Name: "final_quality",
			Help:    "Final answer quality per reasoning run.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "resilience", Name: "breaker_state",
			Help: "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		}, []string{"service", "operation"}),
		breakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "resilience", Name: "breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"service", "operation", "to"}),
	}

	registerer.MustRegister(
		m.phaseTotal, m.phaseResults,
		m.searchTotal, m.searchDuration, m.cacheTotal, m.hydeTotal,
		m.reasoningTotal, m.reasoningCalls, m.reasoningIters, m.reasoningScore,
		m.breakerState, m.breakerChanges,
	)
	return m
}

func (m *RetrievalMetrics) ObservePhase(phase string, results int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.phaseTotal.WithLabelValues(m.service, phase, status).Inc()
	if err == nil {
		m.phaseResults.WithLabelValues(m.service, phase).Observe(float64(results))
	}
}

func (m *RetrievalMetrics) ObserveSearch(entry domain.SearchLogEntry) {
	cache := "miss"
	if entry.CacheHit {
		cache = "hit"
	}
	m.cacheTotal.WithLabelValues(m.service, cache).Inc()
	m.searchTotal.WithLabelValues(m.service, entry.Method, string(entry.IntentType)).Inc()
	if entry.CacheHit {
		return
	}
	m.searchDuration.WithLabelValues(m.service, entry.Method).Observe(entry.DurationMs / 1000)
	used := "false"
	if entry.UsedHyDE {
		used = "true"
	}
	m.hydeTotal.WithLabelValues(m.service, used).Inc()
}

func (m *RetrievalMetrics) ObserveReasoning(result domain.ReasoningResult) {
	reason := result.FallbackReason
	if reason == "" {
		reason = "none"
	}
	m.reasoningTotal.WithLabelValues(m.service, string(result.TerminalState), reason).Inc()
	m.reasoningCalls.WithLabelValues(m.service).Observe(float64(result.APICallsUsed))
	m.reasoningIters.WithLabelValues(m.service).Observe(float64(result.IterationsUsed))
	m.reasoningScore.WithLabelValues(m.service).Observe(result.FinalQuality)
}

// ObserveBreaker matches resilience.StateObserver.
func (m *RetrievalMetrics) ObserveBreaker(operation string, _ gobreaker.State, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(to))
	m.breakerChanges.WithLabelValues(m.service, operation, to.String()).Inc()
}
