package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/mako-assistant/internal/config"
	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
	"github.com/kirillkom/mako-assistant/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg     config.Config
	search  ports.SearchService
	reason  ports.ReasoningService
	metrics *metrics.HTTPServerMetrics
	mcp     http.Handler
	openapi routers.Router
}

func NewRouter(cfg config.Config, search ports.SearchService, reason ports.ReasoningService) (*Router, error) {
	rt := &Router{cfg: cfg, search: search, reason: reason}
	if cfg.OpenAPIValidationEnabled {
		router, err := loadOpenAPIRouter(context.Background())
		if err != nil {
			return nil, err
		}
		rt.openapi = router
	}
	return rt, nil
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

// WithMCP mounts the MCP streamable HTTP handler at /mcp behind the same traffic control as the REST API.
func (rt *Router) WithMCP(handler http.Handler) *Router {
	rt.mcp = handler
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/search", rt.handleSearch)
	api.HandleFunc("POST /v1/reason", rt.handleReason)
	if rt.mcp != nil {
		api.Handle("/mcp", rt.mcp)
	}

	var guarded http.Handler = api
	if rt.openapi != nil {
		guarded = openAPIValidationMiddleware(guarded, rt.openapi)
	}
	guarded = backpressureMiddleware(
		guarded,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		rt.recordRejected,
	)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejected)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", guarded)
	if rt.mcp != nil {
		root.Handle("/mcp", guarded)
	}

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	resp, err := rt.search.Search(r.Context(), req)
	if err != nil {
		rt.writeServiceError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type reasonResponse struct {
	Reasoning *domain.ReasoningResult `json:"reasoning"`
	Search    *domain.SearchResponse  `json:"search"`
}

func (rt *Router) handleReason(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	result, searchResp, err := rt.reason.Reason(r.Context(), req)
	if err != nil {
		rt.writeServiceError(w, r, "reason", err)
		return
	}
	writeJSON(w, http.StatusOK, reasonResponse{Reasoning: result, Search: searchResp})
}

func (rt *Router) writeServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", domain.RequestIDFromContext(r.Context()),
			"operation", operation,
			"status", status,
			"error", err.Error(),
		)
	}
	writeError(w, status, err.Error())
}

type searchOptionsDTO struct {
	UseHyDE          *bool   `json:"useHyDE"`
	UseFilters       *bool   `json:"useFilters"`
	UseOptimizations *bool   `json:"useOptimizations"`
	UseCache         *bool   `json:"useCache"`
	CollectionName   string  `json:"collectionName"`
	Limit            int     `json:"limit"`
	ScoreThreshold   float64 `json:"scoreThreshold"`
}

type searchRequestDTO struct {
	Query   string            `json:"query"`
	Options *searchOptionsDTO `json:"options"`
}

// toDomain enables every optimization the caller did not explicitly turn off.
func (d searchRequestDTO) toDomain() domain.SearchRequest {
	opts := domain.SearchOptions{
		UseHyDE:          true,
		UseFilters:       true,
		UseOptimizations: true,
		UseCache:         true,
	}
	if d.Options != nil {
		opts.UseHyDE = boolOr(d.Options.UseHyDE, true)
		opts.UseFilters = boolOr(d.Options.UseFilters, true)
		opts.UseOptimizations = boolOr(d.Options.UseOptimizations, true)
		opts.UseCache = boolOr(d.Options.UseCache, true)
		opts.CollectionName = d.Options.CollectionName
		opts.Limit = d.Options.Limit
		opts.ScoreThreshold = d.Options.ScoreThreshold
	}
	return domain.SearchRequest{Query: d.Query, Options: opts}
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (domain.SearchRequest, bool) {
	var dto searchRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return domain.SearchRequest{}, false
	}
	return dto.toDomain(), true
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
