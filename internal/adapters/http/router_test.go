package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/mako-assistant/internal/config"
	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

type searchServiceFake struct {
	got  domain.SearchRequest
	resp *domain.SearchResponse
	err  error
}

func (f *searchServiceFake) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type reasoningServiceFake struct {
	requestID string
	err       error
}

func (f *reasoningServiceFake) Reason(ctx context.Context, req domain.SearchRequest) (*domain.ReasoningResult, *domain.SearchResponse, error) {
	f.requestID = domain.RequestIDFromContext(ctx)
	if f.err != nil {
		return nil, nil, f.err
	}
	return &domain.ReasoningResult{Response: "Antwort", TerminalState: domain.StateDone, FinalQuality: 0.8},
		&domain.SearchResponse{Results: []domain.SearchResult{}, Query: domain.QueryProvenance{Original: req.Query}}, nil
}

func newTestHandler(t *testing.T, cfg config.Config, search *searchServiceFake, reason *reasoningServiceFake) http.Handler {
	t.Helper()
	if search == nil {
		search = &searchServiceFake{resp: &domain.SearchResponse{Results: []domain.SearchResult{}}}
	}
	if reason == nil {
		reason = &reasoningServiceFake{}
	}
	router, err := NewRouter(cfg, search, reason)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func postJSON(handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestSearchDefaultsOptimizationsOn(t *testing.T) {
	search := &searchServiceFake{resp: &domain.SearchResponse{
		Results: []domain.SearchResult{{ID: "p1", MergedScore: 0.9}},
		Metrics: domain.SearchMetrics{Method: "optimized", ResultCount: 1},
	}}
	handler := newTestHandler(t, config.Config{}, search, nil)

	res := postJSON(handler, "/v1/search", map[string]any{
		"query":   "Fristen GPKE",
		"options": map[string]any{"useHyDE": false, "limit": 5},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	opts := search.got.Options
	if opts.UseHyDE || !opts.UseFilters || !opts.UseOptimizations || !opts.UseCache || opts.Limit != 5 {
		t.Fatalf("unexpected options %+v", opts)
	}

	var body domain.SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Results) != 1 || body.Metrics.Method != "optimized" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSearchMapsInvalidInputTo400(t *testing.T) {
	search := &searchServiceFake{err: domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))}
	handler := newTestHandler(t, config.Config{}, search, nil)

	res := postJSON(handler, "/v1/search", map[string]any{"query": "  "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchMapsConfigurationErrorTo500(t *testing.T) {
	search := &searchServiceFake{err: domain.WrapError(domain.ErrConfiguration, "embed", errors.New("dimension mismatch"))}
	handler := newTestHandler(t, config.Config{}, search, nil)

	res := postJSON(handler, "/v1/search", map[string]any{"query": "MaLo"})
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
}

func TestReasonPropagatesRequestID(t *testing.T) {
	reason := &reasoningServiceFake{}
	handler := newTestHandler(t, config.Config{}, nil, reason)

	body, _ := json.Marshal(map[string]any{"query": "Was ist eine MaLo?"})
	req := httptest.NewRequest(http.MethodPost, "/v1/reason", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "req-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reason.requestID != "req-7" || res.Header().Get(requestIDHeader) != "req-7" {
		t.Fatalf("expected request id propagation, got %q", reason.requestID)
	}
	var payload reasonResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Reasoning == nil || payload.Reasoning.Response != "Antwort" || payload.Search == nil {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReasonMapsQuotaTo429(t *testing.T) {
	reason := &reasoningServiceFake{err: domain.WrapError(domain.ErrQuotaExceeded, "generate", errors.New("429"))}
	handler := newTestHandler(t, config.Config{}, nil, reason)

	res := postJSON(handler, "/v1/reason", map[string]any{"query": "MaLo"})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
}

func TestOpenAPIValidationRejectsOutOfRangeLimit(t *testing.T) {
	search := &searchServiceFake{resp: &domain.SearchResponse{}}
	handler := newTestHandler(t, config.Config{OpenAPIValidationEnabled: true}, search, nil)

	res := postJSON(handler, "/v1/search", map[string]any{
		"query":   "GPKE",
		"options": map[string]any{"limit": 500},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "invalid request") {
		t.Fatalf("expected validation message, got %s", res.Body.String())
	}
	if search.got.Query != "" {
		t.Fatalf("search must not run for invalid requests")
	}

	ok := postJSON(handler, "/v1/search", map[string]any{"query": "GPKE", "options": map[string]any{"limit": 5}})
	if ok.Code != http.StatusOK {
		t.Fatalf("expected valid request to pass validation, got %d: %s", ok.Code, ok.Body.String())
	}
}

func TestSearchRejectsWrongMethod(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, nil, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/search", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
