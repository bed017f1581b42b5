package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, apiKey string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exec:       exec,
	}
}

type point struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (c *Client) Search(ctx context.Context, query domain.VectorQuery) ([]domain.ScoredPoint, error) {
	reqBody := map[string]any{
		"vector":       query.Vector,
		"limit":        query.Limit,
		"with_payload": true,
	}
	if query.ScoreThreshold > 0 {
		reqBody["score_threshold"] = query.ScoreThreshold
	}
	if filter := buildFilter(query.Filter); filter != nil {
		reqBody["filter"] = filter
	}

	var resp struct {
		Result []point `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(query.Collection))
	if err := c.call(ctx, "search", http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return toScoredPoints(resp.Result), nil
}

func (c *Client) Scroll(ctx context.Context, collection string, filter domain.VectorFilter, limit int) ([]domain.ScoredPoint, error) {
	reqBody := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var resp struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", url.PathEscape(collection))
	if err := c.call(ctx, "scroll", http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return toScoredPoints(resp.Result.Points), nil
}

// CollectionVectorSize reads the size of the unnamed vector, or of the only named vector.
func (c *Client) CollectionVectorSize(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s", url.PathEscape(collection))
	if err := c.call(ctx, "collection_info", http.MethodGet, path, nil, &resp); err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return 0, domain.WrapError(domain.ErrInvalidInput, "qdrant collection info", fmt.Errorf("collection %s does not exist: %w", collection, err))
		}
		return 0, err
	}

	raw := resp.Result.Config.Params.Vectors
	var single struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Size > 0 {
		return single.Size, nil
	}
	var named map[string]struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && len(named) == 1 {
		for _, params := range named {
			return params.Size, nil
		}
	}
	return 0, domain.WrapError(domain.ErrConfiguration, "qdrant collection info", fmt.Errorf("cannot determine vector size of %s", collection))
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) error {
	_, err := resilience.Do(ctx, c.exec, "qdrant."+operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.doJSON(ctx, operation, method, path, payload, out)
	}, resilience.ClassifyHTTP)
	if isDimensionError(err) {
		return domain.WrapError(domain.ErrConfiguration, "qdrant "+operation, err)
	}
	return resilience.WrapProviderError("qdrant "+operation, err)
}

// isDimensionError matches Qdrant's 400 "Vector dimension error" for a query vector of the wrong size.
func isDimensionError(err error) bool {
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(statusErr.Body), "dimension")
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("qdrant", operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func buildFilter(filter domain.VectorFilter) map[string]any {
	if filter.IsEmpty() {
		return nil
	}
	must := make([]map[string]any, 0, 3)
	if len(filter.ChunkTypes) > 0 {
		must = append(must, matchAny("chunk_type", filter.ChunkTypes))
	}
	if filter.DocumentBaseName != "" {
		must = append(must, map[string]any{
			"key":   "document_base_name",
			"match": map[string]any{"value": filter.DocumentBaseName},
		})
	}
	if len(filter.Pages) > 0 {
		must = append(must, matchAny("page", filter.Pages))
	}

	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(filter.ExcludeChunkTypes) > 0 {
		out["must_not"] = []map[string]any{matchAny("chunk_type", filter.ExcludeChunkTypes)}
	}
	return out
}

func matchAny[T any](key string, values []T) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"any": values},
	}
}

func toScoredPoints(points []point) []domain.ScoredPoint {
	out := make([]domain.ScoredPoint, 0, len(points))
	for _, p := range points {
		out = append(out, domain.ScoredPoint{
			ID:      pointID(p.ID),
			Score:   p.Score,
			Payload: NormalizePayload(p.Payload),
		})
	}
	return out
}

// pointID accepts both UUID strings and unsigned integer ids.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
