package domain

import "time"

type SearchLogResult struct {
	ID          string  `json:"id"`
	ChunkType   string  `json:"chunk_type"`
	MergedScore float64 `json:"merged_score"`
}

// SearchLogEntry is the analytics record emitted after each search.
type SearchLogEntry struct {
	ID             string            `json:"id"`
	RequestID      string            `json:"request_id,omitempty"`
	Query          string            `json:"query"`
	ExpandedQuery  string            `json:"expanded_query"`
	IntentType     IntentType        `json:"intent_type"`
	Collection     string            `json:"collection"`
	Method         string            `json:"method"`
	UsedHyDE       bool              `json:"used_hyde"`
	UsedFilters    bool              `json:"used_filters"`
	IsFallback     bool              `json:"is_fallback"`
	CacheHit       bool              `json:"cache_hit"`
	DurationMs     float64           `json:"duration_ms"`
	Results        []SearchLogResult `json:"results"`
	FinalQuality   *float64          `json:"final_quality,omitempty"`
	APICallsUsed   int               `json:"api_calls_used,omitempty"`
	ReasoningState ReasoningState    `json:"reasoning_state,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
