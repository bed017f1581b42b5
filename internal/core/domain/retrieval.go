package domain

import "time"

// Chunk types stored in the payload of indexed fragments.
const (
	ChunkTypeParagraph          = "paragraph"
	ChunkTypeDefinition         = "definition"
	ChunkTypeAbbreviation       = "abbreviation"
	ChunkTypeStructuredTable    = "structured_table"
	ChunkTypeProcessDescription = "process_description"
	ChunkTypeFlow               = "flow"
	ChunkTypeValidationRule     = "validation_rule"
	ChunkTypeTableMap           = "table_map"
	ChunkTypeVisualSummary      = "visual_summary"
	ChunkTypeOutline            = "pseudo_outline"
)

// Content types that mark curated knowledge.
const (
	ContentTypeFAQ        = "faq"
	ContentTypeCorrection = "correction"
	ContentTypeCurated    = "curated"
)

// DocumentPayload is the canonical document schema seen by everything behind the vector store boundary.
type DocumentPayload struct {
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Source           string   `json:"source"`
	Date             string   `json:"date,omitempty"`
	ChunkType        string   `json:"chunk_type"`
	ContentType      string   `json:"content_type,omitempty"`
	DocumentBaseName string   `json:"document_base_name,omitempty"`
	Page             int      `json:"page,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
}

type SearchResult struct {
	ID          string          `json:"id"`
	Score       float64         `json:"score"`
	MergedScore float64         `json:"merged_score"`
	Payload     DocumentPayload `json:"payload"`
}

// VectorFilter describes the subset of points a single search phase may return.
type VectorFilter struct {
	ChunkTypes        []string
	ExcludeChunkTypes []string
	DocumentBaseName  string
	Pages             []int
}

func (f VectorFilter) IsEmpty() bool {
	return len(f.ChunkTypes) == 0 && len(f.ExcludeChunkTypes) == 0 && f.DocumentBaseName == "" && len(f.Pages) == 0
}

type VectorQuery struct {
	Collection     string
	Vector         []float32
	Filter         VectorFilter
	Limit          int
	ScoreThreshold float64
}

type ScoredPoint struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload DocumentPayload `json:"payload"`
}

type SourceRef struct {
	Title  string  `json:"title"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

type ChunkGroup struct {
	ChunkType string         `json:"chunk_type"`
	Results   []SearchResult `json:"results"`
}

// RetrievalContext is built fresh for each request from ranked results.
type RetrievalContext struct {
	Groups  []ChunkGroup   `json:"groups"`
	Results []SearchResult `json:"results"`
	Sources []SourceRef    `json:"sources"`
}

type SearchOptions struct {
	UseHyDE          bool    `json:"useHyDE"`
	UseFilters       bool    `json:"useFilters"`
	UseOptimizations bool    `json:"useOptimizations"`
	CollectionName   string  `json:"collectionName,omitempty"`
	Limit            int     `json:"limit"`
	ScoreThreshold   float64 `json:"scoreThreshold"`
	UseCache         bool    `json:"useCache"`
}

type SearchRequest struct {
	Query   string        `json:"query"`
	Options SearchOptions `json:"options"`
}

type SearchMetrics struct {
	TotalTime             time.Duration `json:"totalTime"`
	QueryOptimizationTime time.Duration `json:"queryOptimizationTime"`
	SearchTime            time.Duration `json:"searchTime"`
	ResultCount           int           `json:"resultCount"`
	CollectionUsed        string        `json:"collectionUsed"`
	Method                string        `json:"method"`
}

type QueryProvenance struct {
	Original     string     `json:"original"`
	Expanded     string     `json:"expanded"`
	Hypothetical string     `json:"hypothetical,omitempty"`
	UsedHyDE     bool       `json:"usedHyDE"`
	UsedFilters  bool       `json:"usedFilters"`
	Type         IntentType `json:"type"`
	Collection   string     `json:"collection"`
	IsFallback   bool       `json:"is_fallback"`
}

type SearchResponse struct {
	Results    []SearchResult  `json:"results"`
	Metrics    SearchMetrics   `json:"metrics"`
	Query      QueryProvenance `json:"query"`
	IsFallback bool            `json:"is_fallback"`
}

// Clone returns a deep copy so cached responses cannot be mutated by callers.
func (r SearchResponse) Clone() SearchResponse {
	out := r
	out.Results = make([]SearchResult, len(r.Results))
	for i, res := range r.Results {
		res.Payload.Keywords = append([]string(nil), res.Payload.Keywords...)
		out.Results[i] = res
	}
	return out
}
