package domain

type IntentType string

const (
	IntentDefinition       IntentType = "definition"
	IntentTableData        IntentType = "table_data"
	IntentProcess          IntentType = "process"
	IntentError            IntentType = "error"
	IntentDocumentSpecific IntentType = "document_specific"
	IntentGeneral          IntentType = "general"
)

type FilterCriteria struct {
	ChunkTypes       []string `json:"chunk_types,omitempty"`
	DocumentBaseName string   `json:"document_base_name,omitempty"`
	LatestVersion    bool     `json:"latest_version,omitempty"`
}

func (f FilterCriteria) IsEmpty() bool {
	return len(f.ChunkTypes) == 0 && f.DocumentBaseName == "" && !f.LatestVersion
}

// QueryAnalysisResult is produced once per request and never mutated afterwards.
type QueryAnalysisResult struct {
	IntentType        IntentType     `json:"intent_type"`
	DocumentReference string         `json:"document_reference,omitempty"`
	FilterCriteria    FilterCriteria `json:"filter_criteria"`
	ExpandedQuery     string         `json:"expanded_query"`
	Confidence        float64        `json:"confidence"`
}
