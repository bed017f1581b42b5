package domain

import "time"

type ReasoningState string

const (
	StateDirectResponse    ReasoningState = "direct_response"
	StateContextAnalysis   ReasoningState = "context_analysis"
	StateQAAnalysis        ReasoningState = "qa_analysis"
	StatePipelineDecision  ReasoningState = "pipeline_decision"
	StateGenerate          ReasoningState = "generate"
	StateQualityAssessment ReasoningState = "quality_assessment"
	StateRefine            ReasoningState = "refine"
	StateDone              ReasoningState = "done"
	StateTimeoutFallback   ReasoningState = "timeout_fallback"
)

type ReasoningStep struct {
	Step      ReasoningState `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration,omitempty"`
	APICalls  int            `json:"api_calls,omitempty"`
	Results   int            `json:"results,omitempty"`
}

type ContextAnalysis struct {
	TopicsIdentified []string `json:"topicsIdentified"`
	InformationGaps  []string `json:"informationGaps"`
	ContextQuality   float64  `json:"contextQuality"`
}

type QAAnalysis struct {
	NeedsMoreContext bool     `json:"needsMoreContext"`
	Answerable       bool     `json:"answerable"`
	Confidence       float64  `json:"confidence"`
	MissingInfo      []string `json:"missingInfo"`
}

type PipelineDecision struct {
	UseIterativeRefinement bool    `json:"useIterativeRefinement"`
	MaxIterations          int     `json:"maxIterations"`
	ConfidenceThreshold    float64 `json:"confidenceThreshold"`
	Reason                 string  `json:"reason"`
}

type ReasoningRequest struct {
	Query   string           `json:"query"`
	Context RetrievalContext `json:"context"`
	// Analysis may be nil when the caller skipped intent analysis.
	Analysis *QueryAnalysisResult `json:"analysis,omitempty"`
}

type ReasoningResult struct {
	Response         string           `json:"response"`
	ReasoningSteps   []ReasoningStep  `json:"reasoningSteps"`
	FinalQuality     float64          `json:"finalQuality"`
	IterationsUsed   int              `json:"iterationsUsed"`
	ContextAnalysis  ContextAnalysis  `json:"contextAnalysis"`
	QAAnalysis       QAAnalysis       `json:"qaAnalysis"`
	PipelineDecision PipelineDecision `json:"pipelineDecision"`
	APICallsUsed     int              `json:"apiCallsUsed"`
	TerminalState    ReasoningState   `json:"terminalState"`
	FallbackReason   string           `json:"fallbackReason,omitempty"`
}
