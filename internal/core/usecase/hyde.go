package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

const defaultHyDEPrompt = `Du bist Experte für die deutsche Energiewirtschaft und Marktkommunikation (GPKE, WiM, GeLi Gas, MaBiS, EDIFACT).
Schreibe eine kurze, sachliche Antwort auf die Frage, so wie sie in einem offiziellen Regelwerk oder Leitfaden stehen würde.
Verwende die Fachbegriffe der Marktkommunikation. Keine Einleitung, keine Rückfragen, maximal 150 Wörter.`

// HypotheticalAnswerGenerator writes a plausible answer whose embedding is closer to the indexed documents
// than the short user question.
type HypotheticalAnswerGenerator struct {
	generator ports.TextGenerator
	prompts   map[string]string
	maxTokens int
}

// NewHypotheticalAnswerGenerator takes per-collection system prompts; collections without one use the default
// energy-market prompt.
func NewHypotheticalAnswerGenerator(generator ports.TextGenerator, prompts map[string]string) *HypotheticalAnswerGenerator {
	copied := make(map[string]string, len(prompts))
	for collection, prompt := range prompts {
		copied[collection] = prompt
	}
	return &HypotheticalAnswerGenerator{
		generator: generator,
		prompts:   copied,
		maxTokens: 300,
	}
}

// Generate never fails: any provider problem yields the expanded query and used=false.
func (g *HypotheticalAnswerGenerator) Generate(ctx context.Context, expandedQuery, collection string, budget *CallBudget) (string, bool) {
	if g == nil || g.generator == nil {
		return expandedQuery, false
	}
	if budget != nil {
		if err := budget.Acquire(ctx); err != nil {
			slog.Warn("hyde_disabled", "reason", "budget", "error", err)
			return expandedQuery, false
		}
	}

	text, err := g.generator.GenerateText(ctx, expandedQuery, ports.GenerateOptions{
		SystemPrompt: g.systemPrompt(collection),
		Temperature:  0.3,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		slog.Warn("hyde_disabled", "reason", "provider_error", "collection", collection, "error", err)
		return expandedQuery, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Warn("hyde_disabled", "reason", "empty_response", "collection", collection)
		return expandedQuery, false
	}
	return text, true
}

func (g *HypotheticalAnswerGenerator) systemPrompt(collection string) string {
	if prompt, ok := g.prompts[collection]; ok && strings.TrimSpace(prompt) != "" {
		return prompt
	}
	return defaultHyDEPrompt
}
