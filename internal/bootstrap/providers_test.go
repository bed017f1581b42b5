package bootstrap

import (
	"testing"

	"github.com/kirillkom/mako-assistant/internal/config"
	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/llm"
)

func TestNewProvidersSelectsConfiguredBackends(t *testing.T) {
	set, err := newProviders(config.Config{
		EmbeddingProvider:    "openai",
		LLMProvider:          "ollama",
		OllamaURL:            "http://localhost:11434",
		OllamaGenModel:       "llama3.1:8b",
		OllamaFallbackModels: []string{"mistral:7b"},
		OpenAIEmbedModel:     "text-embedding-3-small",
		EmbeddingDimension:   1536,
	}, nil)
	if err != nil {
		t.Fatalf("newProviders() error = %v", err)
	}
	if set.embedder.Name() != "openai" {
		t.Fatalf("expected openai embedder, got %s", set.embedder.Name())
	}
	rotating, ok := set.generator.(*llm.RotatingGenerator)
	if !ok {
		t.Fatalf("expected rotating generator, got %T", set.generator)
	}
	if rotating.Current() != "ollama:llama3.1:8b" {
		t.Fatalf("expected primary model first, got %s", rotating.Current())
	}
}

func TestNewProvidersRejectsUnknownProvider(t *testing.T) {
	_, err := newProviders(config.Config{EmbeddingProvider: "cohere", LLMProvider: "ollama"}, nil)
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
