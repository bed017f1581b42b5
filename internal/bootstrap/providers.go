package bootstrap

import (
	"fmt"

	"github.com/kirillkom/mako-assistant/internal/config"
	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/resilience"
)

type providerSet struct {
	embedder  ports.EmbeddingProvider
	generator ports.TextGenerator
}

// newProviders picks the embedding and generation backends once. Generation rotates across the primary
// model and any configured fallback models.
func newProviders(cfg config.Config, exec *resilience.Executor) (providerSet, error) {
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
	var openaiClient *openai.Client
	openaiFor := func() *openai.Client {
		if openaiClient == nil {
			openaiClient = openai.New(openai.Config{
				BaseURL:        cfg.OpenAIBaseURL,
				APIKey:         cfg.OpenAIAPIKey,
				ChatModel:      cfg.OpenAIChatModel,
				EmbeddingModel: cfg.OpenAIEmbedModel,
				Dimensions:     cfg.EmbeddingDimension,
			}, exec)
		}
		return openaiClient
	}

	var set providerSet
	switch cfg.EmbeddingProvider {
	case ollama.ProviderName:
		set.embedder = ollama.NewEmbedder(ollamaClient)
	case openai.ProviderName:
		set.embedder = openai.NewEmbedder(openaiFor())
	default:
		return providerSet{}, domain.WrapError(domain.ErrConfiguration, "select embedding provider",
			fmt.Errorf("unknown provider %q", cfg.EmbeddingProvider))
	}

	var generators []llm.NamedGenerator
	switch cfg.LLMProvider {
	case ollama.ProviderName:
		generators = append(generators, ollama.NewGenerator(ollamaClient))
		for _, model := range cfg.OllamaFallbackModels {
			generators = append(generators, ollama.NewGeneratorForModel(ollamaClient, model))
		}
	case openai.ProviderName:
		client := openaiFor()
		generators = append(generators, openai.NewGenerator(client))
		for _, model := range cfg.OpenAIFallbackModels {
			generators = append(generators, openai.NewGeneratorForModel(client, model))
		}
	default:
		return providerSet{}, domain.WrapError(domain.ErrConfiguration, "select llm provider",
			fmt.Errorf("unknown provider %q", cfg.LLMProvider))
	}

	rotating, err := llm.NewRotatingGenerator(generators...)
	if err != nil {
		return providerSet{}, err
	}
	set.generator = rotating
	return set, nil
}
