package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/mako-assistant/internal/core/ports"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/resilience"
)

const ProviderName = "ollama"

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, genModel, embedModel string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		exec:       exec,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Name() string {
	return ProviderName
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}

type Generator struct {
	client *Client
	model  string
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, model: client.genModel}
}

// NewGeneratorForModel shares the client but targets another local model, for rotation.
func NewGeneratorForModel(client *Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Name() string {
	return ProviderName + ":" + g.model
}

func (g *Generator) GenerateText(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	reqBody := map[string]any{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
	}
	if opts.SystemPrompt != "" {
		reqBody["system"] = opts.SystemPrompt
	}
	if opts.JSON {
		reqBody["format"] = "json"
	}
	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		reqBody["options"] = options
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "generate", "/api/generate", reqBody, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
