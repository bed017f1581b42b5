package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/mako-assistant/internal/core/ports"
	"github.com/kirillkom/mako-assistant/internal/infrastructure/resilience"
	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const ProviderName = "openai"

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Dimensions     int
	RequestTimeout time.Duration
}

// Client wraps the SDK with retries disabled; the resilience executor owns retry policy.
type Client struct {
	api  sdk.Client
	cfg  Config
	exec *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	return &Client{api: sdk.NewClient(opts...), cfg: cfg, exec: exec}
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
	params := sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
		Model: sdk.EmbeddingModel(e.client.cfg.EmbeddingModel),
	}
	if e.client.cfg.Dimensions > 0 {
		params.Dimensions = sdk.Int(int64(e.client.cfg.Dimensions))
	}

	resp, err := resilience.Do(ctx, e.client.exec, "openai.embed", func(ctx context.Context) (*sdk.CreateEmbeddingResponse, error) {
		resp, err := e.client.api.Embeddings.New(ctx, params)
		return resp, toStatusError("embed", err)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, resilience.WrapProviderError("openai embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding result")
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

type Generator struct {
	client *Client
	model  string
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, model: client.cfg.ChatModel}
}

// NewGeneratorForModel shares the client but targets another model, for rotation.
func NewGeneratorForModel(client *Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Name() string {
	return ProviderName + ":" + g.model
}

func (g *Generator) GenerateText(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if opts.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, sdk.UserMessage(prompt))

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(g.model),
		Messages: messages,
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(opts.MaxTokens))
	}
	if opts.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := resilience.Do(ctx, g.client.exec, "openai.generate", func(ctx context.Context) (*sdk.ChatCompletion, error) {
		resp, err := g.client.api.Chat.Completions.New(ctx, params)
		return resp, toStatusError("generate", err)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return "", resilience.WrapProviderError("openai generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai generate: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// toStatusError converts SDK API errors so the shared HTTP classifier sees the status code.
func toStatusError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &resilience.StatusError{
			Provider:   ProviderName,
			Operation:  operation,
			StatusCode: apiErr.StatusCode,
			Status:     http.StatusText(apiErr.StatusCode),
			Body:       apiErr.Message,
		}
	}
	return err
}
