// Package openai provides gateway.Provider and gateway.Embedder
// implementations using the official OpenAI client (Chat Completions +
// Embeddings). Failures are normalized into the gateway's tagged error
// variant at this boundary so the retry/failover logic never inspects
// vendor-specific fields.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/duetmatch/gateway"
)

// Options configure the OpenAI adapter. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int64
	MaxCompletionTokens int64
}

// Provider wraps the OpenAI API behind the gateway.Provider and
// gateway.Embedder interfaces.
type Provider struct {
	client *openai.Client
	opts   Options
}

// NewProvider creates a new OpenAI provider using the official client with
// credentials taken from the environment.
func NewProvider(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewProviderFromClient(&client, optFns...)
}

// NewProviderFromClient creates a new OpenAI provider from an existing client.
func NewProviderFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		EmbeddingModel:      openai.EmbeddingModelTextEmbedding3Small,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements gateway.Provider.
func (p *Provider) Name() string { return "openai" }

// GenerateText implements gateway.Provider via the Chat Completions API.
func (p *Provider) GenerateText(ctx context.Context, req gateway.TextRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               p.opts.Model,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", normalize(err)
	}
	if len(resp.Choices) == 0 {
		return "", &gateway.Error{Kind: gateway.KindServerError, Provider: p.Name(), Message: "no choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

// EmbedText implements gateway.Embedder via the Embeddings API.
func (p *Provider) EmbedText(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: p.opts.EmbeddingModel,
	}
	if p.opts.EmbeddingDimensions > 0 {
		params.Dimensions = openai.Int(p.opts.EmbeddingDimensions)
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, normalize(err)
	}
	if len(resp.Data) == 0 {
		return nil, &gateway.Error{Kind: gateway.KindServerError, Provider: p.Name(), Message: "empty embedding response"}
	}
	return resp.Data[0].Embedding, nil
}

// normalize tags an OpenAI SDK error with its failure kind, using the HTTP
// status when present and message patterns otherwise.
func normalize(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		kind := gateway.KindFromStatus(apierr.StatusCode)
		if kind == gateway.KindUnknown {
			kind = gateway.KindFromMessage(apierr.Error())
		}
		return &gateway.Error{
			Kind:     kind,
			Provider: "openai",
			Status:   apierr.StatusCode,
			Message:  apierr.Error(),
			Err:      err,
		}
	}
	return &gateway.Error{
		Kind:     gateway.KindFromMessage(err.Error()),
		Provider: "openai",
		Message:  fmt.Sprintf("openai api error: %v", err),
		Err:      err,
	}
}
