// Package anthropic provides a gateway.Provider implementation for the
// Anthropic Messages API. Anthropic offers no embeddings endpoint, so this
// adapter only implements text generation; embedding traffic goes to another
// embedder or the local fallback.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/duetmatch/gateway"
)

// Options configure the Anthropic adapter (model id, max tokens, API key).
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Provider wraps the Anthropic Messages API behind gateway.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// NewProvider creates a new Anthropic provider using the official client.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewProviderFromClient creates a new Anthropic provider from an existing client.
func NewProviderFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements gateway.Provider.
func (p *Provider) Name() string { return "anthropic" }

// GenerateText implements gateway.Provider via the Messages API.
func (p *Provider) GenerateText(ctx context.Context, req gateway.TextRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.opts.Model,
		MaxTokens: p.opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", normalize(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", &gateway.Error{Kind: gateway.KindServerError, Provider: p.Name(), Message: "empty completion"}
	}
	return text, nil
}

// normalize tags an Anthropic SDK error with its failure kind.
func normalize(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		kind := gateway.KindFromStatus(apierr.StatusCode)
		if kind == gateway.KindUnknown {
			kind = gateway.KindFromMessage(apierr.Error())
		}
		return &gateway.Error{
			Kind:     kind,
			Provider: "anthropic",
			Status:   apierr.StatusCode,
			Message:  apierr.Error(),
			Err:      err,
		}
	}
	return &gateway.Error{
		Kind:     gateway.KindFromMessage(err.Error()),
		Provider: "anthropic",
		Message:  fmt.Sprintf("anthropic api error: %v", err),
		Err:      err,
	}
}
