// Package anthropic adapts the Anthropic Messages API to generative.Generator.
package anthropic

import (
	"context"
	stderrors "errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/generative"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-5"

// Config configures the generator.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// Generator calls the Messages API.
type Generator struct {
	client sdk.Client
	model  string
}

var _ generative.Generator = (*Generator)(nil)

// New creates a generator. An API key is required.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError("anthropic", "api key is required", errors.ErrAPIKeyRequired)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Generator{client: sdk.NewClient(opts...), model: cfg.Model}, nil
}

// Name implements generative.Generator.
func (g *Generator) Name() string { return "anthropic" }

// Generate implements generative.Generator.
func (g *Generator) Generate(ctx context.Context, req generative.Request) (generative.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = constants.DefaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if stderrors.As(err, &apiErr) {
			return generative.Response{}, errors.WrapAPI("anthropic", apiErr.StatusCode, err)
		}
		return generative.Response{}, errors.WrapAPI("anthropic", 0, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return generative.Response{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: generative.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
