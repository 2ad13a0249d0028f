// Package gemini adapts the Gemini API to generative.Generator.
package gemini

import (
	"context"
	"sync"

	"google.golang.org/genai"

	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/generative"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Config configures the generator.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Generator calls GenerateContent. The underlying client is created on first use.
type Generator struct {
	cfg Config

	mu     sync.Mutex
	client *genai.Client
}

var _ generative.Generator = (*Generator)(nil)

// New creates a generator. An API key is required.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError("gemini", "api key is required", errors.ErrAPIKeyRequired)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Generator{cfg: cfg}, nil
}

// Name implements generative.Generator.
func (g *Generator) Name() string { return "gemini" }

func (g *Generator) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  g.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.NewConfigError("gemini", "failed to create client", err)
	}
	g.client = client
	return client, nil
}

// Generate implements generative.Generator.
func (g *Generator) Generate(ctx context.Context, req generative.Request) (generative.Response, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return generative.Response{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = constants.DefaultMaxTokens
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(maxTokens),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	resp, err := client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(req.Prompt), config)
	if err != nil {
		var apiErr genai.APIError
		if asAPIError(err, &apiErr) {
			return generative.Response{}, errors.WrapAPI("gemini", apiErr.Code, err)
		}
		return generative.Response{}, errors.WrapAPI("gemini", 0, err)
	}

	out := generative.Response{Text: resp.Text(), Model: g.cfg.Model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = generative.Usage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
		}
	}
	return out, nil
}
