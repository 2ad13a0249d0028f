// Package apisource fetches the payload of api-sourced modules from their
// configured HTTP endpoints.
package apisource

import (
	"context"
	"net/http"
	"os"

	"github.com/agentstation/freshen/internal/transport"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/logging"
	"github.com/agentstation/freshen/pkg/policy"
)

// Source fetches module payloads over HTTP.
type Source struct {
	httpClient *http.Client
	lookupEnv  func(string) (string, bool)
	userAgent  string
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient sets the HTTP client used for every fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		s.httpClient = c
	}
}

// WithLookupEnv replaces the environment lookup used to resolve API keys.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(s *Source) {
		s.lookupEnv = fn
	}
}

// WithUserAgent sets the User-Agent sent to endpoints.
func WithUserAgent(ua string) Option {
	return func(s *Source) {
		s.userAgent = ua
	}
}

// New creates a Source.
func New(opts ...Option) *Source {
	s := &Source{
		httpClient: &http.Client{Timeout: transport.DefaultHTTPTimeout},
		lookupEnv:  os.LookupEnv,
		userAgent:  "freshen",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch retrieves the endpoint's JSON body as the module's document.
// An endpoint naming an api_key_env that is unset fails with
// errors.ErrAPIKeyRequired before any request is made.
func (s *Source) Fetch(ctx context.Context, module string, endpoint policy.APIEndpoint) (content.Document, error) {
	if endpoint.URL == "" {
		return nil, errors.NewValidationError("url", module, "api endpoint url is required")
	}

	var apiKey string
	if endpoint.APIKeyEnv != "" {
		key, ok := s.lookupEnv(endpoint.APIKeyEnv)
		if !ok || key == "" {
			return nil, errors.NewConfigError(module,
				"environment variable "+endpoint.APIKeyEnv+" is not set", errors.ErrAPIKeyRequired)
		}
		apiKey = key
	}

	client := transport.New(transport.ForHeader(endpoint.AuthHeader),
		transport.WithHTTPClient(s.httpClient),
		transport.WithUserAgent(s.userAgent))

	logging.Ctx(ctx).Debug().
		Str("module", module).
		Str("url", endpoint.URL).
		Msg("Fetching api-sourced content")

	resp, err := client.Get(ctx, endpoint.URL, apiKey)
	if err != nil {
		return nil, errors.WrapResource("fetch", "endpoint", module, err)
	}
	body, err := transport.ReadBody(resp, module)
	if err != nil {
		return nil, err
	}

	doc, err := content.ParseDocument(body)
	if err != nil {
		return nil, errors.WrapParse("json", endpoint.URL, err)
	}
	return doc, nil
}
