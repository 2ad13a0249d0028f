package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/internal/generative/anthropic"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/generative"
)

func TestGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"updates\":[],"}, {"type": "text", "text": "\"newItems\":[],\"removals\":[]}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 30}
		}`))
	}))
	defer srv.Close()

	g, err := anthropic.New(anthropic.Config{APIKey: "test-key", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", g.Name())

	resp, err := g.Generate(context.Background(), generative.Request{System: "be strict", Prompt: "reconcile", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, `{"updates":[],"newItems":[],"removals":[]}`, resp.Text)
	assert.Equal(t, "claude-test", resp.Model)
	assert.Equal(t, int64(150), resp.Usage.Total())

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 512, body["max_tokens"])
	assert.NotNil(t, body["system"])
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	g, err := anthropic.New(anthropic.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), generative.Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAPIKeyRequired)
}
