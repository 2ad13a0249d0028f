package gemini_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/internal/generative/gemini"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/generative"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"updates\":[]}"}]}}],
			"usageMetadata": {"promptTokenCount": 40, "candidatesTokenCount": 8, "totalTokenCount": 48}
		}`))
	}))
	defer srv.Close()

	g, err := gemini.New(gemini.Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "gemini", g.Name())

	resp, err := g.Generate(context.Background(), generative.Request{System: "s", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"updates":[]}`, resp.Text)
	assert.Equal(t, int64(40), resp.Usage.InputTokens)
	assert.Equal(t, int64(48), resp.Usage.Total())
}

func TestNewRequiresKey(t *testing.T) {
	_, err := gemini.New(gemini.Config{})
	assert.ErrorIs(t, err, errors.ErrAPIKeyRequired)
}
