package apisource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/policy"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{ "index": 101.5,
			"constituents": ["a", "b"] }`))
	}))
	defer srv.Close()

	src := New(WithLookupEnv(env(map[string]string{"MARKET_KEY": "k-1"})))
	doc, err := src.Fetch(context.Background(), "market-data", policy.APIEndpoint{
		URL:       srv.URL,
		APIKeyEnv: "MARKET_KEY",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":101.5,"constituents":["a","b"]}`, doc.String())
}

func TestFetchQueryAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k-2", r.URL.Query().Get("apikey"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	src := New(WithLookupEnv(env(map[string]string{"K": "k-2"})))
	doc, err := src.Fetch(context.Background(), "m", policy.APIEndpoint{
		URL:        srv.URL,
		AuthHeader: "?apikey",
		APIKeyEnv:  "K",
	})
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3]", doc.String())
}

func TestFetchWithoutKeyEnvSendsNoAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), "open", policy.APIEndpoint{URL: srv.URL})
	require.NoError(t, err)
}

func TestFetchErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/html":
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	src := New(WithLookupEnv(env(nil)))
	ctx := context.Background()

	_, err := src.Fetch(ctx, "m", policy.APIEndpoint{URL: srv.URL, APIKeyEnv: "MISSING"})
	assert.ErrorIs(t, err, errors.ErrAPIKeyRequired)
	assert.Equal(t, 0, calls, "no request without a key")

	_, err = src.Fetch(ctx, "m", policy.APIEndpoint{})
	assert.True(t, errors.IsValidationError(err))

	_, err = src.Fetch(ctx, "m", policy.APIEndpoint{URL: srv.URL + "/down"})
	assert.ErrorIs(t, err, errors.ErrProviderUnavailable)

	_, err = src.Fetch(ctx, "m", policy.APIEndpoint{URL: srv.URL + "/html"})
	var parseErr *errors.ParseError
	assert.ErrorAs(t, err, &parseErr)
}
