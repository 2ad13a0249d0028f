package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/logging"
)

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 16 << 20

// ReadBody reads and closes a response body, turning non-2xx statuses into
// an *errors.APIError attributed to provider.
func ReadBody(resp *http.Response, provider string) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn().Err(err).Str("provider", provider).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, errors.WrapResource("read", "response body", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errors.NewAPIError(provider, resp.StatusCode, string(body))
		if resp.Request != nil && resp.Request.URL != nil {
			apiErr.Endpoint = resp.Request.URL.Redacted()
		}
		return nil, apiErr
	}
	return body, nil
}

// DecodeResponse decodes a JSON response into the target structure.
func DecodeResponse(resp *http.Response, provider string, target any) error {
	body, err := ReadBody(resp, provider)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", provider, err)
	}
	return nil
}
