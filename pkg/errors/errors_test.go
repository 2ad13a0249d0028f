package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/freshen/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "content item",
			ID:       "ai-models:frontier",
		}
		assert.Equal(t, "content item with ID ai-models:frontier not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("module", "unknown")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("ttl_hours", 0, "must be positive")
		assert.Equal(t, "validation failed for field ttl_hours: must be positive", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
		assert.Equal(t, 0, err.Value)
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "empty policy set"}
		assert.Equal(t, "validation failed: empty policy set", err.Error())
	})
}

func TestAPIError(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		err := pkgerrors.NewAPIError("anthropic", 429, "slow down")
		assert.Equal(t, "API error from anthropic (status 429): slow down", err.Error())
		assert.True(t, pkgerrors.IsRateLimited(err))
		assert.False(t, errors.Is(err, pkgerrors.ErrProviderUnavailable))
	})

	t.Run("server error", func(t *testing.T) {
		err := pkgerrors.NewAPIError("elasticsearch", 503, "unavailable")
		assert.True(t, errors.Is(err, pkgerrors.ErrProviderUnavailable))
	})

	t.Run("no status", func(t *testing.T) {
		err := pkgerrors.NewAPIError("gemini", 0, "connection reset")
		assert.Equal(t, "API error from gemini: connection reset", err.Error())
	})

	t.Run("wrap", func(t *testing.T) {
		base := errors.New("boom")
		err := pkgerrors.WrapAPI("anthropic", 500, base)
		assert.True(t, errors.Is(err, base))
		assert.Nil(t, pkgerrors.WrapAPI("anthropic", 500, nil))
	})
}

func TestConfigAndParseErrors(t *testing.T) {
	base := errors.New("bad indentation")

	cfg := pkgerrors.NewConfigError("policy", "cannot load policies", base)
	assert.Equal(t, "configuration error in policy: cannot load policies", cfg.Error())
	assert.ErrorIs(t, cfg, base)

	parse := pkgerrors.WrapParse("yaml", "policies.yaml", base)
	assert.Equal(t, "parse error in yaml file policies.yaml: bad indentation", parse.Error())
	assert.ErrorIs(t, parse, base)
	assert.Nil(t, pkgerrors.WrapParse("yaml", "", nil))
}

func TestResourceError(t *testing.T) {
	base := errors.New("disk full")
	err := pkgerrors.WrapResource("upsert", "content item", "ai-models:frontier", base)
	assert.Equal(t, "failed to upsert content item ai-models:frontier: disk full", err.Error())
	assert.ErrorIs(t, err, base)

	err = pkgerrors.WrapResource("append", "refresh log", "", base)
	assert.Equal(t, "failed to append refresh log: disk full", err.Error())
	assert.Nil(t, pkgerrors.WrapResource("append", "refresh log", "", nil))
}

func TestTimeoutError(t *testing.T) {
	err := pkgerrors.NewTimeoutError("generate", "2m0s", "no response")
	assert.Equal(t, "operation generate timed out after 2m0s: no response", err.Error())
	assert.True(t, pkgerrors.IsTimeout(err))

	err = pkgerrors.NewTimeoutError("generate", "", "no response")
	assert.Equal(t, "operation generate timed out: no response", err.Error())
}

func TestContractError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewContractError("missing bucket", "removals", nil)
		assert.Equal(t, "response contract violation: missing bucket (field removals)", err.Error())
		assert.True(t, pkgerrors.IsContractViolation(err))
	})

	t.Run("wrapped cause", func(t *testing.T) {
		base := errors.New("unexpected end of JSON input")
		err := fmt.Errorf("module ai-models: %w", pkgerrors.NewContractError("invalid JSON", "", base))
		assert.True(t, pkgerrors.IsContractViolation(err))
		assert.ErrorIs(t, err, base)

		var ce *pkgerrors.ContractError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "invalid JSON", ce.Reason)
	})
}

func TestPartialApplyError(t *testing.T) {
	base := errors.New("constraint failed")
	err := &pkgerrors.PartialApplyError{
		Stage:     "newItems",
		Applied:   2,
		Remaining: 3,
		FailedKey: "ai-models:open",
		Err:       base,
	}
	assert.Equal(t, "stopped during newItems after 2 applied, failed at ai-models:open, 3 not attempted: constraint failed", err.Error())
	assert.True(t, pkgerrors.IsPartialApply(err))
	assert.ErrorIs(t, err, base)

	bare := &pkgerrors.PartialApplyError{Applied: 0}
	assert.Equal(t, "stopped after 0 applied", bare.Error())
}

func TestVersionConflictError(t *testing.T) {
	err := &pkgerrors.VersionConflictError{Key: "k", Expected: 2, Actual: 3}
	assert.Equal(t, "version conflict on k: expected 2, found 3", err.Error())
	assert.True(t, pkgerrors.IsVersionConflict(fmt.Errorf("wrap: %w", err)))
	assert.False(t, pkgerrors.IsVersionConflict(errors.New("other")))
}
