package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/content/contenttest"
	"github.com/agentstation/freshen/pkg/content/memory"
	"github.com/agentstation/freshen/pkg/policy"
)

func TestStore(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, reg *policy.Registry) content.Store {
		return memory.New(reg)
	})
}

func TestStoreCopiesPayloads(t *testing.T) {
	ctx := context.Background()
	s := memory.New(nil)

	doc := content.MustDocument(map[string]string{"k": "v"})
	_, err := s.Upsert(ctx, "m:a", "m", "a", doc, content.Meta{SourceType: content.SourceSeed, Confidence: content.Confidence(0.5)})
	require.NoError(t, err)
	doc[2] = 'X'

	it, ok, err := s.Item(ctx, "m:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"k":"v"}`, it.Data.String())

	it.Data[2] = 'Y'
	*it.Confidence = 0.9
	again, _, err := s.Item(ctx, "m:a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, again.Data.String())
	assert.InDelta(t, 0.5, *again.Confidence, 1e-9)
}

func TestStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := memory.New(nil)
	_, err := s.Upsert(ctx, "m:a", "m", "a", content.MustDocument(1), content.Meta{SourceType: content.SourceSeed})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ModuleContent(ctx, "m", "")
	assert.ErrorIs(t, err, context.Canceled)
}
