package reconcile_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/reconcile"
)

func TestParse(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		p, err := reconcile.Parse(`{"updates":[{"contentKey":"x:a","data":{"v":2},"confidence":0.9}],"newItems":[{"section":"b","data":[1]}],"removals":[{"contentKey":"x:c","reason":"gone"}],"notes":"ok"}`)
		require.NoError(t, err)
		require.Len(t, p.Updates, 1)
		assert.Equal(t, "x:a", p.Updates[0].Key)
		assert.JSONEq(t, `{"v":2}`, p.Updates[0].Data.String())
		require.NotNil(t, p.Updates[0].Confidence)
		assert.InDelta(t, 0.9, *p.Updates[0].Confidence, 1e-9)
		require.Len(t, p.NewItems, 1)
		assert.Equal(t, "b", p.NewItems[0].Section)
		assert.Nil(t, p.NewItems[0].Confidence)
		require.Len(t, p.Removals, 1)
		assert.Equal(t, "x:c", p.Removals[0].Key)
		assert.Equal(t, "ok", p.Notes)
		assert.False(t, p.Empty())
	})

	t.Run("fenced with prose", func(t *testing.T) {
		text := "Here is my answer:\n```json\n{\"updates\": [], \"newItems\": [], \"removals\": [\"x:c\"], \"notes\": \"\"}\n```\nLet me know."
		p, err := reconcile.Parse(text)
		require.NoError(t, err)
		require.Len(t, p.Removals, 1)
		assert.Equal(t, "x:c", p.Removals[0].Key)
	})

	t.Run("empty buckets", func(t *testing.T) {
		p, err := reconcile.Parse(`{"updates":[],"newItems":[],"removals":[]}`)
		require.NoError(t, err)
		assert.True(t, p.Empty())
	})

	violations := map[string]string{
		"prose":              "The content looks current, no changes needed.",
		"empty":              "",
		"truncated":          `{"updates":[{"contentKey":"x:a"`,
		"missing bucket":     `{"updates":[],"newItems":[]}`,
		"null bucket":        `{"updates":null,"newItems":[],"removals":[]}`,
		"bucket not array":   `{"updates":{},"newItems":[],"removals":[]}`,
		"two objects":        `{"updates":[],"newItems":[],"removals":[]} {"updates":[],"newItems":[],"removals":[]}`,
		"array root":         `[{"updates":[]}]`,
		"update without key": `{"updates":[{"data":{"v":1}}],"newItems":[],"removals":[]}`,
		"update null data":   `{"updates":[{"contentKey":"x:a","data":null}],"newItems":[],"removals":[]}`,
		"new item no data":   `{"updates":[],"newItems":[{"section":"b"}],"removals":[]}`,
		"new item bad key":   `{"updates":[],"newItems":[{"section":"y:b","data":1}],"removals":[]}`,
		"removal no key":     `{"updates":[],"newItems":[],"removals":[{"reason":"old"}]}`,
		"wrong entry type":   `{"updates":["x:a"],"newItems":[],"removals":[]}`,
	}
	for name, text := range violations {
		t.Run(name, func(t *testing.T) {
			_, err := reconcile.Parse(text)
			require.Error(t, err)
			assert.True(t, errors.IsContractViolation(err), "got %v", err)
		})
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("é", 40)
	items := []content.Item{
		{Key: "m:a", Data: content.Document(`"` + long + `"`)},
		{Key: "m:b", Data: content.Document(`{"k":1}`)},
		{Key: "m:c", Data: content.Document(`{"k":2}`)},
	}

	t.Run("per item cap", func(t *testing.T) {
		out := reconcile.Summarize(items, reconcile.Budget{PerItem: 10, Total: 1000})
		require.Len(t, out, 3)
		assert.True(t, out[0].Truncated)
		assert.Equal(t, 10, len([]rune(out[0].Text)))
		assert.True(t, strings.HasSuffix(out[0].Text, "…"))
		assert.False(t, out[1].Truncated)
		assert.Equal(t, `{"k":1}`, out[1].Text)
	})

	t.Run("total cap", func(t *testing.T) {
		out := reconcile.Summarize(items, reconcile.Budget{PerItem: 42, Total: 45})
		require.Len(t, out, 3)
		assert.False(t, out[0].Truncated)
		assert.True(t, out[1].Truncated)
		assert.Equal(t, 3, len([]rune(out[1].Text)))
		assert.True(t, out[2].Omitted)
		assert.Empty(t, out[2].Text)
	})

	t.Run("keeps order and metadata", func(t *testing.T) {
		out := reconcile.Summarize(items, reconcile.Budget{PerItem: 100, Total: 100})
		assert.Equal(t, "m:a", out[0].Key)
		assert.Equal(t, "m:c", out[2].Key)
	})
}
