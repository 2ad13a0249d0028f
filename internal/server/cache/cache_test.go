package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoad(t *testing.T) {
	c := New(time.Minute, time.Minute)
	calls := 0
	load := func() (any, error) {
		calls++
		return []string{"a"}, nil
	}

	v, err := c.GetOrLoad(Key("content", "x"), load)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)

	_, err = c.GetOrLoad(Key("content", "x"), load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = c.GetOrLoad(Key("content", "y"), func() (any, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
	_, ok := c.Get(Key("content", "y"))
	assert.False(t, ok, "errors are not cached")
}

func TestInvalidateModule(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Set(Key("content", "x", "all"), 1)
	c.Set(Key("freshness", "x"), 2)
	c.Set(Key("content", "y", "all"), 3)
	c.Set(Key("freshness", AnyModule), 4)

	assert.Equal(t, 3, c.InvalidateModule("x"))

	_, ok := c.Get(Key("content", "y", "all"))
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().ItemCount)

	assert.Equal(t, 1, c.InvalidateModule(AnyModule))
	assert.Zero(t, c.Stats().ItemCount)
}

func TestExpiry(t *testing.T) {
	c := New(20*time.Millisecond, time.Minute)
	c.Set(Key("modules", AnyModule), "v")
	time.Sleep(40 * time.Millisecond)
	_, ok := c.Get(Key("modules", AnyModule))
	assert.False(t, ok)

	c.Set("k", 1)
	c.Clear()
	assert.Zero(t, c.Stats().ItemCount)
}
