package bigcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{Shards: 16, MaxEntriesInWindow: 128, MaxEntrySize: 256})
	require.NoError(t, err)
	defer p.Close(ctx)

	_, ok, err := p.Get(ctx, "k1:resolve:x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "k1:resolve:x", []byte("frame"), 1, 0)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := p.Get(ctx, "k1:resolve:x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("frame"), got)

	require.NoError(t, p.Del(ctx, "k1:resolve:x"))
	require.NoError(t, p.Del(ctx, "k1:resolve:x"), "Del of a missing key must not fail")
	_, ok, _ = p.Get(ctx, "k1:resolve:x")
	assert.False(t, ok)
}
