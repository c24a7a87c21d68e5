package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := New(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = New(context.Background(), addr)
	assert.Error(t, err)
}

func TestPushCappedKeepsNewest(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, PushCapped(ctx, client, "log", fmt.Sprintf("entry-%d", i), 3))
	}
	entries, err := client.LRange(ctx, "log", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"entry-4", "entry-3", "entry-2"}, entries)

	assert.Error(t, PushCapped(ctx, client, "log", "x", 0))
}
