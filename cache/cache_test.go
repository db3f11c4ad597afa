package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetNX(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := &memoryCache{entries: map[string]time.Time{}, now: func() time.Time { return now }}

	key := Key("webhook", "airtel", "TXN-1", "completed")
	assert.Equal(t, "edu_commerce:webhook:airtel:TXN-1:completed", key)

	stored, err := c.SetNX(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.SetNX(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, stored, "second delivery must be reported as duplicate")

	now = now.Add(2 * time.Hour)
	stored, _ = c.SetNX(ctx, key, time.Hour)
	assert.True(t, stored, "expired key can be stored again")

	require.NoError(t, c.Delete(ctx, key))
	stored, _ = c.SetNX(ctx, key, time.Hour)
	assert.True(t, stored)
}
