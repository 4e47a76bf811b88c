// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchop-engine/internal/storage/cache"
)

func newClockedCache(window time.Duration) (*Cache, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore()
	store.SetClock(func() time.Time { return now })
	c := NewCache(store, window)
	c.SetClock(func() time.Time { return now })
	return c, &now
}

func TestCache_RememberAndSeen(t *testing.T) {
	ctx := context.Background()
	c, now := newClockedCache(5 * time.Minute)

	assert.False(t, c.Seen(ctx, "op-1"))
	require.NoError(t, c.Remember(ctx, "op-1", *now))
	assert.True(t, c.Seen(ctx, "op-1"))

	e, ok := c.Lookup(ctx, "op-1")
	require.True(t, ok)
	assert.Equal(t, "op-1", e.ID)
	assert.True(t, e.CompletedAt.Equal(*now))
}

func TestCache_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	c, now := newClockedCache(5 * time.Minute)
	require.NoError(t, c.Remember(ctx, "op-1", *now))

	*now = now.Add(4*time.Minute + 59*time.Second)
	assert.True(t, c.Seen(ctx, "op-1"))

	*now = now.Add(time.Second)
	assert.False(t, c.Seen(ctx, "op-1"))

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_RememberOutsideWindowIsNoop(t *testing.T) {
	ctx := context.Background()
	c, now := newClockedCache(time.Minute)
	require.NoError(t, c.Remember(ctx, "old", now.Add(-2*time.Minute)))
	assert.False(t, c.Seen(ctx, "old"))
}

func TestCache_Forget(t *testing.T) {
	ctx := context.Background()
	c, now := newClockedCache(time.Minute)
	require.NoError(t, c.Remember(ctx, "op-1", *now))
	require.NoError(t, c.Forget(ctx, "op-1"))
	assert.False(t, c.Seen(ctx, "op-1"))
}
