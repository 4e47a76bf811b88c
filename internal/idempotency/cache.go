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
	"time"

	"batchop-engine/internal/storage/cache"
)

const keyPrefix = "idem:"

// Entry 近期完成记录 (id, completedAt)
type Entry struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Cache 近期完成的幂等键缓存，仅用于省去一次持久层查询；
// 未命中不影响正确性，持久层 OperationRecord.status 始终为权威来源
type Cache struct {
	store  cache.Store
	window time.Duration
	now    func() time.Time
}

// NewCache 基于 cache.Store 创建幂等缓存；window<=0 时 5 分钟
func NewCache(store cache.Store, window time.Duration) *Cache {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Cache{store: store, window: window, now: time.Now}
}

// NewMemoryCache 进程内缓存
func NewMemoryCache(window time.Duration) *Cache {
	return NewCache(cache.NewMemoryStore(), window)
}

// SetClock 替换时间源（测试用）
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Window 缓存窗口
func (c *Cache) Window() time.Duration {
	return c.window
}

// Seen 窗口内是否已完成；底层存储出错时按未命中处理
func (c *Cache) Seen(ctx context.Context, id string) bool {
	ok, err := c.store.Exists(ctx, keyPrefix+id)
	return err == nil && ok
}

// Lookup 返回缓存项，未命中返回 false
func (c *Cache) Lookup(ctx context.Context, id string) (Entry, bool) {
	var e Entry
	if err := c.store.Get(ctx, keyPrefix+id, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

// Remember 记录完成；剩余窗口按 completedAt 计算，已超出窗口则不写入
func (c *Cache) Remember(ctx context.Context, id string, completedAt time.Time) error {
	remaining := c.window - c.now().Sub(completedAt)
	if remaining <= 0 {
		return nil
	}
	return c.store.Set(ctx, keyPrefix+id, Entry{ID: id, CompletedAt: completedAt}, remaining)
}

// Forget 移除记录（操作员重置时使用）
func (c *Cache) Forget(ctx context.Context, id string) error {
	return c.store.Delete(ctx, keyPrefix+id)
}

// Prune 清理过期项；存储自带 TTL 时返回 0
func (c *Cache) Prune(ctx context.Context) (int, error) {
	p, ok := c.store.(cache.Pruner)
	if !ok {
		return 0, nil
	}
	return p.PruneExpired(ctx)
}
