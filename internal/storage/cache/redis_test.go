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

package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis cache tests")
	}
	s, err := NewRedisStore(context.Background(), RedisOptions{
		Addr:   addr,
		Prefix: "batchop:test:" + uuid.NewString() + ":",
	})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Clear(context.Background())
		_ = s.Close()
	})
	return s
}

func TestRedisStore_SetGetExists(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)
	if err := s.Set(ctx, "k", map[string]int{"n": 1}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got map[string]int
	if err := s.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["n"] != 1 {
		t.Errorf("Get: %v", got)
	}
	ok, err := s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists: ok=%v err=%v", ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: %v", err)
	}
}

func TestRedisStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)
	_ = s.Set(ctx, "a", 1, 0)
	_ = s.Set(ctx, "b", 2, 0)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ok, _ := s.Exists(ctx, "a")
	if ok {
		t.Error("a should be cleared")
	}
}
