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
	"testing"
	"time"
)

func TestMemoryStore_Set_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: err=%v, want ErrCacheMiss", err)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete missing should not error: %v", err)
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists missing: ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "k", "v", 0)
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists present: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	_ = s.Set(ctx, "short", 1, time.Minute)
	_ = s.Set(ctx, "forever", 2, 0)

	now = now.Add(59 * time.Second)
	if ok, _ := s.Exists(ctx, "short"); !ok {
		t.Error("short should still exist before expiry")
	}

	now = now.Add(time.Second)
	if ok, _ := s.Exists(ctx, "short"); ok {
		t.Error("short should be expired at the deadline")
	}
	var v int
	if err := s.Get(ctx, "short", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get expired: err=%v", err)
	}

	n, err := s.PruneExpired(ctx)
	if err != nil || n != 1 {
		t.Errorf("PruneExpired: n=%d err=%v, want 1", n, err)
	}
	if s.Len() != 1 {
		t.Errorf("Len after prune = %d, want 1", s.Len())
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k1", "v1", 0)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err == nil {
		t.Error("Get after Clear should error")
	}
}
