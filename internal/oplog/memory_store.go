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

package oplog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内实现，用于测试与单机开发
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore 创建内存操作日志
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id].Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return ErrNilRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	s.mu.RLock()
	out := make([]*Record, 0)
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()
	sortRecords(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var victims []*Record
	for _, r := range s.records {
		if r.Status.IsTerminal() && r.CreatedAt.Before(cutoff) {
			victims = append(victims, r)
		}
	}
	sortRecords(victims)
	if limit > 0 && len(victims) > limit {
		victims = victims[:limit]
	}
	for _, r := range victims {
		delete(s.records, r.ID)
	}
	return len(victims), nil
}

func (s *MemoryStore) DeleteByCorrelation(ctx context.Context, key, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if v, ok := r.CorrelationIDs[key]; ok && v == value {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len 当前记录数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error {
	return nil
}
