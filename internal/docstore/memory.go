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

package docstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"
)

// MemoryClient 进程内文档存储；批次在锁内整体应用，支持注入失败
type MemoryClient struct {
	mu       sync.Mutex
	docs     map[string]*Document
	failures []error
	commits  int
	attempts int
	now      func() time.Time
	onCommit func(writes []Write)
}

// NewMemoryClient 创建空存储
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{docs: make(map[string]*Document), now: time.Now}
}

// SetClock 替换 ServerTimestamp 使用的时间源
func (c *MemoryClient) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// FailNext 接下来 n 次提交返回 err（err 为 nil 时用 ErrUnavailable）
func (c *MemoryClient) FailNext(n int, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.failures = append(c.failures, err)
	}
}

// OnCommit 每次提交尝试（含注入失败）前回调，测试中用于阻塞或计数
func (c *MemoryClient) OnCommit(fn func(writes []Write)) {
	c.mu.Lock()
	c.onCommit = fn
	c.mu.Unlock()
}

// Seed 预置文档
func (c *MemoryClient) Seed(ref string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[ref] = &Document{Ref: ref, Fields: copyFields(fields), UpdateTime: c.now()}
}

// Commits 成功提交次数
func (c *MemoryClient) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Attempts 提交尝试次数（含失败）
func (c *MemoryClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Doc 直接读取文档（测试断言用），不存在返回 nil
func (c *MemoryClient) Doc(ref string) *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[ref]
	if !ok {
		return nil
	}
	return &Document{Ref: d.Ref, Fields: copyFields(d.Fields), UpdateTime: d.UpdateTime}
}

func (c *MemoryClient) BeginBatch() Batch {
	return &memoryBatch{client: c}
}

func (c *MemoryClient) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	d := c.Doc(Ref(collection, id))
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (c *MemoryClient) QueryDocuments(ctx context.Context, collection string, q Query) ([]*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Document, 0)
	for ref, d := range c.docs {
		col, _, err := SplitRef(ref)
		if err != nil || col != collection {
			continue
		}
		if !matchAll(d.Fields, q.Where) {
			continue
		}
		out = append(out, &Document{Ref: d.Ref, Fields: copyFields(d.Fields), UpdateTime: d.UpdateTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *MemoryClient) Close() error {
	return nil
}

func (c *MemoryClient) apply(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	hook := c.onCommit
	c.mu.Unlock()
	if hook != nil {
		hook(writes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return err
	}
	for _, w := range writes {
		if _, _, err := SplitRef(w.Ref); err != nil {
			return err
		}
	}
	now := c.now()
	for _, w := range writes {
		switch m := w.Mutation.(type) {
		case SetFields:
			d, ok := c.docs[w.Ref]
			if !ok {
				d = &Document{Ref: w.Ref, Fields: make(map[string]any)}
				c.docs[w.Ref] = d
			}
			for k, v := range m.Fields {
				if IsServerTimestamp(v) {
					v = now
				}
				d.Fields[k] = v
			}
			d.UpdateTime = now
		case DeleteDoc:
			delete(c.docs, w.Ref)
		}
	}
	c.commits++
	return nil
}

type memoryBatch struct {
	client    *MemoryClient
	writes    []Write
	committed bool
}

func (b *memoryBatch) AddWrite(ref string, m Mutation) {
	b.writes = append(b.writes, Write{Ref: ref, Mutation: m})
}

func (b *memoryBatch) Writes() []Write {
	return append([]Write(nil), b.writes...)
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	b.committed = true
	return b.client.apply(ctx, b.writes)
}

func matchAll(fields map[string]any, where []Condition) bool {
	for _, cond := range where {
		v, ok := fields[cond.Field]
		if !ok || !reflect.DeepEqual(v, cond.Value) {
			return false
		}
	}
	return true
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
