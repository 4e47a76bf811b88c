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

package batchop

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"batchop-engine/internal/oplog"
	"batchop-engine/pkg/metrics"
)

// EventKind 事件类别
type EventKind string

const (
	KindCompleted        EventKind = "completed"
	KindRetriesExhausted EventKind = "retriesExhausted"
)

// Event 终态通知；Type 为 messages.read 等事件名
type Event struct {
	ID             string            `json:"id"`
	Kind           EventKind         `json:"kind"`
	Type           string            `json:"type"`
	OperationType  OperationType     `json:"operation_type"`
	OperationID    string            `json:"operation_id"`
	CorrelationIDs map[string]string `json:"correlation_ids,omitempty"`
	AffectedCount  int               `json:"affected_count"`
	RetryCount     int               `json:"retry_count"`
	Source         string            `json:"source"` // executor | recovery
	At             time.Time         `json:"at"`
}

// Subscription 订阅句柄；C 在 Cancel 或 Bus.Close 后关闭
type Subscription struct {
	C <-chan Event

	ch   chan Event
	bus  *Bus
	id   int
	once sync.Once
}

// Cancel 取消订阅，可重复调用
func (s *Subscription) Cancel() {
	s.bus.remove(s)
}

// Bus 进程内事件总线；Publish 不阻塞，订阅者缓冲满时丢弃并计数
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	next   int
	closed bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe buffer<=0 时 64
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	b.next++
	s.id = b.next
	b.subs[s.id] = s
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.once.Do(func() {
		delete(b.subs, s.id)
		close(s.ch)
	})
}

// Publish 投递给所有订阅者
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			metrics.EventsDroppedTotal.Inc()
		}
	}
}

// Subscribers 当前订阅数
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close 关闭全部订阅
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.once.Do(func() { close(s.ch) })
	}
	b.subs = map[int]*Subscription{}
}

// newEvent 未知类型返回 false，不发布
func newEvent(kind EventKind, rec *oplog.Record, source string, at time.Time) (Event, bool) {
	t := OperationType(rec.Type)
	if !t.Known() {
		return Event{}, false
	}
	var corr map[string]string
	if len(rec.CorrelationIDs) > 0 {
		corr = make(map[string]string, len(rec.CorrelationIDs))
		for k, v := range rec.CorrelationIDs {
			corr[k] = v
		}
	}
	return Event{
		ID:             "ev-" + uuid.New().String(),
		Kind:           kind,
		Type:           t.EventType(),
		OperationType:  t,
		OperationID:    rec.ID,
		CorrelationIDs: corr,
		AffectedCount:  len(rec.TargetRefs),
		RetryCount:     rec.RetryCount,
		Source:         source,
		At:             at,
	}, true
}
