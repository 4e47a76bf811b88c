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

// Package netmon 网络连通性监测：当前状态查询与恢复通知
package netmon

import (
	"sync"
)

// Monitor 连通性来源
type Monitor interface {
	IsConnected() bool
	// OnRestored 注册 offline→online 回调，直到 Cancel 前每次恢复都会触发
	OnRestored(fn func()) Subscription
}

// Subscription 回调注册句柄
type Subscription interface {
	Cancel()
}

// listeners 回调注册表，Manual 与 Prober 共用
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

type subscription struct {
	once sync.Once
	l    *listeners
	id   int
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.l.mu.Lock()
		delete(s.l.fns, s.id)
		s.l.mu.Unlock()
	})
}

func (l *listeners) add(fn func()) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	l.next++
	l.fns[l.next] = fn
	return &subscription{l: l, id: l.next}
}

func (l *listeners) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// fire 在锁外调用快照中的回调，回调内可安全 Cancel
func (l *listeners) fire() {
	l.mu.Lock()
	snapshot := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		snapshot = append(snapshot, fn)
	}
	l.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}

// Manual 由调用方显式设置状态的监测器（测试、移动端桥接）
type Manual struct {
	mu        sync.Mutex
	connected bool
	l         listeners
}

// NewManual 创建初始状态为 connected 的监测器
func NewManual(connected bool) *Manual {
	return &Manual{connected: connected}
}

func (m *Manual) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manual) OnRestored(fn func()) Subscription {
	return m.l.add(fn)
}

// SetConnected 更新状态；false→true 时同步触发回调
func (m *Manual) SetConnected(connected bool) {
	m.mu.Lock()
	restored := !m.connected && connected
	m.connected = connected
	m.mu.Unlock()
	if restored {
		m.l.fire()
	}
}

// ListenerCount 当前注册的回调数
func (m *Manual) ListenerCount() int {
	return m.l.count()
}
