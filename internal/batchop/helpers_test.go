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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"batchop-engine/internal/docstore"
	"batchop-engine/internal/idempotency"
	"batchop-engine/internal/netmon"
	"batchop-engine/internal/oplog"
)

// recordingSleeper 记录退避时长并立即返回
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(d time.Duration, stop <-chan struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return true
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type harness struct {
	store   *oplog.MemoryStore
	client  *docstore.MemoryClient
	monitor *netmon.Manual
	cache   *idempotency.Cache
	bus     *Bus
	sleeper *recordingSleeper
	exec    *Executor
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:   oplog.NewMemoryStore(),
		client:  docstore.NewMemoryClient(),
		monitor: netmon.NewManual(true),
		cache:   idempotency.NewMemoryCache(5 * time.Minute),
		bus:     NewBus(),
		sleeper: &recordingSleeper{},
	}
	h.exec = h.newExecutor(t, opts...)
	return h
}

// newExecutor 共享存储与文档库的另一个执行器（模拟进程重启：独立缓存与进行中表）
func (h *harness) newExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	all := append([]Option{WithSleeper(h.sleeper.sleep)}, opts...)
	exec, err := NewExecutor(Deps{
		Store:   h.store,
		Client:  h.client,
		Monitor: h.monitor,
		Cache:   h.cache,
		Bus:     h.bus,
	}, DefaultConfig(), all...)
	require.NoError(t, err)
	return exec
}

var (
	matchCorrelation = map[string]string{"matchId": "m1", "userId": "u1"}
	twoMessages      = []string{"msg/1", "msg/2"}
)

func markReadRequest() Request {
	return Request{Type: MarkRead, TargetRefs: twoMessages, CorrelationIDs: matchCorrelation}
}

func markReadID() string {
	return idempotency.DeriveKey(string(MarkRead), matchCorrelation, twoMessages)
}
