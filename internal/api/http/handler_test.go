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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchop-engine/internal/api/http/middleware"
	"batchop-engine/internal/batchop"
	"batchop-engine/internal/docstore"
	"batchop-engine/internal/idempotency"
	"batchop-engine/internal/netmon"
	"batchop-engine/internal/oplog"
)

type apiHarness struct {
	store   *oplog.MemoryStore
	client  *docstore.MemoryClient
	monitor *netmon.Manual
	exec    *batchop.Executor
	coord   *batchop.Coordinator
	server  *server.Hertz
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	a := &apiHarness{
		store:   oplog.NewMemoryStore(),
		client:  docstore.NewMemoryClient(),
		monitor: netmon.NewManual(true),
	}
	exec, err := batchop.NewExecutor(batchop.Deps{
		Store:   a.store,
		Client:  a.client,
		Monitor: a.monitor,
		Cache:   idempotency.NewMemoryCache(5 * time.Minute),
	}, batchop.DefaultConfig(), batchop.WithSleeper(func(time.Duration, <-chan struct{}) bool { return true }))
	require.NoError(t, err)
	a.exec = exec
	a.coord = batchop.NewCoordinator(exec, batchop.RecoveryConfig{Concurrency: 2})
	t.Cleanup(func() {
		a.coord.Close()
		_ = exec.Close(context.Background())
	})
	a.server = NewRouter(NewHandler(exec, a.coord, nil), middleware.NewMiddleware(nil)).Build(":0")
	return a
}

func (a *apiHarness) do(method, path string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(a.server.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func decode(t *testing.T, w *ut.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Result().Body(), v))
}

const markReadBody = `{"type":"markRead","target_refs":["messages/b","messages/a"],"correlation_ids":{"matchId":"m1","userId":"u1"}}`

func TestHealthCheck(t *testing.T) {
	a := newAPIHarness(t)
	w := a.do("GET", "/api/health", nil)
	require.Equal(t, 200, w.Result().StatusCode())

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, false, body["recovery_deferred"])
}

func TestMetricsEndpoint(t *testing.T) {
	a := newAPIHarness(t)
	a.do("POST", "/api/operations", []byte(markReadBody))

	w := a.do("GET", "/metrics", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "batchop_commit_attempt_total")
}

func TestSubmitOperation_CompletesThenDeduplicates(t *testing.T) {
	a := newAPIHarness(t)

	w := a.do("POST", "/api/operations", []byte(markReadBody))
	require.Equal(t, 200, w.Result().StatusCode(), string(w.Result().Body()))
	var first batchop.Result
	decode(t, w, &first)
	assert.Equal(t, oplog.StatusCompleted, first.Status)
	assert.False(t, first.Deduplicated)

	w = a.do("POST", "/api/operations", []byte(markReadBody))
	require.Equal(t, 200, w.Result().StatusCode())
	var second batchop.Result
	decode(t, w, &second)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, 1, a.client.Commits())
}

func TestSubmitOperation_Validation(t *testing.T) {
	a := newAPIHarness(t)

	w := a.do("POST", "/api/operations", []byte(`{"type":"markRead","target_refs":[]}`))
	assert.Equal(t, 400, w.Result().StatusCode())

	w = a.do("POST", "/api/operations", []byte(`{"type":"archive","target_refs":["messages/a"]}`))
	assert.Equal(t, 400, w.Result().StatusCode())

	w = a.do("POST", "/api/operations", []byte(`not json`))
	assert.Equal(t, 400, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), `"error"`)
	assert.Equal(t, 0, a.store.Len())
}

func TestSubmitOperation_NotConnected(t *testing.T) {
	a := newAPIHarness(t)
	a.monitor.SetConnected(false)

	w := a.do("POST", "/api/operations", []byte(markReadBody))
	assert.Equal(t, 503, w.Result().StatusCode())
	assert.Equal(t, 0, a.store.Len())
}

func TestSubmitOperation_RetriesExhausted(t *testing.T) {
	a := newAPIHarness(t)
	a.client.FailNext(10, errors.New("quota exceeded"))

	w := a.do("POST", "/api/operations", []byte(markReadBody))
	require.Equal(t, 502, w.Result().StatusCode())
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, false, body["will_retry"])
	assert.EqualValues(t, 4, body["retry_count"])
	assert.Equal(t, 4, a.client.Attempts())
}

func TestGetAndListOperations(t *testing.T) {
	a := newAPIHarness(t)
	w := a.do("POST", "/api/operations", []byte(markReadBody))
	var res batchop.Result
	decode(t, w, &res)

	w = a.do("GET", "/api/operations/"+res.ID, nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var rec oplog.Record
	decode(t, w, &rec)
	assert.Equal(t, []string{"messages/a", "messages/b"}, rec.TargetRefs)

	w = a.do("GET", "/api/operations/missing", nil)
	assert.Equal(t, 404, w.Result().StatusCode())

	w = a.do("GET", "/api/operations?status=completed&correlation_key=matchId&correlation_value=m1", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var list struct {
		Operations []oplog.Record `json:"operations"`
		Total      int            `json:"total"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Total)

	w = a.do("GET", "/api/operations?status=pending", nil)
	decode(t, w, &list)
	assert.Equal(t, 0, list.Total)

	w = a.do("GET", "/api/operations?status=bogus", nil)
	assert.Equal(t, 400, w.Result().StatusCode())
	w = a.do("GET", "/api/operations?limit=-1", nil)
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestResetOperation(t *testing.T) {
	a := newAPIHarness(t)
	a.client.FailNext(10, nil)
	w := a.do("POST", "/api/operations", []byte(markReadBody))
	require.Equal(t, 502, w.Result().StatusCode())
	var failed map[string]interface{}
	decode(t, w, &failed)
	id := failed["operation_id"].(string)

	w = a.do("POST", "/api/operations/"+id+"/reset", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var rec oplog.Record
	decode(t, w, &rec)
	assert.Equal(t, oplog.StatusPending, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)

	// pending 不能再次重置
	w = a.do("POST", "/api/operations/"+id+"/reset", nil)
	assert.Equal(t, 409, w.Result().StatusCode())

	w = a.do("POST", "/api/operations/missing/reset", nil)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestTriggerRecovery(t *testing.T) {
	a := newAPIHarness(t)
	now := time.Now()
	rec := oplog.NewRecord("op-1", string(batchop.Delete), []string{"messages/x"}, nil, now)
	require.NoError(t, a.store.Put(context.Background(), rec))

	w := a.do("POST", "/api/recovery", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var report batchop.RecoveryReport
	decode(t, w, &report)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Completed)

	got, err := a.store.Get(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, oplog.StatusCompleted, got.Status)
}

func TestTriggerRecovery_DeferredWhileOffline(t *testing.T) {
	a := newAPIHarness(t)
	a.monitor.SetConnected(false)

	w := a.do("POST", "/api/recovery", nil)
	require.Equal(t, 202, w.Result().StatusCode())
	var report batchop.RecoveryReport
	decode(t, w, &report)
	assert.True(t, report.Deferred)
	assert.True(t, a.coord.Deferred())
}

func TestPurgeOperations(t *testing.T) {
	a := newAPIHarness(t)
	a.do("POST", "/api/operations", []byte(markReadBody))
	require.Equal(t, 1, a.store.Len())

	w := a.do("DELETE", "/api/operations?correlation_key=matchId", nil)
	assert.Equal(t, 400, w.Result().StatusCode())

	w = a.do("DELETE", "/api/operations?correlation_key=matchId&correlation_value=m1", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var body map[string]int
	decode(t, w, &body)
	assert.Equal(t, 1, body["deleted"])
	assert.Equal(t, 0, a.store.Len())
}
