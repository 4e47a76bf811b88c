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
	"sync"
	"testing"

	"github.com/cloudwego/hertz/pkg/common/ut"

	"batchop-engine/internal/api/http/middleware"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []middleware.AuditLog
}

func (s *recordingSink) LogAccess(ctx context.Context, e middleware.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func TestRouter_UnknownRoute(t *testing.T) {
	a := newAPIHarness(t)
	w := ut.PerformRequest(a.server.Engine, "GET", "/api/jobs", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("GET /api/jobs status = %d, want 404", got)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	a := newAPIHarness(t)
	w := ut.PerformRequest(a.server.Engine, "OPTIONS", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 204 {
		t.Fatalf("OPTIONS status = %d, want 204", got)
	}
	if got := string(w.Result().Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	a := newAPIHarness(t)
	r := NewRouter(NewHandler(a.exec, a.coord, nil), middleware.NewMiddleware(nil))
	r.SetRateLimit(1)
	s := r.Build(":0")

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := ut.PerformRequest(s.Engine, "GET", "/api/operations", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
		codes = append(codes, w.Result().StatusCode())
	}
	if codes[0] != 200 {
		t.Fatalf("first request status = %d, want 200", codes[0])
	}
	if codes[2] != 429 {
		t.Fatalf("codes = %v, want a 429 once the bucket is empty", codes)
	}

	// 健康检查不受限流影响
	w := ut.PerformRequest(s.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("health status = %d, want 200", got)
	}
}

func TestRouter_AuditRecordsWrites(t *testing.T) {
	a := newAPIHarness(t)
	sink := &recordingSink{}
	r := NewRouter(NewHandler(a.exec, a.coord, nil), middleware.NewMiddleware(nil))
	r.SetAudit(middleware.NewAuditMiddleware(sink))
	s := r.Build(":0")

	ut.PerformRequest(s.Engine, "GET", "/api/operations", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	ut.PerformRequest(s.Engine, "POST", "/api/operations/op-9/reset", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	ut.PerformRequest(s.Engine, "DELETE", "/api/operations?correlation_key=matchId&correlation_value=m1", &ut.Body{Body: bytes.NewReader(nil), Len: 0})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2 (GET is not audited)", len(sink.entries))
	}
	reset := sink.entries[0]
	if reset.Action != "reset_operation" || reset.ResourceID != "op-9" || reset.Success {
		t.Fatalf("reset entry = %+v", reset)
	}
	purge := sink.entries[1]
	if purge.Action != "purge_operations" || !purge.Success || purge.Query == "" {
		t.Fatalf("purge entry = %+v", purge)
	}
}
