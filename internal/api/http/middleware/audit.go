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

package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"batchop-engine/pkg/log"
)

// AuditMiddleware 记录改变操作日志状态的管理请求（重置、清理、触发恢复）
type AuditMiddleware struct {
	sink AuditSink
}

// AuditSink 审计记录落地
type AuditSink interface {
	LogAccess(ctx context.Context, entry AuditLog) error
}

// AuditLog 审计记录
type AuditLog struct {
	Action     string
	ResourceID string
	Query      string
	ClientIP   string
	Status     int
	Success    bool
	DurationMS int64
	CreatedAt  time.Time
}

// NewAuditMiddleware 创建审计中间件
func NewAuditMiddleware(sink AuditSink) *AuditMiddleware {
	return &AuditMiddleware{sink: sink}
}

// AuditAccess 只记录写操作，GET 请求直接放行
func (a *AuditMiddleware) AuditAccess() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		method := string(c.Method())
		if method == "GET" || method == "OPTIONS" {
			c.Next(ctx)
			return
		}
		start := time.Now()
		c.Next(ctx)

		path := string(c.Path())
		status := c.Response.StatusCode()
		_ = a.sink.LogAccess(ctx, AuditLog{
			Action:     determineAction(method, path),
			ResourceID: extractOperationID(path),
			Query:      string(c.URI().QueryString()),
			ClientIP:   c.ClientIP(),
			Status:     status,
			Success:    status < 400,
			DurationMS: time.Since(start).Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		})
	}
}

// LoggerSink 将审计记录写入结构化日志
type LoggerSink struct {
	Logger *log.Logger
}

// LogAccess 实现 AuditSink
func (s LoggerSink) LogAccess(ctx context.Context, e AuditLog) error {
	s.Logger.InfoContext(ctx, "audit",
		"action", e.Action,
		"operation_id", e.ResourceID,
		"query", e.Query,
		"client_ip", e.ClientIP,
		"status", e.Status,
		"success", e.Success,
		"duration_ms", e.DurationMS,
	)
	return nil
}

// determineAction 根据方法与路径确定操作类型
func determineAction(method string, path string) string {
	switch {
	case method == "POST" && strings.HasSuffix(path, "/reset"):
		return "reset_operation"
	case method == "POST" && strings.HasPrefix(path, "/api/recovery"):
		return "trigger_recovery"
	case method == "POST" && strings.HasPrefix(path, "/api/operations"):
		return "submit_operation"
	case method == "DELETE" && strings.HasPrefix(path, "/api/operations"):
		return "purge_operations"
	}
	return "unknown"
}

// extractOperationID /api/operations/:id[/reset] -> id
func extractOperationID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "operations" {
		return parts[2]
	}
	return ""
}
