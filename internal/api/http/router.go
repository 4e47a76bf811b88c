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
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"

	"batchop-engine/internal/api/http/middleware"
)

// Router 管理 API 路由
type Router struct {
	handler     *Handler
	middleware  *middleware.Middleware
	audit       *middleware.AuditMiddleware
	rateLimit   int
	idleTimeout time.Duration
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetAudit 为写操作挂载审计中间件
func (r *Router) SetAudit(audit *middleware.AuditMiddleware) {
	r.audit = audit
}

// SetRateLimit 每秒请求上限，<=0 不限流
func (r *Router) SetRateLimit(rps int) {
	r.rateLimit = rps
}

// SetIdleTimeout 连接空闲超时
func (r *Router) SetIdleTimeout(d time.Duration) {
	r.idleTimeout = d
}

// Build 创建 Hertz 实例并注册全部路由，opts 追加在默认选项之后（如链路追踪）
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	options := []hertzconfig.Option{server.WithHostPorts(addr)}
	if r.idleTimeout > 0 {
		options = append(options, server.WithIdleTimeout(r.idleTimeout))
	}
	options = append(options, opts...)
	h := server.Default(options...)
	h.Use(r.middleware.AccessLog(), r.middleware.CORS())

	h.GET("/api/health", r.handler.HealthCheck)
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api", r.middleware.RateLimit(r.rateLimit))
	if r.audit != nil {
		api.Use(r.audit.AuditAccess())
	}
	api.POST("/operations", r.handler.SubmitOperation)
	api.GET("/operations", r.handler.ListOperations)
	api.DELETE("/operations", r.handler.PurgeOperations)
	api.GET("/operations/:id", r.handler.GetOperation)
	api.POST("/operations/:id/reset", r.handler.ResetOperation)
	api.POST("/recovery", r.handler.TriggerRecovery)
	return h
}
