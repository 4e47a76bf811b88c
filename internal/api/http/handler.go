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
	"errors"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"batchop-engine/internal/batchop"
	"batchop-engine/internal/oplog"
	perrors "batchop-engine/pkg/errors"
	"batchop-engine/pkg/log"
	"batchop-engine/pkg/metrics"
)

const maxListLimit = 500

// Handler 管理 API 处理器
type Handler struct {
	exec     *batchop.Executor
	recovery *batchop.Coordinator
	logger   *log.Logger
}

// NewHandler 创建处理器；recovery 可为 nil（此时触发恢复返回 503）
func NewHandler(exec *batchop.Executor, recovery *batchop.Coordinator, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{exec: exec, recovery: recovery, logger: logger}
}

// submitRequest POST /api/operations 请求体
type submitRequest struct {
	Type           string            `json:"type"`
	TargetRefs     []string          `json:"target_refs"`
	CorrelationIDs map[string]string `json:"correlation_ids"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	resp := map[string]interface{}{"status": "ok"}
	if h.exec != nil {
		resp["connected"] = h.exec.Connected()
		resp["in_flight"] = h.exec.InFlight()
	}
	if h.recovery != nil {
		resp["recovery_deferred"] = h.recovery.Deferred()
	}
	c.JSON(consts.StatusOK, resp)
}

// Metrics Prometheus 文本格式
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// SubmitOperation 提交一次批量操作，阻塞至完成或失败
func (h *Handler) SubmitOperation(ctx context.Context, c *app.RequestContext) {
	var req submitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	res, err := h.exec.Execute(ctx, batchop.Request{
		Type:           batchop.OperationType(req.Type),
		TargetRefs:     req.TargetRefs,
		CorrelationIDs: req.CorrelationIDs,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// ListOperations 按状态与关联键列出操作记录
func (h *Handler) ListOperations(ctx context.Context, c *app.RequestContext) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	recs, err := h.exec.List(ctx, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if recs == nil {
		recs = []*oplog.Record{}
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"operations": recs,
		"total":      len(recs),
	})
}

// GetOperation 读取单条操作记录
func (h *Handler) GetOperation(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	rec, err := h.exec.Lookup(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec == nil {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "operation not found"})
		return
	}
	c.JSON(consts.StatusOK, rec)
}

// ResetOperation 将 retriesExhausted 记录重置为 pending
func (h *Handler) ResetOperation(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	rec, err := h.exec.Reset(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, rec)
}

// TriggerRecovery 触发一轮恢复；离线时登记网络恢复订阅并返回 202
func (h *Handler) TriggerRecovery(ctx context.Context, c *app.RequestContext) {
	if h.recovery == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "recovery is not configured"})
		return
	}
	report, err := h.recovery.Trigger(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := consts.StatusOK
	if report.Deferred {
		status = consts.StatusAccepted
	}
	c.JSON(status, report)
}

// PurgeOperations 按关联键删除记录，key 与 value 均必填
func (h *Handler) PurgeOperations(ctx context.Context, c *app.RequestContext) {
	key := strings.TrimSpace(c.Query("correlation_key"))
	value := strings.TrimSpace(c.Query("correlation_value"))
	if key == "" || value == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "correlation_key and correlation_value are required"})
		return
	}
	n, err := h.exec.PurgeCorrelation(ctx, key, value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]int{"deleted": n})
}

func parseFilter(c *app.RequestContext) (oplog.Filter, error) {
	var f oplog.Filter
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, ok := oplog.ParseStatus(strings.TrimSpace(s))
			if !ok {
				return f, errors.New("invalid status: " + s)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	f.CorrelationKey = c.Query("correlation_key")
	f.CorrelationValue = c.Query("correlation_value")
	if f.CorrelationValue != "" && f.CorrelationKey == "" {
		return f, errors.New("correlation_value requires correlation_key")
	}
	f.Limit = 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errors.New("invalid limit")
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

// writeError 将执行器错误映射为 HTTP 状态码；领域错误按 pkg/errors 的类别归类
func (h *Handler) writeError(c *app.RequestContext, err error) {
	var failed *batchop.OperationFailed
	switch {
	case errors.Is(err, perrors.ErrInvalidArg):
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, batchop.ErrNotConnected):
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "not connected"})
	case errors.As(err, &failed):
		status := consts.StatusBadGateway
		if failed.WillRetry {
			status = consts.StatusServiceUnavailable
		}
		c.JSON(status, map[string]interface{}{
			"error":        failed.Message(),
			"operation_id": failed.ID,
			"retry_count":  failed.RetryCount,
			"will_retry":   failed.WillRetry,
			"cause":        failed.Err.Error(),
		})
	case errors.Is(err, perrors.ErrNotFound):
		c.JSON(consts.StatusNotFound, map[string]string{"error": "operation not found"})
	case errors.Is(err, oplog.ErrInvalidTransition), errors.Is(err, batchop.ErrInFlight):
		c.JSON(consts.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, batchop.ErrExecutorClosed), errors.Is(err, perrors.ErrUnavailable):
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("管理 API 请求失败", "path", string(c.Path()), "error", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
