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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供服务与 CLI 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		OperationTotal, CommitAttemptTotal, CommitDuration, RetryBackoffSeconds,
		RetriesExhaustedTotal, IdempotencyHitTotal, InFlightOperations,
		RecoveryPassTotal, RecoveryRecordTotal, EventsDroppedTotal, OpLogSweptTotal,
	)
}

// OperationTotal 逻辑操作结果计数
var OperationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchop_operation_total",
		Help: "逻辑批量操作总数（按类型与结果）",
	},
	[]string{"operation_type", "outcome"}, // completed | deduplicated | retries_exhausted | not_connected | rejected
)

// CommitAttemptTotal 批量提交尝试次数
var CommitAttemptTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchop_commit_attempt_total",
		Help: "批量提交尝试次数",
	},
	[]string{"operation_type", "result"}, // success | failure
)

// CommitDuration 单次批量提交耗时（秒）
var CommitDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "batchop_commit_duration_seconds",
		Help:    "单次批量提交耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation_type"},
)

// RetryBackoffSeconds 重试前实际等待时长
var RetryBackoffSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "batchop_retry_backoff_seconds",
		Help:    "重试前退避等待时长（秒）",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	},
)

// RetriesExhaustedTotal 重试耗尽的操作数，供告警
var RetriesExhaustedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchop_retries_exhausted_total",
		Help: "重试耗尽的操作总数",
	},
	[]string{"operation_type", "source"}, // executor | recovery
)

// IdempotencyHitTotal 幂等命中次数
var IdempotencyHitTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchop_idempotency_hit_total",
		Help: "幂等短路命中次数（按层级）",
	},
	[]string{"tier"}, // cache | durable | inflight
)

// InFlightOperations 当前执行中的操作数
var InFlightOperations = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "batchop_inflight_operations",
		Help: "当前执行中的操作数",
	},
)

// RecoveryPassTotal 恢复轮次
var RecoveryPassTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchop_recovery_pass_total",
		Help: "恢复轮次总数",
	},
	[]string{"result"}, // ran | deferred | error
)

// RecoveryRecordTotal 恢复时单条记录的处理结果
var RecoveryRecordTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchop_recovery_record_total",
		Help: "恢复处理的记录数（按结果）",
	},
	[]string{"outcome"}, // completed | failed | retries_exhausted | skipped_unknown | skipped_inflight | skipped_settled
)

// EventsDroppedTotal 订阅者缓冲区满时丢弃的事件数
var EventsDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batchop_events_dropped_total",
		Help: "因订阅者缓冲区满而丢弃的事件数",
	},
)

// OpLogSweptTotal 留存清理删除的日志记录数
var OpLogSweptTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batchop_oplog_swept_total",
		Help: "留存清理删除的终态操作日志数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
