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
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"batchop-engine/internal/netmon"
	"batchop-engine/internal/oplog"
	"batchop-engine/pkg/config"
	"batchop-engine/pkg/log"
	"batchop-engine/pkg/metrics"
	"batchop-engine/pkg/tracing"
	"batchop-engine/pkg/utils"
)

// RecoveryConfig 恢复节流参数
type RecoveryConfig struct {
	CommitQPS   float64 // 每秒提交上限，<=0 不限
	Concurrency int     // 单轮并发，<=0 时 1
}

// RecoveryConfigFrom 由 recovery 配置段构造
func RecoveryConfigFrom(c config.RecoveryConfig) RecoveryConfig {
	return RecoveryConfig{CommitQPS: c.CommitQPS, Concurrency: c.Concurrency}
}

// RecoveryReport 单轮恢复统计
type RecoveryReport struct {
	Deferred        bool `json:"deferred"`
	Scanned         int  `json:"scanned"`
	Completed       int  `json:"completed"`
	Failed          int  `json:"failed"`
	Exhausted       int  `json:"exhausted"`
	SkippedUnknown  int  `json:"skipped_unknown"`
	SkippedInFlight int  `json:"skipped_in_flight"`
	SkippedSettled  int  `json:"skipped_settled"`
	Errors          int  `json:"errors"`
}

const (
	outcomeCompleted       = "completed"
	outcomeFailed          = "failed"
	outcomeExhausted       = "retries_exhausted"
	outcomeSkippedUnknown  = "skipped_unknown"
	outcomeSkippedInFlight = "skipped_inflight"
	outcomeSkippedSettled  = "skipped_settled"
	outcomeError           = "error"
)

func (r *RecoveryReport) add(outcome string) {
	switch outcome {
	case outcomeCompleted:
		r.Completed++
	case outcomeFailed:
		r.Failed++
	case outcomeExhausted:
		r.Exhausted++
	case outcomeSkippedUnknown:
		r.SkippedUnknown++
	case outcomeSkippedInFlight:
		r.SkippedInFlight++
	case outcomeSkippedSettled:
		r.SkippedSettled++
	default:
		r.Errors++
	}
}

// Coordinator 恢复协调器：启动时及网络恢复后重放未完成的操作，每条记录每轮只提交一次
type Coordinator struct {
	exec        *Executor
	monitor     netmon.Monitor
	logger      *log.Logger
	limiter     *rate.Limiter
	concurrency int

	passMu sync.Mutex

	mu       sync.Mutex
	deferred netmon.Subscription
	passes   int
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator 基于执行器创建，复用其存储、客户端、缓存与事件总线
func NewCoordinator(exec *Executor, cfg RecoveryConfig) *Coordinator {
	concurrency := utils.PositiveOr(cfg.Concurrency, 1)
	var limiter *rate.Limiter
	if cfg.CommitQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CommitQPS), utils.PositiveOr(int(cfg.CommitQPS), 1))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		exec:        exec,
		monitor:     exec.monitor,
		logger:      exec.logger.With("component", "recovery"),
		limiter:     limiter,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Trigger 在线时立即执行一轮恢复；离线时登记唯一一个网络恢复订阅，恢复后执行一轮并注销订阅
func (c *Coordinator) Trigger(ctx context.Context) (RecoveryReport, error) {
	if !c.monitor.IsConnected() {
		c.deferUntilRestored()
		return RecoveryReport{Deferred: true}, nil
	}
	return c.Recover(ctx)
}

// Deferred 是否有等待网络恢复的订阅
func (c *Coordinator) Deferred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferred != nil
}

// Passes 已执行的恢复轮数
func (c *Coordinator) Passes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}

func (c *Coordinator) deferUntilRestored() {
	c.mu.Lock()
	if c.closed || c.deferred != nil {
		c.mu.Unlock()
		return
	}
	metrics.RecoveryPassTotal.WithLabelValues("deferred").Inc()
	c.logger.Info("当前离线，恢复推迟到网络恢复后")
	var once sync.Once
	run := func() { once.Do(c.runDeferred) }
	c.deferred = c.monitor.OnRestored(run)
	c.mu.Unlock()

	// 检查与注册之间网络可能已恢复，此时不会再有恢复信号
	if c.monitor.IsConnected() {
		run()
	}
}

// runDeferred 注销订阅并在后台执行一轮恢复；Close 之后不再启动
func (c *Coordinator) runDeferred() {
	c.mu.Lock()
	sub := c.deferred
	c.deferred = nil
	start := !c.closed
	if start {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
	if !start {
		return
	}
	go func() {
		defer c.wg.Done()
		if _, err := c.Recover(c.ctx); err != nil {
			c.logger.Error("网络恢复后的恢复流程失败", "error", err)
		}
	}()
}

// Recover 执行一轮恢复：扫描 pending/inProgress/failed 记录逐条处理；单条失败不影响其他记录
func (c *Coordinator) Recover(ctx context.Context) (RecoveryReport, error) {
	c.passMu.Lock()
	defer c.passMu.Unlock()
	c.mu.Lock()
	c.passes++
	c.mu.Unlock()

	ctx, span := tracing.StartRecoverySpan(ctx)
	var report RecoveryReport
	recs, err := c.exec.store.List(ctx, oplog.Filter{Statuses: oplog.RecoverableStatuses})
	if err != nil {
		metrics.RecoveryPassTotal.WithLabelValues("error").Inc()
		c.logger.Error("扫描操作日志失败", "error", err)
		tracing.EndSpan(span, err)
		return report, err
	}
	report.Scanned = len(recs)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, rec := range recs {
		g.Go(func() error {
			outcome := c.recoverOne(ctx, rec)
			metrics.RecoveryRecordTotal.WithLabelValues(outcome).Inc()
			mu.Lock()
			report.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	metrics.RecoveryPassTotal.WithLabelValues("ran").Inc()
	c.logger.Info("恢复完成",
		"scanned", report.Scanned, "completed", report.Completed, "failed", report.Failed,
		"exhausted", report.Exhausted, "skipped_unknown", report.SkippedUnknown, "skipped_in_flight", report.SkippedInFlight,
		"skipped_settled", report.SkippedSettled)
	tracing.EndSpan(span, nil)
	return report, nil
}

func (c *Coordinator) recoverOne(ctx context.Context, rec *oplog.Record) string {
	fl, leader := c.exec.flights.acquire(rec.ID, true)
	if !leader {
		return outcomeSkippedInFlight
	}
	defer c.exec.flights.release(rec.ID, fl, nil, nil)

	e := c.exec
	logger := c.logger.With("operation_id", rec.ID, "operation_type", rec.Type)

	// 扫描后执行器可能已完成该操作，以持有进行中槽位后的持久状态为准
	if e.cache.Seen(ctx, rec.ID) {
		return outcomeSkippedSettled
	}
	cur, err := e.store.Get(ctx, rec.ID)
	if err != nil {
		logger.Error("重新读取操作日志失败", "error", err)
		return outcomeError
	}
	if cur == nil || !cur.Status.IsRecoverable() {
		return outcomeSkippedSettled
	}
	rec = cur

	if rec.RetryCount >= e.cfg.MaxRetries {
		logger.Warn("恢复时发现重试次数已达上限，直接标记为耗尽", "retry_count", rec.RetryCount)
		_ = e.exhaust(ctx, rec, lastError(rec), sourceRecovery, logger)
		return outcomeExhausted
	}
	if !OperationType(rec.Type).Known() {
		logger.Warn("未知操作类型，跳过")
		return outcomeSkippedUnknown
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return outcomeError
		}
	}

	if err := rec.Transition(oplog.StatusInProgress, e.now()); err != nil {
		logger.Error("状态迁移失败", "status", string(rec.Status), "error", err)
		return outcomeError
	}
	if err := e.store.Put(ctx, rec); err != nil {
		logger.Error("写入 inProgress 失败", "error", err)
		return outcomeError
	}

	commitErr := e.commit(ctx, rec, rec.RetryCount)
	if commitErr == nil {
		e.complete(ctx, rec, sourceRecovery, logger)
		return outcomeCompleted
	}

	rec.RetryCount++
	rec.LastError = commitErr.Error()
	if rec.RetryCount >= e.cfg.MaxRetries {
		_ = e.exhaust(ctx, rec, commitErr, sourceRecovery, logger)
		return outcomeExhausted
	}
	if err := rec.Transition(oplog.StatusFailed, e.now()); err != nil {
		logger.Error("状态迁移失败", "error", err)
		return outcomeError
	}
	if err := e.store.Put(ctx, rec); err != nil {
		logger.Error("写入 failed 失败", "error", err)
		return outcomeError
	}
	logger.Warn("恢复提交失败，留待下一轮", "retry_count", rec.RetryCount, "error", commitErr)
	return outcomeFailed
}

// Wait 等待由网络恢复触发的恢复流程结束
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close 注销待触发的订阅并等待进行中的恢复
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	sub := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
	c.cancel()
	c.wg.Wait()
}
