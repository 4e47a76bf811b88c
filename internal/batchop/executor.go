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
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"batchop-engine/internal/docstore"
	"batchop-engine/internal/idempotency"
	"batchop-engine/internal/netmon"
	"batchop-engine/internal/oplog"
	"batchop-engine/pkg/config"
	perrors "batchop-engine/pkg/errors"
	"batchop-engine/pkg/log"
	"batchop-engine/pkg/metrics"
	"batchop-engine/pkg/tracing"
	"batchop-engine/pkg/utils"
)

const (
	sourceExecutor = "executor"
	sourceRecovery = "recovery"
)

// Config 重试策略
type Config struct {
	MaxRetries     int           // 首次之外的重试次数，共 MaxRetries+1 次尝试
	BaseRetryDelay time.Duration // 第 n 次失败后等待 BaseRetryDelay*2^n
	RetryJitter    float64       // 0~1，等待时长在 [1-j, 1+j] 倍间随机；0 为确定性
}

// DefaultConfig 3 次重试，基数 2s，无抖动
func DefaultConfig() Config {
	return Config{MaxRetries: config.DefaultMaxRetries, BaseRetryDelay: config.DefaultBaseRetryDelay}
}

// ConfigFrom 由 batchop 配置段构造
func ConfigFrom(c config.BatchOpConfig) Config {
	return Config{
		MaxRetries:     c.MaxRetriesOrDefault(),
		BaseRetryDelay: c.BaseRetryDelayOrDefault(),
		RetryJitter:    c.RetryJitter,
	}
}

// Sleeper 退避等待；stop 关闭时提前返回 false
type Sleeper func(d time.Duration, stop <-chan struct{}) bool

func timerSleep(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// FailureReporter 重试耗尽时的观测回调（告警、上报）
type FailureReporter func(f *OperationFailed)

// Deps 执行器依赖；Store、Client、Monitor 必填
type Deps struct {
	Store   oplog.Store
	Client  docstore.Client
	Monitor netmon.Monitor
	Cache   *idempotency.Cache // nil 时使用 5 分钟内存缓存
	Bus     *Bus               // nil 时新建
	Logger  *log.Logger
}

// Option 执行器可选项
type Option func(*Executor)

// WithSleeper 替换退避等待（测试中记录时长）
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithFailureReporter 设置重试耗尽回调
func WithFailureReporter(r FailureReporter) Option {
	return func(e *Executor) { e.reporter = r }
}

// Executor 执行一次逻辑批量操作：幂等判断、日志持久化、带退避的提交重试、事件发布
type Executor struct {
	store    oplog.Store
	client   docstore.Client
	monitor  netmon.Monitor
	cache    *idempotency.Cache
	bus      *Bus
	logger   *log.Logger
	cfg      Config
	sleep    Sleeper
	now      func() time.Time
	reporter FailureReporter

	flights *flights

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewExecutor 创建执行器
func NewExecutor(deps Deps, cfg Config, opts ...Option) (*Executor, error) {
	if deps.Store == nil || deps.Client == nil || deps.Monitor == nil {
		return nil, errors.New("batchop: store, client and monitor are required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = config.DefaultMaxRetries
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = config.DefaultBaseRetryDelay
	}
	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		cfg.RetryJitter = 0
	}
	e := &Executor{
		store:   deps.Store,
		client:  deps.Client,
		monitor: deps.Monitor,
		cache:   deps.Cache,
		bus:     deps.Bus,
		logger:  deps.Logger,
		cfg:     cfg,
		sleep:   timerSleep,
		now:     time.Now,
		flights: newFlights(),
		stopCh:  make(chan struct{}),
	}
	if e.cache == nil {
		e.cache = idempotency.NewMemoryCache(config.DefaultIdempotencyWindow)
	}
	if e.bus == nil {
		e.bus = NewBus()
	}
	if e.logger == nil {
		e.logger = log.Nop()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Bus 事件总线
func (e *Executor) Bus() *Bus { return e.bus }

// Config 当前重试策略
func (e *Executor) Config() Config { return e.cfg }

// MarkRead 将消息标记为已读
func (e *Executor) MarkRead(ctx context.Context, matchID, userID string, messageRefs []string) (*Result, error) {
	return e.Execute(ctx, Request{Type: MarkRead, TargetRefs: messageRefs, CorrelationIDs: conversation(matchID, userID)})
}

// MarkDelivered 将消息标记为已送达
func (e *Executor) MarkDelivered(ctx context.Context, matchID, userID string, messageRefs []string) (*Result, error) {
	return e.Execute(ctx, Request{Type: MarkDelivered, TargetRefs: messageRefs, CorrelationIDs: conversation(matchID, userID)})
}

// Delete 删除消息
func (e *Executor) Delete(ctx context.Context, matchID, userID string, messageRefs []string) (*Result, error) {
	return e.Execute(ctx, Request{Type: Delete, TargetRefs: messageRefs, CorrelationIDs: conversation(matchID, userID)})
}

func conversation(matchID, userID string) map[string]string {
	m := make(map[string]string, 2)
	if matchID != "" {
		m["matchId"] = matchID
	}
	if userID != "" {
		m["userId"] = userID
	}
	return m
}

// Execute 执行一次逻辑操作。同一幂等键已完成时直接返回成功；并发的相同请求合并为一次执行。
// 调用方取消 ctx 只结束等待，进行中的尝试照常持久化结果
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(req.TargetRefs) == 0 {
		metrics.OperationTotal.WithLabelValues(string(req.Type), "rejected").Inc()
		return nil, ErrEmptyTargets
	}
	if !req.Type.Known() {
		metrics.OperationTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationType, string(req.Type))
	}
	if e.isClosed() {
		return nil, ErrExecutorClosed
	}

	id := idempotency.DeriveKey(string(req.Type), req.CorrelationIDs, req.TargetRefs)
	ctx, span := tracing.StartOperationSpan(ctx, id, string(req.Type))
	res, err := e.execute(ctx, id, req)
	tracing.EndSpan(span, err)
	return res, err
}

func (e *Executor) execute(ctx context.Context, id string, req Request) (*Result, error) {
	if e.cache.Seen(ctx, id) {
		metrics.IdempotencyHitTotal.WithLabelValues("cache").Inc()
		metrics.OperationTotal.WithLabelValues(string(req.Type), "deduplicated").Inc()
		return &Result{ID: id, Type: string(req.Type), Status: oplog.StatusCompleted, Deduplicated: true, Source: "cache"}, nil
	}

	for {
		fl, leader := e.flights.acquire(id, false)
		if leader {
			return e.lead(ctx, id, req, fl)
		}
		metrics.IdempotencyHitTotal.WithLabelValues("inflight").Inc()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// 恢复流程只做一次提交，结果以持久层为准，重新进入判断
		if fl.fromRecovery {
			continue
		}
		if fl.err != nil {
			return nil, fl.err
		}
		res := *fl.res
		res.Deduplicated = true
		res.Source = "inflight"
		return &res, nil
	}
}

// lead 在后台执行并等待；ctx 取消时返回 WillRetry 的 OperationFailed，后台继续
func (e *Executor) lead(ctx context.Context, id string, req Request, fl *flight) (*Result, error) {
	if !e.track() {
		e.flights.release(id, fl, nil, ErrExecutorClosed)
		return nil, ErrExecutorClosed
	}
	go func() {
		defer e.wg.Done()
		res, err := e.run(context.WithoutCancel(ctx), id, req)
		e.flights.release(id, fl, res, err)
	}()
	select {
	case <-fl.done:
		return fl.res, fl.err
	case <-ctx.Done():
		return nil, &OperationFailed{ID: id, Type: req.Type, Err: ctx.Err(), WillRetry: true}
	}
}

func (e *Executor) run(ctx context.Context, id string, req Request) (*Result, error) {
	logger := e.logger.With("operation_id", id, "operation_type", string(req.Type))

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, perrors.Wrapf(err, "batchop: load record %s", id)
	}
	if rec != nil {
		switch rec.Status {
		case oplog.StatusCompleted:
			metrics.IdempotencyHitTotal.WithLabelValues("durable").Inc()
			metrics.OperationTotal.WithLabelValues(string(req.Type), "deduplicated").Inc()
			e.remember(ctx, rec)
			return &Result{ID: id, Type: rec.Type, Status: rec.Status, RetryCount: rec.RetryCount, Deduplicated: true, Source: "durable"}, nil
		case oplog.StatusRetriesExhausted:
			return nil, &OperationFailed{ID: id, Type: req.Type, RetryCount: rec.RetryCount, Err: lastError(rec)}
		}
	}

	if !e.monitor.IsConnected() {
		metrics.OperationTotal.WithLabelValues(string(req.Type), "not_connected").Inc()
		return nil, ErrNotConnected
	}

	now := e.now()
	if rec == nil {
		rec = oplog.NewRecord(id, string(req.Type), utils.SortedCopy(req.TargetRefs), req.CorrelationIDs, now)
	} else {
		logger.Info("继续未完成的操作", "status", string(rec.Status), "retry_count", rec.RetryCount)
		if err := rec.Transition(oplog.StatusPending, now); err != nil {
			return nil, err
		}
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return nil, perrors.Wrapf(err, "batchop: persist pending %s", id)
	}
	if rec.RetryCount > e.cfg.MaxRetries {
		return nil, e.exhaust(ctx, rec, lastError(rec), sourceExecutor, logger)
	}
	return e.attempt(ctx, rec, logger)
}

// attempt 重试状态机：每次提交前写 inProgress，失败后 retryCount++ 并写回 pending 再退避
func (e *Executor) attempt(ctx context.Context, rec *oplog.Record, logger *log.Logger) (*Result, error) {
	opType := OperationType(rec.Type)
	for {
		if err := rec.Transition(oplog.StatusInProgress, e.now()); err != nil {
			return nil, err
		}
		if err := e.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("batchop: persist inProgress %s: %w", rec.ID, err)
		}

		attemptIndex := rec.RetryCount
		commitErr := e.commit(ctx, rec, attemptIndex)
		if commitErr == nil {
			e.complete(ctx, rec, sourceExecutor, logger)
			return &Result{ID: rec.ID, Type: rec.Type, Status: rec.Status, RetryCount: rec.RetryCount}, nil
		}

		rec.RetryCount++
		rec.LastError = commitErr.Error()
		if rec.RetryCount > e.cfg.MaxRetries {
			return nil, e.exhaust(ctx, rec, commitErr, sourceExecutor, logger)
		}
		if err := rec.Transition(oplog.StatusPending, e.now()); err != nil {
			return nil, err
		}
		if err := e.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("batchop: persist retry %s: %w", rec.ID, err)
		}

		delay := e.backoff(attemptIndex)
		logger.Warn("批量提交失败，稍后重试", "retry_count", rec.RetryCount, "delay", delay.String(), "error", commitErr)
		metrics.RetryBackoffSeconds.Observe(delay.Seconds())
		if !e.sleep(delay, e.stopCh) {
			logger.Info("执行器关闭，操作留待恢复", "retry_count", rec.RetryCount)
			return nil, &OperationFailed{ID: rec.ID, Type: opType, RetryCount: rec.RetryCount, Err: ErrExecutorClosed, WillRetry: true}
		}
	}
}

// commit 由 (type, targetRefs) 重建批次并提交一次
func (e *Executor) commit(ctx context.Context, rec *oplog.Record, attemptIndex int) error {
	opType := OperationType(rec.Type)
	batch, err := buildBatch(e.client, opType, rec.TargetRefs)
	if err != nil {
		return err
	}
	cctx, span := tracing.StartCommitSpan(ctx, rec.ID, attemptIndex, len(rec.TargetRefs))
	start := time.Now()
	err = batch.Commit(cctx)
	metrics.CommitDuration.WithLabelValues(rec.Type).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.CommitAttemptTotal.WithLabelValues(rec.Type, result).Inc()
	tracing.EndSpan(span, err)
	return err
}

// complete 标记 completed、写缓存、发布事件；日志写入失败只记录，提交已生效
func (e *Executor) complete(ctx context.Context, rec *oplog.Record, source string, logger *log.Logger) {
	now := e.now()
	if err := rec.Transition(oplog.StatusCompleted, now); err != nil {
		logger.Error("状态迁移失败", "error", err)
	}
	rec.LastError = ""
	if err := e.store.Put(ctx, rec); err != nil {
		logger.Error("写入 completed 失败，将由恢复流程重放", "error", err)
	}
	e.remember(ctx, rec)
	metrics.OperationTotal.WithLabelValues(rec.Type, "completed").Inc()
	logger.Info("批量操作完成", "retry_count", rec.RetryCount, "targets", len(rec.TargetRefs), "source", source)
	if ev, ok := newEvent(KindCompleted, rec, source, now); ok {
		e.bus.Publish(ev)
	}
}

// exhaust 标记 retriesExhausted 并上报，返回终态错误
func (e *Executor) exhaust(ctx context.Context, rec *oplog.Record, cause error, source string, logger *log.Logger) error {
	now := e.now()
	if err := rec.Transition(oplog.StatusRetriesExhausted, now); err != nil {
		logger.Error("状态迁移失败", "error", err)
	}
	if err := e.store.Put(ctx, rec); err != nil {
		logger.Error("写入 retriesExhausted 失败", "error", err)
	}
	metrics.RetriesExhaustedTotal.WithLabelValues(rec.Type, source).Inc()
	metrics.OperationTotal.WithLabelValues(rec.Type, "retries_exhausted").Inc()
	logger.Error("批量操作重试耗尽", "retry_count", rec.RetryCount, "source", source, "error", cause)

	failed := &OperationFailed{ID: rec.ID, Type: OperationType(rec.Type), RetryCount: rec.RetryCount, Err: cause}
	if e.reporter != nil {
		e.reporter(failed)
	}
	if ev, ok := newEvent(KindRetriesExhausted, rec, source, now); ok {
		e.bus.Publish(ev)
	}
	return failed
}

func (e *Executor) remember(ctx context.Context, rec *oplog.Record) {
	if err := e.cache.Remember(ctx, rec.ID, rec.UpdatedAt); err != nil {
		e.logger.Warn("写入幂等缓存失败", "operation_id", rec.ID, "error", err)
	}
}

// backoff base*2^attemptIndex，可选抖动
func (e *Executor) backoff(attemptIndex int) time.Duration {
	d := e.cfg.BaseRetryDelay << uint(attemptIndex)
	if j := e.cfg.RetryJitter; j > 0 {
		factor := 1 - j + rand.Float64()*2*j
		d = time.Duration(float64(d) * factor)
	}
	return d
}

func lastError(rec *oplog.Record) error {
	if rec.LastError == "" {
		return ErrRetriesExhausted
	}
	return errors.New(rec.LastError)
}

// Lookup 读取操作记录，不存在返回 nil
func (e *Executor) Lookup(ctx context.Context, id string) (*oplog.Record, error) {
	return e.store.Get(ctx, id)
}

// List 按条件列出操作记录
func (e *Executor) List(ctx context.Context, f oplog.Filter) ([]*oplog.Record, error) {
	return e.store.List(ctx, f)
}

// Connected 当前网络状态
func (e *Executor) Connected() bool {
	return e.monitor.IsConnected()
}

// Reset 操作员将 retriesExhausted 记录重置为 pending（retryCount 清零），由下一次提交或恢复处理
func (e *Executor) Reset(ctx context.Context, id string) (*oplog.Record, error) {
	if e.flights.contains(id) {
		return nil, fmt.Errorf("%w: %s", ErrInFlight, id)
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, oplog.ErrNotFound
	}
	if err := rec.Reset(e.now()); err != nil {
		return nil, fmt.Errorf("batchop: reset %s from %s: %w", id, rec.Status, err)
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	_ = e.cache.Forget(ctx, id)
	e.logger.Info("操作已重置", "operation_id", id)
	return rec, nil
}

// PurgeCorrelation 删除某个关联键下的全部记录并清除对应缓存（如会话删除后）
func (e *Executor) PurgeCorrelation(ctx context.Context, key, value string) (int, error) {
	recs, err := e.store.List(ctx, oplog.Filter{CorrelationKey: key, CorrelationValue: value})
	if err != nil {
		return 0, err
	}
	n, err := e.store.DeleteByCorrelation(ctx, key, value)
	if err != nil {
		return 0, err
	}
	for _, r := range recs {
		_ = e.cache.Forget(ctx, r.ID)
	}
	e.logger.Info("按关联键清理操作日志", "key", key, "value", value, "deleted", n)
	return n, nil
}

// InFlight 进行中的操作数
func (e *Executor) InFlight() int {
	return e.flights.len()
}

func (e *Executor) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *Executor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close 拒绝新操作，结束退避等待并等待进行中的尝试落盘；ctx 结束时不再等待
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stopCh)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
