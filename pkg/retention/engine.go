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

package retention

import (
	"context"
	"sync"
	"time"

	"batchop-engine/pkg/log"
	"batchop-engine/pkg/metrics"
)

// Sweeper 终态记录批量删除（oplog.Store 满足）
type Sweeper interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CachePruner 幂等缓存过期清理（idempotency.Cache 满足）
type CachePruner interface {
	Prune(ctx context.Context) (int, error)
}

// Engine 留存引擎：按周期删除过期的终态操作日志并清理幂等缓存
type Engine struct {
	config  RetentionConfig
	sweeper Sweeper
	pruner  CachePruner
	logger  *log.Logger
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewEngine 创建留存引擎；pruner 可为 nil
func NewEngine(config RetentionConfig, sweeper Sweeper, pruner CachePruner, logger *log.Logger) *Engine {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRetentionConfig().BatchSize
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultRetentionConfig().ScanInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		config:  config,
		sweeper: sweeper,
		pruner:  pruner,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// SetClock 替换时间源
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// ShouldDelete 判断 updatedAt 的终态记录是否已过保留期
func (e *Engine) ShouldDelete(updatedAt time.Time) bool {
	cutoff := e.config.Cutoff(e.now())
	return !cutoff.IsZero() && updatedAt.Before(cutoff)
}

// RunRetentionScan 执行一轮清理，返回删除的日志记录数
func (e *Engine) RunRetentionScan(ctx context.Context) (int, error) {
	if !e.config.Enable {
		return 0, nil
	}
	if e.pruner != nil {
		if n, err := e.pruner.Prune(ctx); err != nil {
			e.logger.Warn("清理幂等缓存失败", "error", err)
		} else if n > 0 {
			e.logger.Debug("已清理过期幂等缓存", "count", n)
		}
	}

	cutoff := e.config.Cutoff(e.now())
	if cutoff.IsZero() {
		return 0, nil
	}
	total := 0
	for {
		n, err := e.sweeper.DeleteTerminalBefore(ctx, cutoff, e.config.BatchSize)
		total += n
		metrics.OpLogSweptTotal.Add(float64(n))
		if err != nil {
			return total, err
		}
		if n < e.config.BatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		e.logger.Info("已删除过期操作日志", "count", total, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return total, nil
}

// Start 按 ScanInterval 周期执行，直到 Stop 或 ctx 结束
func (e *Engine) Start(ctx context.Context) {
	if !e.config.Enable {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.config.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				if _, err := e.RunRetentionScan(ctx); err != nil {
					e.logger.Error("留存清理失败", "error", err)
				}
			}
		}
	}()
}

// Stop 停止周期清理
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
