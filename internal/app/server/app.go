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

package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	apihttp "batchop-engine/internal/api/http"
	"batchop-engine/internal/api/http/middleware"
	"batchop-engine/internal/batchop"
	"batchop-engine/internal/docstore"
	"batchop-engine/internal/idempotency"
	"batchop-engine/internal/netmon"
	"batchop-engine/internal/oplog"
	"batchop-engine/internal/storage/cache"
	"batchop-engine/pkg/config"
	"batchop-engine/pkg/log"
	"batchop-engine/pkg/retention"
	"batchop-engine/pkg/secrets"
	"batchop-engine/pkg/tracing"
)

// App 批量操作服务：执行器、恢复协调器、留存清理与管理 API
type App struct {
	config      *config.Config
	logger      *log.Logger
	store       oplog.Store
	cacheStore  cache.Store
	client      docstore.Client
	monitor     netmon.Monitor
	prober      *netmon.Prober
	bus         *batchop.Bus
	events      *batchop.Subscription
	exec        *batchop.Executor
	coordinator *batchop.Coordinator
	retention   *retention.Engine
	router      *apihttp.Router
	hertz       *server.Hertz
	tracer      *sdktrace.TracerProvider

	cancel context.CancelFunc
}

// NewApp 按配置组装全部组件；失败时关闭已打开的存储
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	secretStore, err := secrets.NewStore(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("初始化 secret 存储失败: %w", err)
	}
	if err := secrets.ResolveConfig(ctx, secretStore, cfg); err != nil {
		return nil, fmt.Errorf("解析 secret 失败: %w", err)
	}

	a := &App{config: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		a.closeStores()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.config
	var err error

	if a.store, err = oplog.Open(ctx, cfg.OpLog); err != nil {
		return fmt.Errorf("初始化操作日志存储失败: %w", err)
	}
	if a.cacheStore, err = cache.NewCache(ctx, cfg.Cache); err != nil {
		return fmt.Errorf("初始化幂等缓存失败: %w", err)
	}
	if a.client, err = docstore.Open(cfg.DocStore); err != nil {
		return fmt.Errorf("初始化文档存储客户端失败: %w", err)
	}
	if a.monitor, err = netmon.Open(cfg.Network, cfg.DocStore.BaseURL, a.logger.With("component", "netmon")); err != nil {
		return fmt.Errorf("初始化网络监测失败: %w", err)
	}
	a.prober, _ = a.monitor.(*netmon.Prober)

	idem := idempotency.NewCache(a.cacheStore, cfg.BatchOp.IdempotencyWindowOrDefault())
	a.bus = batchop.NewBus()
	a.exec, err = batchop.NewExecutor(batchop.Deps{
		Store:   a.store,
		Client:  a.client,
		Monitor: a.monitor,
		Cache:   idem,
		Bus:     a.bus,
		Logger:  a.logger.With("component", "executor"),
	}, batchop.ConfigFrom(cfg.BatchOp), batchop.WithFailureReporter(a.reportFailure))
	if err != nil {
		return err
	}
	a.coordinator = batchop.NewCoordinator(a.exec, batchop.RecoveryConfigFrom(cfg.Recovery))

	a.retention = retention.NewEngine(retention.RetentionConfig{
		Enable:        true,
		RetentionDays: cfg.BatchOp.LogRetentionDaysOrDefault(),
		ScanInterval:  cfg.BatchOp.CleanupIntervalOrDefault(),
	}, a.store, idem, a.logger.With("component", "retention"))

	if cfg.API.Enabled() {
		mw := middleware.NewMiddleware(a.logger.With("component", "http"))
		a.router = apihttp.NewRouter(apihttp.NewHandler(a.exec, a.coordinator, a.logger.With("component", "api")), mw)
		a.router.SetAudit(middleware.NewAuditMiddleware(middleware.LoggerSink{Logger: a.logger.With("component", "audit")}))
		a.router.SetIdleTimeout(config.ParseDuration(cfg.API.Timeout, 0))
	}
	return nil
}

// reportFailure 重试耗尽时上报，供告警采集
func (a *App) reportFailure(f *batchop.OperationFailed) {
	a.logger.Error("批量操作重试耗尽",
		"operation_id", f.ID,
		"operation_type", string(f.Type),
		"retry_count", f.RetryCount,
		"error", f.Err,
	)
}

// Executor 执行器，供嵌入方直接调用
func (a *App) Executor() *batchop.Executor { return a.exec }

// Coordinator 恢复协调器
func (a *App) Coordinator() *batchop.Coordinator { return a.coordinator }

// Bus 事件总线
func (a *App) Bus() *batchop.Bus { return a.bus }

// Start 启动网络探测、事件日志、启动恢复、留存清理与管理 API（API 在后台运行）
func (a *App) Start() error {
	a.logger.Info("启动 batchop 服务")
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.config.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(ctx, tracing.OTelConfig{
			ServiceName:    a.config.Monitoring.Tracing.ServiceName,
			ExportEndpoint: a.config.Monitoring.Tracing.ExportEndpoint,
			Insecure:       a.config.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			a.logger.Warn("链路追踪初始化失败，继续运行", "error", err)
		} else {
			a.tracer = tp
		}
	}

	if a.prober != nil {
		a.prober.Start(ctx)
	}

	a.events = a.bus.Subscribe(0)
	go a.logEvents(a.events)

	if a.config.Recovery.RunOnStartup() {
		report, err := a.coordinator.Trigger(ctx)
		if err != nil {
			a.logger.Error("启动恢复失败", "error", err)
		} else {
			a.logger.Info("启动恢复完成",
				"deferred", report.Deferred,
				"scanned", report.Scanned,
				"completed", report.Completed,
				"failed", report.Failed,
				"exhausted", report.Exhausted,
			)
		}
	}

	a.retention.Start(ctx)

	if a.router != nil {
		a.startHTTP()
	}
	a.logger.Info("batchop 服务启动成功")
	return nil
}

func (a *App) startHTTP() {
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(a.logger.Output()),
		hertzslog.WithLevel(a.logger.LevelVar()),
	)
	hlog.SetLogger(hertzLogger)

	addr := a.config.API.Addr()
	if a.tracer != nil {
		tracerOpt, cfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(cfg))
	} else {
		a.hertz = a.router.Build(addr)
	}
	go func() {
		a.logger.Info("管理 API 启动", "addr", addr)
		if err := a.hertz.Run(); err != nil {
			a.logger.Error("管理 API 退出", "error", err)
		}
	}()
}

// logEvents 事件总线订阅者：将完成与耗尽事件写入日志
func (a *App) logEvents(sub *batchop.Subscription) {
	for ev := range sub.C {
		a.logger.Info("batchop 事件",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"type", ev.Type,
			"operation_id", ev.OperationID,
			"affected", ev.AffectedCount,
			"retry_count", ev.RetryCount,
			"source", ev.Source,
		)
	}
}

// Shutdown 逆序关闭：API、恢复、留存、执行器（等待进行中的尝试落盘）、探测、存储
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 batchop 服务")
	var errs []error

	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭 HTTP 服务失败: %w", err))
		}
	}
	if a.coordinator != nil {
		a.coordinator.Close()
	}
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.exec != nil {
		if err := a.exec.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("等待执行器退出失败: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.prober != nil {
		a.prober.Stop()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}
	a.closeStores()

	a.logger.Info("batchop 服务关闭完成")
	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Error("关闭文档存储客户端失败", "error", err)
		}
	}
	if a.cacheStore != nil {
		if err := a.cacheStore.Close(); err != nil {
			a.logger.Error("关闭幂等缓存失败", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("关闭操作日志存储失败", "error", err)
		}
	}
}
