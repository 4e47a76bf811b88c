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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	BatchOp    BatchOpConfig    `mapstructure:"batchop"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	OpLog      OpLogConfig      `mapstructure:"oplog"`
	Cache      CacheConfig      `mapstructure:"cache"`
	DocStore   DocStoreConfig   `mapstructure:"docstore"`
	Network    NetworkConfig    `mapstructure:"network"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// BatchOpConfig 批量操作执行器配置；零值字段由 Defaults 补齐
type BatchOpConfig struct {
	MaxRetries        *int    `mapstructure:"max_retries"`        // 首次之外的最大重试次数，未配置时 3（共 4 次）
	BaseRetryDelay    string  `mapstructure:"base_retry_delay"`   // 退避基数，如 "2s"，第 n 次重试前等待 base*2^n
	RetryJitter       float64 `mapstructure:"retry_jitter"`       // 0~1，退避抖动比例；0 为确定性退避
	IdempotencyWindow string  `mapstructure:"idempotency_window"` // 幂等缓存窗口，如 "5m"
	LogRetentionDays  int     `mapstructure:"log_retention_days"` // 终态日志保留天数，<=0 时 7
	CleanupInterval   string  `mapstructure:"cleanup_interval"`   // 清理扫描间隔，如 "1h"
}

// RecoveryConfig 恢复协调器配置
type RecoveryConfig struct {
	OnStartup   *bool   `mapstructure:"on_startup"`  // 启动时执行恢复，未配置时 true
	CommitQPS   float64 `mapstructure:"commit_qps"`  // 恢复期间每秒提交上限，<=0 不限流
	Concurrency int     `mapstructure:"concurrency"` // 单轮恢复并发数，<=0 时 1
}

// OpLogConfig 操作日志存储配置
type OpLogConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres | redis
	DSN      string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填；支持 ${ENV} 与 secret://key
	Addr     string `mapstructure:"addr"` // Redis 地址，type=redis 时必填
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"` // Redis key 前缀，空则 batchop:oplog
}

// CacheConfig 幂等缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// DocStoreConfig 文档存储客户端配置
type DocStoreConfig struct {
	Type    string `mapstructure:"type"` // memory | http
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
	Timeout string `mapstructure:"timeout"` // 单次提交超时，如 "10s"
}

// NetworkConfig 网络状态监测配置
type NetworkConfig struct {
	Type          string `mapstructure:"type"`           // manual | probe
	ProbeURL      string `mapstructure:"probe_url"`      // type=probe 时探测地址，空则使用 docstore.base_url
	ProbeInterval string `mapstructure:"probe_interval"` // 如 "5s"
	ProbeTimeout  string `mapstructure:"probe_timeout"`  // 如 "2s"
}

// SecretsConfig secret 解析配置；配置值形如 secret://key 时经此解析
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"` // env | memory | file | vault；file 时 path_prefix 为挂载目录
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// APIConfig 管理 API 配置
type APIConfig struct {
	Enable  *bool  `mapstructure:"enable"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

const (
	DefaultMaxRetries        = 3
	DefaultBaseRetryDelay    = 2 * time.Second
	DefaultIdempotencyWindow = 5 * time.Minute
	DefaultLogRetentionDays  = 7
	DefaultCleanupInterval   = time.Hour
	DefaultAPIPort           = 8080
)

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadServerConfig 加载服务配置（configs/batchop.yaml，可由 BATCHOP_CONFIG 覆盖路径）
func LoadServerConfig() (*Config, error) {
	path := "configs/batchop.yaml"
	if p := os.Getenv("BATCHOP_CONFIG"); p != "" {
		path = p
	}
	return LoadConfig(path)
}

// replaceEnvVars 替换 ${ENV} 形式的连接串与密码
func replaceEnvVars(config *Config) {
	config.OpLog.DSN = expandEnv(config.OpLog.DSN)
	config.OpLog.Password = expandEnv(config.OpLog.Password)
	config.Cache.Password = expandEnv(config.Cache.Password)
	config.DocStore.Token = expandEnv(config.DocStore.Token)
	config.Secrets.Token = expandEnv(config.Secrets.Token)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}

// MaxRetriesOrDefault 未配置时返回 3；显式配置 0 表示只尝试一次
func (c BatchOpConfig) MaxRetriesOrDefault() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// BaseRetryDelayOrDefault 解析退避基数
func (c BatchOpConfig) BaseRetryDelayOrDefault() time.Duration {
	return ParseDuration(c.BaseRetryDelay, DefaultBaseRetryDelay)
}

// IdempotencyWindowOrDefault 解析幂等窗口
func (c BatchOpConfig) IdempotencyWindowOrDefault() time.Duration {
	return ParseDuration(c.IdempotencyWindow, DefaultIdempotencyWindow)
}

// LogRetentionDaysOrDefault 终态日志保留天数
func (c BatchOpConfig) LogRetentionDaysOrDefault() int {
	if c.LogRetentionDays <= 0 {
		return DefaultLogRetentionDays
	}
	return c.LogRetentionDays
}

// CleanupIntervalOrDefault 清理间隔
func (c BatchOpConfig) CleanupIntervalOrDefault() time.Duration {
	return ParseDuration(c.CleanupInterval, DefaultCleanupInterval)
}

// RunOnStartup 未配置时 true
func (c RecoveryConfig) RunOnStartup() bool {
	return c.OnStartup == nil || *c.OnStartup
}

// Enabled 未配置时 true
func (c APIConfig) Enabled() bool {
	return c.Enable == nil || *c.Enable
}

// Addr 监听地址
func (c APIConfig) Addr() string {
	port := c.Port
	if port <= 0 {
		port = DefaultAPIPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
