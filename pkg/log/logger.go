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

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger 简单封装，供 internal 使用
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	output io.Writer
}

// Config 日志配置（可与 config 包对接）
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ParseLevel 将 debug|info|warn|error 映射为 slog.Level，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 根据配置创建 Logger，cfg 可为 nil 使用默认
func NewLogger(cfg *Config) (*Logger, error) {
	levelVar := &slog.LevelVar{}
	var output io.Writer = os.Stdout
	if cfg != nil {
		levelVar.Set(ParseLevel(cfg.Level))
		if cfg.File != "" {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return nil, fmt.Errorf("打开日志文件失败: %w", err)
			}
			output = f
		}
	}
	return newLogger(output, levelVar, cfg != nil && cfg.Format == "text"), nil
}

// NewWriterLogger 输出到指定 writer，测试中用于断言日志内容
func NewWriterLogger(w io.Writer, level string) *Logger {
	levelVar := &slog.LevelVar{}
	levelVar.Set(ParseLevel(level))
	return newLogger(w, levelVar, true)
}

// Nop 丢弃所有输出
func Nop() *Logger {
	return NewWriterLogger(io.Discard, "error")
}

func newLogger(w io.Writer, levelVar *slog.LevelVar, text bool) *Logger {
	opts := &slog.HandlerOptions{Level: levelVar}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if text {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h), level: levelVar, output: w}
}

// LevelVar 当前级别，供 hertz slog 适配器共享
func (l *Logger) LevelVar() *slog.LevelVar {
	return l.level
}

// Output 日志输出目标
func (l *Logger) Output() io.Writer {
	return l.output
}

// With 返回附加字段的子 Logger
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, output: l.output}
}
