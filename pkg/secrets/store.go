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

// Package secrets 解析配置中的 secret://key 引用
package secrets

import (
	"context"
	"errors"
	"fmt"

	"batchop-engine/pkg/config"
)

// ErrNotFound secret 不存在
var ErrNotFound = errors.New("secrets: not found")

// Store secret 存储
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀的 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// NewStore 按配置创建；provider 为空时使用 env
func NewStore(cfg config.SecretsConfig) (Store, error) {
	switch cfg.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.PathPrefix)
	case "vault":
		return NewVaultStore(VaultConfig{Address: cfg.Address, Token: cfg.Token, PathPrefix: cfg.PathPrefix})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Provider)
	}
}
