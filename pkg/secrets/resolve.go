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

package secrets

import (
	"context"
	"fmt"
	"strings"

	"batchop-engine/pkg/config"
)

// RefPrefix 配置值中的 secret 引用前缀
const RefPrefix = "secret://"

// IsRef 是否为 secret://key 形式
func IsRef(value string) bool {
	return strings.HasPrefix(value, RefPrefix)
}

// Resolve 解析 secret://key；非引用原样返回
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	key := strings.TrimPrefix(value, RefPrefix)
	if key == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	v, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", value, err)
	}
	return v, nil
}

// ResolveConfig 就地解析连接串、密码与令牌中的 secret 引用
func ResolveConfig(ctx context.Context, store Store, cfg *config.Config) error {
	fields := []*string{
		&cfg.OpLog.DSN,
		&cfg.OpLog.Password,
		&cfg.Cache.Password,
		&cfg.DocStore.Token,
	}
	for _, f := range fields {
		v, err := Resolve(ctx, store, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}
