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

package oplog

import (
	"context"
	"fmt"

	"batchop-engine/pkg/config"
)

// Open 按配置创建操作日志存储；postgres 时执行 Migrate
func Open(ctx context.Context, cfg config.OpLogConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("oplog: postgres dsn is required")
		}
		s, err := NewPgStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("oplog: connect postgres: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		return DialRedisStore(ctx, cfg.Addr, cfg.DB, cfg.Password, cfg.Prefix)
	default:
		return nil, fmt.Errorf("oplog: unsupported store type %q", cfg.Type)
	}
}
