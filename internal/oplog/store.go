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
	"time"

	perrors "batchop-engine/pkg/errors"
)

var (
	// ErrNilRecord Put 传入 nil 或空 ID
	ErrNilRecord = perrors.Wrap(perrors.ErrInvalidArg, "oplog: record is nil or has empty id")
	// ErrNotFound 记录不存在（Get 本身返回 nil, nil，供上层使用）
	ErrNotFound = perrors.Wrap(perrors.ErrNotFound, "oplog: record")
)

// Filter List 过滤条件；零值返回全部
type Filter struct {
	Statuses         []Status
	CorrelationKey   string
	CorrelationValue string // 为空时只要求存在 CorrelationKey
	Limit            int    // <=0 不限
}

// Store 操作日志持久化；Get 不存在时返回 nil, nil
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	// Put 按 ID upsert 整条记录
	Put(ctx context.Context, rec *Record) error
	// List 按 CreatedAt 升序返回满足条件的记录
	List(ctx context.Context, f Filter) ([]*Record, error)
	// DeleteTerminalBefore 删除 CreatedAt 早于 cutoff 的终态记录，最多 limit 条（<=0 不限），返回删除数
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
	// DeleteByCorrelation 删除 CorrelationIDs[key]==value 的全部记录
	DeleteByCorrelation(ctx context.Context, key, value string) (int, error)
	Close() error
}
