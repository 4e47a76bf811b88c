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

// Package docstore 远端文档存储客户端：原子批量写入与文档读取
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"

	perrors "batchop-engine/pkg/errors"
)

var (
	// ErrNotFound 文档不存在
	ErrNotFound = perrors.Wrap(perrors.ErrNotFound, "docstore: document")
	// ErrUnavailable 远端不可达或返回 5xx，可重试
	ErrUnavailable = perrors.Wrap(perrors.ErrUnavailable, "docstore: service")
	// ErrBatchCommitted 同一 Batch 只能提交一次
	ErrBatchCommitted = errors.New("docstore: batch already committed")
	// ErrInvalidRef 引用格式非 collection/id
	ErrInvalidRef = perrors.Wrap(perrors.ErrInvalidArg, "docstore: document reference")
)

// Mutation 单文档写入：SetFields 或 DeleteDoc
type Mutation interface {
	isMutation()
}

// SetFields 合并写入字段；值为 ServerTimestamp 时由服务端填充提交时间
type SetFields struct {
	Fields map[string]any
}

// DeleteDoc 删除文档；文档不存在时视为成功
type DeleteDoc struct{}

func (SetFields) isMutation() {}
func (DeleteDoc) isMutation() {}

type serverTimestamp struct{}

// ServerTimestamp 字段占位值，提交时替换为服务端时间
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp 判断字段值是否为 ServerTimestamp 占位
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Write 批次中的一条写入
type Write struct {
	Ref      string
	Mutation Mutation
}

// Document 读取到的文档
type Document struct {
	Ref        string         `json:"ref"`
	Fields     map[string]any `json:"fields"`
	UpdateTime time.Time      `json:"update_time"`
}

// Condition 字段相等条件
type Condition struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Query 集合查询
type Query struct {
	Where []Condition `json:"where,omitempty"`
	Limit int         `json:"limit,omitempty"`
}

// Batch 一组写入，Commit 时全部生效或全部不生效
type Batch interface {
	AddWrite(ref string, m Mutation)
	Writes() []Write
	Commit(ctx context.Context) error
}

// Client 文档存储客户端
type Client interface {
	BeginBatch() Batch
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	QueryDocuments(ctx context.Context, collection string, q Query) ([]*Document, error)
	Close() error
}

// Ref 拼接文档引用
func Ref(collection, id string) string {
	return collection + "/" + id
}

// SplitRef 以最后一个 / 拆分为 collection 与 id，collection 可含多级路径
func SplitRef(ref string) (collection, id string, err error) {
	i := strings.LastIndex(ref, "/")
	if i <= 0 || i == len(ref)-1 {
		return "", "", ErrInvalidRef
	}
	return ref[:i], ref[i+1:], nil
}
