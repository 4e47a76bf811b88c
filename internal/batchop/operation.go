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

// Package batchop 可靠、幂等的批量文档操作：执行器、重试状态机、恢复协调与事件发布
package batchop

import (
	"fmt"
	"sort"

	"batchop-engine/internal/docstore"
	"batchop-engine/internal/oplog"
)

// OperationType 操作类型标签；重放时仅凭类型与 targetRefs 重建写入
type OperationType string

const (
	MarkRead      OperationType = "markRead"
	MarkDelivered OperationType = "markDelivered"
	Delete        OperationType = "delete"
)

// operationDef 每种类型的写入重建规则与完成事件名
type operationDef struct {
	eventType string
	mutation  func() docstore.Mutation
}

var operationDefs = map[OperationType]operationDef{
	MarkRead: {
		eventType: "messages.read",
		mutation: func() docstore.Mutation {
			return docstore.SetFields{Fields: map[string]any{"isRead": true, "readAt": docstore.ServerTimestamp}}
		},
	},
	MarkDelivered: {
		eventType: "messages.delivered",
		mutation: func() docstore.Mutation {
			return docstore.SetFields{Fields: map[string]any{"isDelivered": true, "deliveredAt": docstore.ServerTimestamp}}
		},
	},
	Delete: {
		eventType: "messages.deleted",
		mutation:  func() docstore.Mutation { return docstore.DeleteDoc{} },
	},
}

// KnownTypes 已注册的操作类型，按名称排序
func KnownTypes() []OperationType {
	out := make([]OperationType, 0, len(operationDefs))
	for t := range operationDefs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known 是否为已注册类型
func (t OperationType) Known() bool {
	_, ok := operationDefs[t]
	return ok
}

// EventType 完成事件名；未知类型返回空串
func (t OperationType) EventType() string {
	return operationDefs[t].eventType
}

// Mutation 单个目标文档上的写入
func (t OperationType) Mutation() (docstore.Mutation, error) {
	def, ok := operationDefs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationType, string(t))
	}
	return def.mutation(), nil
}

// Request 一次逻辑操作请求
type Request struct {
	Type           OperationType     `json:"type"`
	TargetRefs     []string          `json:"target_refs"`
	CorrelationIDs map[string]string `json:"correlation_ids,omitempty"`
}

// Result 操作成功结果
type Result struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Status       oplog.Status `json:"status"`
	RetryCount   int          `json:"retry_count"`
	Deduplicated bool         `json:"deduplicated"`
	// Source 去重命中层级：cache | durable | inflight；实际执行时为空
	Source string `json:"source,omitempty"`
}

// buildBatch 由 (type, targetRefs) 重建一个批次，每个目标一条写入
func buildBatch(client docstore.Client, t OperationType, targetRefs []string) (docstore.Batch, error) {
	def, ok := operationDefs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationType, string(t))
	}
	batch := client.BeginBatch()
	for _, ref := range targetRefs {
		batch.AddWrite(ref, def.mutation())
	}
	return batch, nil
}
