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
	"errors"
	"sort"
	"time"
)

// Status 操作记录状态
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProgress       Status = "inProgress"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusRetriesExhausted Status = "retriesExhausted"
)

// AllStatuses 全部状态，按生命周期顺序
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusRetriesExhausted}

// RecoverableStatuses 恢复扫描时需处理的状态
var RecoverableStatuses = []Status{StatusPending, StatusInProgress, StatusFailed}

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = errors.New("oplog: invalid status transition")

// ParseStatus 解析状态字符串
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal completed 与 retriesExhausted 为终态
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRetriesExhausted
}

// IsRecoverable 恢复流程需要重放的状态
func (s Status) IsRecoverable() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusFailed
}

// CanTransition 判断 from→to 是否为合法迁移；同状态写回（更新 retryCount/lastError）视为合法。
// 终态只能由操作员 Reset 离开，不经由此函数
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.IsTerminal()
	}
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusRetriesExhausted
	case StatusInProgress:
		return to == StatusPending || to == StatusCompleted || to == StatusFailed || to == StatusRetriesExhausted
	case StatusFailed:
		return to == StatusInProgress || to == StatusPending || to == StatusRetriesExhausted
	default:
		return false
	}
}

// Record 一次逻辑批量操作的持久化记录，以 ID（幂等键）为主键
type Record struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	TargetRefs     []string          `json:"target_refs"`
	Status         Status            `json:"status"`
	RetryCount     int               `json:"retry_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CorrelationIDs map[string]string `json:"correlation_ids,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
}

// NewRecord 创建 pending 记录
func NewRecord(id, opType string, targetRefs []string, correlationIDs map[string]string, now time.Time) *Record {
	refs := append([]string(nil), targetRefs...)
	var corr map[string]string
	if len(correlationIDs) > 0 {
		corr = make(map[string]string, len(correlationIDs))
		for k, v := range correlationIDs {
			corr[k] = v
		}
	}
	return &Record{
		ID:             id,
		Type:           opType,
		TargetRefs:     refs,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		CorrelationIDs: corr,
	}
}

// Clone 深拷贝，存储实现返回副本避免调用方改写内部状态
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.TargetRefs = append([]string(nil), r.TargetRefs...)
	if r.CorrelationIDs != nil {
		c.CorrelationIDs = make(map[string]string, len(r.CorrelationIDs))
		for k, v := range r.CorrelationIDs {
			c.CorrelationIDs[k] = v
		}
	}
	return &c
}

// Transition 迁移到 to 并刷新 UpdatedAt
func (r *Record) Transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return ErrInvalidTransition
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Reset 操作员重置：retriesExhausted → pending，retryCount 清零
func (r *Record) Reset(now time.Time) error {
	if r.Status != StatusRetriesExhausted {
		return ErrInvalidTransition
	}
	r.Status = StatusPending
	r.RetryCount = 0
	r.LastError = ""
	r.UpdatedAt = now
	return nil
}

// Matches 判断记录是否满足过滤条件（不含 Limit）
func (f Filter) Matches(r *Record) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.CorrelationKey != "" {
		v, ok := r.CorrelationIDs[f.CorrelationKey]
		if !ok {
			return false
		}
		if f.CorrelationValue != "" && v != f.CorrelationValue {
			return false
		}
	}
	return true
}

// sortRecords 按 CreatedAt、ID 升序，恢复时先处理最早的操作
func sortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
