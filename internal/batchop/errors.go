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

package batchop

import (
	"errors"
	"fmt"

	perrors "batchop-engine/pkg/errors"
)

var (
	// ErrNotConnected 离线时快速失败，不写日志也不消耗重试次数
	ErrNotConnected = perrors.Wrap(perrors.ErrUnavailable, "batchop: not connected")
	// ErrEmptyTargets targetRefs 为空
	ErrEmptyTargets = perrors.Wrap(perrors.ErrInvalidArg, "batchop: target refs must not be empty")
	// ErrUnknownOperationType 无重建规则的操作类型
	ErrUnknownOperationType = perrors.Wrap(perrors.ErrInvalidArg, "batchop: unknown operation type")
	// ErrRetriesExhausted 重试耗尽，终态
	ErrRetriesExhausted = errors.New("batchop: retries exhausted")
	// ErrExecutorClosed 执行器已关闭
	ErrExecutorClosed = errors.New("batchop: executor closed")
	// ErrInFlight 操作正在执行，拒绝重置
	ErrInFlight = errors.New("batchop: operation in flight")
)

// OperationFailed 操作未能完成。WillRetry 为 true 时记录仍为非终态，
// 由执行器后台继续或下一轮恢复处理；为 false 时已是 retriesExhausted
type OperationFailed struct {
	ID         string
	Type       OperationType
	RetryCount int
	Err        error
	WillRetry  bool
}

func (e *OperationFailed) Error() string {
	state := "retries exhausted"
	if e.WillRetry {
		state = "will retry"
	}
	return fmt.Sprintf("batchop: operation %s (%s) failed after %d retries, %s: %v", e.ID, e.Type, e.RetryCount, state, e.Err)
}

// Unwrap 终态失败同时匹配 ErrRetriesExhausted 与底层错误
func (e *OperationFailed) Unwrap() []error {
	if e.WillRetry {
		return []error{e.Err}
	}
	return []error{ErrRetriesExhausted, e.Err}
}

// Message 面向用户的提示
func (e *OperationFailed) Message() string {
	if e.WillRetry {
		return "The operation could not be completed yet. It will be retried automatically."
	}
	return "The operation could not be completed and will not be retried automatically."
}
