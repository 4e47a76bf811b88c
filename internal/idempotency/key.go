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

// Package idempotency 幂等键推导与近期完成键缓存
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"batchop-engine/pkg/utils"
)

// keyDomain 版本化域前缀，更换算法时递增
const keyDomain = "batchop/op/v1"

// 分隔符均为不可打印字符，普通文档路径与 id 中不会出现
const (
	fieldSep = "\x00"
	itemSep  = "\x1f"
	pairSep  = "\x1e"
)

// DeriveKey 由 (operationType, correlationIDs, targetIDs) 推导确定性幂等键。
// targetIDs 排序后参与计算，调用方传入顺序不影响结果；不包含任何时间信息。
// 空 targetIDs 应由调用方在此之前拒绝。
func DeriveKey(operationType string, correlationIDs map[string]string, targetIDs []string) string {
	targets := utils.SortedCopy(targetIDs)

	keys := utils.SortedKeys(correlationIDs)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+pairSep+correlationIDs[k])
	}

	var b strings.Builder
	b.WriteString(keyDomain)
	b.WriteString(fieldSep)
	b.WriteString(operationType)
	b.WriteString(fieldSep)
	b.WriteString(strings.Join(pairs, itemSep))
	b.WriteString(fieldSep)
	b.WriteString(strings.Join(targets, itemSep))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
