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

package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	corr := map[string]string{"matchId": "m1", "userId": "u1"}
	k1 := DeriveKey("MarkRead", corr, []string{"msg/1", "msg/2"})
	k2 := DeriveKey("MarkRead", map[string]string{"userId": "u1", "matchId": "m1"}, []string{"msg/1", "msg/2"})
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestDeriveKey_TargetOrderInvariant(t *testing.T) {
	corr := map[string]string{"matchId": "m1"}
	a := DeriveKey("Delete", corr, []string{"msg/3", "msg/1", "msg/2"})
	b := DeriveKey("Delete", corr, []string{"msg/2", "msg/3", "msg/1"})
	assert.Equal(t, a, b)
}

func TestDeriveKey_DoesNotMutateInput(t *testing.T) {
	targets := []string{"b", "a"}
	_ = DeriveKey("MarkRead", nil, targets)
	assert.Equal(t, []string{"b", "a"}, targets)
}

func TestDeriveKey_DistinguishesInputs(t *testing.T) {
	corr := map[string]string{"matchId": "m1"}
	base := DeriveKey("MarkRead", corr, []string{"msg/1", "msg/2"})

	assert.NotEqual(t, base, DeriveKey("MarkDelivered", corr, []string{"msg/1", "msg/2"}), "operation type")
	assert.NotEqual(t, base, DeriveKey("MarkRead", map[string]string{"matchId": "m2"}, []string{"msg/1", "msg/2"}), "correlation value")
	assert.NotEqual(t, base, DeriveKey("MarkRead", corr, []string{"msg/1"}), "target set")
	assert.NotEqual(t, base, DeriveKey("MarkRead", nil, []string{"msg/1", "msg/2"}), "missing correlation")
}

func TestDeriveKey_SeparatorsAreUnambiguous(t *testing.T) {
	// 拼接后字符串相同但切分不同的输入必须得到不同的键
	a := DeriveKey("MarkRead", nil, []string{"ab", "c"})
	b := DeriveKey("MarkRead", nil, []string{"a", "bc"})
	assert.NotEqual(t, a, b)

	c := DeriveKey("MarkRead", map[string]string{"k": "v1"}, []string{"x"})
	d := DeriveKey("MarkRead", map[string]string{"kv": "1"}, []string{"x"})
	assert.NotEqual(t, c, d)
}
