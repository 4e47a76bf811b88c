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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusPending, true},
		{StatusPending, StatusRetriesExhausted, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusRetriesExhausted, true},
		{StatusFailed, StatusInProgress, true},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusRetriesExhausted, StatusPending, false},
		{StatusRetriesExhausted, StatusInProgress, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRecord_TransitionAndReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewRecord("op-1", "markRead", []string{"m/2", "m/1"}, map[string]string{"matchId": "x"}, now)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, 0, r.RetryCount)

	later := now.Add(time.Second)
	require.NoError(t, r.Transition(StatusInProgress, later))
	assert.Equal(t, later, r.UpdatedAt)
	require.NoError(t, r.Transition(StatusCompleted, later))
	assert.ErrorIs(t, r.Transition(StatusPending, later), ErrInvalidTransition)
	assert.ErrorIs(t, r.Reset(later), ErrInvalidTransition)

	r2 := NewRecord("op-2", "delete", []string{"m/1"}, nil, now)
	r2.Status = StatusRetriesExhausted
	r2.RetryCount = 4
	r2.LastError = "boom"
	require.NoError(t, r2.Reset(later))
	assert.Equal(t, StatusPending, r2.Status)
	assert.Equal(t, 0, r2.RetryCount)
	assert.Empty(t, r2.LastError)
}

func TestRecord_CloneIsDeep(t *testing.T) {
	r := NewRecord("op-1", "markRead", []string{"a"}, map[string]string{"k": "v"}, time.Now())
	c := r.Clone()
	c.TargetRefs[0] = "b"
	c.CorrelationIDs["k"] = "changed"
	assert.Equal(t, "a", r.TargetRefs[0])
	assert.Equal(t, "v", r.CorrelationIDs["k"])
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus("retriesExhausted")
	assert.True(t, ok)
	assert.Equal(t, StatusRetriesExhausted, st)
	_, ok = ParseStatus("done")
	assert.False(t, ok)
}
