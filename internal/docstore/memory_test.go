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

package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_CommitAppliesAllWrites(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryClient()
	c.SetClock(func() time.Time { return now })
	c.Seed("matches/m1/messages/a", map[string]any{"text": "hi"})
	c.Seed("matches/m1/messages/b", map[string]any{"text": "yo"})

	b := c.BeginBatch()
	b.AddWrite("matches/m1/messages/a", SetFields{Fields: map[string]any{"isRead": true, "readAt": ServerTimestamp}})
	b.AddWrite("matches/m1/messages/b", DeleteDoc{})
	require.Len(t, b.Writes(), 2)
	require.NoError(t, b.Commit(ctx))

	a := c.Doc("matches/m1/messages/a")
	require.NotNil(t, a)
	assert.Equal(t, true, a.Fields["isRead"])
	assert.Equal(t, now, a.Fields["readAt"])
	assert.Equal(t, "hi", a.Fields["text"])
	assert.Nil(t, c.Doc("matches/m1/messages/b"))
	assert.Equal(t, 1, c.Commits())

	assert.ErrorIs(t, b.Commit(ctx), ErrBatchCommitted)
}

func TestMemoryClient_FailNextIsAtomic(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	boom := errors.New("boom")
	c.FailNext(2, boom)

	for i := 0; i < 2; i++ {
		b := c.BeginBatch()
		b.AddWrite("m/a", SetFields{Fields: map[string]any{"isRead": true}})
		assert.ErrorIs(t, b.Commit(ctx), boom)
		assert.Nil(t, c.Doc("m/a"))
	}
	b := c.BeginBatch()
	b.AddWrite("m/a", SetFields{Fields: map[string]any{"isRead": true}})
	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, 3, c.Attempts())
	assert.Equal(t, 1, c.Commits())
}

func TestMemoryClient_FailNextDefaultsToUnavailable(t *testing.T) {
	c := NewMemoryClient()
	c.FailNext(1, nil)
	b := c.BeginBatch()
	b.AddWrite("m/a", DeleteDoc{})
	assert.ErrorIs(t, b.Commit(context.Background()), ErrUnavailable)
}

func TestMemoryClient_GetAndQuery(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	c.Seed("m/a", map[string]any{"isRead": true})
	c.Seed("m/b", map[string]any{"isRead": false})
	c.Seed("other/c", map[string]any{"isRead": true})

	d, err := c.GetDocument(ctx, "m", "a")
	require.NoError(t, err)
	assert.Equal(t, "m/a", d.Ref)

	_, err = c.GetDocument(ctx, "m", "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := c.QueryDocuments(ctx, "m", Query{Where: []Condition{{Field: "isRead", Value: true}}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "m/a", docs[0].Ref)
}

func TestSplitRef(t *testing.T) {
	col, id, err := SplitRef("matches/m1/messages/a")
	require.NoError(t, err)
	assert.Equal(t, "matches/m1/messages", col)
	assert.Equal(t, "a", id)

	for _, bad := range []string{"", "noslash", "/x", "x/"} {
		_, _, err := SplitRef(bad)
		assert.ErrorIs(t, err, ErrInvalidRef, bad)
	}
}
