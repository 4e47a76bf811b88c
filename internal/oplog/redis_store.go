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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "batchop:oplog"

// RedisStore Redis 实现：每条记录一个 JSON 值，另按状态维护 SET 索引
//
//	<prefix>:rec:<id>        记录 JSON
//	<prefix>:status:<status> 该状态下的记录 ID
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 基于已有 client 创建；prefix 为空时 batchop:oplog
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedisStore 连接 Redis 并 Ping 校验
func DialRedisStore(ctx context.Context, addr string, db int, password, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("oplog: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("oplog: redis ping: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) recKey(id string) string {
	return s.prefix + ":rec:" + id
}

func (s *RedisStore) statusKey(st Status) string {
	return s.prefix + ":status:" + string(st)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("oplog: decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return ErrNilRecord
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recKey(rec.ID), data, 0)
		for _, st := range AllStatuses {
			if st != rec.Status {
				pipe.SRem(ctx, s.statusKey(st), rec.ID)
			}
		}
		pipe.SAdd(ctx, s.statusKey(rec.Status), rec.ID)
		return nil
	})
	return err
}

// load 读取 statuses 索引下的全部记录；索引中残留但记录已删除的 ID 忽略
func (s *RedisStore) load(ctx context.Context, statuses []Status) ([]*Record, error) {
	var ids []string
	for _, st := range statuses {
		members, err := s.client.SMembers(ctx, s.statusKey(st)).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, members...)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("oplog: decode record %s: %w", ids[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = AllStatuses
	}
	all, err := s.load(ctx, statuses)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(all))
	for _, r := range all {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *RedisStore) remove(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range recs {
			pipe.Del(ctx, s.recKey(r.ID))
			pipe.SRem(ctx, s.statusKey(r.Status), r.ID)
		}
		return nil
	})
	return err
}

func (s *RedisStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	all, err := s.load(ctx, []Status{StatusCompleted, StatusRetriesExhausted})
	if err != nil {
		return 0, err
	}
	var victims []*Record
	for _, r := range all {
		if r.CreatedAt.Before(cutoff) {
			victims = append(victims, r)
		}
	}
	sortRecords(victims)
	if limit > 0 && len(victims) > limit {
		victims = victims[:limit]
	}
	if err := s.remove(ctx, victims); err != nil {
		return 0, err
	}
	return len(victims), nil
}

func (s *RedisStore) DeleteByCorrelation(ctx context.Context, key, value string) (int, error) {
	all, err := s.load(ctx, AllStatuses)
	if err != nil {
		return 0, err
	}
	var victims []*Record
	for _, r := range all {
		if v, ok := r.CorrelationIDs[key]; ok && v == value {
			victims = append(victims, r)
		}
	}
	if err := s.remove(ctx, victims); err != nil {
		return 0, err
	}
	return len(victims), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
