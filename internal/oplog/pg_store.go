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
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS batch_operation_logs (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	target_refs     TEXT[] NOT NULL,
	status          TEXT NOT NULL,
	retry_count     INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	correlation_ids JSONB,
	last_error      TEXT
);
CREATE INDEX IF NOT EXISTS idx_batch_operation_logs_status ON batch_operation_logs (status, created_at);
CREATE INDEX IF NOT EXISTS idx_batch_operation_logs_correlation ON batch_operation_logs USING GIN (correlation_ids);
`

const pgColumns = `id, type, target_refs, status, retry_count, created_at, updated_at, correlation_ids, last_error`

// PgStore Postgres 实现：batch_operation_logs 表，多实例共享
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的操作日志；dsn 为连接串
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Migrate 建表（幂等）
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("oplog: migrate: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func corrToPg(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PgStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM batch_operation_logs WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *PgStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return ErrNilRecord
	}
	corr, err := corrToPg(rec.CorrelationIDs)
	if err != nil {
		return err
	}
	refs := rec.TargetRefs
	if refs == nil {
		refs = []string{}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO batch_operation_logs (`+pgColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   type = EXCLUDED.type,
		   target_refs = EXCLUDED.target_refs,
		   status = EXCLUDED.status,
		   retry_count = EXCLUDED.retry_count,
		   updated_at = EXCLUDED.updated_at,
		   correlation_ids = EXCLUDED.correlation_ids,
		   last_error = EXCLUDED.last_error`,
		rec.ID, rec.Type, refs, string(rec.Status), rec.RetryCount, rec.CreatedAt, rec.UpdatedAt, corr, nullStr(rec.LastError))
	return err
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	var where []string
	var args []interface{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.CorrelationKey != "" {
		args = append(args, f.CorrelationKey)
		if f.CorrelationValue != "" {
			args = append(args, f.CorrelationValue)
			where = append(where, fmt.Sprintf("correlation_ids ->> $%d = $%d", len(args)-1, len(args)))
		} else {
			where = append(where, fmt.Sprintf("correlation_ids ? $%d", len(args)))
		}
	}
	q := `SELECT ` + pgColumns + ` FROM batch_operation_logs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PgStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	q := `DELETE FROM batch_operation_logs WHERE id IN (
		SELECT id FROM batch_operation_logs WHERE status IN ($1, $2) AND created_at < $3 ORDER BY created_at`
	args := []interface{}{string(StatusCompleted), string(StatusRetriesExhausted), cutoff}
	if limit > 0 {
		q += ` LIMIT $4`
		args = append(args, limit)
	}
	q += `)`
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgStore) DeleteByCorrelation(ctx context.Context, key, value string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batch_operation_logs WHERE correlation_ids ->> $1 = $2`, key, value)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	var corr []byte
	var lastError *string
	if err := row.Scan(&rec.ID, &rec.Type, &rec.TargetRefs, &status, &rec.RetryCount, &rec.CreatedAt, &rec.UpdatedAt, &corr, &lastError); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if len(corr) > 0 {
		if err := json.Unmarshal(corr, &rec.CorrelationIDs); err != nil {
			return nil, fmt.Errorf("oplog: decode correlation_ids: %w", err)
		}
	}
	if lastError != nil {
		rec.LastError = *lastError
	}
	return &rec, nil
}
