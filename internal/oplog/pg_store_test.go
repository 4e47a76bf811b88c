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
	"os"
	"testing"
)

func testOpLogDSN(t *testing.T) string {
	dsn := os.Getenv("TEST_OPLOG_DSN")
	if dsn == "" {
		t.Skip("TEST_OPLOG_DSN not set, skipping Postgres oplog tests")
	}
	return dsn
}

func TestPgStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewPgStore(ctx, testOpLogDSN(t))
	if err != nil {
		t.Fatalf("NewPgStore: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_, _ = store.pool.Exec(ctx, `DELETE FROM batch_operation_logs`)
	testStore(t, store)
}
