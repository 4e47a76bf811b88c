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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9000
  host: "127.0.0.1"
batchop:
  max_retries: 5
  base_retry_delay: "500ms"
  idempotency_window: "1m"
  log_retention_days: 3
oplog:
  type: "postgres"
  dsn: "postgres://localhost/batchop"
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Addr() != "127.0.0.1:9000" {
		t.Errorf("API.Addr: got %q", cfg.API.Addr())
	}
	if cfg.BatchOp.MaxRetriesOrDefault() != 5 {
		t.Errorf("MaxRetries: got %d", cfg.BatchOp.MaxRetriesOrDefault())
	}
	if cfg.BatchOp.BaseRetryDelayOrDefault() != 500*time.Millisecond {
		t.Errorf("BaseRetryDelay: got %v", cfg.BatchOp.BaseRetryDelayOrDefault())
	}
	if cfg.BatchOp.IdempotencyWindowOrDefault() != time.Minute {
		t.Errorf("IdempotencyWindow: got %v", cfg.BatchOp.IdempotencyWindowOrDefault())
	}
	if cfg.BatchOp.LogRetentionDaysOrDefault() != 3 {
		t.Errorf("LogRetentionDays: got %d", cfg.BatchOp.LogRetentionDaysOrDefault())
	}
	if cfg.OpLog.Type != "postgres" || cfg.OpLog.DSN != "postgres://localhost/batchop" {
		t.Errorf("OpLog: got %+v", cfg.OpLog)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.BatchOp.MaxRetriesOrDefault(); got != 3 {
		t.Errorf("default MaxRetries = %d, want 3", got)
	}
	if got := cfg.BatchOp.BaseRetryDelayOrDefault(); got != 2*time.Second {
		t.Errorf("default BaseRetryDelay = %v, want 2s", got)
	}
	if got := cfg.BatchOp.IdempotencyWindowOrDefault(); got != 5*time.Minute {
		t.Errorf("default IdempotencyWindow = %v, want 5m", got)
	}
	if got := cfg.BatchOp.LogRetentionDaysOrDefault(); got != 7 {
		t.Errorf("default LogRetentionDays = %d, want 7", got)
	}
	if !cfg.Recovery.RunOnStartup() {
		t.Error("recovery on startup should default to true")
	}
	if !cfg.API.Enabled() || cfg.API.Addr() != ":8080" {
		t.Errorf("API defaults: enabled=%v addr=%q", cfg.API.Enabled(), cfg.API.Addr())
	}
}

func TestLoadConfig_ZeroRetriesIsExplicit(t *testing.T) {
	path := writeConfig(t, "batchop:\n  max_retries: 0\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.BatchOp.MaxRetriesOrDefault(); got != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", got)
	}
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	t.Setenv("BATCHOP_TEST_DSN", "postgres://env/db")
	path := writeConfig(t, "oplog:\n  type: postgres\n  dsn: \"${BATCHOP_TEST_DSN}\"\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.OpLog.DSN != "postgres://env/db" {
		t.Errorf("DSN: got %q", cfg.OpLog.DSN)
	}
}

func TestParseDuration(t *testing.T) {
	if ParseDuration("", time.Second) != time.Second {
		t.Error("empty should fall back")
	}
	if ParseDuration("bogus", time.Second) != time.Second {
		t.Error("invalid should fall back")
	}
	if ParseDuration("-1s", time.Second) != time.Second {
		t.Error("negative should fall back")
	}
	if ParseDuration("3s", time.Second) != 3*time.Second {
		t.Error("valid duration should parse")
	}
}
