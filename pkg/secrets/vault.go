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

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置；PathPrefix 为 KV v2 挂载点（默认 secret）
type VaultConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	PathPrefix string `yaml:"path_prefix"`
}

// vaultStore KV v2：值存于 <mount>/data/<key> 的 value 字段
type vaultStore struct {
	client *vault.Client
	mount  string
}

// NewVaultStore 创建 Vault secret store 并检查服务健康
func NewVaultStore(config VaultConfig) (Store, error) {
	cfg := vault.DefaultConfig()
	if config.Address != "" {
		cfg.Address = config.Address
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	return newVaultStoreWithClient(client, config.PathPrefix), nil
}

func newVaultStoreWithClient(client *vault.Client, mount string) *vaultStore {
	mount = strings.Trim(mount, "/")
	if mount == "" {
		mount = "secret"
	}
	return &vaultStore{client: client, mount: mount}
}

func (v *vaultStore) dataPath(key string) string {
	return v.mount + "/data/" + strings.TrimLeft(key, "/")
}

func (v *vaultStore) metadataPath(key string) string {
	return v.mount + "/metadata/" + strings.TrimLeft(key, "/")
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.dataPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	if val, ok := data["value"].(string); ok {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s has no value field", ErrNotFound, key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	payload := map[string]interface{}{
		"data": map[string]interface{}{"value": value},
	}
	if _, err := v.client.Logical().WriteWithContext(ctx, v.dataPath(key), payload); err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.metadataPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir, namePrefix := "", prefix
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, namePrefix = prefix[:i+1], prefix[i+1:]
	}
	secret, err := v.client.Logical().ListWithContext(ctx, v.metadataPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []string
	for _, k := range keys {
		if str, ok := k.(string); ok && strings.HasPrefix(str, namePrefix) {
			result = append(result, dir+str)
		}
	}
	return result, nil
}
