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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileStore 目录挂载的 secret（如 Kubernetes secret volume），每个文件一个 key，只读
type fileStore struct {
	dir string
}

// NewFileStore dir 为空时 /etc/secrets
func NewFileStore(dir string) (Store, error) {
	if dir == "" {
		dir = "/etc/secrets"
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secret directory not found: %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secret path is not a directory: %s", dir)
	}
	return &fileStore{dir: dir}, nil
}

func (f *fileStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid secret key: %q", key)
	}
	return filepath.Join(f.dir, key), nil
}

func (f *fileStore) Get(ctx context.Context, key string) (string, error) {
	p, err := f.path(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (f *fileStore) Set(ctx context.Context, key string, value string) error {
	return errors.New("file secret store is read-only")
}

func (f *fileStore) Delete(ctx context.Context, key string) error {
	return errors.New("file secret store is read-only")
}

func (f *fileStore) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		// Kubernetes 挂载时会有 ..data 等隐藏项
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}
