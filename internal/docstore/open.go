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
	"fmt"

	"batchop-engine/pkg/config"
)

// Open 按配置创建客户端
func Open(cfg config.DocStoreConfig) (Client, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryClient(), nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("docstore: base_url is required for http client")
		}
		return NewHTTPClient(HTTPOptions{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Timeout: config.ParseDuration(cfg.Timeout, 0),
		}), nil
	default:
		return nil, fmt.Errorf("docstore: unsupported client type %q", cfg.Type)
	}
}
