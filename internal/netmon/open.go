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

package netmon

import (
	"fmt"

	"batchop-engine/pkg/config"
	"batchop-engine/pkg/log"
)

// Open 按配置创建监测器；probe 未配置地址时回退到 fallbackURL（通常为文档服务地址）
func Open(cfg config.NetworkConfig, fallbackURL string, logger *log.Logger) (Monitor, error) {
	switch cfg.Type {
	case "", "manual":
		return NewManual(true), nil
	case "probe":
		url := cfg.ProbeURL
		if url == "" {
			url = fallbackURL
		}
		if url == "" {
			return nil, fmt.Errorf("netmon: probe_url is required")
		}
		return NewProber(ProberOptions{
			URL:      url,
			Interval: config.ParseDuration(cfg.ProbeInterval, 0),
			Timeout:  config.ParseDuration(cfg.ProbeTimeout, 0),
		}, logger), nil
	default:
		return nil, fmt.Errorf("netmon: unsupported monitor type %q", cfg.Type)
	}
}
