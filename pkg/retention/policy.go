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

package retention

import (
	"time"
)

// RetentionConfig 终态操作日志留存配置
type RetentionConfig struct {
	Enable        bool          `yaml:"enable"`
	RetentionDays int           `yaml:"retention_days"` // 终态记录保留天数（0=永久）
	BatchSize     int           `yaml:"batch_size"`     // 单次删除上限
	ScanInterval  time.Duration `yaml:"scan_interval"`
}

// DefaultRetentionConfig 默认保留 7 天，每小时扫描一次
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enable:        true,
		RetentionDays: 7,
		BatchSize:     500,
		ScanInterval:  time.Hour,
	}
}

// Cutoff 早于该时间的终态记录可删除；RetentionDays<=0 时返回零值（不删除）
func (c RetentionConfig) Cutoff(now time.Time) time.Time {
	if c.RetentionDays <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -c.RetentionDays)
}
