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

package batchop

import (
	"sync"

	"batchop-engine/pkg/metrics"
)

// flight 同一幂等键的一次进行中执行；done 关闭后 res/err 只读
type flight struct {
	done         chan struct{}
	res          *Result
	err          error
	fromRecovery bool
}

// flights 进行中操作表，所有访问经 mu 串行化
type flights struct {
	mu sync.Mutex
	m  map[string]*flight
}

func newFlights() *flights {
	return &flights{m: make(map[string]*flight)}
}

// acquire 无进行中执行时登记并返回 leader=true；否则返回已有 flight
func (f *flights) acquire(id string, fromRecovery bool) (*flight, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.m[id]; ok {
		return fl, false
	}
	fl := &flight{done: make(chan struct{}), fromRecovery: fromRecovery}
	f.m[id] = fl
	metrics.InFlightOperations.Inc()
	return fl, true
}

// release 写入结果、移除登记并唤醒等待者
func (f *flights) release(id string, fl *flight, res *Result, err error) {
	f.mu.Lock()
	if f.m[id] == fl {
		delete(f.m, id)
		metrics.InFlightOperations.Dec()
	}
	f.mu.Unlock()
	fl.res = res
	fl.err = err
	close(fl.done)
}

func (f *flights) contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[id]
	return ok
}

func (f *flights) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}
