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
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"batchop-engine/pkg/log"
)

// ProberOptions 探测参数
type ProberOptions struct {
	URL      string
	Interval time.Duration // <=0 时 5s
	Timeout  time.Duration // <=0 时 2s
}

// Prober 周期性 GET 健康地址判断连通性；2xx/3xx/4xx 视为可达，传输错误与 5xx 视为离线
type Prober struct {
	opts   ProberOptions
	rc     *resty.Client
	logger *log.Logger

	mu        sync.Mutex
	connected bool
	started   bool
	l         listeners

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewProber 创建探测器，初始状态为 connected；Start 后开始探测
func NewProber(opts ProberOptions, logger *log.Logger) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Prober{
		opts:      opts,
		rc:        resty.New().SetTimeout(opts.Timeout),
		logger:    logger,
		connected: true,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *Prober) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Prober) OnRestored(fn func()) Subscription {
	return p.l.add(fn)
}

// Start 立即探测一次，然后按间隔探测直到 Stop 或 ctx 结束
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	p.Probe(ctx)
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.Probe(ctx)
			}
		}
	}()
}

// Stop 停止探测并等待循环退出；未 Start 时直接返回
func (p *Prober) Stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	p.stopOnce.Do(func() { close(p.stopCh) })
	if started {
		<-p.done
	}
}

// Probe 执行一次探测并更新状态，返回本次结果
func (p *Prober) Probe(ctx context.Context) bool {
	ok := false
	resp, err := p.rc.R().SetContext(ctx).Get(p.opts.URL)
	if err == nil && resp.StatusCode() < 500 {
		ok = true
	}
	p.set(ok)
	return ok
}

func (p *Prober) set(connected bool) {
	p.mu.Lock()
	prev := p.connected
	p.connected = connected
	p.mu.Unlock()
	if prev == connected {
		return
	}
	if connected {
		p.logger.Info("网络已恢复", "url", p.opts.URL)
		p.l.fire()
	} else {
		p.logger.Warn("网络不可达", "url", p.opts.URL)
	}
}
