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
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// HTTPOptions REST 文档服务连接参数
type HTTPOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPClient 通过 REST 接口访问文档服务：
//
//	POST /v1/documents:commit              原子批量写入
//	GET  /v1/documents/{ref}               读取文档
//	POST /v1/documents/{collection}:query  集合查询
type HTTPClient struct {
	rc *resty.Client
}

// NewHTTPClient 创建 REST 客户端；Timeout<=0 时 10s
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}
	return &HTTPClient{rc: rc}
}

type wireWrite struct {
	Ref                   string         `json:"ref"`
	Op                    string         `json:"op"` // set | delete
	Fields                map[string]any `json:"fields,omitempty"`
	ServerTimestampFields []string       `json:"server_timestamp_fields,omitempty"`
}

type commitRequest struct {
	BatchID string      `json:"batch_id"`
	Writes  []wireWrite `json:"writes"`
}

type queryResponse struct {
	Documents []*Document `json:"documents"`
}

func encodeWrites(writes []Write) ([]wireWrite, error) {
	out := make([]wireWrite, 0, len(writes))
	for _, w := range writes {
		if _, _, err := SplitRef(w.Ref); err != nil {
			return nil, fmt.Errorf("%w: %q", err, w.Ref)
		}
		switch m := w.Mutation.(type) {
		case SetFields:
			ww := wireWrite{Ref: w.Ref, Op: "set", Fields: make(map[string]any, len(m.Fields))}
			for k, v := range m.Fields {
				if IsServerTimestamp(v) {
					ww.ServerTimestampFields = append(ww.ServerTimestampFields, k)
					continue
				}
				ww.Fields[k] = v
			}
			out = append(out, ww)
		case DeleteDoc:
			out = append(out, wireWrite{Ref: w.Ref, Op: "delete"})
		default:
			return nil, fmt.Errorf("docstore: unsupported mutation %T", w.Mutation)
		}
	}
	return out, nil
}

// statusError 5xx 归为 ErrUnavailable，其余返回服务端原文
func statusError(op string, resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: %d %s", ErrUnavailable, op, resp.StatusCode(), resp.String())
	}
	return fmt.Errorf("docstore: %s: %d %s", op, resp.StatusCode(), resp.String())
}

func (c *HTTPClient) BeginBatch() Batch {
	return &httpBatch{client: c}
}

func (c *HTTPClient) commit(ctx context.Context, writes []Write) error {
	ww, err := encodeWrites(writes)
	if err != nil {
		return err
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(commitRequest{BatchID: "batch-" + uuid.New().String(), Writes: ww}).
		Post("/v1/documents:commit")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return statusError("commit", resp)
	}
	return nil
}

func (c *HTTPClient) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	var doc Document
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&doc).
		Get("/v1/documents/" + escapeRef(Ref(collection, id)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, statusError("get", resp)
	}
	return &doc, nil
}

func (c *HTTPClient) QueryDocuments(ctx context.Context, collection string, q Query) ([]*Document, error) {
	var out queryResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(q).
		SetResult(&out).
		Post("/v1/documents/" + escapeRef(collection) + ":query")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, statusError("query", resp)
	}
	if out.Documents == nil {
		out.Documents = []*Document{}
	}
	return out.Documents, nil
}

func (c *HTTPClient) Close() error {
	return nil
}

func escapeRef(ref string) string {
	parts := strings.Split(ref, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

type httpBatch struct {
	client    *HTTPClient
	writes    []Write
	committed bool
}

func (b *httpBatch) AddWrite(ref string, m Mutation) {
	b.writes = append(b.writes, Write{Ref: ref, Mutation: m})
}

func (b *httpBatch) Writes() []Write {
	return append([]Write(nil), b.writes...)
}

func (b *httpBatch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	b.committed = true
	return b.client.commit(ctx, b.writes)
}
